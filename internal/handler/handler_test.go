package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askcart-ai/assistant/internal/analytics"
	"github.com/askcart-ai/assistant/internal/assistant"
	"github.com/askcart-ai/assistant/internal/catalog"
	"github.com/askcart-ai/assistant/internal/gateway"
	"github.com/askcart-ai/assistant/internal/llm"
	"github.com/askcart-ai/assistant/internal/middleware"
	"github.com/askcart-ai/assistant/internal/model"
	"github.com/askcart-ai/assistant/internal/service"
	"github.com/askcart-ai/assistant/internal/store"
	"github.com/askcart-ai/assistant/pkg/logger"
)

const testJWTSecret = "handler-test-secret"

type cannedLLM struct {
	mu    sync.Mutex
	reply string
	err   error
}

func (c *cannedLLM) Complete(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return &llm.CompletionResponse{Content: c.reply, Model: "canned"}, nil
}

func (c *cannedLLM) Name() string     { return "canned" }
func (c *cannedLLM) Models() []string { return nil }

func (c *cannedLLM) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

type memorySink struct {
	mu     sync.Mutex
	events []*model.AnalyticsEvent
}

func (s *memorySink) Record(_ context.Context, e *model.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

type server struct {
	*httptest.Server
	store   *store.MemoryStore
	llm     *cannedLLM
	sink    *memorySink
	emitter *analytics.Emitter
}

func newServer(t *testing.T) *server {
	t.Helper()
	fake := &cannedLLM{reply: "For under $1000 the MacBook Air is the best pick."}
	srv := newServerWith(t, fake, time.Second)
	srv.llm = fake
	return srv
}

func newServerWith(t *testing.T, client llm.Client, timeout time.Duration, opts ...func(*RouterConfig)) *server {
	t.Helper()
	log := logger.NewNop()

	st := store.NewMemoryStore()
	cat := catalog.NewMemoryCatalog(
		model.Product{ID: "p1", Name: "iPhone 15 Pro", Description: "Phone", Price: 99900},
		model.Product{ID: "p2", Name: "MacBook Air", Description: "Light laptop", Price: 99900},
		model.Product{ID: "p3", Name: "MacBook Pro", Description: "Pro laptop", Price: 199900},
	)
	sink := &memorySink{}
	emitter := analytics.NewEmitter(sink, 64, log)

	reasoner := assistant.New(client, assistant.Config{Timeout: timeout}, assistant.WithLogger(log))
	convSvc := service.NewConversationService(st, emitter, log)
	msgSvc := service.NewMessageService(st, cat, reasoner, emitter, 20, log)
	productSvc := service.NewProductService(cat, reasoner, log)

	cfg := RouterConfig{
		Health:            NewHealthHandler(map[string]Pinger{"store": st}),
		Chat:              NewChatHandler(gateway.New(convSvc, msgSvc, log), []string{"*"}, log),
		Products:          NewProductHandler(productSvc, log),
		Conversations:     NewConversationHandler(convSvc, log),
		AllowedOrigins:    []string{"*"},
		JWTSecret:         testJWTSecret,
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		Logger:            log,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	router := NewRouter(cfg)

	srv := &server{Server: httptest.NewServer(router), store: st, sink: sink, emitter: emitter}
	t.Cleanup(func() {
		srv.Close()
		emitter.Close(context.Background())
	})
	return srv
}

func (s *server) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type     model.FrameType `json:"type"`
	Messages []model.Message `json:"messages"`
	Message  *model.Message  `json:"message"`
	Content  string          `json:"content"`
}

func exchange(t *testing.T, conn *websocket.Conn, in string) (frame, string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(in)))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f, string(data)
}

func TestChatEndToEnd(t *testing.T) {
	srv := newServer(t)
	conn := srv.dial(t)

	history, raw := exchange(t, conn, `{"type":"join","sessionId":"s1"}`)
	assert.Equal(t, model.FrameHistory, history.Type)
	assert.Empty(t, history.Messages)
	assert.JSONEq(t, `{"type":"history","messages":[]}`, raw)

	reply, _ := exchange(t, conn, `{"type":"message","sessionId":"s1","content":"I need a laptop under $1000"}`)
	require.Equal(t, model.FrameMessage, reply.Type)
	require.NotNil(t, reply.Message)
	assert.Equal(t, model.RoleAssistant, reply.Message.Role)
	require.NotNil(t, reply.Message.Metadata)
	assert.Equal(t, model.IntentSearch, reply.Message.Metadata.Intent)
	for _, id := range reply.Message.Metadata.ProductIDs {
		assert.Contains(t, []string{"p1", "p2", "p3"}, id)
	}
	assert.Equal(t, []string{"p2"}, reply.Message.Metadata.ProductIDs)

	// A reconnecting client sees both turns.
	again, _ := exchange(t, srv.dial(t), `{"type":"join","sessionId":"s1"}`)
	require.Len(t, again.Messages, 2)
	assert.Equal(t, model.RoleUser, again.Messages[0].Role)
	assert.Equal(t, model.RoleAssistant, again.Messages[1].Role)

	require.NoError(t, srv.emitter.Close(context.Background()))
	srv.sink.mu.Lock()
	defer srv.sink.mu.Unlock()
	var names []model.EventName
	for _, e := range srv.sink.events {
		names = append(names, e.Event)
	}
	assert.Equal(t, []model.EventName{
		model.EventConversationStarted,
		model.EventMessageSent,
		model.EventProductRecommended,
	}, names)
}

func TestChatProtocolErrorsKeepConnectionOpen(t *testing.T) {
	srv := newServer(t)
	conn := srv.dial(t)

	out, _ := exchange(t, conn, `{"type":"message","content":"hi"}`)
	assert.Equal(t, model.FrameError, out.Type)
	assert.Equal(t, gateway.MsgNotJoined, out.Content)

	out, _ = exchange(t, conn, `{{{`)
	assert.Equal(t, gateway.MsgInvalidFrame, out.Content)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","content":"Invalid message format"}`, string(data))

	out, _ = exchange(t, conn, `{"type":"join","sessionId":"s1"}`)
	assert.Equal(t, model.FrameHistory, out.Type)
}

func TestChatReasoningFailure(t *testing.T) {
	srv := newServer(t)
	srv.llm.fail(errors.New("upstream down"))
	conn := srv.dial(t)

	exchange(t, conn, `{"type":"join","sessionId":"s1"}`)
	out, _ := exchange(t, conn, `{"type":"message","content":"Hello"}`)
	assert.Equal(t, model.FrameError, out.Type)
	assert.Equal(t, gateway.MsgReasoningFailed, out.Content)

	recent, err := srv.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 1, recent[0].MessageCount)
	assert.Equal(t, "Hello", recent[0].LastMessage)
}

// gatedLLM holds any request mentioning marker until release is closed.
type gatedLLM struct {
	marker  string
	started chan struct{}
	release chan struct{}
}

func (g *gatedLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	for _, m := range req.Messages {
		if strings.Contains(m.Content, g.marker) {
			g.started <- struct{}{}
			select {
			case <-g.release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			break
		}
	}
	return &llm.CompletionResponse{Content: "The MacBook Air is a safe pick.", Model: "gated"}, nil
}

func (g *gatedLLM) Name() string     { return "gated" }
func (g *gatedLLM) Models() []string { return nil }

func TestChatSlowTurnDoesNotBlockOtherConnections(t *testing.T) {
	gate := &gatedLLM{marker: "take your time", started: make(chan struct{}, 1), release: make(chan struct{})}
	var once sync.Once
	releaseGate := func() { once.Do(func() { close(gate.release) }) }
	srv := newServerWith(t, gate, 10*time.Second)
	t.Cleanup(releaseGate)
	slow := srv.dial(t)
	fast := srv.dial(t)

	exchange(t, slow, `{"type":"join","sessionId":"slow-shopper"}`)
	exchange(t, fast, `{"type":"join","sessionId":"fast-shopper"}`)

	require.NoError(t, slow.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"message","content":"Which laptop? take your time"}`)))
	require.NoError(t, slow.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))

	select {
	case <-gate.started:
	case <-time.After(5 * time.Second):
		t.Fatal("slow turn never reached the reasoning engine")
	}

	began := time.Now()
	reply, _ := exchange(t, fast, `{"type":"message","content":"I want a laptop"}`)
	assert.Equal(t, model.FrameMessage, reply.Type)
	assert.Less(t, time.Since(began), 2*time.Second)

	releaseGate()

	slow.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first, second frame
	require.NoError(t, slow.ReadJSON(&first))
	require.NoError(t, slow.ReadJSON(&second))
	assert.Equal(t, model.FrameMessage, first.Type)
	require.NotNil(t, first.Message)
	assert.Equal(t, model.RoleAssistant, first.Message.Role)
	assert.Equal(t, model.FrameError, second.Type)
	assert.Equal(t, gateway.MsgUnknownType, second.Content)
}

func TestChatUpgradeIsRateLimited(t *testing.T) {
	srv := newServerWith(t, &cannedLLM{reply: "ok"}, time.Second, func(cfg *RouterConfig) {
		cfg.RateLimitRequests = 2
	})

	conn := srv.dial(t)
	out, _ := exchange(t, conn, `{"type":"join","sessionId":"s1"}`)
	assert.Equal(t, model.FrameHistory, out.Type)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func doJSON(t *testing.T, method, url, body, token string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestProductEndpoints(t *testing.T) {
	srv := newServer(t)
	base := srv.URL + "/api/v1/products"

	resp, body := doJSON(t, http.MethodGet, base, "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var products []model.Product
	require.NoError(t, json.Unmarshal(body, &products))
	assert.Len(t, products, 3)

	resp, body = doJSON(t, http.MethodGet, base+"/search?q=macbook", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &products))
	assert.Equal(t, []string{"p2", "p3"}, model.ProductIDs(products))

	resp, _ = doJSON(t, http.MethodGet, base+"/search", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, base+"/p1", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, base+"/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCompareEndpoint(t *testing.T) {
	srv := newServer(t)
	url := srv.URL + "/api/v1/products/compare"

	resp, _ := doJSON(t, http.MethodPost, url, `{"productIds":["p1"]}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, url, `{"productIds":["p1","missing"]}`, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, url, `{"productIds":["p2","p3"]}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cmp model.CompareProductsResponse
	require.NoError(t, json.Unmarshal(body, &cmp))
	assert.NotEmpty(t, cmp.Comparison)
	assert.Equal(t, []string{"p2", "p3"}, model.ProductIDs(cmp.Products))

	srv.llm.fail(errors.New("down"))
	resp, _ = doJSON(t, http.MethodPost, url, `{"productIds":["p2","p3"]}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAnalyzeEndpointDegrades(t *testing.T) {
	srv := newServer(t)
	srv.llm.fail(errors.New("down"))

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/products/analyze", `{"query":"gaming laptop"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"features":[],"intent":"general"}`, string(body))
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: []string{middleware.ScopeAdmin},
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func TestAdminEndpoints(t *testing.T) {
	srv := newServer(t)
	token := adminToken(t)
	base := srv.URL + "/api/v1/admin/conversations"

	resp, _ := doJSON(t, http.MethodGet, base+"/recent", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn := srv.dial(t)
	exchange(t, conn, `{"type":"join","sessionId":"s1"}`)
	exchange(t, conn, `{"type":"message","content":"Hello"}`)

	resp, body := doJSON(t, http.MethodGet, base+"/recent", "", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summaries []model.ConversationSummary
	require.NoError(t, json.Unmarshal(body, &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].MessageCount)
	convID := summaries[0].ID

	resp, body = doJSON(t, http.MethodGet, base+"/"+convID+"/messages", "", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var messages []model.Message
	require.NoError(t, json.Unmarshal(body, &messages))
	assert.Len(t, messages, 2)

	resp, body = doJSON(t, http.MethodPut, base+"/"+convID+"/status", `{"status":"resolved"}`, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(body, &conv))
	assert.Equal(t, model.StatusResolved, conv.Status)

	resp, _ = doJSON(t, http.MethodPut, base+"/"+convID+"/status", `{"status":"archived"}`, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, base+"/not-a-uuid/messages", "", token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/ready", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ready"}`, string(body))
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("down") }

func TestReadyReportsFailingDependency(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{"nats": downPinger{}})
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"not ready","reason":"nats unavailable"}`, rec.Body.String())
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://shop.example.com"})

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/ws", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "https://shop.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	req.Header.Set("Origin", "http://api.example.com")
	assert.True(t, check(req), "same host")

	wildcard := originChecker([]string{"https://*"})
	req.Header.Set("Origin", "https://anything.example.org")
	assert.True(t, wildcard(req))
	req.Header.Set("Origin", "http://anything.example.org")
	assert.False(t, wildcard(req))
}
