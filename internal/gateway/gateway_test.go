package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/askcart-ai/assistant/internal/assistant"
	"github.com/askcart-ai/assistant/internal/catalog"
	"github.com/askcart-ai/assistant/internal/llm"
	"github.com/askcart-ai/assistant/internal/model"
	"github.com/askcart-ai/assistant/internal/service"
	"github.com/askcart-ai/assistant/internal/store"
	"github.com/askcart-ai/assistant/pkg/logger"
)

type scriptedLLM struct {
	reply string
	err   error
}

func (s *scriptedLLM) Complete(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.reply, Model: "scripted"}, nil
}

func (s *scriptedLLM) Name() string     { return "scripted" }
func (s *scriptedLLM) Models() []string { return nil }

type nopEmitter struct{}

func (nopEmitter) Emit(string, model.EventName, map[string]any) {}

type harness struct {
	gw    *Gateway
	store *store.MemoryStore
	llm   *scriptedLLM
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.NewMemoryStore()
	cat := catalog.NewMemoryCatalog(
		model.Product{ID: "p1", Name: "iPhone 15 Pro", Price: 99900},
		model.Product{ID: "p2", Name: "MacBook Air", Price: 99900},
	)
	fake := &scriptedLLM{reply: "The MacBook Air is a great laptop under $1000."}
	log := logger.NewNop()

	reasoner := assistant.New(fake, assistant.Config{Timeout: time.Second})
	convs := service.NewConversationService(st, nopEmitter{}, log)
	turns := service.NewMessageService(st, cat, reasoner, nopEmitter{}, 20, log)

	return &harness{gw: New(convs, turns, log), store: st, llm: fake}
}

func (h *harness) send(s *Session, frame string) *model.OutboundFrame {
	return h.gw.Handle(context.Background(), s, []byte(frame))
}

func TestJoinReturnsEmptyHistory(t *testing.T) {
	h := newHarness(t)
	s := NewSession()

	out := h.send(s, `{"type":"join","sessionId":"s1"}`)
	assert.Equal(t, model.FrameHistory, out.Type)
	assert.Empty(t, out.Messages)
	assert.Equal(t, StateJoined, s.State())

	sid, convID, ok := s.Binding()
	assert.True(t, ok)
	assert.Equal(t, "s1", sid)
	assert.NotEmpty(t, convID)
}

func TestEndToEndTurn(t *testing.T) {
	h := newHarness(t)
	s := NewSession()

	h.send(s, `{"type":"join","sessionId":"s1"}`)
	out := h.send(s, `{"type":"message","sessionId":"s1","content":"I need a laptop under $1000"}`)

	require.Equal(t, model.FrameMessage, out.Type)
	require.NotNil(t, out.Message)
	assert.Equal(t, model.RoleAssistant, out.Message.Role)
	require.NotNil(t, out.Message.Metadata)
	assert.Equal(t, model.IntentSearch, out.Message.Metadata.Intent)
	assert.Equal(t, []string{"p2"}, out.Message.Metadata.ProductIDs)
}

func TestRejoinIsIdempotent(t *testing.T) {
	h := newHarness(t)

	first := NewSession()
	h.send(first, `{"type":"join","sessionId":"s1"}`)
	h.send(first, `{"type":"message","sessionId":"s1","content":"Hello"}`)

	a := h.send(NewSession(), `{"type":"join","sessionId":"s1"}`)
	b := h.send(NewSession(), `{"type":"join","sessionId":"s1"}`)

	require.Len(t, a.Messages, 2)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("rejoin history mismatch (-first +second):\n%s", diff)
	}
}

func TestRejoinOnSameConnectionRebinds(t *testing.T) {
	h := newHarness(t)
	s := NewSession()

	h.send(s, `{"type":"join","sessionId":"s1"}`)
	_, first, _ := s.Binding()

	h.send(s, `{"type":"join","sessionId":"s2"}`)
	sid, second, ok := s.Binding()
	assert.True(t, ok)
	assert.Equal(t, "s2", sid)
	assert.NotEqual(t, first, second)
}

func TestMessageBeforeJoin(t *testing.T) {
	h := newHarness(t)
	s := NewSession()

	out := h.send(s, `{"type":"message","sessionId":"s1","content":"hello"}`)
	assert.Equal(t, model.ErrorFrame(MsgNotJoined), out)
	assert.Equal(t, StateConnected, s.State())

	recent, err := h.store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestMalformedFramesKeepConnectionUsable(t *testing.T) {
	h := newHarness(t)
	s := NewSession()

	tests := []struct {
		frame string
		want  string
	}{
		{`not json`, MsgInvalidFrame},
		{`{"type":"leave"}`, MsgUnknownType},
		{`{}`, MsgUnknownType},
		{`{"type":"join"}`, "Session ID cannot be empty"},
		{`{"type":"join","sessionId":"` + strings.Repeat("x", 200) + `"}`, "Session ID exceeds maximum length"},
	}
	for _, tt := range tests {
		out := h.send(s, tt.frame)
		assert.Equal(t, model.ErrorFrame(tt.want), out, tt.frame)
	}

	out := h.send(s, `{"type":"join","sessionId":"s1"}`)
	assert.Equal(t, model.FrameHistory, out.Type)

	out = h.send(s, `{"type":"message","content":""}`)
	assert.Equal(t, model.ErrorFrame("Content cannot be empty"), out)
}

func TestReasoningFailure(t *testing.T) {
	h := newHarness(t)
	h.llm.err = errors.New("quota exceeded")
	s := NewSession()

	h.send(s, `{"type":"join","sessionId":"s1"}`)
	out := h.send(s, `{"type":"message","content":"What's your return policy?"}`)
	assert.Equal(t, model.ErrorFrame(MsgReasoningFailed), out)

	_, convID, _ := s.Binding()
	history, err := h.store.History(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, StateJoined, s.State())
}

func TestClosedSession(t *testing.T) {
	h := newHarness(t)
	s := NewSession()
	h.send(s, `{"type":"join","sessionId":"s1"}`)

	s.Close()
	s.Close()
	assert.Equal(t, StateClosed, s.State())

	out := h.send(s, `{"type":"message","content":"hi"}`)
	assert.Equal(t, model.ErrorFrame(MsgConnectionClosed), out)
}

func TestLogsCarryConversation(t *testing.T) {
	h := newHarness(t)
	core, logs := observer.New(zapcore.DebugLevel)
	gw := New(h.gw.conversations, h.gw.turns, &logger.Logger{Logger: zap.New(core)})

	s := NewSession()
	gw.Handle(context.Background(), s, []byte(`{"type":"join","sessionId":"s1"}`))
	_, convID, _ := s.Binding()

	joined := logs.FilterMessage("session joined").All()
	require.Len(t, joined, 1)
	fields := joined[0].ContextMap()
	assert.Equal(t, "s1", fields["session_id"])
	assert.Equal(t, convID, fields["conversation_id"])
	assert.Equal(t, s.ID(), fields["connection_id"])
}
