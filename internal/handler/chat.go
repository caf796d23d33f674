package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/askcart-ai/assistant/internal/gateway"
	"github.com/askcart-ai/assistant/internal/model"
	"github.com/askcart-ai/assistant/pkg/logger"
	"github.com/askcart-ai/assistant/pkg/metrics"
)

const (
	maxFrameSize = 64 * 1024
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
)

// ChatHandler serves the chat widget over a websocket.
type ChatHandler struct {
	gateway  *gateway.Gateway
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewChatHandler creates a chat handler that accepts upgrades from the given
// origins. An entry ending in "*" matches by prefix, so "*" allows any origin.
func NewChatHandler(gw *gateway.Gateway, allowedOrigins []string, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		gateway: gw,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: log,
	}
}

// Serve handles GET /ws
func (h *ChatHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	session := gateway.NewSession()
	defer session.Close()

	log := h.logger.WithConnection(session.ID(), r.RemoteAddr)
	log.Info("chat connection opened")

	metrics.IncrementWSConnections()
	defer metrics.DecrementWSConnections()

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	// A turn outlives its connection: a disconnect abandons the reply but
	// lets the pipeline finish persisting it.
	ctx := context.WithoutCancel(r.Context())

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Warn("chat connection lost", zap.Error(err))
			}
			break
		}

		var out *model.OutboundFrame
		if msgType != websocket.TextMessage {
			metrics.RecordFrame("in", "binary")
			out = model.ErrorFrame(gateway.MsgInvalidFrame)
		} else {
			metrics.RecordFrame("in", "text")
			out = h.gateway.Handle(ctx, session, data)
		}

		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(out); err != nil {
			log.Debug("failed to write frame", zap.Error(err))
			break
		}
		metrics.RecordFrame("out", string(out.Type))
	}

	log.Info("chat connection closed")
}

// keepAlive pings until done is closed. WriteControl may run concurrently
// with the read loop's writes.
func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, a := range allowed {
			if prefix, ok := strings.CutSuffix(a, "*"); ok {
				if strings.HasPrefix(strings.ToLower(origin), strings.ToLower(prefix)) {
					return true
				}
				continue
			}
			if strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
