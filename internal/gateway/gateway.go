// Package gateway implements the chat protocol state machine. It is
// transport-agnostic: the websocket handler feeds it raw frames and writes
// back whatever it returns.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/askcart-ai/assistant/internal/middleware"
	"github.com/askcart-ai/assistant/internal/model"
	"github.com/askcart-ai/assistant/pkg/logger"
)

// Error frame texts shown to the shopper.
const (
	MsgInvalidFrame     = "Invalid message format"
	MsgUnknownType      = "Unknown message type"
	MsgNotJoined        = "No active conversation"
	MsgJoinFailed       = "Failed to join conversation"
	MsgReasoningFailed  = "Sorry, I couldn't generate a response right now. Please try again."
	MsgProcessingFailed = "Failed to process message"
	MsgConnectionClosed = "Connection closed"
)

// Conversations resolves sessions to conversations.
type Conversations interface {
	Join(ctx context.Context, sessionID string) (*model.Conversation, []model.Message, error)
}

// Turns runs one user turn to completion.
type Turns interface {
	ProcessTurn(ctx context.Context, conversationID, content string) (*model.Message, error)
}

// Gateway dispatches inbound frames for all connections. It keeps no
// per-connection state of its own; that lives in Session.
type Gateway struct {
	conversations Conversations
	turns         Turns
	logger        *logger.Logger
}

// New creates a gateway.
func New(conversations Conversations, turns Turns, log *logger.Logger) *Gateway {
	return &Gateway{
		conversations: conversations,
		turns:         turns,
		logger:        log,
	}
}

// Handle processes one raw inbound frame and returns exactly one outbound
// frame. Callers must serialize Handle calls per session.
func (g *Gateway) Handle(ctx context.Context, s *Session, data []byte) *model.OutboundFrame {
	if s.State() == StateClosed {
		return model.ErrorFrame(MsgConnectionClosed)
	}

	var frame model.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		g.protocolError(s, "unparseable frame", err)
		return model.ErrorFrame(MsgInvalidFrame)
	}

	switch frame.Type {
	case model.FrameJoin:
		return g.join(ctx, s, frame.SessionID)
	case model.FrameMessage:
		return g.message(ctx, s, frame.Content)
	default:
		g.protocolError(s, "unknown frame type", fmt.Errorf("%w: type %q", model.ErrProtocol, frame.Type))
		return model.ErrorFrame(MsgUnknownType)
	}
}

func (g *Gateway) join(ctx context.Context, s *Session, sessionID string) *model.OutboundFrame {
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		g.protocolError(s, "invalid join", err)
		return model.ErrorFrame(capitalize(err.Error()))
	}

	conv, history, err := g.conversations.Join(ctx, sessionID)
	if err != nil {
		g.logger.Error("join failed",
			zap.String("connection_id", s.ID()),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return model.ErrorFrame(MsgJoinFailed)
	}

	if !s.bind(sessionID, conv.ID) {
		return model.ErrorFrame(MsgConnectionClosed)
	}

	g.logger.WithConversation(sessionID, conv.ID).Debug("session joined",
		zap.String("connection_id", s.ID()),
		zap.Int("history", len(history)),
	)

	return model.HistoryFrame(history)
}

func (g *Gateway) message(ctx context.Context, s *Session, content string) *model.OutboundFrame {
	sessionID, conversationID, joined := s.Binding()
	if !joined {
		g.protocolError(s, "message before join", model.ErrProtocol)
		return model.ErrorFrame(MsgNotJoined)
	}

	if err := middleware.ValidateMessageContent(content); err != nil {
		g.protocolError(s, "invalid message", err)
		return model.ErrorFrame(capitalize(err.Error()))
	}

	msg, err := g.turns.ProcessTurn(ctx, conversationID, content)
	switch {
	case err == nil:
		return model.MessageFrame(msg)
	case errors.Is(err, model.ErrReasoningUnavailable):
		return model.ErrorFrame(MsgReasoningFailed)
	default:
		g.logger.WithConversation(sessionID, conversationID).Error("turn failed",
			zap.String("connection_id", s.ID()),
			zap.Error(err),
		)
		return model.ErrorFrame(MsgProcessingFailed)
	}
}

func (g *Gateway) protocolError(s *Session, reason string, err error) {
	g.logger.Debug("protocol error",
		zap.String("connection_id", s.ID()),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
