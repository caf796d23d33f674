// Package service provides business logic for the shopping assistant.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/askcart-ai/assistant/internal/model"
	"github.com/askcart-ai/assistant/internal/store"
	"github.com/askcart-ai/assistant/pkg/logger"
	"github.com/askcart-ai/assistant/pkg/metrics"
)

// EventEmitter receives fire-and-forget analytics events.
type EventEmitter interface {
	Emit(conversationID string, name model.EventName, metadata map[string]any)
}

// ConversationService handles conversation operations.
type ConversationService struct {
	store  store.ConversationStore
	events EventEmitter
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.ConversationStore, events EventEmitter, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:  st,
		events: events,
		logger: log,
	}
}

// Join resolves the conversation for a session, creating it on first
// contact, and returns it with its full history.
func (s *ConversationService) Join(ctx context.Context, sessionID string) (*model.Conversation, []model.Message, error) {
	conv, created, err := s.store.ResolveOrCreate(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve conversation: %w", err)
	}

	if created {
		metrics.ConversationsTotal.WithLabelValues("created").Inc()
		s.events.Emit(conv.ID, model.EventConversationStarted, map[string]any{"sessionId": sessionID})
		s.logger.Info("conversation created",
			zap.String("session_id", sessionID),
			zap.String("conversation_id", conv.ID),
		)
	} else {
		metrics.ConversationsTotal.WithLabelValues("resumed").Inc()
	}

	history, err := s.store.History(ctx, conv.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load history: %w", err)
	}

	return conv, history, nil
}

// Get retrieves a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return s.store.Get(ctx, conversationID)
}

// History returns every turn of a conversation, oldest first.
func (s *ConversationService) History(ctx context.Context, conversationID string) ([]model.Message, error) {
	return s.store.History(ctx, conversationID)
}

// SetStatus changes a conversation's status.
func (s *ConversationService) SetStatus(ctx context.Context, conversationID string, status model.ConversationStatus) (*model.Conversation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidArgument, status)
	}

	if err := s.store.SetStatus(ctx, conversationID, status); err != nil {
		return nil, err
	}

	s.logger.Info("conversation status updated",
		zap.String("conversation_id", conversationID),
		zap.String("status", string(status)),
	)

	return s.store.Get(ctx, conversationID)
}

// Recent lists conversations by latest activity.
func (s *ConversationService) Recent(ctx context.Context, limit int) ([]model.ConversationSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return s.store.Recent(ctx, limit)
}
