package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/askcart-ai/assistant/internal/assistant"
	"github.com/askcart-ai/assistant/internal/catalog"
	"github.com/askcart-ai/assistant/internal/model"
	"github.com/askcart-ai/assistant/internal/store"
	"github.com/askcart-ai/assistant/pkg/logger"
	"github.com/askcart-ai/assistant/pkg/metrics"
	"github.com/askcart-ai/assistant/pkg/tracing"
)

// Reasoner produces assistant replies. *assistant.Assistant implements it.
type Reasoner interface {
	GenerateReply(ctx context.Context, userMessage string, history []model.Turn, products []model.Product) (*assistant.Reply, error)
	CompareProducts(ctx context.Context, products []model.Product) (*assistant.Comparison, error)
	AnalyzeQuery(ctx context.Context, query string) *assistant.QueryAnalysis
}

// MessageService runs the turn pipeline.
type MessageService struct {
	store        store.ConversationStore
	catalog      catalog.Accessor
	reasoner     Reasoner
	events       EventEmitter
	historyLimit int
	logger       *logger.Logger
}

// NewMessageService creates a new message service. historyLimit bounds the
// number of prior turns handed to the reasoner; zero or less means all.
func NewMessageService(
	st store.ConversationStore,
	cat catalog.Accessor,
	reasoner Reasoner,
	events EventEmitter,
	historyLimit int,
	log *logger.Logger,
) *MessageService {
	return &MessageService{
		store:        st,
		catalog:      cat,
		reasoner:     reasoner,
		events:       events,
		historyLimit: historyLimit,
		logger:       log,
	}
}

// ProcessTurn persists the user's message, asks the reasoner for a reply and
// persists that too. When the reasoner fails the user message stays
// persisted, no assistant turn is written and the error wraps
// model.ErrReasoningUnavailable.
func (s *MessageService) ProcessTurn(ctx context.Context, conversationID, content string) (*model.Message, error) {
	ctx, span := tracing.Tracer().Start(ctx, "service.ProcessTurn")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	userMsg, err := s.store.AppendMessage(ctx, conversationID, model.RoleUser, content, nil)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()

	history, products, err := s.gatherContext(ctx, conversationID, userMsg.ID)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, err
	}

	reply, err := s.reasoner.GenerateReply(ctx, content, model.Turns(history), products)
	if err != nil {
		intent := model.IntentGeneral
		var rerr *assistant.ReasoningError
		if errors.As(err, &rerr) {
			intent = rerr.Intent
		}
		metrics.TurnsTotal.WithLabelValues("reasoning_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "reasoning failed")
		s.events.Emit(conversationID, model.EventReasoningFailed, map[string]any{
			"intent": string(intent),
			"error":  err.Error(),
		})
		s.logger.Warn("reasoning failed",
			zap.String("conversation_id", conversationID),
			zap.String("intent", string(intent)),
			zap.Error(err),
		)
		if !errors.Is(err, model.ErrReasoningUnavailable) {
			err = fmt.Errorf("%w: %v", model.ErrReasoningUnavailable, err)
		}
		return nil, err
	}

	productIDs := model.ProductIDs(reply.Recommendations)
	meta := &model.MessageMetadata{
		Intent:                 reply.Intent,
		ProductIDs:             productIDs,
		ProductRecommendations: reply.Recommendations,
	}

	assistantMsg, err := s.store.AppendMessage(ctx, conversationID, model.RoleAssistant, reply.Content, meta)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()

	s.events.Emit(conversationID, model.EventMessageSent, map[string]any{
		"intent": string(reply.Intent),
	})
	if len(productIDs) > 0 {
		metrics.RecommendationsTotal.Add(float64(len(productIDs)))
		s.events.Emit(conversationID, model.EventProductRecommended, map[string]any{
			"productIds": productIDs,
			"count":      len(productIDs),
		})
	}

	metrics.TurnsTotal.WithLabelValues("completed").Inc()
	span.SetAttributes(
		attribute.String("intent", string(reply.Intent)),
		attribute.Int("recommendations", len(productIDs)),
	)

	return assistantMsg, nil
}

// gatherContext loads prior turns and the catalog concurrently. The turn just
// persisted is excluded from history since the reasoner receives it
// separately.
func (s *MessageService) gatherContext(ctx context.Context, conversationID, currentID string) ([]model.Message, []model.Product, error) {
	var (
		history  []model.Message
		products []model.Product
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		limit := s.historyLimit
		if limit > 0 {
			limit++
		}
		msgs, err := s.store.RecentHistory(gctx, conversationID, limit)
		if err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
		history = make([]model.Message, 0, len(msgs))
		for _, m := range msgs {
			if m.ID != currentID {
				history = append(history, m)
			}
		}
		if s.historyLimit > 0 && len(history) > s.historyLimit {
			history = history[len(history)-s.historyLimit:]
		}
		return nil
	})
	g.Go(func() error {
		list, err := s.catalog.List(gctx)
		if err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
		products = list
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return history, products, nil
}
