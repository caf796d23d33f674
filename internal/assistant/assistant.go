// Package assistant turns a shopper's message and its context into an
// assistant reply using an external reasoning engine.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/askcart-ai/assistant/internal/llm"
	"github.com/askcart-ai/assistant/internal/model"
	"github.com/askcart-ai/assistant/pkg/logger"
	"github.com/askcart-ai/assistant/pkg/metrics"
	"github.com/askcart-ai/assistant/pkg/tracing"
)

// Config holds reasoning-call settings.
type Config struct {
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Reply is the outcome of one reasoning turn.
type Reply struct {
	Content         string
	Recommendations []model.Product
	Intent          model.Intent
}

// Comparison is a generated comparison over an explicit product set.
type Comparison struct {
	Text     string
	Products []model.Product
}

// PriceRange is expressed in whole dollars, as the engine reports it.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// QueryAnalysis is the structured reading of a free-text product query.
type QueryAnalysis struct {
	Category   string       `json:"category,omitempty"`
	PriceRange *PriceRange  `json:"priceRange,omitempty"`
	Features   []string     `json:"features"`
	Intent     model.Intent `json:"intent"`
}

// ReasoningError reports a failed reasoning call. Intent is still populated
// because classification never depends on the engine.
type ReasoningError struct {
	Intent model.Intent
	Err    error
}

func (e *ReasoningError) Error() string {
	return fmt.Sprintf("%s: %v", model.ErrReasoningUnavailable, e.Err)
}

// Unwrap exposes both the sentinel and the upstream cause.
func (e *ReasoningError) Unwrap() []error {
	return []error{model.ErrReasoningUnavailable, e.Err}
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithClassifier replaces the keyword intent classifier.
func WithClassifier(c IntentClassifier) Option {
	return func(a *Assistant) { a.classifier = c }
}

// WithRecommender replaces the name-match recommender.
func WithRecommender(r Recommender) Option {
	return func(a *Assistant) { a.recommender = r }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// Assistant is the reasoning client.
type Assistant struct {
	client      llm.Client
	cfg         Config
	classifier  IntentClassifier
	recommender Recommender
	logger      *logger.Logger
}

// New creates an Assistant around an LLM client.
func New(client llm.Client, cfg Config, opts ...Option) *Assistant {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	a := &Assistant{
		client:      client,
		cfg:         cfg,
		classifier:  NewKeywordClassifier(),
		recommender: NameMatchRecommender{Limit: MaxRecommendations},
		logger:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GenerateReply produces the assistant turn for userMessage. history holds
// the prior turns oldest-first and must not include userMessage itself.
func (a *Assistant) GenerateReply(ctx context.Context, userMessage string, history []model.Turn, products []model.Product) (*Reply, error) {
	intent := a.classifier.Classify(userMessage)

	ctx, span := tracing.Tracer().Start(ctx, "assistant.GenerateReply")
	defer span.End()
	span.SetAttributes(
		attribute.String("intent", string(intent)),
		attribute.Int("history.turns", len(history)),
		attribute.Int("catalog.size", len(products)),
	)

	prompt, err := buildReplyPrompt(userMessage, history, products)
	if err != nil {
		return nil, &ReasoningError{Intent: intent, Err: fmt.Errorf("failed to build prompt: %w", err)}
	}

	resp, err := a.complete(ctx, "reply", &llm.CompletionRequest{
		Messages: []llm.ChatMessage{{Role: string(model.RoleUser), Content: prompt}},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reasoning failed")
		return nil, &ReasoningError{Intent: intent, Err: err}
	}

	recs := a.recommender.Recommend(resp.Content, products)
	if len(recs) > MaxRecommendations {
		recs = recs[:MaxRecommendations]
	}
	span.SetAttributes(attribute.Int("recommendations", len(recs)))

	return &Reply{
		Content:         resp.Content,
		Recommendations: recs,
		Intent:          intent,
	}, nil
}

// CompareProducts asks the engine for a comparison of two or more products.
// The returned Comparison echoes the input product set.
func (a *Assistant) CompareProducts(ctx context.Context, products []model.Product) (*Comparison, error) {
	if len(products) < 2 {
		return nil, fmt.Errorf("%w: at least 2 products are required for comparison", model.ErrInvalidArgument)
	}

	ctx, span := tracing.Tracer().Start(ctx, "assistant.CompareProducts")
	defer span.End()
	span.SetAttributes(attribute.Int("products", len(products)))

	prompt, err := buildComparePrompt(products)
	if err != nil {
		return nil, err
	}

	resp, err := a.complete(ctx, "compare", &llm.CompletionRequest{
		Messages: []llm.ChatMessage{{Role: string(model.RoleUser), Content: prompt}},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reasoning failed")
		return nil, fmt.Errorf("%w: %v", model.ErrReasoningUnavailable, err)
	}

	return &Comparison{Text: resp.Content, Products: products}, nil
}

// AnalyzeQuery extracts category, price range, features and intent from a
// product query. It never fails: on any engine or decoding problem it falls
// back to an empty general analysis.
func (a *Assistant) AnalyzeQuery(ctx context.Context, query string) *QueryAnalysis {
	fallback := &QueryAnalysis{Features: []string{}, Intent: model.IntentGeneral}

	prompt, err := buildAnalyzePrompt(query)
	if err != nil {
		a.logger.Warn("failed to build analysis prompt", zap.Error(err))
		return fallback
	}

	resp, err := a.complete(ctx, "analyze", &llm.CompletionRequest{
		Messages: []llm.ChatMessage{{Role: string(model.RoleUser), Content: prompt}},
		JSON:     true,
	})
	if err != nil {
		a.logger.Warn("query analysis failed", zap.Error(err))
		return fallback
	}

	var analysis QueryAnalysis
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &analysis); err != nil {
		a.logger.Warn("query analysis returned invalid JSON", zap.Error(err))
		return fallback
	}
	if analysis.Features == nil {
		analysis.Features = []string{}
	}
	switch analysis.Intent {
	case model.IntentCompare, model.IntentSupport, model.IntentSearch, model.IntentGeneral:
	default:
		analysis.Intent = model.IntentGeneral
	}
	return &analysis
}

// complete runs one bounded engine call. An empty completion counts as a
// failure since there is nothing to show the shopper.
func (a *Assistant) complete(ctx context.Context, op string, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	req.Model = a.cfg.Model
	req.MaxTokens = a.cfg.MaxTokens

	start := time.Now()
	resp, err := a.client.Complete(ctx, req)
	elapsed := time.Since(start).Seconds()

	switch {
	case err != nil:
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		metrics.RecordReasoning(a.client.Name(), a.cfg.Model, status, elapsed, 0, 0)
		a.logger.Error("reasoning call failed",
			zap.String("op", op),
			zap.String("provider", a.client.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s call failed: %w", op, err)
	case resp == nil || strings.TrimSpace(resp.Content) == "":
		metrics.RecordReasoning(a.client.Name(), a.cfg.Model, "empty", elapsed, 0, 0)
		a.logger.Error("reasoning call returned no content",
			zap.String("op", op),
			zap.String("provider", a.client.Name()),
		)
		return nil, fmt.Errorf("%s call returned no content", op)
	}

	metrics.RecordReasoning(a.client.Name(), resp.Model, "success", elapsed, resp.TokensIn, resp.TokensOut)
	a.logger.Debug("reasoning call completed",
		zap.String("op", op),
		zap.String("model", resp.Model),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
	)
	return resp, nil
}
