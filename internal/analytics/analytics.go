// Package analytics records side observations about conversations. Emission
// is fire-and-forget: it never blocks a turn and its failures never surface
// to the shopper.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askcart-ai/assistant/internal/model"
	"github.com/askcart-ai/assistant/pkg/logger"
	"github.com/askcart-ai/assistant/pkg/metrics"
)

// Sink persists or forwards analytics events.
type Sink interface {
	Record(ctx context.Context, event *model.AnalyticsEvent) error
}

// Emitter queues events for a single background worker.
type Emitter struct {
	sink    Sink
	logger  *logger.Logger
	timeout time.Duration

	events chan *model.AnalyticsEvent
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewEmitter starts an emitter with room for buffer pending events.
func NewEmitter(sink Sink, buffer int, log *logger.Logger) *Emitter {
	if buffer <= 0 {
		buffer = 1024
	}
	e := &Emitter{
		sink:    sink,
		logger:  log,
		timeout: 5 * time.Second,
		events:  make(chan *model.AnalyticsEvent, buffer),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

// Emit queues an event. When the buffer is full or the emitter is closed the
// event is dropped.
func (e *Emitter) Emit(conversationID string, name model.EventName, metadata map[string]any) {
	event := &model.AnalyticsEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Event:          name,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		metrics.RecordAnalytics(string(name), "dropped")
		return
	}

	select {
	case e.events <- event:
	default:
		metrics.RecordAnalytics(string(name), "dropped")
		e.logger.Warn("analytics buffer full, dropping event",
			zap.String("event", string(name)),
			zap.String("conversation_id", conversationID),
		)
	}
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to expire.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for event := range e.events {
		e.deliver(event)
	}
}

func (e *Emitter) deliver(event *model.AnalyticsEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := e.sink.Record(ctx, event); err != nil {
		metrics.RecordAnalytics(string(event.Event), "failed")
		e.logger.Warn("failed to record analytics event",
			zap.String("event", string(event.Event)),
			zap.String("conversation_id", event.ConversationID),
			zap.Error(err),
		)
		return
	}
	metrics.RecordAnalytics(string(event.Event), "recorded")
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// Record implements Sink.
func (s *LogSink) Record(_ context.Context, event *model.AnalyticsEvent) error {
	s.logger.Info("analytics event",
		zap.String("event_id", event.ID),
		zap.String("event", string(event.Event)),
		zap.String("conversation_id", event.ConversationID),
		zap.Any("metadata", event.Metadata),
	)
	return nil
}

// MultiSink fans an event out to several sinks and reports the first error.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(ctx context.Context, event *model.AnalyticsEvent) error {
	var firstErr error
	for _, s := range m {
		if err := s.Record(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
