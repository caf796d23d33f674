package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/askcart-ai/assistant/internal/model"
	"github.com/askcart-ai/assistant/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSink struct {
	mu     sync.Mutex
	events []*model.AnalyticsEvent
	err    error
	block  chan struct{}
}

func (s *recordingSink) Record(ctx context.Context, event *model.AnalyticsEvent) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) names() []model.EventName {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]model.EventName, len(s.events))
	for i, e := range s.events {
		names[i] = e.Event
	}
	return names
}

func TestEmitterDeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, 8, logger.NewNop())

	e.Emit("c1", model.EventMessageSent, map[string]any{"intent": "search"})
	e.Emit("c1", model.EventProductRecommended, map[string]any{"count": 1})
	require.NoError(t, e.Close(context.Background()))

	assert.Equal(t, []model.EventName{model.EventMessageSent, model.EventProductRecommended}, sink.names())
	assert.Equal(t, "c1", sink.events[0].ConversationID)
	assert.NotEmpty(t, sink.events[0].ID)
	assert.Equal(t, "search", sink.events[0].Metadata["intent"])
}

func TestEmitterNeverBlocks(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	e := NewEmitter(sink, 1, logger.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			e.Emit("c1", model.EventMessageSent, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}

	close(sink.block)
	require.NoError(t, e.Close(context.Background()))
	assert.Less(t, len(sink.names()), 100)
}

func TestEmitterSwallowsSinkErrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	e := NewEmitter(sink, 4, logger.NewNop())

	e.Emit("c1", model.EventMessageSent, nil)
	e.Emit("c1", model.EventMessageSent, nil)
	require.NoError(t, e.Close(context.Background()))

	assert.Len(t, sink.names(), 2)
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, 4, logger.NewNop())
	require.NoError(t, e.Close(context.Background()))
	require.NoError(t, e.Close(context.Background()))

	assert.NotPanics(t, func() { e.Emit("c1", model.EventMessageSent, nil) })
	assert.Empty(t, sink.names())
}

func TestMultiSink(t *testing.T) {
	a := &recordingSink{err: errors.New("a failed")}
	b := &recordingSink{}

	err := MultiSink{a, b}.Record(context.Background(), &model.AnalyticsEvent{Event: model.EventMessageSent})
	assert.EqualError(t, err, "a failed")
	assert.Len(t, b.names(), 1)
}
