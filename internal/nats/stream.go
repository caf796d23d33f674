package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/askcart-ai/assistant/internal/model"
)

const (
	// StreamName is the name of the analytics stream.
	StreamName = "ASKCART_ANALYTICS"

	// SubjectPrefix is the prefix for all analytics subjects.
	SubjectPrefix = "analytics"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the analytics stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, StreamConfig())
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// StreamConfig returns the analytics stream definition.
func StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		Description: "AskCart analytics events",
	}
}

// EventSubject returns the subject for an analytics event.
func EventSubject(event model.EventName) string {
	name := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(string(event))
	return fmt.Sprintf("%s.%s", SubjectPrefix, name)
}

// Record publishes an analytics event to JetStream. The event id doubles as
// the message id so redelivered publishes are deduplicated by the server.
func (m *StreamManager) Record(ctx context.Context, event *model.AnalyticsEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = m.client.JetStream().Publish(ctx, EventSubject(event.Event), data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
