package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/askcart-ai/assistant/internal/model"
)

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "analytics.message_sent", EventSubject(model.EventMessageSent))
	assert.Equal(t, "analytics.product_recommended", EventSubject(model.EventProductRecommended))
	assert.Equal(t, "analytics.a_b_c", EventSubject(model.EventName("a.b*c")))
}

func TestStreamConfigCoversEventSubjects(t *testing.T) {
	cfg := StreamConfig()
	assert.Equal(t, StreamName, cfg.Name)
	assert.Equal(t, []string{"analytics.>"}, cfg.Subjects)
}
