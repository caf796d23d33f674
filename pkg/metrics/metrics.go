// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ReasoningDuration tracks reasoning engine call duration.
	ReasoningDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reasoning_duration_seconds",
			Help:    "Reasoning engine call duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// WSConnectionsActive tracks open chat websocket connections.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active chat websocket connections",
		},
	)

	// FramesTotal tracks chat protocol frames by direction and type.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_frames_total",
			Help: "Chat protocol frames handled",
		},
		[]string{"direction", "type"},
	)

	// TurnsTotal tracks processed user turns by outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "User turns processed",
		},
		[]string{"outcome"},
	)

	// ConversationsTotal tracks conversations joined, by whether they were new.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Conversations joined",
		},
		[]string{"kind"},
	)

	// MessagesTotal tracks total messages persisted.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"role"},
	)

	// RecommendationsTotal tracks products recommended to shoppers.
	RecommendationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "product_recommendations_total",
			Help: "Products recommended in assistant replies",
		},
	)

	// AnalyticsEventsTotal tracks analytics events by outcome.
	AnalyticsEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_events_total",
			Help: "Analytics events by outcome",
		},
		[]string{"event", "outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordReasoning records metrics for one reasoning engine call.
func RecordReasoning(provider, model, status string, duration float64, tokensIn, tokensOut int) {
	ReasoningDuration.WithLabelValues(provider, status).Observe(duration)
	if status != "success" {
		return
	}
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordFrame counts a chat frame. direction is "in" or "out".
func RecordFrame(direction, frameType string) {
	FramesTotal.WithLabelValues(direction, frameType).Inc()
}

// RecordAnalytics counts an analytics event outcome.
func RecordAnalytics(event, outcome string) {
	AnalyticsEventsTotal.WithLabelValues(event, outcome).Inc()
}

// IncrementWSConnections increments the active websocket connection count.
func IncrementWSConnections() {
	WSConnectionsActive.Inc()
}

// DecrementWSConnections decrements the active websocket connection count.
func DecrementWSConnections() {
	WSConnectionsActive.Dec()
}
