package model

import (
	"time"
)

// EventName identifies an analytics event.
type EventName string

const (
	EventConversationStarted EventName = "conversation_started"
	EventMessageSent         EventName = "message_sent"
	EventProductRecommended  EventName = "product_recommended"
	EventReasoningFailed     EventName = "reasoning_failed"
)

// AnalyticsEvent is a discrete observation recorded for reporting.
type AnalyticsEvent struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId,omitempty"`
	Event          EventName      `json:"event"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}
