// Package model defines data structures for the shopping assistant.
package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive    ConversationStatus = "active"
	StatusResolved  ConversationStatus = "resolved"
	StatusAbandoned ConversationStatus = "abandoned"
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusResolved, StatusAbandoned:
		return true
	}
	return false
}

// Conversation represents the persisted turns of one chat session.
type Conversation struct {
	ID           string             `json:"id"`
	SessionID    string             `json:"sessionId"`
	CustomerName string             `json:"customerName,omitempty"`
	Status       ConversationStatus `json:"status"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// ConversationSummary is a conversation with its message count and latest turn.
type ConversationSummary struct {
	Conversation
	MessageCount int    `json:"messageCount"`
	LastMessage  string `json:"lastMessage"`
}

// UpdateStatusRequest is the request to change a conversation's status.
type UpdateStatusRequest struct {
	Status ConversationStatus `json:"status"`
}
