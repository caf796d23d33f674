package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Intent is a coarse classification of a shopper's message.
type Intent string

const (
	IntentCompare Intent = "compare"
	IntentSupport Intent = "support"
	IntentSearch  Intent = "search"
	IntentGeneral Intent = "general"
)

// Message represents one turn of a conversation.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversationId"`
	Role           Role             `json:"role"`
	Content        string           `json:"content"`
	Metadata       *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// MessageMetadata is attached to assistant turns only.
type MessageMetadata struct {
	Intent                 Intent    `json:"intent,omitempty"`
	ProductIDs             []string  `json:"productIds,omitempty"`
	ProductRecommendations []Product `json:"productRecommendations,omitempty"`
}

// Turn is the role and content of a message, as handed to the reasoning engine.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turns strips messages down to their role and content.
func Turns(messages []Message) []Turn {
	turns := make([]Turn, len(messages))
	for i, msg := range messages {
		turns[i] = Turn{Role: msg.Role, Content: msg.Content}
	}
	return turns
}
