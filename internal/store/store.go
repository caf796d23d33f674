// Package store persists conversations and their ordered turns.
package store

import (
	"context"
	"time"

	"github.com/askcart-ai/assistant/internal/model"
)

// ConversationStore is the durable record of conversations keyed by session id.
//
// Implementations must be safe for concurrent use. Turns within one
// conversation are totally ordered by CreatedAt; a new turn is never stamped
// earlier than the turn before it.
type ConversationStore interface {
	// ResolveOrCreate returns the most recently created conversation for the
	// session, creating an active one when none exists. The bool reports
	// whether a conversation was created.
	ResolveOrCreate(ctx context.Context, sessionID string) (*model.Conversation, bool, error)

	// Get returns a conversation by id.
	Get(ctx context.Context, conversationID string) (*model.Conversation, error)

	// AppendMessage appends a turn. It fails with model.ErrNotFound when the
	// conversation does not exist.
	AppendMessage(ctx context.Context, conversationID string, role model.Role, content string, meta *model.MessageMetadata) (*model.Message, error)

	// History returns every turn of the conversation, oldest first.
	History(ctx context.Context, conversationID string) ([]model.Message, error)

	// RecentHistory returns the last limit turns, oldest first. A limit of
	// zero or less returns everything.
	RecentHistory(ctx context.Context, conversationID string, limit int) ([]model.Message, error)

	// SetStatus updates a conversation's status. Setting the current status
	// again is a no-op that still succeeds.
	SetStatus(ctx context.Context, conversationID string, status model.ConversationStatus) error

	// Recent lists conversations by most recent activity.
	Recent(ctx context.Context, limit int) ([]model.ConversationSummary, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// nextTimestamp returns now, or prev when the clock reads earlier than the
// previous turn.
func nextTimestamp(prev time.Time) time.Time {
	now := time.Now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

func tail(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}
