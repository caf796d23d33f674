package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askcart-ai/assistant/internal/model"
)

// MemoryStore keeps conversations in process memory. Contents are lost on
// restart; it serves development and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
	bySession     map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		bySession:     make(map[string]string),
	}
}

// ResolveOrCreate implements ConversationStore. Creation is serialized by the
// store lock, so concurrent first contact yields a single conversation.
func (s *MemoryStore) ResolveOrCreate(ctx context.Context, sessionID string) (*model.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.bySession[sessionID]; ok {
		conv := *s.conversations[id]
		return &conv, false, nil
	}

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: sessionID,
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv
	s.bySession[sessionID] = conv.ID

	out := *conv
	return &out, true, nil
}

// Get implements ConversationStore.
func (s *MemoryStore) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}
	out := *conv
	return &out, nil
}

// AppendMessage implements ConversationStore.
func (s *MemoryStore) AppendMessage(ctx context.Context, conversationID string, role model.Role, content string, meta *model.MessageMetadata) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}

	var prev time.Time
	if existing := s.messages[conversationID]; len(existing) > 0 {
		prev = existing[len(existing)-1].CreatedAt
	}

	msg := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       meta,
		CreatedAt:      nextTimestamp(prev),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	conv.UpdatedAt = msg.CreatedAt

	return &msg, nil
}

// History implements ConversationStore.
func (s *MemoryStore) History(ctx context.Context, conversationID string) ([]model.Message, error) {
	return s.RecentHistory(ctx, conversationID, 0)
}

// RecentHistory implements ConversationStore.
func (s *MemoryStore) RecentHistory(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}

	messages := tail(s.messages[conversationID], limit)
	out := make([]model.Message, len(messages))
	copy(out, messages)
	return out, nil
}

// SetStatus implements ConversationStore.
func (s *MemoryStore) SetStatus(ctx context.Context, conversationID string, status model.ConversationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}
	if conv.Status != status {
		conv.Status = status
		conv.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// Recent implements ConversationStore.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]model.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]model.ConversationSummary, 0, len(s.conversations))
	for id, conv := range s.conversations {
		summary := model.ConversationSummary{Conversation: *conv, LastMessage: "No messages"}
		if messages := s.messages[id]; len(messages) > 0 {
			summary.MessageCount = len(messages)
			summary.LastMessage = messages[len(messages)-1].Content
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Ping implements ConversationStore.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close implements ConversationStore.
func (s *MemoryStore) Close() error {
	return nil
}
