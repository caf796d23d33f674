package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/askcart-ai/assistant/internal/model"
)

// SQLiteStore implements ConversationStore on SQLite. It also records
// analytics events, and shares its database handle with the catalog.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// OpenSQLite opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

func (s *SQLiteStore) initialize() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if s.dbPath != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		customer_name TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

	CREATE TABLE IF NOT EXISTS analytics (
		id TEXT PRIMARY KEY,
		conversation_id TEXT REFERENCES conversations(id) ON DELETE CASCADE,
		event TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analytics_event ON analytics(event);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

const conversationColumns = `id, session_id, COALESCE(customer_name, ''), status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner, extra ...any) (*model.Conversation, error) {
	var conv model.Conversation
	var status string
	var createdAt, updatedAt int64
	dest := append([]any{&conv.ID, &conv.SessionID, &conv.CustomerName, &status, &createdAt, &updatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	conv.Status = model.ConversationStatus(status)
	conv.CreatedAt = time.Unix(0, createdAt).UTC()
	conv.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &conv, nil
}

// ResolveOrCreate implements ConversationStore.
func (s *SQLiteStore) ResolveOrCreate(ctx context.Context, sessionID string) (*model.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, sessionID)
	conv, err := scanConversation(row)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to look up session: %w", err)
	}

	now := time.Now().UTC()
	conv = &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: sessionID,
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, session_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.SessionID, string(conv.Status), now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, true, nil
}

// Get implements ConversationStore.
func (s *SQLiteStore) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, conversationID)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// AppendMessage implements ConversationStore.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, role model.Role, content string, meta *model.MessageMetadata) (*model.Message, error) {
	var metaJSON sql.NullString
	if meta != nil {
		data, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metaJSON = sql.NullString{String: string(data), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, conversationID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check conversation: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(created_at) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to read last turn: %w", err)
	}
	var prev time.Time
	if last.Valid {
		prev = time.Unix(0, last.Int64).UTC()
	}

	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       meta,
		CreatedAt:      nextTimestamp(prev),
	}
	stamp := msg.CreatedAt.UnixNano()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, conversationID, string(role), content, metaJSON, stamp); err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, stamp, conversationID); err != nil {
		return nil, fmt.Errorf("failed to touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return msg, nil
}

// History implements ConversationStore.
func (s *SQLiteStore) History(ctx context.Context, conversationID string) ([]model.Message, error) {
	return s.RecentHistory(ctx, conversationID, 0)
}

// RecentHistory implements ConversationStore.
func (s *SQLiteStore) RecentHistory(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, metadata, created_at FROM (
			SELECT seq, id, role, content, metadata, created_at FROM messages
			WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		msg := model.Message{ConversationID: conversationID}
		var role string
		var metaJSON sql.NullString
		var createdAt int64
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &metaJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msg.CreatedAt = time.Unix(0, createdAt).UTC()
		if metaJSON.Valid && metaJSON.String != "" {
			var meta model.MessageMetadata
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err == nil {
				msg.Metadata = &meta
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SetStatus implements ConversationStore.
func (s *SQLiteStore) SetStatus(ctx context.Context, conversationID string, status model.ConversationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ? AND status != ?`,
		string(status), time.Now().UTC().UnixNano(), conversationID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, conversationID); err != nil {
		return err
	}
	return nil
}

// Recent implements ConversationStore.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]model.ConversationSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.session_id, COALESCE(c.customer_name, ''), c.status, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
			COALESCE((SELECT content FROM messages m WHERE m.conversation_id = c.id ORDER BY seq DESC LIMIT 1), 'No messages')
		FROM conversations c
		ORDER BY c.updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent conversations: %w", err)
	}
	defer rows.Close()

	summaries := []model.ConversationSummary{}
	for rows.Next() {
		var count int
		var last string
		conv, err := scanConversation(rows, &count, &last)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		summaries = append(summaries, model.ConversationSummary{
			Conversation: *conv,
			MessageCount: count,
			LastMessage:  last,
		})
	}
	return summaries, rows.Err()
}

// Record stores an analytics event.
func (s *SQLiteStore) Record(ctx context.Context, event *model.AnalyticsEvent) error {
	var metaJSON sql.NullString
	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		metaJSON = sql.NullString{String: string(data), Valid: true}
	}
	var conversationID sql.NullString
	if event.ConversationID != "" {
		conversationID = sql.NullString{String: event.ConversationID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analytics (id, conversation_id, event, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		event.ID, conversationID, string(event.Event), metaJSON, event.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record analytics event: %w", err)
	}
	return nil
}

// Delete removes a conversation; its messages and events cascade.
func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}
	return nil
}

// Ping implements ConversationStore.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements ConversationStore.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
