package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/askcart-ai/assistant/internal/model"
)

const redisKeyPrefix = "askcart"

// Hash fields of a conversation. Timestamps are unix microseconds so Lua can
// compare them without losing precision.
const (
	fieldID         = "id"
	fieldSessionID  = "session_id"
	fieldStatus     = "status"
	fieldCreatedAt  = "created_at"
	fieldUpdatedAt  = "updated_at"
	fieldLastTurnAt = "last_turn_at"
)

// appendScript stamps and pushes a turn in one step. The stamp is the later
// of the caller's clock and the previous turn, and stays a string throughout
// because Lua prints large numbers in exponent form.
//
// KEYS: conversation hash, message list, index
// ARGV: now, payload, conversation id, ttl ms, session key prefix
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
local stamp = ARGV[1]
local last = redis.call('HGET', KEYS[1], 'last_turn_at')
if last and tonumber(last) > tonumber(stamp) then
	stamp = last
end
redis.call('RPUSH', KEYS[2], stamp .. '|' .. ARGV[2])
redis.call('HSET', KEYS[1], 'last_turn_at', stamp)
local updated = redis.call('HGET', KEYS[1], 'updated_at')
if not updated or tonumber(stamp) > tonumber(updated) then
	redis.call('HSET', KEYS[1], 'updated_at', stamp)
	redis.call('ZADD', KEYS[3], stamp, ARGV[3])
end
local ttl = tonumber(ARGV[4])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
	redis.call('PEXPIRE', KEYS[2], ttl)
	redis.call('PEXPIRE', ARGV[5] .. redis.call('HGET', KEYS[1], 'session_id'), ttl)
end
return stamp
`)

// statusScript changes only the status field, so it cannot clobber a
// concurrent append.
//
// KEYS: conversation hash, index
// ARGV: status, now, conversation id
var statusScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
if redis.call('HGET', KEYS[1], 'status') == ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
local updated = redis.call('HGET', KEYS[1], 'updated_at')
if not updated or tonumber(ARGV[2]) > tonumber(updated) then
	redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
end
return 1
`)

// RedisStore implements ConversationStore on Redis.
//
// Layout:
//
//	askcart:session:{sessionID}            -> latest conversation id
//	askcart:conversation:{id}              -> conversation hash
//	askcart:conversation:{id}:messages     -> list of "{micros}|{message JSON}", oldest first
//	askcart:conversations                  -> sorted set of ids scored by updated_at
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis. A positive ttl expires idle conversations.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (r *RedisStore) sessionKeyPrefix() string {
	return redisKeyPrefix + ":session:"
}

func (r *RedisStore) sessionKey(sessionID string) string {
	return r.sessionKeyPrefix() + sessionID
}

func (r *RedisStore) conversationKey(id string) string {
	return fmt.Sprintf("%s:conversation:%s", redisKeyPrefix, id)
}

func (r *RedisStore) messagesKey(id string) string {
	return fmt.Sprintf("%s:conversation:%s:messages", redisKeyPrefix, id)
}

func (r *RedisStore) indexKey() string {
	return redisKeyPrefix + ":conversations"
}

func micros(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func parseMicros(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(n).UTC(), nil
}

// ResolveOrCreate implements ConversationStore. The session key is claimed
// with SETNX, so concurrent first contact converges on one conversation.
func (r *RedisStore) ResolveOrCreate(ctx context.Context, sessionID string) (*model.Conversation, bool, error) {
	id, err := r.client.Get(ctx, r.sessionKey(sessionID)).Result()
	if err == nil {
		conv, err := r.Get(ctx, id)
		if err == nil {
			return conv, false, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, false, err
		}
		// The conversation expired but the session pointer survived.
		r.client.Del(ctx, r.sessionKey(sessionID))
	} else if !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("failed to look up session: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: sessionID,
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.createConversation(ctx, conv); err != nil {
		return nil, false, err
	}

	claimed, err := r.client.SetNX(ctx, r.sessionKey(sessionID), conv.ID, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim session: %w", err)
	}
	if claimed {
		return conv, true, nil
	}

	// Another connection created the conversation first; use theirs.
	r.client.Del(ctx, r.conversationKey(conv.ID))
	r.client.ZRem(ctx, r.indexKey(), conv.ID)
	winner, err := r.client.Get(ctx, r.sessionKey(sessionID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read claimed session: %w", err)
	}
	existing, err := r.Get(ctx, winner)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *RedisStore) createConversation(ctx context.Context, conv *model.Conversation) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.conversationKey(conv.ID), map[string]any{
			fieldID:        conv.ID,
			fieldSessionID: conv.SessionID,
			fieldStatus:    string(conv.Status),
			fieldCreatedAt: micros(conv.CreatedAt),
			fieldUpdatedAt: micros(conv.UpdatedAt),
		})
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(conv.UpdatedAt.UnixMicro()), Member: conv.ID})
		if r.ttl > 0 {
			pipe.Expire(ctx, r.conversationKey(conv.ID), r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// Get implements ConversationStore.
func (r *RedisStore) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	fields, err := r.client.HGetAll(ctx, r.conversationKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}

	conv := &model.Conversation{
		ID:        fields[fieldID],
		SessionID: fields[fieldSessionID],
		Status:    model.ConversationStatus(fields[fieldStatus]),
	}
	if conv.CreatedAt, err = parseMicros(fields[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("failed to parse conversation %s: %w", conversationID, err)
	}
	if conv.UpdatedAt, err = parseMicros(fields[fieldUpdatedAt]); err != nil {
		return nil, fmt.Errorf("failed to parse conversation %s: %w", conversationID, err)
	}
	return conv, nil
}

// AppendMessage implements ConversationStore.
func (r *RedisStore) AppendMessage(ctx context.Context, conversationID string, role model.Role, content string, meta *model.MessageMetadata) (*model.Message, error) {
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       meta,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	keys := []string{r.conversationKey(conversationID), r.messagesKey(conversationID), r.indexKey()}
	stamp, err := appendScript.Run(ctx, r.client, keys,
		micros(time.Now()), payload, conversationID, r.ttl.Milliseconds(), r.sessionKeyPrefix()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	if msg.CreatedAt, err = parseMicros(stamp); err != nil {
		return nil, fmt.Errorf("failed to parse turn timestamp: %w", err)
	}
	return msg, nil
}

func decodeTurn(item string) (model.Message, error) {
	var msg model.Message
	stamp, payload, ok := bytes.Cut([]byte(item), []byte("|"))
	if !ok {
		return msg, fmt.Errorf("malformed turn entry")
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	createdAt, err := parseMicros(string(stamp))
	if err != nil {
		return msg, err
	}
	msg.CreatedAt = createdAt
	return msg, nil
}

// History implements ConversationStore.
func (r *RedisStore) History(ctx context.Context, conversationID string) ([]model.Message, error) {
	return r.RecentHistory(ctx, conversationID, 0)
}

// RecentHistory implements ConversationStore.
func (r *RedisStore) RecentHistory(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	exists, err := r.client.Exists(ctx, r.conversationKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	items, err := r.client.LRange(ctx, r.messagesKey(conversationID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	messages := make([]model.Message, 0, len(items))
	for _, item := range items {
		msg, err := decodeTurn(item)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// SetStatus implements ConversationStore.
func (r *RedisStore) SetStatus(ctx context.Context, conversationID string, status model.ConversationStatus) error {
	keys := []string{r.conversationKey(conversationID), r.indexKey()}
	err := statusScript.Run(ctx, r.client, keys, string(status), micros(time.Now()), conversationID).Err()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// Recent implements ConversationStore.
func (r *RedisStore) Recent(ctx context.Context, limit int) ([]model.ConversationSummary, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	summaries := make([]model.ConversationSummary, 0, len(ids))
	for _, id := range ids {
		conv, err := r.Get(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			r.client.ZRem(ctx, r.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}

		summary := model.ConversationSummary{Conversation: *conv, LastMessage: "No messages"}
		count, err := r.client.LLen(ctx, r.messagesKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count messages: %w", err)
		}
		summary.MessageCount = int(count)
		if count > 0 {
			if last, err := r.client.LIndex(ctx, r.messagesKey(id), -1).Result(); err == nil {
				if msg, err := decodeTurn(last); err == nil {
					summary.LastMessage = msg.Content
				}
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Ping implements ConversationStore.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements ConversationStore.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
