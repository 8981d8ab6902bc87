package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConversationCacheTTL is how long a conversation's message list lives in the
// cache. Every process that reads or writes the cache must use this value.
const ConversationCacheTTL = 24 * time.Hour

// conversationCacheKeyPrefix must match across processes: one process's
// writer is another's reader.
const conversationCacheKeyPrefix = "solace:conv:"

// ConversationCacheKey returns the cache key for a conversation's messages.
func ConversationCacheKey(conversationID string) string {
	return conversationCacheKeyPrefix + conversationID
}

// CachedMessage is the cache-store representation of Message.
// CreatedAt is serialized as an RFC 3339 string.
type CachedMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// EncodeCachedMessages serializes messages for the cache store.
func EncodeCachedMessages(messages []Message) (string, error) {
	cached := make([]CachedMessage, len(messages))
	for i, m := range messages {
		cached[i] = CachedMessage{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
		}
	}

	payload, err := json.Marshal(cached)
	if err != nil {
		return "", fmt.Errorf("encode cached messages: %w", err)
	}
	return string(payload), nil
}

// DecodeCachedMessages deserializes a cache entry back into messages.
// An unparseable timestamp falls back to now rather than failing the read.
func DecodeCachedMessages(payload string) ([]Message, error) {
	var cached []CachedMessage
	if err := json.Unmarshal([]byte(payload), &cached); err != nil {
		return nil, fmt.Errorf("decode cached messages: %w", err)
	}

	messages := make([]Message, len(cached))
	for i, c := range cached {
		createdAt, err := time.Parse(time.RFC3339Nano, c.CreatedAt)
		if err != nil {
			createdAt = time.Now()
		}
		messages[i] = Message{
			ID:        c.ID,
			Role:      c.Role,
			Content:   c.Content,
			CreatedAt: createdAt,
		}
	}
	return messages, nil
}
