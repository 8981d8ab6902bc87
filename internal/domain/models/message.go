package models

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one chat message inside a conversation.
// Messages are immutable once created; history only ever appends.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation ties a durable message history to the remote backend's thread.
// The conversation ID doubles as the remote thread identifier.
// UpdatedAt is touched on every completed turn to support most-recent-first
// ordering; it is the only mutable field.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
