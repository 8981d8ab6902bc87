package services

import (
	"context"

	"solace/internal/domain/models"
)

// HistoryService serves a conversation's ordered message history.
type HistoryService interface {
	// Load returns the conversation's full message list, cache-first.
	Load(ctx context.Context, conversationID string) ([]models.Message, error)
}

// StreamMessageRequest starts one conversation turn.
type StreamMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"-"`
	// SessionToken is the caller's bearer credential, attached per-connection
	// to the remote backend.
	SessionToken string `json:"-"`
	Content      string `json:"content"`
}

// ResumeInterruptRequest continues a turn the backend paused for confirmation.
// Decision must be one of the interrupted payload's allowed decisions; the
// engine forwards it opaquely and a backend rejection surfaces as an error
// event.
type ResumeInterruptRequest struct {
	ConversationID string  `json:"conversation_id"`
	UserID         string  `json:"-"`
	SessionToken   string  `json:"-"`
	Decision       string  `json:"decision"`
	TechniqueID    *string `json:"technique_id,omitempty"`
}

// ConversationStreamer drives streaming turns against the remote backend.
// Both methods return a channel carrying the canonical event sequence:
// start, zero or more tokens, then exactly one of done/error/interrupt.
// The channel is closed after the terminal event. Errors never escape the
// channel; abandoning the channel is the only cancellation mechanism.
type ConversationStreamer interface {
	StreamMessage(ctx context.Context, req *StreamMessageRequest) <-chan models.StreamEvent
	ResumeInterrupt(ctx context.Context, req *ResumeInterruptRequest) <-chan models.StreamEvent
}

// ConversationService manages conversation rows for the HTTP surface.
type ConversationService interface {
	// CreateConversation lazily creates a conversation for the user's first
	// message of a session.
	CreateConversation(ctx context.Context, userID string) (*models.Conversation, error)

	// GetConversation returns a conversation owned by the user.
	GetConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error)

	// DeleteConversation removes a conversation and its messages atomically,
	// then invalidates the cached history.
	DeleteConversation(ctx context.Context, conversationID, userID string) error
}
