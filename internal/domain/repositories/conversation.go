package repositories

import (
	"context"
	"time"

	"solace/internal/domain/models"
)

// MessageRepository is the durable-store surface for messages.
type MessageRepository interface {
	// ListByConversation returns all messages of a conversation ordered by
	// created_at ascending. A conversation with zero messages returns an
	// empty list, not an error.
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)

	// CreateMessage inserts a message row. The caller supplies the ID
	// (client-generated for optimistic user messages).
	CreateMessage(ctx context.Context, conversationID string, message *models.Message) error

	// LatestCreatedAt returns the created_at of the newest message in the
	// conversation. ok is false when the conversation has no messages.
	LatestCreatedAt(ctx context.Context, conversationID string) (latest time.Time, ok bool, err error)

	// DeleteByConversation removes all messages of a conversation.
	DeleteByConversation(ctx context.Context, conversationID string) error
}

// ConversationRepository is the durable-store surface for conversations.
type ConversationRepository interface {
	// CreateConversation inserts a conversation row for a user and fills in
	// the generated ID and timestamps.
	CreateConversation(ctx context.Context, conversation *models.Conversation) error

	// GetConversation retrieves a conversation owned by the given user.
	GetConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error)

	// TouchUpdatedAt sets the conversation's updated_at to now. Best-effort:
	// callers log failures rather than failing the turn.
	TouchUpdatedAt(ctx context.Context, conversationID string) error

	// DeleteConversation removes a conversation row owned by the given user.
	// Message rows are deleted separately; callers wrap both in a transaction.
	DeleteConversation(ctx context.Context, conversationID, userID string) error
}
