package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"solace/internal/domain"
	"solace/internal/domain/models"
	"solace/internal/domain/repositories"
)

// PostgresConversationRepository implements the ConversationRepository interface using PostgreSQL
type PostgresConversationRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewConversationRepository creates a new PostgresConversationRepository
func NewConversationRepository(config *RepositoryConfig) repositories.ConversationRepository {
	return &PostgresConversationRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateConversation inserts a conversation row keyed by user id.
// The generated id and timestamps are written back into the model.
func (r *PostgresConversationRepository) CreateConversation(ctx context.Context, conversation *models.Conversation) error {
	now := time.Now()
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = now
	}
	if conversation.UpdatedAt.IsZero() {
		conversation.UpdatedAt = now
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, created_at, updated_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, r.tables.Conversations)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		conversation.UserID,
		conversation.CreatedAt,
		conversation.UpdatedAt,
	).Scan(&conversation.ID, &conversation.CreatedAt, &conversation.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	return nil
}

// GetConversation retrieves a conversation by ID, scoped to its owner
func (r *PostgresConversationRepository) GetConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, created_at, updated_at
		FROM %s
		WHERE id = $1 AND user_id = $2
	`, r.tables.Conversations)

	var conversation models.Conversation
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, conversationID, userID).Scan(
		&conversation.ID,
		&conversation.UserID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	return &conversation, nil
}

// TouchUpdatedAt sets the conversation's updated_at to now.
// Best-effort from the caller's perspective: errors are returned for logging,
// never fatal to the turn that triggered the touch.
func (r *PostgresConversationRepository) TouchUpdatedAt(ctx context.Context, conversationID string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET updated_at = NOW() WHERE id = $1
	`, r.tables.Conversations)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, conversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}

	return nil
}

// DeleteConversation removes a conversation row, scoped to its owner
func (r *PostgresConversationRepository) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE id = $1 AND user_id = $2
	`, r.tables.Conversations)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, conversationID, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}

	return nil
}
