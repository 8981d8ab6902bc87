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

// PostgresMessageRepository implements the MessageRepository interface using PostgreSQL
type PostgresMessageRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewMessageRepository creates a new PostgresMessageRepository
func NewMessageRepository(config *RepositoryConfig) repositories.MessageRepository {
	return &PostgresMessageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// ListByConversation retrieves all messages of a conversation ordered by creation time
func (r *PostgresMessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, role, content, created_at
		FROM %s
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		var createdAt *time.Time
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		// A NULL created_at defaults to now rather than failing the read
		if createdAt != nil {
			msg.CreatedAt = *createdAt
		} else {
			msg.CreatedAt = time.Now()
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// CreateMessage inserts a message row with a caller-supplied ID
func (r *PostgresMessageRepository) CreateMessage(ctx context.Context, conversationID string, message *models.Message) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		message.ID,
		conversationID,
		message.Role,
		message.Content,
		message.CreatedAt,
	).Scan(&message.CreatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
		}
		// Client-generated ids make replays possible
		if IsPgDuplicateError(err) {
			return fmt.Errorf("message %s: %w", message.ID, domain.ErrConflict)
		}
		return fmt.Errorf("create message: %w", err)
	}

	return nil
}

// LatestCreatedAt returns the newest message timestamp in the conversation
func (r *PostgresMessageRepository) LatestCreatedAt(ctx context.Context, conversationID string) (time.Time, bool, error) {
	query := fmt.Sprintf(`
		SELECT created_at
		FROM %s
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, r.tables.Messages)

	var latest time.Time
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, conversationID).Scan(&latest)
	if err != nil {
		if IsPgNoRowsError(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("latest message timestamp: %w", err)
	}

	return latest, true, nil
}

// DeleteByConversation removes every message row of a conversation.
// Zero rows affected is fine: an empty conversation is still deletable.
func (r *PostgresMessageRepository) DeleteByConversation(ctx context.Context, conversationID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE conversation_id = $1
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, conversationID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	return nil
}
