package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"solace/internal/domain"
	"solace/internal/domain/models"
	"solace/internal/domain/repositories"
	"solace/internal/domain/services"
)

// Service manages conversation rows. Conversations are created lazily on the
// first user message of a session; the generated id doubles as the remote
// thread identifier.
type Service struct {
	conversationRepo repositories.ConversationRepository
	messageRepo      repositories.MessageRepository
	txManager        repositories.TransactionManager
	cache            repositories.CacheStore
	logger           *slog.Logger
}

// NewService creates a new conversation service
func NewService(
	conversationRepo repositories.ConversationRepository,
	messageRepo repositories.MessageRepository,
	txManager repositories.TransactionManager,
	cache repositories.CacheStore,
	logger *slog.Logger,
) services.ConversationService {
	return &Service{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		txManager:        txManager,
		cache:            cache,
		logger:           logger,
	}
}

// CreateConversation creates a conversation owned by the user
func (s *Service) CreateConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	conversation := &models.Conversation{UserID: userID}
	if err := s.conversationRepo.CreateConversation(ctx, conversation); err != nil {
		return nil, err
	}

	s.logger.Info("conversation created",
		"id", conversation.ID,
		"user_id", userID,
	)

	return conversation, nil
}

// GetConversation retrieves a conversation owned by the user
func (s *Service) GetConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	return s.conversationRepo.GetConversation(ctx, conversationID, userID)
}

// DeleteConversation removes a conversation and all of its messages in one
// transaction, then drops the cached history. The ownership check happens
// inside the transaction via the scoped delete.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.messageRepo.DeleteByConversation(txCtx, conversationID); err != nil {
			return err
		}
		return s.conversationRepo.DeleteConversation(txCtx, conversationID, userID)
	})
	if err != nil {
		return err
	}

	if err := s.cache.Delete(ctx, models.ConversationCacheKey(conversationID)); err != nil {
		s.logger.Warn("cache invalidation failed",
			"conversation_id", conversationID,
			"error", err,
		)
	}

	s.logger.Info("conversation deleted",
		"id", conversationID,
		"user_id", userID,
	)

	return nil
}
