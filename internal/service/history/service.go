package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"solace/internal/domain/models"
	"solace/internal/domain/repositories"
	"solace/internal/domain/services"
)

// stalenessTolerance absorbs clock skew between the cache writer and the
// durable store when validating a hit.
const stalenessTolerance = time.Second

// Service serves a conversation's full ordered message list cache-first,
// with the durable store authoritative on a miss.
type Service struct {
	cache       repositories.CacheStore
	messageRepo repositories.MessageRepository
	// trustTTL selects the staleness policy: serve hits as-is within the TTL
	// window, or validate each hit against the durable store's newest message
	// timestamp and invalidate when the store proves newer.
	trustTTL bool
	logger   *slog.Logger
}

// NewService creates the history service.
func NewService(
	cache repositories.CacheStore,
	messageRepo repositories.MessageRepository,
	trustTTL bool,
	logger *slog.Logger,
) services.HistoryService {
	return &Service{
		cache:       cache,
		messageRepo: messageRepo,
		trustTTL:    trustTTL,
		logger:      logger,
	}
}

// Load returns the conversation's messages. Cache errors are never fatal:
// they degrade to a durable-store read. A durable-store failure propagates,
// since there is no correct fallback for it.
func (s *Service) Load(ctx context.Context, conversationID string) ([]models.Message, error) {
	key := models.ConversationCacheKey(conversationID)

	if messages, ok, err := s.loadFromCache(ctx, key, conversationID); err != nil {
		return nil, err
	} else if ok {
		return messages, nil
	}

	messages, err := s.messageRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}

	// Fire-and-forget repopulation: a caching failure must never fail or
	// delay the read that triggered it.
	if len(messages) > 0 {
		go s.repopulate(key, conversationID, messages)
	}

	return messages, nil
}

// loadFromCache attempts a cache hit. ok is false on miss, empty entry,
// undecodable entry, cache-store failure, or a failed staleness validation.
// The only fatal path is a durable-store error during validation.
func (s *Service) loadFromCache(ctx context.Context, key, conversationID string) ([]models.Message, bool, error) {
	value, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed, falling back to durable store",
			"conversation_id", conversationID,
			"error", err,
		)
		return nil, false, nil
	}
	if !found || value == "" {
		return nil, false, nil
	}

	messages, err := models.DecodeCachedMessages(value)
	if err != nil {
		s.logger.Warn("cache entry undecodable, falling back to durable store",
			"conversation_id", conversationID,
			"error", err,
		)
		return nil, false, nil
	}
	if len(messages) == 0 {
		return nil, false, nil
	}

	if s.trustTTL {
		return messages, true, nil
	}

	// Validation variant: compare the newest cached timestamp against the
	// durable store's and drop the key when the store is newer.
	latest, hasRows, err := s.messageRepo.LatestCreatedAt(ctx, conversationID)
	if err != nil {
		return nil, false, fmt.Errorf("validate cached history: %w", err)
	}
	cachedLatest := messages[len(messages)-1].CreatedAt
	if hasRows && latest.After(cachedLatest.Add(stalenessTolerance)) {
		s.logger.Info("cached history stale, invalidating",
			"conversation_id", conversationID,
			"cached_latest", cachedLatest,
			"store_latest", latest,
		)
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("stale cache invalidation failed",
				"conversation_id", conversationID,
				"error", err,
			)
		}
		return nil, false, nil
	}

	return messages, true, nil
}

// repopulate writes a miss-driven load back to the cache with the standard
// TTL. Runs detached from the caller's request.
func (s *Service) repopulate(key, conversationID string, messages []models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := models.EncodeCachedMessages(messages)
	if err != nil {
		s.logger.Warn("cache repopulation encode failed",
			"conversation_id", conversationID,
			"error", err,
		)
		return
	}

	if err := s.cache.SetWithTTL(ctx, key, payload, models.ConversationCacheTTL); err != nil {
		s.logger.Warn("cache repopulation write failed",
			"conversation_id", conversationID,
			"error", err,
		)
		return
	}

	s.logger.Debug("cache repopulated",
		"conversation_id", conversationID,
		"messages", len(messages),
	)
}
