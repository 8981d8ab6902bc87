package streaming

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"solace/internal/agent"
	"solace/internal/domain/models"
	"solace/internal/domain/repositories"
	"solace/internal/domain/services"
)

// RunOpener is the slice of the agent client the session needs: opening and
// resuming streaming runs on a remote thread.
type RunOpener interface {
	EnsureThread(ctx context.Context, token, threadID string) error
	StreamRun(ctx context.Context, token, threadID string, input agent.RunInput) (<-chan agent.Chunk, error)
	ResumeRun(ctx context.Context, token, threadID string, cmd agent.ResumeCommand) (<-chan agent.Chunk, error)
}

// Session is the conversation session orchestrator. It owns one authenticated
// backend client and exposes StreamMessage and ResumeInterrupt as event
// channels carrying the canonical sequence. A Session is safe across
// conversations but turns on one conversation must be serialized by the
// caller.
type Session struct {
	opener           RunOpener
	normalizer       *Normalizer
	messageRepo      repositories.MessageRepository
	conversationRepo repositories.ConversationRepository
	cache            repositories.CacheStore
	logger           *slog.Logger
}

// NewSession creates the session orchestrator.
func NewSession(
	opener RunOpener,
	normalizer *Normalizer,
	messageRepo repositories.MessageRepository,
	conversationRepo repositories.ConversationRepository,
	cache repositories.CacheStore,
	logger *slog.Logger,
) services.ConversationStreamer {
	return &Session{
		opener:           opener,
		normalizer:       normalizer,
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		cache:            cache,
		logger:           logger,
	}
}

// StreamMessage starts one conversation turn: it persists the user's message,
// opens a streaming run on the conversation's thread, and yields the
// normalized event sequence. Every failure resolves to an error event on the
// returned channel; nothing is thrown synchronously.
func (s *Session) StreamMessage(ctx context.Context, req *services.StreamMessageRequest) <-chan models.StreamEvent {
	out := make(chan models.StreamEvent, 16)

	go func() {
		defer close(out)

		// Start is unconditional and precedes all network activity so the
		// caller can show a loading state deterministically.
		if !s.emit(ctx, out, models.StartEvent()) {
			return
		}

		if err := s.validateStreamMessage(req); err != nil {
			s.emit(ctx, out, models.ErrorEvent(err.Error()))
			return
		}

		s.persistUserMessage(ctx, req)

		if err := s.opener.EnsureThread(ctx, req.SessionToken, req.ConversationID); err != nil {
			s.logger.Error("ensure thread failed",
				"conversation_id", req.ConversationID,
				"error", err,
			)
			s.emit(ctx, out, models.ErrorEvent(err.Error()))
			return
		}

		feed, err := s.opener.StreamRun(ctx, req.SessionToken, req.ConversationID, agent.RunInput{
			Content: req.Content,
		})
		if err != nil {
			s.logger.Error("open run stream failed",
				"conversation_id", req.ConversationID,
				"error", err,
			)
			s.emit(ctx, out, models.ErrorEvent(err.Error()))
			return
		}

		terminal := s.normalizer.Run(ctx, feed, out)
		s.finishTurn(req.ConversationID, terminal)
	}()

	return out
}

// ResumeInterrupt continues a paused turn by reopening a stream against the
// same remote thread with the user's decision as a resumption command. The
// resumed feed runs through the identical normalizer pipeline, so it can
// complete, error, or interrupt again (nested confirmations simply repeat
// this transition).
func (s *Session) ResumeInterrupt(ctx context.Context, req *services.ResumeInterruptRequest) <-chan models.StreamEvent {
	out := make(chan models.StreamEvent, 16)

	go func() {
		defer close(out)

		if !s.emit(ctx, out, models.StartEvent()) {
			return
		}

		if err := s.validateResumeInterrupt(req); err != nil {
			s.emit(ctx, out, models.ErrorEvent(err.Error()))
			return
		}

		// The decision is forwarded opaquely; membership in the payload's
		// allowed set is the caller's contract and a backend rejection comes
		// back as a normal error event.
		feed, err := s.opener.ResumeRun(ctx, req.SessionToken, req.ConversationID, agent.ResumeCommand{
			Decision:    req.Decision,
			TechniqueID: req.TechniqueID,
		})
		if err != nil {
			s.logger.Error("resume run stream failed",
				"conversation_id", req.ConversationID,
				"error", err,
			)
			s.emit(ctx, out, models.ErrorEvent(err.Error()))
			return
		}

		terminal := s.normalizer.Run(ctx, feed, out)
		s.finishTurn(req.ConversationID, terminal)
	}()

	return out
}

// persistUserMessage appends the optimistic user message with a
// client-generated id. Failure is logged, not fatal: the remote thread still
// receives the message and the UI already rendered it.
func (s *Session) persistUserMessage(ctx context.Context, req *services.StreamMessageRequest) {
	message := &models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Content:   req.Content,
		CreatedAt: time.Now(),
	}
	if err := s.messageRepo.CreateMessage(ctx, req.ConversationID, message); err != nil {
		s.logger.Warn("persist user message failed",
			"conversation_id", req.ConversationID,
			"error", err,
		)
		return
	}

	// Invalidate the cached history so the next read picks the new message up
	if err := s.cache.Delete(ctx, models.ConversationCacheKey(req.ConversationID)); err != nil {
		s.logger.Warn("cache invalidation failed",
			"conversation_id", req.ConversationID,
			"error", err,
		)
	}
}

// finishTurn runs the completion hooks after a terminal event. Only done
// counts as a completed turn: errors leave the conversation untouched and an
// interrupt parks the turn server-side awaiting a resume.
func (s *Session) finishTurn(conversationID string, terminal models.StreamEvent) {
	if terminal.Type != models.StreamEventDone {
		return
	}

	// Detached from the turn context: the caller may stop consuming right
	// after the terminal event.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.conversationRepo.TouchUpdatedAt(ctx, conversationID); err != nil {
		s.logger.Warn("touch conversation failed",
			"conversation_id", conversationID,
			"error", err,
		)
	}

	// The assistant message lands in the durable store backend-side; dropping
	// the cache key keeps the cached history a prefix of the durable one.
	if err := s.cache.Delete(ctx, models.ConversationCacheKey(conversationID)); err != nil {
		s.logger.Warn("cache invalidation failed",
			"conversation_id", conversationID,
			"error", err,
		)
	}

	s.logger.Info("turn completed", "conversation_id", conversationID)
}

func (s *Session) emit(ctx context.Context, out chan<- models.StreamEvent, event models.StreamEvent) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// Validation methods

func (s *Session) validateStreamMessage(req *services.StreamMessageRequest) error {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ConversationID, validation.Required),
		validation.Field(&req.Content, validation.Required, validation.Length(1, 8000)),
	); err != nil {
		return fmt.Errorf("invalid stream request: %w", err)
	}
	return nil
}

func (s *Session) validateResumeInterrupt(req *services.ResumeInterruptRequest) error {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ConversationID, validation.Required),
		validation.Field(&req.Decision, validation.Required),
	); err != nil {
		return fmt.Errorf("invalid resume request: %w", err)
	}
	return nil
}
