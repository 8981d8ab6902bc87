package handler

import (
	"log/slog"
	"net/http"

	"solace/internal/domain/models"
	"solace/internal/domain/services"
	"solace/internal/handler/sse"
	"solace/internal/httputil"
)

// ChatHandler handles conversation HTTP requests.
// Handlers only communicate with services, never repositories.
type ChatHandler struct {
	conversationService services.ConversationService
	historyService      services.HistoryService
	streamer            services.ConversationStreamer
	sseConfig           *sse.Config
	logger              *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(
	conversationService services.ConversationService,
	historyService services.HistoryService,
	streamer services.ConversationStreamer,
	sseConfig *sse.Config,
	logger *slog.Logger,
) *ChatHandler {
	if sseConfig == nil {
		sseConfig = sse.DefaultConfig()
	}
	return &ChatHandler{
		conversationService: conversationService,
		historyService:      historyService,
		streamer:            streamer,
		sseConfig:           sseConfig,
		logger:              logger,
	}
}

// CreateConversation creates a new conversation for the authenticated user
// POST /api/conversations
func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	conversation, err := h.conversationService.CreateConversation(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, conversation)
}

// DeleteConversation deletes a conversation and its message history
// DELETE /api/conversations/{id}
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := PathParam(w, r, "id", "Conversation ID")
	if !ok {
		return
	}
	userID := httputil.GetUserID(r)

	if err := h.conversationService.DeleteConversation(r.Context(), conversationID, userID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMessages returns the conversation's ordered message history
// GET /api/conversations/{id}/messages
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := PathParam(w, r, "id", "Conversation ID")
	if !ok {
		return
	}
	userID := httputil.GetUserID(r)

	// Ownership check before touching the cache
	if _, err := h.conversationService.GetConversation(r.Context(), conversationID, userID); err != nil {
		handleError(w, err)
		return
	}

	messages, err := h.historyService.Load(r.Context(), conversationID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, messages)
}

// StreamMessage starts a conversation turn and streams its events via SSE
// POST /api/conversations/{id}/messages
func (h *ChatHandler) StreamMessage(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := PathParam(w, r, "id", "Conversation ID")
	if !ok {
		return
	}
	userID := httputil.GetUserID(r)

	var req services.StreamMessageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.ConversationID = conversationID
	req.UserID = userID
	req.SessionToken = httputil.GetSessionToken(r)

	if _, err := h.conversationService.GetConversation(r.Context(), conversationID, userID); err != nil {
		handleError(w, err)
		return
	}

	events := h.streamer.StreamMessage(r.Context(), &req)
	h.streamEvents(w, r, conversationID, events)
}

// ResumeInterrupt resumes a paused turn and streams the continuation via SSE
// POST /api/conversations/{id}/resume
func (h *ChatHandler) ResumeInterrupt(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := PathParam(w, r, "id", "Conversation ID")
	if !ok {
		return
	}
	userID := httputil.GetUserID(r)

	var req services.ResumeInterruptRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.ConversationID = conversationID
	req.UserID = userID
	req.SessionToken = httputil.GetSessionToken(r)

	if _, err := h.conversationService.GetConversation(r.Context(), conversationID, userID); err != nil {
		handleError(w, err)
		return
	}

	events := h.streamer.ResumeInterrupt(r.Context(), &req)
	h.streamEvents(w, r, conversationID, events)
}

// streamEvents drains an engine event channel onto an SSE connection.
// Returning stops consumption, which is the engine's cancellation mechanism;
// closing the HTTP request context tears the remote read down with it.
func (h *ChatHandler) streamEvents(w http.ResponseWriter, r *http.Request, conversationID string, events <-chan models.StreamEvent) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	keepAlive := sse.NewTickerKeepAlive(h.sseConfig.KeepAliveInterval)
	keepAliveStopped := keepAlive.Start(writer, h.logger)
	defer keepAlive.Stop()

	for {
		select {
		case event, open := <-events:
			if !open {
				return
			}
			if err := writer.WriteEvent(event); err != nil {
				h.logger.Debug("SSE client write failed, abandoning turn",
					"conversation_id", conversationID,
					"error", err,
				)
				return
			}

		case <-keepAliveStopped:
			// Connection died between events
			h.logger.Debug("SSE connection lost",
				"conversation_id", conversationID,
			)
			return

		case <-r.Context().Done():
			return
		}
	}
}
