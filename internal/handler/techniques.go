package handler

import (
	"log/slog"
	"net/http"

	"solace/internal/httputil"
	"solace/internal/techniques"
)

// TechniquesHandler serves the wellness technique catalog
type TechniquesHandler struct {
	registry *techniques.Registry
	logger   *slog.Logger
}

// NewTechniquesHandler creates a new techniques handler
func NewTechniquesHandler(registry *techniques.Registry, logger *slog.Logger) *TechniquesHandler {
	return &TechniquesHandler{
		registry: registry,
		logger:   logger,
	}
}

// ListTechniques returns the full catalog
// GET /api/techniques
func (h *TechniquesHandler) ListTechniques(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, h.registry.List())
}

// GetTechnique returns a single technique by id
// GET /api/techniques/{id}
func (h *TechniquesHandler) GetTechnique(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Technique ID")
	if !ok {
		return
	}

	technique, found := h.registry.Get(id)
	if !found {
		httputil.RespondError(w, http.StatusNotFound, "technique not found")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, technique)
}
