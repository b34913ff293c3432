package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/lifecycle"
	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/services"
)

// HistoryHandler handles the status history audit feed
type HistoryHandler struct {
	svc    *services.HistoryService
	logger *zap.SugaredLogger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(svc *services.HistoryService, logger *zap.SugaredLogger) *HistoryHandler {
	return &HistoryHandler{svc: svc, logger: logger}
}

// Recent handles GET /api/v1/history/recent?limit=n
func (h *HistoryHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	records, err := h.svc.Recent(r.Context(), permissionContext(r), limit)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// Verify handles GET /api/v1/history/{kind}/{id}/verify
func (h *HistoryHandler) Verify(w http.ResponseWriter, r *http.Request) {
	kind := models.ResourceKind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")

	err := h.svc.Verify(r.Context(), permissionContext(r), kind, id)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]any{"entity_kind": kind, "entity_id": id, "verified": true})
	case errors.Is(err, lifecycle.ErrHistoryCorrupt):
		respondJSON(w, http.StatusOK, map[string]any{"entity_kind": kind, "entity_id": id, "verified": false, "error": err.Error()})
	default:
		respondServiceError(w, h.logger, err)
	}
}
