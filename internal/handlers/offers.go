package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/services"
)

// OfferHandler handles offer endpoints
type OfferHandler struct {
	svc    *services.OfferService
	logger *zap.SugaredLogger
}

// NewOfferHandler creates a new offer handler
func NewOfferHandler(svc *services.OfferService, logger *zap.SugaredLogger) *OfferHandler {
	return &OfferHandler{svc: svc, logger: logger}
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// Get handles GET /api/v1/offers/{id}
func (h *OfferHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Get(r.Context(), permissionContext(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Create handles POST /api/v1/offers
func (h *OfferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.NewOffer
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	o, err := h.svc.Create(r.Context(), permissionContext(r), req)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

// Send handles POST /api/v1/offers/{id}/send
func (h *OfferHandler) Send(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Send(r.Context(), permissionContext(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Accept handles POST /api/v1/offers/{id}/accept
func (h *OfferHandler) Accept(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Accept(r.Context(), permissionContext(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Reject handles POST /api/v1/offers/{id}/reject
func (h *OfferHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decode(r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	o, err := h.svc.Reject(r.Context(), permissionContext(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// History handles GET /api/v1/offers/{id}/history
func (h *OfferHandler) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.History(r.Context(), permissionContext(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}
