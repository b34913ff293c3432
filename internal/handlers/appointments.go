package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/authz"
	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/services"
)

// AppointmentHandler handles appointment endpoints
type AppointmentHandler struct {
	svc    *services.AppointmentService
	logger *zap.SugaredLogger
}

// NewAppointmentHandler creates a new appointment handler
func NewAppointmentHandler(svc *services.AppointmentService, logger *zap.SugaredLogger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

type reportRequest struct {
	ReportID string `json:"report_id"`
}

type appointmentAction func(ctx context.Context, pc authz.PermissionContext, id string) (models.Appointment, error)

func (h *AppointmentHandler) run(w http.ResponseWriter, r *http.Request, action appointmentAction) {
	a, err := action(r.Context(), permissionContext(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// Get handles GET /api/v1/appointments/{id}
func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.svc.Get)
}

// Create handles POST /api/v1/appointments
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.NewAppointment
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	a, err := h.svc.Create(r.Context(), permissionContext(r), req)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

// Start handles POST /api/v1/appointments/{id}/start
func (h *AppointmentHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.svc.Start)
}

// Complete handles POST /api/v1/appointments/{id}/complete
func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.withReport(w, r, h.svc.Complete, false)
}

// CompleteDirect handles POST /api/v1/appointments/{id}/complete-direct
func (h *AppointmentHandler) CompleteDirect(w http.ResponseWriter, r *http.Request) {
	h.withReport(w, r, h.svc.CompleteDirectly, false)
}

// AssignReport handles POST /api/v1/appointments/{id}/report
func (h *AppointmentHandler) AssignReport(w http.ResponseWriter, r *http.Request) {
	h.withReport(w, r, h.svc.AssignReport, true)
}

// Cancel handles POST /api/v1/appointments/{id}/cancel
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decode(r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.run(w, r, func(ctx context.Context, pc authz.PermissionContext, id string) (models.Appointment, error) {
		return h.svc.Cancel(ctx, pc, id, req.Reason)
	})
}

// NoShow handles POST /api/v1/appointments/{id}/no-show
func (h *AppointmentHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.svc.NoShow)
}

// History handles GET /api/v1/appointments/{id}/history
func (h *AppointmentHandler) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.History(r.Context(), permissionContext(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// withReport runs an action that takes the report_id of the body.
func (h *AppointmentHandler) withReport(w http.ResponseWriter, r *http.Request, action func(context.Context, authz.PermissionContext, string, string) (models.Appointment, error), required bool) {
	var req reportRequest
	if err := decode(r, &req, !required); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if required && req.ReportID == "" {
		respondError(w, http.StatusBadRequest, "report_id is required")
		return
	}
	h.run(w, r, func(ctx context.Context, pc authz.PermissionContext, id string) (models.Appointment, error) {
		return action(ctx, pc, id, req.ReportID)
	})
}
