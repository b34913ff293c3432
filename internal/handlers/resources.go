package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/services"
)

// ResourceHandler handles the customer and report records
type ResourceHandler struct {
	customers *services.CustomerService
	reports   *services.ReportService
	logger    *zap.SugaredLogger
}

func NewResourceHandler(customers *services.CustomerService, reports *services.ReportService, logger *zap.SugaredLogger) *ResourceHandler {
	return &ResourceHandler{customers: customers, reports: reports, logger: logger}
}

// GetCustomer handles GET /api/v1/customers/{id}
func (h *ResourceHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.Get(r.Context(), permissionContext(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// CreateCustomer handles POST /api/v1/customers
func (h *ResourceHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req models.Customer
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	c, err := h.customers.Create(r.Context(), permissionContext(r), req)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// GetReport handles GET /api/v1/reports/{id}
func (h *ResourceHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.Get(r.Context(), permissionContext(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

// CreateReport handles POST /api/v1/reports
func (h *ResourceHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req models.Report
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rep, err := h.reports.Create(r.Context(), permissionContext(r), req)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, rep)
}
