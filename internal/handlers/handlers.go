// Package handlers contains HTTP request handlers for the inspection API.
// Handlers parse requests, build the caller's permission context, call
// services, and return JSON responses.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/auth"
	"github.com/besikta/inspection-server/internal/authz"
	"github.com/besikta/inspection-server/internal/lifecycle"
	"github.com/besikta/inspection-server/internal/lock"
	"github.com/besikta/inspection-server/internal/middleware"
	"github.com/besikta/inspection-server/internal/services"
	"github.com/besikta/inspection-server/internal/store"
)

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`
	From      string `json:"from,omitempty"`
	Attempted string `json:"attempted,omitempty"`
}

// permissionContext builds the explicit authorization input of a request.
func permissionContext(r *http.Request) authz.PermissionContext {
	return authz.NewPermissionContext(middleware.PrincipalFrom(r.Context()), chimw.GetReqID(r.Context()))
}

// decode reads a JSON body. An empty body leaves v untouched when optional.
func decode(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// respondServiceError maps the error taxonomy onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	var denied *authz.PermissionDeniedError
	var invalidTransition *lifecycle.InvalidTransitionError

	switch {
	case errors.As(err, &denied):
		respondJSON(w, http.StatusForbidden, errorBody{
			Error:  "Permission denied",
			Code:   "permission_denied",
			Reason: string(denied.Reason),
		})
	case errors.As(err, &invalidTransition):
		respondJSON(w, http.StatusConflict, errorBody{
			Error:     invalidTransition.Error(),
			Code:      "invalid_transition",
			From:      invalidTransition.From,
			Attempted: invalidTransition.Attempted,
		})
	case errors.Is(err, store.ErrConflict):
		respondJSON(w, http.StatusConflict, errorBody{Error: "Resource was modified concurrently, retry", Code: "conflict"})
	case errors.Is(err, lock.ErrLeaseHeld):
		respondJSON(w, http.StatusConflict, errorBody{Error: "Another run is in progress", Code: "lease_held"})
	case errors.Is(err, lifecycle.ErrNotDue):
		respondJSON(w, http.StatusConflict, errorBody{Error: "Transition is not due", Code: "not_due"})
	case errors.Is(err, auth.ErrStaleAuthorization):
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Authorization is stale, sign in again", Code: "stale_authorization"})
	case errors.Is(err, store.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorBody{Error: "Not found", Code: "not_found"})
	case errors.Is(err, services.ErrValidation):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_request"})
	default:
		logger.Errorw("Request failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error", Code: "internal"})
	}
}

// Helper: respond with JSON
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Helper: respond with error
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message})
}
