package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/authz"
	"github.com/besikta/inspection-server/internal/lifecycle"
	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/services"
)

// SchedulerHandler lets operators trigger the follow-up batch
type SchedulerHandler struct {
	scheduler *services.FollowUpScheduler
	logger    *zap.SugaredLogger
}

func NewSchedulerHandler(scheduler *services.FollowUpScheduler, logger *zap.SugaredLogger) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler, logger: logger}
}

// RunFollowUps handles POST /api/v1/scheduler/follow-ups/run?force=true.
// Superadmin only. An already processed day answers 200 with skipped=true.
func (h *SchedulerHandler) RunFollowUps(w http.ResponseWriter, r *http.Request) {
	pc := permissionContext(r)
	if pc.Principal.IsAnonymous() || pc.Principal.PermissionLevel < models.LevelSuperadmin {
		respondServiceError(w, h.logger, &authz.PermissionDeniedError{Reason: authz.ReasonRoleInsufficient, Op: authz.OpUpdate})
		return
	}

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid force flag")
			return
		}
		force = v
	}

	// A client disconnect must not abort the batch halfway.
	report, err := h.scheduler.RunOnce(context.WithoutCancel(r.Context()), force)
	switch {
	case errors.Is(err, lifecycle.ErrSchedulerSkew):
		respondJSON(w, http.StatusOK, map[string]any{"skipped": true, "report": report})
	case err != nil:
		respondServiceError(w, h.logger, err)
	default:
		h.logger.Infow("Follow-up run triggered", "principal_id", pc.Principal.ID, "forced", force, "request_id", pc.RequestID)
		respondJSON(w, http.StatusOK, map[string]any{"skipped": false, "report": report})
	}
}
