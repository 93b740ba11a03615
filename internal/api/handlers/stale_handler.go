package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/fieldline/engine/internal/api/middleware"
	"github.com/fieldline/engine/internal/api/types"
	"github.com/fieldline/engine/internal/models"
	"github.com/fieldline/engine/internal/services"
)

type StaleJobsHandler struct {
	stale    services.StaleJobService
	validate *validator.Validate
}

func NewStaleJobsHandler(stale services.StaleJobService) *StaleJobsHandler {
	return &StaleJobsHandler{stale: stale, validate: validator.New()}
}

func (h *StaleJobsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	items, err := h.stale.ListStaleJobs(r.Context(), user.WorkspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

// Scan lets an owner trigger the stale sweep for their workspace on demand,
// outside the worker schedule.
func (h *StaleJobsHandler) Scan(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	res, err := h.stale.ScanAndFlagStale(r.Context(), &user.WorkspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: res})
}

func (h *StaleJobsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req types.ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := h.stale.Reconcile(r.Context(), id, models.ActualOutcome(req.Outcome), req.Notes, services.UserActor(user.ID, user.Name))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: d})
}
