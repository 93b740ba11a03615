package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fieldline/engine/internal/api/middleware"
	"github.com/fieldline/engine/internal/api/types"
	"github.com/fieldline/engine/internal/models"
	"github.com/fieldline/engine/internal/services"
)

type DeviationsHandler struct {
	learning services.LearningService
}

func NewDeviationsHandler(learning services.LearningService) *DeviationsHandler {
	return &DeviationsHandler{learning: learning}
}

func (h *DeviationsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.learning.ListUnresolvedDeviations(r.Context(), user.WorkspaceID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

func (h *DeviationsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req types.DeviationResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.learning.ResolveDeviation(r.Context(), id, user.WorkspaceID, models.ResolvedAction(req.Action)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

func (h *DeviationsHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	category := models.BusinessRuleCategory(r.URL.Query().Get("category"))
	items, err := h.learning.ListBusinessRules(r.Context(), user.WorkspaceID, category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}
