package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fieldline/engine/internal/api/middleware"
	"github.com/fieldline/engine/internal/api/types"
	"github.com/fieldline/engine/internal/models"
	"github.com/fieldline/engine/internal/services"
)

type ActivitiesHandler struct {
	activities services.ActivityService
	validate   *validator.Validate
}

func NewActivitiesHandler(activities services.ActivityService) *ActivitiesHandler {
	return &ActivitiesHandler{activities: activities, validate: validator.New()}
}

func (h *ActivitiesHandler) Log(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req types.ActivityLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	input := &services.LogActivityInput{
		WorkspaceID: user.WorkspaceID,
		Type:        models.ActivityType(req.Type),
		Title:       req.Title,
		Content:     req.Content,
		UserID:      &user.ID,
	}
	if req.DealID != "" {
		id, err := uuid.Parse(req.DealID)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid deal_id")
			return
		}
		input.DealID = &id
	}
	if req.ContactID != "" {
		id, err := uuid.Parse(req.ContactID)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid contact_id")
			return
		}
		input.ContactID = &id
	}

	a, err := h.activities.Log(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: a})
}

func (h *ActivitiesHandler) ListByDeal(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.activities.ListByDeal(r.Context(), id, user.WorkspaceID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

func (h *ActivitiesHandler) ListByContact(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.activities.ListByContact(r.Context(), id, user.WorkspaceID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

// Undo removes the most recent agent-authored activity on a deal.
func (h *ActivitiesHandler) Undo(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	removed, err := h.activities.UndoLastAgentAction(r.Context(), id, user.WorkspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: removed})
}
