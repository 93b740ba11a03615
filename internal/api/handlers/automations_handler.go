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

type AutomationsHandler struct {
	automations services.AutomationService
	validate    *validator.Validate
}

func NewAutomationsHandler(automations services.AutomationService) *AutomationsHandler {
	return &AutomationsHandler{automations: automations, validate: validator.New()}
}

func (h *AutomationsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	items, err := h.automations.ListAutomations(r.Context(), user.WorkspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

func (h *AutomationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req types.AutomationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.automations.CreateAutomation(r.Context(), &services.CreateAutomationInput{
		WorkspaceID: user.WorkspaceID,
		Name:        req.Name,
		Trigger: models.TriggerConfig{
			Event:         models.TriggerEvent(req.Trigger.Event),
			ThresholdDays: req.Trigger.ThresholdDays,
			Stage:         models.DealStage(req.Trigger.Stage),
		},
		Action: models.ActionConfig{
			Type:        models.ActionType(req.Action.Type),
			Channel:     req.Action.Channel,
			Template:    req.Action.Template,
			Message:     req.Action.Message,
			TargetStage: models.DealStage(req.Action.TargetStage),
		},
		Enabled: req.Enabled,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: a})
}

func (h *AutomationsHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req types.AutomationToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.automations.SetEnabled(r.Context(), id, user.WorkspaceID, req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

func (h *AutomationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.automations.DeleteAutomation(r.Context(), id, user.WorkspaceID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

func (h *AutomationsHandler) SeedPresets(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	items, err := h.automations.SeedPresets(r.Context(), user.WorkspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: items})
}
