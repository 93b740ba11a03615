package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fieldline/engine/internal/api/middleware"
	"github.com/fieldline/engine/internal/api/types"
	"github.com/fieldline/engine/internal/pipeline"
	"github.com/fieldline/engine/internal/services"
)

type DealsHandler struct {
	deals    services.DealService
	validate *validator.Validate
}

func NewDealsHandler(deals services.DealService) *DealsHandler {
	return &DealsHandler{deals: deals, validate: validator.New()}
}

func (h *DealsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	views, err := h.deals.ListDealsWithHealth(r.Context(), user.WorkspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: views})
}

func (h *DealsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req types.DealCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	contactID, err := uuid.Parse(req.ContactID)
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid contact_id")
		return
	}
	var assigneeID *uuid.UUID
	if req.AssigneeID != "" {
		id, err := uuid.Parse(req.AssigneeID)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid assignee_id")
			return
		}
		assigneeID = &id
	}

	d, err := h.deals.CreateDeal(r.Context(), &services.CreateDealInput{
		WorkspaceID: user.WorkspaceID,
		ContactID:   contactID,
		AssigneeID:  assigneeID,
		Title:       req.Title,
		Value:       req.Value,
		StageKey:    req.StageKey,
		Address:     req.Address,
		ScheduledAt: req.ScheduledAt,
		Metadata:    req.Metadata,
		IsDraft:     req.IsDraft,
		Actor:       services.UserActor(user.ID, user.Name),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: d})
}

func (h *DealsHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	d, err := h.deals.GetDeal(r.Context(), id, user.WorkspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: d})
}

// Transition moves a deal to the column named in the request. Team members
// moving a deal to "completed" land in pending approval instead.
func (h *DealsHandler) Transition(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req types.DealTransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.StageKey == "" {
		writeErrorStr(w, http.StatusBadRequest, "stage_key is required")
		return
	}

	if err := h.deals.TransitionStage(r.Context(), id, req.StageKey, services.UserActor(user.ID, user.Name)); err != nil {
		writeError(w, err)
		return
	}
	d, err := h.deals.GetDeal(r.Context(), id, user.WorkspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: d})
}

func (h *DealsHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req types.DealMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Metadata) == 0 {
		writeErrorStr(w, http.StatusBadRequest, "metadata is required")
		return
	}

	d, err := h.deals.UpdateDealMetadata(r.Context(), id, user.WorkspaceID, req.Metadata, services.UserActor(user.ID, user.Name))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: d})
}

func (h *DealsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.deals.DeleteDeal(r.Context(), id, services.UserActor(user.ID, user.Name)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

func (h *DealsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.deals.ApproveCompletion(r.Context(), id, services.UserActor(user.ID, user.Name)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

func (h *DealsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req types.CompletionRejectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.deals.RejectCompletion(r.Context(), id, services.UserActor(user.ID, user.Name), req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

// Stages lists the board columns, and resolves a free-form stage name when
// ?q= is present.
func (h *DealsHandler) Stages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: pipeline.ColumnKeys()})
		return
	}
	stage, ok := pipeline.ResolveStageAlias(q)
	if !ok {
		writeErrorStr(w, http.StatusNotFound, "no stage matches "+q)
		return
	}
	key, _ := pipeline.KeyForStage(stage)
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]string{
		"stage_key": key,
		"label":     pipeline.Label(stage),
	}})
}
