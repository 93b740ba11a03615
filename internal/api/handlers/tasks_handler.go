package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fieldline/engine/internal/api/middleware"
	"github.com/fieldline/engine/internal/api/types"
	"github.com/fieldline/engine/internal/services"
)

type TasksHandler struct {
	tasks    services.TaskService
	validate *validator.Validate
}

func NewTasksHandler(tasks services.TaskService) *TasksHandler {
	return &TasksHandler{tasks: tasks, validate: validator.New()}
}

func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var completed *bool
	if v := r.URL.Query().Get("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid completed filter")
			return
		}
		completed = &b
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.tasks.ListTasks(r.Context(), user.WorkspaceID, completed, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

func (h *TasksHandler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	items, err := h.tasks.ListOverdue(r.Context(), user.WorkspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req types.TaskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	input := &services.CreateTaskInput{
		WorkspaceID: user.WorkspaceID,
		Title:       req.Title,
		Description: req.Description,
		DueAt:       req.DueAt,
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

	t, err := h.tasks.CreateTask(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: t})
}

func (h *TasksHandler) Complete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.tasks.CompleteTask(r.Context(), id, user.WorkspaceID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}
