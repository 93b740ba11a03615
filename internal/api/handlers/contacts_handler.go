package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/fieldline/engine/internal/api/middleware"
	"github.com/fieldline/engine/internal/api/types"
	"github.com/fieldline/engine/internal/models"
	"github.com/fieldline/engine/internal/repository"
)

type ContactsHandler struct {
	contacts repository.ContactRepository
	validate *validator.Validate
}

func NewContactsHandler(contacts repository.ContactRepository) *ContactsHandler {
	return &ContactsHandler{contacts: contacts, validate: validator.New()}
}

func (h *ContactsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	items, err := h.contacts.ListByWorkspace(r.Context(), user.WorkspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

func (h *ContactsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req types.ContactCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	c := models.Contact{
		WorkspaceID: user.WorkspaceID,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Company:     req.Company,
	}
	if err := h.contacts.Create(r.Context(), &c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: c})
}

func (h *ContactsHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var c models.Contact
	if err := h.contacts.GetInWorkspace(r.Context(), id, user.WorkspaceID, &c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: c})
}
