package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldline/engine/internal/api/types"
	"github.com/fieldline/engine/internal/models"
	"github.com/fieldline/engine/internal/repository"
)

type AuthHandler struct {
	users      repository.UserRepository
	workspaces repository.WorkspaceRepository
	hmacSecret []byte
	validate   *validator.Validate
}

func NewAuthHandler(users repository.UserRepository, workspaces repository.WorkspaceRepository, secret []byte) *AuthHandler {
	return &AuthHandler{users: users, workspaces: workspaces, hmacSecret: secret, validate: validator.New()}
}

// Register creates a new workspace with the caller as its owner.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	ph, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, err)
		return
	}

	// Workspace and owner reference each other, so both ids are fixed up
	// front.
	userID := uuid.New()
	ws := models.Workspace{
		ID:      uuid.New(),
		Name:    req.WorkspaceName,
		OwnerID: userID,
	}
	if err := h.workspaces.Create(r.Context(), &ws); err != nil {
		writeError(w, err)
		return
	}

	u := models.User{
		ID:           userID,
		WorkspaceID:  ws.ID,
		Email:        req.Email,
		Name:         req.Name,
		Role:         models.RoleOwner,
		PasswordHash: string(ph),
	}
	if err := h.users.Create(r.Context(), &u); err != nil {
		writeErrorStr(w, http.StatusConflict, "email already exists")
		return
	}

	writeJSON(w, http.StatusCreated, types.APIResponse{
		Success: true,
		Data: map[string]any{
			"id":           u.ID,
			"email":        u.Email,
			"name":         u.Name,
			"workspace_id": ws.ID,
		},
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeErrorStr(w, http.StatusBadRequest, "email and password are required")
		return
	}

	var u models.User
	if err := h.users.GetByEmail(r.Context(), req.Email, &u); err != nil {
		writeErrorStr(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		writeErrorStr(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": u.ID.String(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString(h.hmacSecret)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data: map[string]any{
			"access_token": tokenString,
			"token_type":   "Bearer",
			"expires_in":   86400,
			"user": map[string]any{
				"id":           u.ID,
				"email":        u.Email,
				"name":         u.Name,
				"role":         u.Role,
				"workspace_id": u.WorkspaceID,
			},
		},
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}
