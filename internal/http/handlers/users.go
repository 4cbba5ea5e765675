package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ridehub/accounts/internal/auth"
	"github.com/ridehub/accounts/internal/middleware"
	"github.com/ridehub/accounts/internal/model"
)

// UserHandler serves profile reads and writes
type UserHandler struct {
	service *auth.Service
	logger  *zap.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(service *auth.Service, logger *zap.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

type userEnvelope struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

// HandleList handles GET /
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, "list users", err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	respondJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, h.logger, "get user", err)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleUpdate handles PUT /{id}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, chi.URLParam(r, "id"))
}

// HandleUpdateSelf handles PUT /update (protected). Updates the authenticated user.
func (h *UserHandler) HandleUpdateSelf(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	claims, hasClaims := middleware.GetClaims(r.Context())
	if !ok || user == nil || !hasClaims {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.logger.Info("self profile update", zap.String("user_id", user.ID), zap.String("role", claims.Role))
	h.update(w, r, user.ID)
}

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var patch model.UserPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.UpdateUser(r.Context(), id, patch)
	if err != nil {
		respondWithServiceError(w, h.logger, "update user", err)
		return
	}
	respondJSON(w, http.StatusOK, userEnvelope{Message: "User updated successfully", User: toUserResponse(user)})
}

// HandleDelete handles DELETE /{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithServiceError(w, h.logger, "delete user", err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "User deleted successfully"})
}
