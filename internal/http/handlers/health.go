package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ridehub/accounts/internal/repo"
)

// HealthHandler reports liveness
type HealthHandler struct{}

// NewHealthHandler creates a new health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// RoleHandler lists the seeded roles
type RoleHandler struct {
	roles  repo.RoleRepo
	logger *zap.Logger
}

// NewRoleHandler creates a new role handler
func NewRoleHandler(roles repo.RoleRepo, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{roles: roles, logger: logger}
}

type roleResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HandleList handles GET /roles
func (h *RoleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.List(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, "list roles", err)
		return
	}

	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse{ID: role.ID, Name: role.Name})
	}
	respondJSON(w, http.StatusOK, out)
}
