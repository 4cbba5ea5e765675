package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ridehub/accounts/internal/auth"
	"github.com/ridehub/accounts/internal/model"
)

// userResponse is the user object in API responses. Password hash and OTP digests are never exposed.
type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Gender    string    `json:"gender,omitempty"`
	RoleID    string    `json:"role_id"`
	Role      string    `json:"role,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Gender:    u.Gender,
		RoleID:    u.RoleID,
		Role:      u.RoleName,
		Status:    string(u.Status),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// messageResponse is the body of operations that only acknowledge
type messageResponse struct {
	Message string `json:"message"`
}

// respondJSON writes v as JSON with the given status
func respondJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, auth.ErrInvalidRole),
		errors.Is(err, auth.ErrOTPExpired),
		errors.Is(err, auth.ErrOTPMismatch),
		errors.Is(err, auth.ErrInvalidOTP),
		errors.Is(err, auth.ErrAlreadyVerified),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrNotVerified):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrAlreadyRegistered):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondWithServiceError writes the mapped status. Internal failures are logged
// and answered with a generic message.
func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	if status != http.StatusInternalServerError {
		respondWithError(w, status, err.Error())
		return
	}

	logger.Error(op+" failed", zap.Error(err))
	if errors.Is(err, auth.ErrDispatchFailed) {
		respondWithError(w, status, auth.ErrDispatchFailed.Error())
		return
	}
	respondWithError(w, status, "internal server error")
}

// decodeJSON reads a JSON request body into v
func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
