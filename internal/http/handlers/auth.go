package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ridehub/accounts/internal/auth"
	"github.com/ridehub/accounts/internal/model"
)

// AuthHandler handles registration, verification, login and password reset
type AuthHandler struct {
	service *auth.Service
	logger  *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *auth.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{service: service, logger: logger}
}

// registerRequest is the request body for POST /register.
// phone_number is accepted as an alias of phone.
type registerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	PhoneNumber string `json:"phone_number"`
	Gender      string `json:"gender"`
	Password    string `json:"password"`
	RoleName    string `json:"role_name"`
	RoleID      string `json:"role_id"`
}

type registerResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

// HandleRegister handles POST /register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		phone = strings.TrimSpace(req.PhoneNumber)
	}

	user, err := h.service.Register(r.Context(), auth.RegisterInput{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Phone:    phone,
		Gender:   strings.ToLower(strings.TrimSpace(req.Gender)),
		Password: req.Password,
		RoleName: strings.ToLower(strings.TrimSpace(req.RoleName)),
		RoleID:   strings.TrimSpace(req.RoleID),
	})
	if err != nil {
		respondWithServiceError(w, h.logger, "register", err)
		return
	}

	message := "User registered. Verification codes sent to email and phone."
	if user.Status == model.StatusVerified {
		message = "User registered and verified successfully."
	}
	respondJSON(w, http.StatusCreated, registerResponse{Message: message, User: toUserResponse(user)})
}

// verifyRequest is the request body for POST /verify
type verifyRequest struct {
	Email    string `json:"email"`
	EmailOTP string `json:"email_otp"`
	PhoneOTP string `json:"phone_otp"`
}

// HandleVerify handles POST /verify
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.service.Verify(r.Context(),
		strings.TrimSpace(req.Email), strings.TrimSpace(req.EmailOTP), strings.TrimSpace(req.PhoneOTP))
	if err != nil {
		respondWithServiceError(w, h.logger, "verify", err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "User verified successfully."})
}

// contactRequest is the request body for POST /resendOtp and POST /forgot-password
type contactRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// HandleResendOTP handles POST /resendOtp
func (h *AuthHandler) HandleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.ResendOTP(r.Context(), strings.TrimSpace(req.Email), strings.TrimSpace(req.Phone)); err != nil {
		respondWithServiceError(w, h.logger, "resend otp", err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "OTP resent successfully"})
}

// loginRequest is the request body for POST /login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type loginResponse struct {
	Message   string    `json:"message"`
	Dashboard string    `json:"dashboard"`
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	User      loginUser `json:"user"`
}

// HandleLogin handles POST /login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.service.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		respondWithServiceError(w, h.logger, "login", err)
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{
		Message:   fmt.Sprintf("Login successful as %s", res.User.RoleName),
		Dashboard: res.Dashboard,
		Token:     res.Token,
		TokenType: "bearer",
		User: loginUser{
			ID:    res.User.ID,
			Name:  res.User.Name,
			Email: res.User.Email,
			Role:  res.User.RoleName,
		},
	})
}

// HandleForgotPassword handles POST /forgot-password
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.ForgotPassword(r.Context(), strings.TrimSpace(req.Email), strings.TrimSpace(req.Phone)); err != nil {
		respondWithServiceError(w, h.logger, "forgot password", err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "OTP sent for password reset"})
}

// resetRequest is the request body for POST /reset-password
type resetRequest struct {
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

// HandleResetPassword handles POST /reset-password
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.service.ResetPassword(r.Context(), auth.ResetInput{
		Email:       strings.TrimSpace(req.Email),
		Phone:       strings.TrimSpace(req.Phone),
		OTP:         strings.TrimSpace(req.OTP),
		NewPassword: req.NewPassword,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, "reset password", err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Password reset successful"})
}
