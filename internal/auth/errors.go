package auth

import "errors"

// Errors returned by Service. Handlers map them to HTTP status codes.
var (
	ErrInvalidInput       = errors.New("missing required fields")
	ErrInvalidRole        = errors.New("invalid role")
	ErrAlreadyRegistered  = errors.New("email or phone already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrOTPExpired         = errors.New("otp expired")
	ErrOTPMismatch        = errors.New("otp verification failed")
	ErrInvalidOTP         = errors.New("invalid otp")
	ErrAlreadyVerified    = errors.New("user already verified")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotVerified        = errors.New("user is not verified")
	ErrDispatchFailed     = errors.New("failed to deliver verification code")
)
