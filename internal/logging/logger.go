// Package logging builds the zap logger used across the service and masks
// contact details before they reach log output.
package logging

import (
	"strings"

	"go.uber.org/zap"
)

// New returns a development logger for env "development" and a JSON production logger otherwise.
func New(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// MaskPhone masks a phone number for logging (e.g., +49******89)
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}

	// Keep first 2 and last 2 characters, mask the rest
	prefix := phone[:2]
	suffix := phone[len(phone)-2:]
	return prefix + strings.Repeat("*", len(phone)-4) + suffix
}

// MaskEmail keeps the first character of the local part and the domain (e.g., a***@x.com)
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "****"
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}

// Contact returns zap fields for whichever contact details are present, masked.
func Contact(email, phone string) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if email != "" {
		fields = append(fields, zap.String("email", MaskEmail(email)))
	}
	if phone != "" {
		fields = append(fields, zap.String("phone", MaskPhone(phone)))
	}
	return fields
}
