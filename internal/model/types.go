package model

import (
	"time"
)

// VerificationStatus is the state of an account in the verification lifecycle
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusVerified VerificationStatus = "verified"
	StatusRejected VerificationStatus = "rejected"
)

// Role names seeded by the initial migration
const (
	RoleRider  = "rider"
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

// User represents an account in the system
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	Gender       string
	PasswordHash string
	RoleID       string
	RoleName     string
	Status       VerificationStatus
	// EmailOTP and PhoneOTP hold digests of the open challenge codes, never plaintext.
	EmailOTP     string
	PhoneOTP     string
	OTPExpiresAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasOpenChallenge reports whether a verification or reset cycle is in progress
func (u *User) HasOpenChallenge() bool {
	return u.OTPExpiresAt != nil
}

// ClearChallenge removes all OTP fields
func (u *User) ClearChallenge() {
	u.EmailOTP = ""
	u.PhoneOTP = ""
	u.OTPExpiresAt = nil
}

// Role represents a named permission tier
type Role struct {
	ID   string
	Name string
}

// UserPatch lists the profile fields a client may change. Nil fields are left untouched.
type UserPatch struct {
	Name   *string `json:"name,omitempty"`
	Email  *string `json:"email,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	Gender *string `json:"gender,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p UserPatch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil && p.Phone == nil && p.Gender == nil
}

// Apply merges the patch into u
func (p UserPatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Gender != nil {
		u.Gender = *p.Gender
	}
}
