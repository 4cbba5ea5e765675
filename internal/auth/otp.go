package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	otpMin   = 100000
	otpRange = 900000
)

// Digests are bound to the delivery channel rather than the address, so a
// profile edit of email or phone does not invalidate an open challenge.
const (
	channelEmail = "email"
	channelPhone = "phone"
)

// GenerateCode returns a uniformly random 6-digit code in [100000, 999999]
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpRange))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}

// hashOTPHex returns SHA-256(channel:code:salt) as hex for storage
func hashOTPHex(channel, code, salt string) string {
	return hex.EncodeToString(hashOTPBytes(channel, code, salt))
}

func hashOTPBytes(channel, code, salt string) []byte {
	data := fmt.Sprintf("%s:%s:%s", channel, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hash[:]
}

// matchOTP reports whether code hashes to the stored hex digest. An empty digest never matches.
func matchOTP(storedHex, channel, code, salt string) bool {
	if storedHex == "" || code == "" {
		return false
	}
	stored, err := hex.DecodeString(storedHex)
	if err != nil {
		return false
	}
	return constantTimeCompare(hashOTPBytes(channel, code, salt), stored)
}

func constantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
