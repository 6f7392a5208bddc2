package app

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const verificationCodeBytes = 12

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewCertificateID returns "CERT-" followed by a random UUID encoded as 26 base32 characters.
func NewCertificateID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("certificate id: %w", err)
	}
	return "CERT-" + tokenEncoding.EncodeToString(id[:]), nil
}

// NewVerificationCode returns 20 unpredictable base32 characters from crypto/rand.
func NewVerificationCode() (string, error) {
	buf := make([]byte, verificationCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("verification code: %w", err)
	}
	return tokenEncoding.EncodeToString(buf), nil
}

// NormalizeCode makes user-typed codes comparable with stored ones.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
