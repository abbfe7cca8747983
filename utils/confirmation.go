package utils

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// ConfirmationCodePrefix starts every booking confirmation code.
const ConfirmationCodePrefix = "WN-"

const confirmationCodeLength = 6

// generateSecureCode returns length random characters from the base32
// alphabet (A-Z, 2-7).
func generateSecureCode(length int) (string, error) {
	numBytes := (length*5 + 7) / 8
	randomBytes := make([]byte, numBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	code := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(randomBytes)
	if len(code) > length {
		code = code[:length]
	}
	return code, nil
}

// GenerateConfirmationCode returns a code like "WN-K3QZ7A".
func GenerateConfirmationCode() (string, error) {
	code, err := generateSecureCode(confirmationCodeLength)
	if err != nil {
		return "", err
	}
	return ConfirmationCodePrefix + code, nil
}

// ConfirmationCodeFromID derives a code from an opaque id when no random
// source is available.
func ConfirmationCodeFromID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(id) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == confirmationCodeLength {
			break
		}
	}
	for b.Len() < confirmationCodeLength {
		b.WriteByte('0')
	}
	return ConfirmationCodePrefix + b.String()
}
