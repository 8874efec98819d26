package auth

import (
	"crypto/rand"
	"encoding/hex"
)

// generateToken returns 32 random bytes hex-encoded. Used for both CSRF
// and password-reset tokens.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
