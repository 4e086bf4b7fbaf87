package signature

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateSecret creates a random per-subscription secret.
// Format: "whsec_" followed by 64 hex characters.
func GenerateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("herald: read random secret: " + err.Error())
	}
	return "whsec_" + hex.EncodeToString(b)
}
