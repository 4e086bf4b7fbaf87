// Package signature provides HMAC-SHA256 signing and verification of JSON
// documents in canonical form.
//
// The same digest authenticates publishers (keyed by the event secret) and
// lets subscribers authenticate callbacks (keyed by the subscription secret).
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes and checks signatures. The zero value is ready to use.
type Signer struct{}

// NewSigner returns a new Signer.
func NewSigner() *Signer {
	return &Signer{}
}

// Sign returns the hex HMAC-SHA256 of the canonical form of payload.
func (s *Signer) Sign(payload any, secret string) (string, error) {
	return Sign(payload, secret)
}

// Verify reports whether candidate is the signature of payload under secret.
func (s *Signer) Verify(payload any, secret, candidate string) bool {
	return Verify(payload, secret, candidate)
}

// Sign returns the hex HMAC-SHA256 of the canonical form of payload.
func Sign(payload any, secret string) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	return SignBytes(canonical, secret), nil
}

// SignBytes signs bytes that are already canonical.
func SignBytes(canonical []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}
