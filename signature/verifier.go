package signature

import "crypto/hmac"

// Verify reports whether candidate is the signature of payload under secret.
// The comparison is constant-time. An empty secret never verifies.
func Verify(payload any, secret, candidate string) bool {
	if secret == "" || candidate == "" {
		return false
	}
	canonical, err := Canonicalize(payload)
	if err != nil {
		return false
	}
	return VerifyBytes(canonical, secret, candidate)
}

// VerifyBytes is Verify for bytes that are already canonical.
func VerifyBytes(canonical []byte, secret, candidate string) bool {
	if secret == "" || candidate == "" {
		return false
	}
	expected := SignBytes(canonical, secret)
	return hmac.Equal([]byte(expected), []byte(candidate))
}
