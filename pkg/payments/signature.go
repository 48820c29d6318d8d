package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Webhook-Signature"

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the presented signature against the expected HMAC.
// An empty secret disables verification.
func VerifySignature(secret string, body []byte, presented string) bool {
	if secret == "" {
		return true
	}
	presented = strings.TrimPrefix(strings.TrimSpace(presented), "sha256=")
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(presented))
}
