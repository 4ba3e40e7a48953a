// Package webhook defines the contract every backend's webhook parser
// conforms to, and shared signature verification.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/nhle/pmbridge/internal/model"
)

// Parser converts one backend's native event payload into the normalized
// event record.
//
// Parse returns nil for payloads whose shape is valid but whose event
// kind the parser does not recognize, and nil for bodies that fail to
// parse as structured data at all. A parse failure never surfaces as an
// error to the caller.
type Parser interface {
	Parse(body []byte, header http.Header) *model.WebhookEvent
}

// Verifier checks an inbound payload's signature. The verifier receives
// the full header set and picks out its own signature header, so the
// ingress never has to know backend-specific header names. Verification
// is a separate operation from parsing; callers are expected to verify
// first when a secret is configured, but may call either independently.
type Verifier interface {
	Verify(body []byte, header http.Header) bool
}

// VerifyHMAC reports whether signatureHeader matches the hex-encoded
// HMAC-SHA256 of body under secret, after stripping the given scheme
// prefix (e.g. "sha256="). Comparison is constant-time. An empty secret
// always fails: a missing secret must never be mistaken for a pass.
func VerifyHMAC(body []byte, signatureHeader, prefix, secret string) bool {
	if secret == "" {
		return false
	}

	signature := signatureHeader
	if prefix != "" {
		if !strings.HasPrefix(signature, prefix) {
			return false
		}
		signature = strings.TrimPrefix(signature, prefix)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
