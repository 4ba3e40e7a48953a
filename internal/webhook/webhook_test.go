package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	secret := "s3cret"
	good := "sha256=" + sign(secret, string(body))

	assert.True(t, VerifyHMAC(body, good, "sha256=", secret))
}

func TestVerifyHMACRejectsWrongSignature(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	wrong := "sha256=" + sign("other-secret", string(body))

	assert.False(t, VerifyHMAC(body, wrong, "sha256=", "s3cret"))
}

func TestVerifyHMACRejectsTamperedBody(t *testing.T) {
	secret := "s3cret"
	sig := "sha256=" + sign(secret, `{"action":"opened"}`)

	assert.False(t, VerifyHMAC([]byte(`{"action":"closed"}`), sig, "sha256=", secret))
}

func TestVerifyHMACRequiresPrefix(t *testing.T) {
	body := []byte("payload")
	secret := "s3cret"
	bare := sign(secret, string(body))

	assert.False(t, VerifyHMAC(body, bare, "sha256=", secret))
	assert.False(t, VerifyHMAC(body, "sha1="+bare, "sha256=", secret))
}

func TestVerifyHMACEmptySecretAlwaysFails(t *testing.T) {
	body := []byte("payload")

	// Even a signature computed with the empty secret is rejected: no
	// configured secret means no request can be trusted.
	sig := "sha256=" + sign("", string(body))
	assert.False(t, VerifyHMAC(body, sig, "sha256=", ""))
	assert.False(t, VerifyHMAC(body, "", "sha256=", ""))
}

func TestVerifyHMACMalformedHeader(t *testing.T) {
	assert.False(t, VerifyHMAC([]byte("payload"), "sha256=not-hex", "sha256=", "s3cret"))
	assert.False(t, VerifyHMAC([]byte("payload"), "", "sha256=", "s3cret"))
}
