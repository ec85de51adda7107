package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the provider signature as `t=<unix-ts>,v1=<hex>`.
const SignatureHeader = "soap-webhook-signature"

var (
	ErrMissingSignature   = errors.New("missing webhook signature")
	ErrMalformedSignature = errors.New("malformed webhook signature")
	ErrSignatureMismatch  = errors.New("webhook signature mismatch")
)

// ComputeSignature returns the hex HMAC-SHA256 of "<timestamp>.<body>".
// The body must be the exact request bytes; re-serialized JSON will not
// reproduce the provider's digest.
func ComputeSignature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature validates an inbound webhook against the shared secret.
// An empty secret disables verification, a deployment-time trust decision.
func VerifySignature(secret, header string, body []byte) error {
	if secret == "" {
		return nil
	}
	if header == "" {
		return ErrMissingSignature
	}

	var timestamp, signature string
	for _, part := range strings.Split(header, ",") {
		switch {
		case strings.HasPrefix(part, "t="):
			timestamp = strings.TrimPrefix(part, "t=")
		case strings.HasPrefix(part, "v1="):
			signature = strings.TrimPrefix(part, "v1=")
		}
	}
	if timestamp == "" || signature == "" {
		return ErrMalformedSignature
	}

	expected := ComputeSignature(secret, timestamp, body)
	// hmac.Equal is constant-time.
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
