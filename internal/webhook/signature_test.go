package webhook

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec_test"

func signedHeader(secret string, body []byte) string {
	ts := "1717171717"
	return fmt.Sprintf("t=%s,v1=%s", ts, ComputeSignature(secret, ts, body))
}

func TestVerifySignature_Valid(t *testing.T) {
	body := []byte(`{"event_id":"evt_1","type":"checkout.succeeded"}`)
	err := VerifySignature(testSecret, signedHeader(testSecret, body), body)
	assert.NoError(t, err)
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	body := []byte(`{"event_id":"evt_1","amount_cents":3000}`)
	header := signedHeader(testSecret, body)

	tampered := []byte(`{"event_id":"evt_1","amount_cents":9999}`)
	err := VerifySignature(testSecret, header, tampered)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{"event_id":"evt_1"}`)
	header := signedHeader("whsec_other", body)

	err := VerifySignature(testSecret, header, body)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifySignature_MissingHeader(t *testing.T) {
	err := VerifySignature(testSecret, "", []byte(`{}`))
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestVerifySignature_Malformed(t *testing.T) {
	body := []byte(`{}`)

	cases := []string{
		"t=1717171717",              // missing v1
		"v1=deadbeef",               // missing t
		"timestamp=1,signature=2",   // wrong keys
		"nonsense",                  // no structure
	}
	for _, header := range cases {
		err := VerifySignature(testSecret, header, body)
		assert.ErrorIs(t, err, ErrMalformedSignature, "header: %s", header)
	}
}

func TestVerifySignature_NoSecretSkips(t *testing.T) {
	// Deployment-time relaxation: without a configured secret, anything
	// passes, including a missing header.
	assert.NoError(t, VerifySignature("", "", []byte(`{}`)))
	assert.NoError(t, VerifySignature("", "t=1,v1=bogus", []byte(`{}`)))
}

func TestVerifySignature_TimestampIsPartOfDigest(t *testing.T) {
	body := []byte(`{"event_id":"evt_1"}`)
	sig := ComputeSignature(testSecret, "1717171717", body)

	// Same signature presented with a different timestamp must not verify.
	header := fmt.Sprintf("t=%s,v1=%s", "1717179999", sig)
	err := VerifySignature(testSecret, header, body)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}
