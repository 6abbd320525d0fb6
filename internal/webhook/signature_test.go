package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func signedPayload(t *testing.T, body string) ([]byte, string) {
	t.Helper()
	payload := []byte(body)
	return payload, Sign(payload, "1756700000", testSecret)
}

func TestVerifySignature_RoundTrip(t *testing.T) {
	payload, header := signedPayload(t, `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)

	event, err := VerifySignature(payload, header, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "checkout.session.completed", event.Type)
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload, header := signedPayload(t, `{"id":"evt_1","type":"x"}`)

	_, err := VerifySignature(payload, header, "whsec_other")
	var sigErr *SignatureError
	require.ErrorAs(t, err, &sigErr)
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	_, header := signedPayload(t, `{"id":"evt_1","type":"x"}`)

	_, err := VerifySignature([]byte(`{"id":"evt_2","type":"x"}`), header, testSecret)
	assert.Error(t, err)
}

func TestVerifySignature_MissingHeader(t *testing.T) {
	_, err := VerifySignature([]byte(`{}`), "", testSecret)
	assert.Error(t, err)
}

func TestVerifySignature_HeaderMissingParts(t *testing.T) {
	_, err := VerifySignature([]byte(`{}`), "t=123", testSecret)
	assert.Error(t, err)

	_, err = VerifySignature([]byte(`{}`), "v1=abcd", testSecret)
	assert.Error(t, err)
}

func TestVerifySignature_AnyCandidateMatches(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"x"}`)
	valid := Sign(payload, "1756700000", testSecret)
	// Prepend a stale candidate; the valid one still authenticates.
	header := valid[:len("t=1756700000")] + ",v1=" + "00deadbeef" + valid[len("t=1756700000"):]

	event, err := VerifySignature(payload, header, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
}

func TestVerifySignature_PayloadMustBeEventJSON(t *testing.T) {
	payload, header := signedPayload(t, `not json`)
	_, err := VerifySignature(payload, header, testSecret)
	assert.Error(t, err)

	payload, header = signedPayload(t, `{"type":"x"}`)
	_, err = VerifySignature(payload, header, testSecret)
	assert.Error(t, err)
}
