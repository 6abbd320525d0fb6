// Package webhook ingests payment-provider checkout events and converts
// them into ledger credits, exactly once per event.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// SignatureError means the request could not be authenticated. The HTTP
// surface maps it to 400; everything after signature verification acks 200.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return "webhook: " + e.Reason
}

// Event is the signed envelope. Data.Object is left raw until the event
// type is known.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// VerifySignature authenticates a raw payload against its signature
// header. The header carries a timestamp and one or more v1 candidate
// signatures; the payload is accepted when any candidate matches
// HMAC-SHA256(secret, "<timestamp>.<payload>") in constant time.
func VerifySignature(payload []byte, signatureHeader, secret string) (*Event, error) {
	if signatureHeader == "" {
		return nil, &SignatureError{Reason: "missing signature header"}
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(signatureHeader, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "t="):
			timestamp = part[len("t="):]
		case strings.HasPrefix(part, "v1="):
			candidates = append(candidates, part[len("v1="):])
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return nil, &SignatureError{Reason: "signature header missing timestamp or signature"}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	valid := false
	for _, candidate := range candidates {
		decoded, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			valid = true
		}
	}
	if !valid {
		return nil, &SignatureError{Reason: "signature verification failed"}
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, &SignatureError{Reason: "payload is not valid JSON"}
	}
	if event.ID == "" || event.Type == "" {
		return nil, &SignatureError{Reason: "payload missing id or type"}
	}

	return &event, nil
}

// Sign computes the signature header for a payload. Used by tests and the
// replay tooling; the live provider signs its own requests.
func Sign(payload []byte, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return "t=" + timestamp + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}
