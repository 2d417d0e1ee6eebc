// Package webhooks signs the service's gateway pushes and gives gateways the
// matching verifier for the receiving side.
package webhooks

import (
	"net/http"
)

const (
	SignatureHeader = "X-Signature"
	EventIDHeader   = "X-Event-Id"
	EventTypeHeader = "X-Event-Type"
)

type VerificationResult struct {
	Valid     bool           `json:"valid"`
	Scheme    string         `json:"scheme"`
	Details   map[string]any `json:"details"`
	EventID   string         `json:"event_id,omitempty"`
	EventType string         `json:"event_type,omitempty"`
}

// Verifier checks a received push against a shared secret. Gateways embed one to
// authenticate contract-change pushes.
type Verifier interface {
	Scheme() string
	Verify(headers http.Header, rawBody []byte, secret string) (VerificationResult, error)
}
