package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

const hmacScheme = "hmac-sha256/v1"

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	return hex.EncodeToString(mac(secret, body))
}

// SetHeaders stamps an outbound push with its signature and event metadata. An empty
// secret leaves the request unsigned.
func SetHeaders(h http.Header, secret, eventID, eventType string, body []byte) {
	h.Set(EventIDHeader, eventID)
	h.Set(EventTypeHeader, eventType)
	if strings.TrimSpace(secret) != "" {
		h.Set(SignatureHeader, Sign(secret, body))
	}
}

func mac(secret string, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	_, _ = m.Write(body)
	return m.Sum(nil)
}

type hmacVerifier struct{}

func NewHMACVerifier() Verifier { return hmacVerifier{} }

func (hmacVerifier) Scheme() string { return hmacScheme }

func (hmacVerifier) Verify(headers http.Header, rawBody []byte, secret string) (VerificationResult, error) {
	if strings.TrimSpace(secret) == "" {
		return VerificationResult{}, fmt.Errorf("webhook verifier secret is empty")
	}

	res := VerificationResult{
		Scheme: hmacScheme,
		Details: map[string]any{
			"signature_header_present": false,
			"signature_hex_decodable":  false,
		},
		EventID:   strings.TrimSpace(headers.Get(EventIDHeader)),
		EventType: strings.TrimSpace(headers.Get(EventTypeHeader)),
	}
	if res.EventType == "" {
		res.EventType = "unknown"
	}

	sigHex := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHex == "" {
		return res, nil
	}
	res.Details["signature_header_present"] = true

	provided, err := hex.DecodeString(sigHex)
	if err != nil {
		return res, nil
	}
	res.Details["signature_hex_decodable"] = true
	res.Valid = hmac.Equal(mac(secret, rawBody), provided)
	return res, nil
}
