package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code, message, source string) {
	body := map[string]any{"code": code, "message": message}
	if source != "" {
		body["source"] = source
	}
	WriteJSON(w, status, map[string]any{
		"request_id": NewRequestID(),
		"error":      body,
	})
}

// WriteErr maps err to an error envelope. Errors exposing HTTPStatus() choose the status;
// anything else is a 500.
func WriteErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var hs interface{ HTTPStatus() int }
	if errors.As(err, &hs) {
		status = hs.HTTPStatus()
	}
	var src interface{ ErrorSource() string }
	source := ""
	if errors.As(err, &src) {
		source = src.ErrorSource()
	}
	WriteError(w, status, CodeFor(status), err.Error(), source)
}

func CodeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}
