// Package httpx defines the JSON error envelope shared by every handler:
// {"error": code, "message": text, "status": http status, "request_id": id}
// plus any detail keys flattened into the top level.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	maxCodeLength    = 80
	maxMessageLength = 512
)

// Error is the wire-level error before serialisation.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	Details   map[string]any
}

// NewError builds an Error, defaulting a zero status to 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clean(code, maxCodeLength),
		Message: clean(message, maxMessageLength),
		Status:  status,
	}
}

// WithRequestID pins the request identifier instead of reading it from context.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = clean(id, maxCodeLength)
	return e
}

// WithDetails attaches extra keys merged into the top level of the envelope.
// The map is copied so later caller mutations do not leak into the response.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	e.Details = make(map[string]any, len(details))
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WriteError renders the envelope. The request id falls back to the chi
// request-id middleware value carried on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	if id := requestID(ctx, err); id != "" {
		body["request_id"] = id
	}
	for k, v := range err.Details {
		body[k] = v
	}

	WriteJSON(w, status, body)
}

// WriteJSON renders payload as JSON with the given status code. A nil
// payload writes only headers, for 204-style responses.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func requestID(ctx context.Context, err Error) string {
	if err.RequestID != "" {
		return err.RequestID
	}
	return clean(middleware.GetReqID(ctx), maxCodeLength)
}

// clean strips newlines and truncates so header-injected input cannot
// distort the envelope.
func clean(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
