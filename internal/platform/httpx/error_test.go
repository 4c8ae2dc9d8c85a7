package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return resp
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteError(context.Background(), rec, NewError("stock_insufficient", "stock insuficiente", http.StatusBadRequest).
		WithDetails(map[string]any{"productoId": "prd_1", "disponible": 1}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	resp := decodeBody(t, rec)
	if resp["error"] != "stock_insufficient" {
		t.Fatalf("unexpected error code %v", resp["error"])
	}
	if resp["message"] != "stock insuficiente" {
		t.Fatalf("unexpected message %v", resp["message"])
	}
	if resp["status"] != float64(http.StatusBadRequest) {
		t.Fatalf("unexpected status %v", resp["status"])
	}
	if resp["productoId"] != "prd_1" || resp["disponible"] != float64(1) {
		t.Fatalf("expected details flattened into envelope, got %v", resp)
	}
	if _, ok := resp["request_id"]; ok {
		t.Fatalf("expected no request_id without context value, got %v", resp)
	}
}

func TestWriteErrorDefaultsStatus(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteError(context.Background(), rec, Error{Code: "internal"})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestWriteErrorPicksRequestIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("route_not_found", "no route", http.StatusNotFound))

	resp := decodeBody(t, rec)
	if resp["request_id"] != "req-123" {
		t.Fatalf("expected request_id req-123, got %v", resp["request_id"])
	}
}

func TestWithRequestIDOverridesContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("internal", "boom", http.StatusInternalServerError).WithRequestID("req-explicit"))

	resp := decodeBody(t, rec)
	if resp["request_id"] != "req-explicit" {
		t.Fatalf("expected explicit request_id, got %v", resp["request_id"])
	}
}

func TestNewErrorSanitizes(t *testing.T) {
	err := NewError(" stock_insufficient \n", "line1\nline2\r", http.StatusBadRequest)

	if err.Code != "stock_insufficient" {
		t.Fatalf("unexpected code %q", err.Code)
	}
	if err.Message != "line1 line2" {
		t.Fatalf("unexpected message %q", err.Message)
	}

	long := NewError("x", strings.Repeat("a", 600), http.StatusBadRequest)
	if len(long.Message) != 512 {
		t.Fatalf("expected message truncated to 512, got %d", len(long.Message))
	}
}

func TestWithDetailsCopies(t *testing.T) {
	details := map[string]any{"clave": "valor"}
	err := NewError("code", "msg", http.StatusBadRequest).WithDetails(details)

	details["clave"] = "mutado"

	if err.Details["clave"] != "valor" {
		t.Fatalf("expected detached copy, got %v", err.Details)
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteJSON(rec, http.StatusCreated, map[string]any{"pedidoId": "ord_1"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["pedidoId"] != "ord_1" {
		t.Fatalf("unexpected payload %v", resp)
	}
}

func TestWriteJSONNilPayload(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteJSON(rec, http.StatusNoContent, nil)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
}
