package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/perfume-decants/api/internal/platform/httpx"
	"github.com/perfume-decants/api/internal/repositories"
)

const defaultReadinessTimeout = 5 * time.Second

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	readiness repositories.HealthRepository
	version   string
	startedAt time.Time
	clock     func() time.Time
	timeout   time.Duration
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthReadiness wires the repository probed by /readyz.
func WithHealthReadiness(repo repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.readiness = repo
	}
}

// WithHealthVersion reports the given build version in health payloads.
func WithHealthVersion(version string) HealthOption {
	return func(h *HealthHandlers) {
		h.version = version
	}
}

// WithHealthClock overrides the time source, used by tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthTimeout bounds the readiness probe duration.
func WithHealthTimeout(d time.Duration) HealthOption {
	return func(h *HealthHandlers) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewHealthHandlers constructs health handlers with the provided options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:   time.Now,
		timeout: defaultReadinessTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startedAt = h.clock()
	return h
}

// Healthz reports process liveness without touching any dependency.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.version != "" {
		payload["version"] = h.version
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz probes the storage dependency and reports readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.readiness == nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "readiness probe not configured", http.StatusServiceUnavailable))
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status, err := h.readiness.Check(probeCtx)
	if err != nil || !status.Healthy {
		detail := status.Detail
		if detail == "" && err != nil {
			detail = err.Error()
		}
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", detail, http.StatusServiceUnavailable))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"component": status.Component,
		"checkedAt": status.CheckedAt.UTC().Format(time.RFC3339),
	})
}
