package firestore

import (
	"context"
	"errors"
	"time"

	"github.com/perfume-decants/api/internal/domain"
	pfirestore "github.com/perfume-decants/api/internal/platform/firestore"
)

const healthProbeTimeout = 3 * time.Second

// HealthRepository probes Firestore connectivity for readiness checks.
type HealthRepository struct {
	provider *pfirestore.Provider
}

// NewHealthRepository constructs a Firestore-backed health repository.
func NewHealthRepository(provider *pfirestore.Provider) (*HealthRepository, error) {
	if provider == nil {
		return nil, errors.New("health repository requires firestore provider")
	}
	return &HealthRepository{provider: provider}, nil
}

// Check issues a lightweight read against Firestore and reports the outcome.
func (r *HealthRepository) Check(ctx context.Context) (domain.HealthStatus, error) {
	status := domain.HealthStatus{Component: "firestore", CheckedAt: time.Now().UTC()}
	if r == nil || r.provider == nil {
		status.Detail = "provider not initialised"
		return status, errors.New("health repository not initialised")
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	client, err := r.provider.Client(probeCtx)
	if err != nil {
		status.Detail = err.Error()
		return status, err
	}
	iter := client.Collections(probeCtx)
	if _, err := iter.Next(); err != nil && !isIteratorDone(err) {
		status.Detail = err.Error()
		return status, pfirestore.WrapError("health.check", err)
	}
	status.Healthy = true
	return status, nil
}
