package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const mockPreferenceTTL = 30 * time.Minute

// MockProvider simulates a PSP for local development and tests. Preferences
// live in memory and stay pending until an outcome is applied through
// ApplyOutcome.
type MockProvider struct {
	clock  func() time.Time
	nextID func() string

	mu       sync.Mutex
	payments map[string]PaymentDetails
}

// MockOption customises MockProvider behaviour.
type MockOption func(*MockProvider)

// WithMockClock overrides the time source.
func WithMockClock(clock func() time.Time) MockOption {
	return func(p *MockProvider) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithMockIDGenerator overrides preference id generation.
func WithMockIDGenerator(next func() string) MockOption {
	return func(p *MockProvider) {
		if next != nil {
			p.nextID = next
		}
	}
}

// NewMockProvider constructs a MockProvider.
func NewMockProvider(opts ...MockOption) *MockProvider {
	p := &MockProvider{
		clock:    time.Now,
		nextID:   randomMockID,
		payments: make(map[string]PaymentDetails),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// CreatePreference records a synthetic preference and returns a local redirect.
func (p *MockProvider) CreatePreference(_ context.Context, req PreferenceRequest) (Preference, error) {
	if p == nil {
		return Preference{}, errors.New("payments: mock provider is nil")
	}
	if req.Amount <= 0 {
		return Preference{}, errors.New("payments: amount must be positive")
	}

	now := p.clock().UTC()
	ref := "mock_" + p.nextID()

	p.mu.Lock()
	p.payments[ref] = PaymentDetails{
		Provider:   "mock",
		PaymentRef: ref,
		Status:     StatusPending,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Raw: map[string]any{
			"orderId":     req.OrderID,
			"orderNumber": req.OrderNumber,
		},
	}
	p.mu.Unlock()

	return Preference{
		ID:          ref,
		Provider:    "mock",
		RedirectURL: fmt.Sprintf("/pago-simulado?preferencia=%s", ref),
		ExpiresAt:   now.Add(mockPreferenceTTL),
		Raw:         map[string]any{"orderId": req.OrderID},
	}, nil
}

// LookupPayment returns the recorded state of a synthetic payment.
func (p *MockProvider) LookupPayment(_ context.Context, paymentRef string) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("payments: mock provider is nil")
	}
	ref := strings.TrimSpace(paymentRef)
	if ref == "" {
		return PaymentDetails{}, errors.New("payments: payment ref is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	details, ok := p.payments[ref]
	if !ok {
		return PaymentDetails{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, ref)
	}
	return details, nil
}

// ApplyOutcome transitions a synthetic payment to the given status.
// Unknown refs are registered on the fly so simulated payments can be
// resolved without a prior preference.
func (p *MockProvider) ApplyOutcome(paymentRef string, status Status) PaymentDetails {
	ref := strings.TrimSpace(paymentRef)
	p.mu.Lock()
	defer p.mu.Unlock()
	details, ok := p.payments[ref]
	if !ok {
		details = PaymentDetails{Provider: "mock", PaymentRef: ref}
	}
	details.Status = status
	p.payments[ref] = details
	return details
}

func randomMockID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
