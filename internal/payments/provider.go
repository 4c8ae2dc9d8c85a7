package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusApproved indicates the PSP reports the payment as successfully captured.
	StatusApproved Status = "approved"
	// StatusRejected indicates the PSP declined the payment.
	StatusRejected Status = "rejected"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ErrPaymentNotFound indicates no payment matches the given reference.
var ErrPaymentNotFound = errors.New("payments: payment not found")

// PreferenceItem describes a single order line included in a payment preference.
type PreferenceItem struct {
	Name       string
	Quantity   int64
	UnitAmount int64
}

// PreferenceRequest captures the payload required to create a payment preference.
type PreferenceRequest struct {
	OrderID     string
	OrderNumber string
	Amount      int64
	Currency    string
	PayerEmail  string
	Items       []PreferenceItem
	Metadata    map[string]string
}

// Preference is the provider-side checkout reference returned to the client.
type Preference struct {
	ID          string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
	Raw         map[string]any
}

// PaymentDetails normalises provider specific payment fields.
type PaymentDetails struct {
	Provider   string
	PaymentRef string
	Status     Status
	Amount     int64
	Currency   string
	Raw        map[string]any
}

// Provider defines the contract payment adapters implement.
type Provider interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (Preference, error)
	LookupPayment(ctx context.Context, paymentRef string) (PaymentDetails, error)
}

// Manager selects the active provider at process start and delegates to it.
type Manager struct {
	providers map[string]Provider
	active    string
}

// NewManager constructs a Manager over the supplied providers with the given
// active provider key.
func NewManager(providers map[string]Provider, active string) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}

	active = strings.TrimSpace(strings.ToLower(active))
	if active == "" && len(copyMap) == 1 {
		for key := range copyMap {
			active = key
		}
	}
	if _, ok := copyMap[active]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, active)
	}

	return &Manager{providers: copyMap, active: active}, nil
}

// ActiveProvider returns the key of the provider serving requests.
func (m *Manager) ActiveProvider() string {
	if m == nil {
		return ""
	}
	return m.active
}

// CreatePreference delegates to the active provider.
func (m *Manager) CreatePreference(ctx context.Context, req PreferenceRequest) (Preference, error) {
	provider, err := m.resolve()
	if err != nil {
		return Preference{}, err
	}
	pref, err := provider.CreatePreference(ctx, req)
	if err != nil {
		return Preference{}, err
	}
	if pref.Provider == "" {
		pref.Provider = m.active
	}
	return pref, nil
}

// LookupPayment delegates to the active provider.
func (m *Manager) LookupPayment(ctx context.Context, paymentRef string) (PaymentDetails, error) {
	provider, err := m.resolve()
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.LookupPayment(ctx, paymentRef)
	if err != nil {
		return PaymentDetails{}, err
	}
	if details.Provider == "" {
		details.Provider = m.active
	}
	return details, nil
}

func (m *Manager) resolve() (Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return nil, errors.New("payments: no providers registered")
	}
	provider, ok := m.providers[m.active]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return provider, nil
}
