package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/perfume-decants/api/internal/domain"
	"github.com/perfume-decants/api/internal/payments"
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid payment data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentOrderNotPending indicates the order is past the point where a
	// payment can be started.
	ErrPaymentOrderNotPending = errors.New("payment: order is not pending")
	// ErrPaymentNotFound indicates no payment matches the reference.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentProviderUnavailable indicates the gateway call failed.
	ErrPaymentProviderUnavailable = errors.New("payment: provider unavailable")
	// ErrPaymentMockDisabled indicates the simulated gateway is not the
	// active provider.
	ErrPaymentMockDisabled = errors.New("payment: mock provider is not active")
)

// CreatePreferenceCommand starts a checkout for a pending order.
type CreatePreferenceCommand struct {
	OrderID    string
	PayerEmail string
	Actor      Actor
}

// MockPaymentCommand simulates a gateway outcome for a pending order.
type MockPaymentCommand struct {
	OrderID string
	Outcome string
	Actor   Actor
}

// WebhookNotification is a raw gateway callback. Callbacks are acknowledged
// and logged even when the referenced payment is unknown.
type WebhookNotification struct {
	Provider   string
	PaymentRef string
	RawStatus  string
	Payload    map[string]any
}

// PaymentService orchestrates checkout preferences, simulated outcomes, and
// gateway callbacks on top of the order lifecycle.
type PaymentService interface {
	CreatePreference(ctx context.Context, cmd CreatePreferenceCommand) (payments.Preference, error)
	SimulateOutcome(ctx context.Context, cmd MockPaymentCommand) (domain.Order, error)
	VerifyPayment(ctx context.Context, paymentRef string, actor Actor) (payments.PaymentDetails, error)
	HandleWebhook(ctx context.Context, notification WebhookNotification) error
}

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders   OrderService
	Gateway  *payments.Manager
	Mock     *payments.MockProvider
	Currency string
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders   OrderService
	gateway  *payments.Manager
	mock     *payments.MockProvider
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway manager is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "CLP"
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:   deps.Orders,
		gateway:  deps.Gateway,
		mock:     deps.Mock,
		currency: currency,
		logger:   logger,
	}, nil
}

func (s *paymentService) CreatePreference(ctx context.Context, cmd CreatePreferenceCommand) (payments.Preference, error) {
	order, err := s.orders.GetOrder(ctx, cmd.OrderID, cmd.Actor)
	if err != nil {
		return payments.Preference{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return payments.Preference{}, fmt.Errorf("%w: current status is %s", ErrPaymentOrderNotPending, order.Status)
	}

	items := make([]payments.PreferenceItem, len(order.Items))
	for i, line := range order.Items {
		items[i] = payments.PreferenceItem{
			Name:       fmt.Sprintf("%s %s", line.Name, line.Volume),
			Quantity:   line.Quantity,
			UnitAmount: line.Price,
		}
	}

	pref, err := s.gateway.CreatePreference(ctx, payments.PreferenceRequest{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      order.Total,
		Currency:    s.currency,
		PayerEmail:  strings.TrimSpace(cmd.PayerEmail),
		Items:       items,
		Metadata: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
		},
	})
	if err != nil {
		return payments.Preference{}, fmt.Errorf("%w: %v", ErrPaymentProviderUnavailable, err)
	}

	if _, err := s.orders.AttachPaymentRef(ctx, order.ID, pref.ID, cmd.Actor); err != nil {
		return payments.Preference{}, err
	}
	return pref, nil
}

func (s *paymentService) SimulateOutcome(ctx context.Context, cmd MockPaymentCommand) (domain.Order, error) {
	if s.mock == nil || s.gateway.ActiveProvider() != "mock" {
		return domain.Order{}, ErrPaymentMockDisabled
	}

	status := parseOutcome(cmd.Outcome)

	order, err := s.orders.GetOrder(ctx, cmd.OrderID, cmd.Actor)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Order{}, fmt.Errorf("%w: current status is %s", ErrPaymentOrderNotPending, order.Status)
	}

	// Orders paid without a prior checkout get a synthetic reference so the
	// verify endpoint still resolves them.
	ref := order.PaymentRef
	if ref == "" {
		ref = "mock_" + order.ID
	}
	details := s.mock.ApplyOutcome(ref, status)

	updated, err := s.orders.RecordPaymentOutcome(ctx, PaymentOutcomeCommand{
		OrderID:    order.ID,
		PaymentRef: details.PaymentRef,
		Approved:   status == payments.StatusApproved,
		Rejected:   status == payments.StatusRejected,
		Actor:      cmd.Actor,
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

func (s *paymentService) VerifyPayment(ctx context.Context, paymentRef string, actor Actor) (payments.PaymentDetails, error) {
	ref := strings.TrimSpace(paymentRef)
	if ref == "" {
		return payments.PaymentDetails{}, fmt.Errorf("%w: payment ref is required", ErrPaymentInvalidInput)
	}

	details, err := s.gateway.LookupPayment(ctx, ref)
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			return payments.PaymentDetails{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, ref)
		}
		return payments.PaymentDetails{}, fmt.Errorf("%w: %v", ErrPaymentProviderUnavailable, err)
	}
	return details, nil
}

func (s *paymentService) HandleWebhook(ctx context.Context, notification WebhookNotification) error {
	// Gateways retry on non-2xx, so the callback is always acknowledged;
	// unknown references are only logged.
	s.logger(ctx, "payment.webhook.received", map[string]any{
		"provider":   notification.Provider,
		"paymentRef": notification.PaymentRef,
		"status":     notification.RawStatus,
	})
	return nil
}

// parseOutcome maps the simulated gateway token onto a payment status.
// Unrecognised tokens fall back to pending, matching the gateway contract.
func parseOutcome(raw string) payments.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "aprobado":
		return payments.StatusApproved
	case "rejected", "rechazado":
		return payments.StatusRejected
	}
	return payments.StatusPending
}
