package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/perfume-decants/api/internal/domain"
	"github.com/perfume-decants/api/internal/payments"
	"github.com/perfume-decants/api/internal/platform/auth"
	"github.com/perfume-decants/api/internal/services"
)

type stubPaymentService struct {
	preferenceFn func(context.Context, services.CreatePreferenceCommand) (payments.Preference, error)
	simulateFn   func(context.Context, services.MockPaymentCommand) (domain.Order, error)
	verifyFn     func(context.Context, string, services.Actor) (payments.PaymentDetails, error)
	webhookFn    func(context.Context, services.WebhookNotification) error
}

func (s *stubPaymentService) CreatePreference(ctx context.Context, cmd services.CreatePreferenceCommand) (payments.Preference, error) {
	if s.preferenceFn != nil {
		return s.preferenceFn(ctx, cmd)
	}
	return payments.Preference{}, errors.New("not implemented")
}

func (s *stubPaymentService) SimulateOutcome(ctx context.Context, cmd services.MockPaymentCommand) (domain.Order, error) {
	if s.simulateFn != nil {
		return s.simulateFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubPaymentService) VerifyPayment(ctx context.Context, paymentRef string, actor services.Actor) (payments.PaymentDetails, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, paymentRef, actor)
	}
	return payments.PaymentDetails{}, errors.New("not implemented")
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, notification services.WebhookNotification) error {
	if s.webhookFn != nil {
		return s.webhookFn(ctx, notification)
	}
	return errors.New("not implemented")
}

func newPaymentRouter(service services.PaymentService) *chi.Mux {
	handler := NewPaymentHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)
	return router
}

func TestPaymentHandlersCreatePreference(t *testing.T) {
	var captured services.CreatePreferenceCommand
	service := &stubPaymentService{
		preferenceFn: func(_ context.Context, cmd services.CreatePreferenceCommand) (payments.Preference, error) {
			captured = cmd
			return payments.Preference{
				ID:          "mock_abc123",
				Provider:    "mock",
				RedirectURL: "/pago-simulado?preferencia=mock_abc123",
				ExpiresAt:   time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC),
			}, nil
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/payments/create-preference", strings.NewReader(`{"pedidoId":"ord_1","emailPagador":"maria@example.com"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.PayerEmail != "maria@example.com" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.Actor.UserID != "usr_1" {
		t.Fatalf("unexpected actor %+v", captured.Actor)
	}

	var resp struct {
		PreferenceID string `json:"preferenciaId"`
		Provider     string `json:"proveedor"`
		RedirectURL  string `json:"urlRedireccion"`
		ExpiresAt    string `json:"expiraAt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PreferenceID != "mock_abc123" || resp.Provider != "mock" || resp.ExpiresAt == "" {
		t.Fatalf("unexpected payload %+v", resp)
	}
}

func TestPaymentHandlersCreatePreferenceRequiresOrderID(t *testing.T) {
	router := newPaymentRouter(&stubPaymentService{})

	req := httptest.NewRequest(http.MethodPost, "/payments/create-preference", strings.NewReader(`{"emailPagador":"maria@example.com"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPaymentHandlersCreatePreferenceNotPending(t *testing.T) {
	service := &stubPaymentService{
		preferenceFn: func(context.Context, services.CreatePreferenceCommand) (payments.Preference, error) {
			return payments.Preference{}, services.ErrPaymentOrderNotPending
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/payments/create-preference", strings.NewReader(`{"pedidoId":"ord_1"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "order_not_pending" {
		t.Fatalf("expected order_not_pending, got %v", resp["error"])
	}
}

func TestPaymentHandlersMockPayment(t *testing.T) {
	var captured services.MockPaymentCommand
	service := &stubPaymentService{
		simulateFn: func(_ context.Context, cmd services.MockPaymentCommand) (domain.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusPaid
			return order, nil
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/payments/mock-payment", strings.NewReader(`{"pedidoId":"ord_1","resultado":"aprobado"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Outcome != "aprobado" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var resp struct {
		Order struct {
			Status string `json:"estado"`
		} `json:"pedido"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Order.Status != "pagado" {
		t.Fatalf("expected pagado, got %s", resp.Order.Status)
	}
}

func TestPaymentHandlersMockPaymentDisabled(t *testing.T) {
	service := &stubPaymentService{
		simulateFn: func(context.Context, services.MockPaymentCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrPaymentMockDisabled
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/payments/mock-payment", strings.NewReader(`{"pedidoId":"ord_1","resultado":"aprobado"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "mock_disabled" {
		t.Fatalf("expected mock_disabled, got %v", resp["error"])
	}
}

func TestPaymentHandlersVerifyPayment(t *testing.T) {
	service := &stubPaymentService{
		verifyFn: func(_ context.Context, paymentRef string, _ services.Actor) (payments.PaymentDetails, error) {
			if paymentRef != "mock_abc123" {
				t.Fatalf("unexpected ref %q", paymentRef)
			}
			return payments.PaymentDetails{
				Provider:   "mock",
				PaymentRef: paymentRef,
				Status:     payments.StatusApproved,
				Amount:     31980,
				Currency:   "CLP",
			}, nil
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/payments/verify/mock_abc123", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Provider   string `json:"proveedor"`
		PaymentRef string `json:"referenciaPago"`
		Status     string `json:"estado"`
		Amount     int64  `json:"monto"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "approved" || resp.Amount != 31980 || resp.PaymentRef != "mock_abc123" {
		t.Fatalf("unexpected payload %+v", resp)
	}
}

func TestPaymentHandlersVerifyPaymentNotFound(t *testing.T) {
	service := &stubPaymentService{
		verifyFn: func(context.Context, string, services.Actor) (payments.PaymentDetails, error) {
			return payments.PaymentDetails{}, services.ErrPaymentNotFound
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/payments/verify/mock_desconocido", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPaymentHandlersWebhookExtractsFields(t *testing.T) {
	var captured services.WebhookNotification
	service := &stubPaymentService{
		webhookFn: func(_ context.Context, notification services.WebhookNotification) error {
			captured = notification
			return nil
		},
	}
	router := newPaymentRouter(service)

	body := `{"provider":"mercadopago","referenciaPago":"pay_123","estado":"approved","extra":42}`
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Provider != "mercadopago" || captured.PaymentRef != "pay_123" || captured.RawStatus != "approved" {
		t.Fatalf("unexpected notification %+v", captured)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["received"] != true {
		t.Fatalf("expected acknowledgement, got %v", resp)
	}
}

func TestPaymentHandlersWebhookAcksMalformedBody(t *testing.T) {
	var captured services.WebhookNotification
	service := &stubPaymentService{
		webhookFn: func(_ context.Context, notification services.WebhookNotification) error {
			captured = notification
			return nil
		},
	}
	router := newPaymentRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader("{no es json"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured.Payload != nil || captured.Provider != "" {
		t.Fatalf("expected an empty notification, got %+v", captured)
	}
}
