package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/perfume-decants/api/internal/payments"
	"github.com/perfume-decants/api/internal/platform/auth"
	"github.com/perfume-decants/api/internal/platform/httpx"
	"github.com/perfume-decants/api/internal/services"
)

const maxPaymentBodySize = 32 * 1024

// PaymentHandlers exposes the checkout and gateway callback endpoints.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, svc services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{
		authn:    authn,
		payments: svc,
	}
}

// Routes registers the /payments endpoints. The webhook stays public; the
// rest require a bearer token.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/webhook", h.webhook)

	bearer := chi.Router(r)
	if h.authn != nil {
		bearer = r.With(h.authn.RequireAuth())
	}
	bearer.Post("/create-preference", h.createPreference)
	bearer.Post("/mock-payment", h.mockPayment)
	bearer.Get("/verify/{paymentRef}", h.verifyPayment)
}

type createPreferenceRequest struct {
	OrderID    string `json:"pedidoId"`
	PayerEmail string `json:"emailPagador"`
}

type mockPaymentRequest struct {
	OrderID string `json:"pedidoId"`
	Outcome string `json:"resultado"`
}

type preferenceResponse struct {
	PreferenceID string `json:"preferenciaId"`
	Provider     string `json:"proveedor"`
	RedirectURL  string `json:"urlRedireccion"`
	ExpiresAt    string `json:"expiraAt,omitempty"`
}

type paymentDetailsResponse struct {
	Provider   string `json:"proveedor"`
	PaymentRef string `json:"referenciaPago"`
	Status     string `json:"estado"`
	Amount     int64  `json:"monto,omitempty"`
	Currency   string `json:"moneda,omitempty"`
}

func (h *PaymentHandlers) createPreference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createPreferenceRequest
	if err := decodeJSONBody(r, maxPaymentBodySize, &req); err != nil {
		writeAdminBodyError(w, r, err)
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pedidoId is required", http.StatusBadRequest))
		return
	}

	pref, err := h.payments.CreatePreference(ctx, services.CreatePreferenceCommand{
		OrderID:    strings.TrimSpace(req.OrderID),
		PayerEmail: req.PayerEmail,
		Actor:      actorFromIdentity(identity),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	payload := preferenceResponse{
		PreferenceID: pref.ID,
		Provider:     pref.Provider,
		RedirectURL:  pref.RedirectURL,
	}
	if !pref.ExpiresAt.IsZero() {
		payload.ExpiresAt = formatTime(pref.ExpiresAt)
	}
	writeJSONResponse(w, http.StatusCreated, payload)
}

func (h *PaymentHandlers) mockPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req mockPaymentRequest
	if err := decodeJSONBody(r, maxPaymentBodySize, &req); err != nil {
		writeAdminBodyError(w, r, err)
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pedidoId is required", http.StatusBadRequest))
		return
	}

	order, err := h.payments.SimulateOutcome(ctx, services.MockPaymentCommand{
		OrderID: strings.TrimSpace(req.OrderID),
		Outcome: req.Outcome,
		Actor:   actorFromIdentity(identity),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	paymentRef := strings.TrimSpace(chi.URLParam(r, "paymentRef"))
	if paymentRef == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment ref is required", http.StatusBadRequest))
		return
	}

	identity, _ := auth.IdentityFromContext(ctx)
	details, err := h.payments.VerifyPayment(ctx, paymentRef, actorFromIdentity(identity))
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentDetailsResponse{
		Provider:   details.Provider,
		PaymentRef: details.PaymentRef,
		Status:     string(details.Status),
		Amount:     details.Amount,
		Currency:   details.Currency,
	})
}

func (h *PaymentHandlers) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var payload map[string]any
	// Malformed callbacks are acknowledged too; gateways retry on non-2xx.
	if err := decodeJSONBody(r, maxPaymentBodySize, &payload); err != nil {
		payload = nil
	}

	notification := services.WebhookNotification{Payload: payload}
	if payload != nil {
		notification.Provider = stringField(payload, "provider")
		notification.PaymentRef = stringField(payload, "paymentRef", "payment_ref", "referenciaPago")
		notification.RawStatus = stringField(payload, "status", "estado")
	}

	if err := h.payments.HandleWebhook(ctx, notification); err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}

func stringField(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := payload[key].(string); ok {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return ""
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentOrderNotPending):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_pending", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentMockDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("mock_disabled", "mock payments are not enabled", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentNotFound), errors.Is(err, payments.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentProviderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_unavailable", "payment provider unavailable", http.StatusBadGateway))
	default:
		writeOrderError(ctx, w, err)
	}
}
