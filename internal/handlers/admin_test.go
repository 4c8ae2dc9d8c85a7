package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/perfume-decants/api/internal/domain"
	"github.com/perfume-decants/api/internal/platform/auth"
	"github.com/perfume-decants/api/internal/services"
)

func adminIdentity() *auth.Identity {
	return &auth.Identity{UserID: "adm_1", Email: "admin@example.com", Role: auth.RoleAdmin}
}

func newAdminRouter(catalog services.CatalogService, orders services.OrderService) *chi.Mux {
	handler := NewAdminHandlers(nil, catalog, orders)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)
	return router
}

func TestAdminHandlersCreateProduct(t *testing.T) {
	var captured services.ProductInput
	var capturedActor services.Actor
	catalog := &stubCatalogService{
		createFn: func(_ context.Context, input services.ProductInput, actor services.Actor) (domain.Product, error) {
			captured = input
			capturedActor = actor
			return sampleProduct(), nil
		},
	}
	router := newAdminRouter(catalog, &stubOrderService{})

	body := `{
		"nombre":"Aventus",
		"marca":"Creed",
		"volumen":"5ml",
		"precio":15990,
		"stock":10,
		"categoria":"verano",
		"genero":"masculino",
		"imagenes":["https://cdn.example/1.jpg"]
	}`
	req := httptest.NewRequest(http.MethodPost, "/admin/products", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), adminIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Name != "Aventus" || captured.Price != 15990 || captured.Volume != "5ml" {
		t.Fatalf("unexpected input %+v", captured)
	}
	if capturedActor.UserID != "adm_1" || capturedActor.Role != domain.UserRoleAdmin {
		t.Fatalf("unexpected actor %+v", capturedActor)
	}
}

func TestAdminHandlersCreateProductInvalidInput(t *testing.T) {
	catalog := &stubCatalogService{
		createFn: func(context.Context, services.ProductInput, services.Actor) (domain.Product, error) {
			return domain.Product{}, services.ErrProductInvalidInput
		},
	}
	router := newAdminRouter(catalog, &stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/admin/products", strings.NewReader(`{"nombre":""}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), adminIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminHandlersDeleteProductNoContent(t *testing.T) {
	deleted := false
	catalog := &stubCatalogService{
		deleteFn: func(_ context.Context, productID string, _ services.Actor) error {
			deleted = true
			if productID != "prd_1" {
				t.Fatalf("expected prd_1, got %s", productID)
			}
			return nil
		},
	}
	router := newAdminRouter(catalog, &stubOrderService{})

	req := httptest.NewRequest(http.MethodDelete, "/admin/products/prd_1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), adminIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !deleted {
		t.Fatal("expected DeleteProduct to be called")
	}
}

func TestAdminHandlersAdjustStock(t *testing.T) {
	var captured services.StockPatch
	catalog := &stubCatalogService{
		adjustFn: func(_ context.Context, _ string, patch services.StockPatch, _ services.Actor) (domain.Product, error) {
			captured = patch
			product := sampleProduct()
			product.Stock = 25
			return product, nil
		},
	}
	router := newAdminRouter(catalog, &stubOrderService{})

	req := httptest.NewRequest(http.MethodPatch, "/admin/products/prd_1/stock", strings.NewReader(`{"operacion":"agregar","cantidad":15}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), adminIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Operation != "agregar" || captured.Quantity != 15 {
		t.Fatalf("unexpected patch %+v", captured)
	}
	var resp struct {
		Product struct {
			Stock int64 `json:"stock"`
		} `json:"producto"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Product.Stock != 25 {
		t.Fatalf("expected stock 25, got %d", resp.Product.Stock)
	}
}

func TestAdminHandlersListOrdersParsesFilter(t *testing.T) {
	var captured services.AdminOrderListFilter
	orders := &stubOrderService{
		adminFn: func(_ context.Context, filter services.AdminOrderListFilter) (services.OrderListing, error) {
			captured = filter
			return services.OrderListing{
				Page: domain.CursorPage[domain.Order]{
					Items:         []domain.Order{sampleOrder()},
					NextPageToken: "tok-2",
				},
				Aggregates: domain.OrderAggregates{
					TotalRevenue: 31980,
					CountsByStatus: map[domain.OrderStatus]int64{
						domain.OrderStatusPending: 1,
					},
				},
			}, nil
		},
	}
	router := newAdminRouter(&stubCatalogService{}, orders)

	req := httptest.NewRequest(http.MethodGet, "/admin/orders?estado=pendiente&desde=2026-05-01T00:00:00Z&hasta=2026-06-01T00:00:00Z&limite=10", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), adminIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Status == nil || *captured.Status != domain.OrderStatusPending {
		t.Fatalf("expected estado pendiente, got %#v", captured.Status)
	}
	if captured.Created.From == nil || !captured.Created.From.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected desde forwarded, got %#v", captured.Created.From)
	}
	if captured.Created.To == nil || !captured.Created.To.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected hasta forwarded, got %#v", captured.Created.To)
	}

	var resp struct {
		Items   []json.RawMessage `json:"items"`
		Resumen struct {
			TotalRevenue int64            `json:"ingresosTotales"`
			ByStatus     map[string]int64 `json:"porEstado"`
		} `json:"resumen"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Resumen.TotalRevenue != 31980 || resp.Resumen.ByStatus["pendiente"] != 1 {
		t.Fatalf("unexpected aggregates %+v", resp.Resumen)
	}
}

func TestAdminHandlersListOrdersRejectsBadTimestamp(t *testing.T) {
	router := newAdminRouter(&stubCatalogService{}, &stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/admin/orders?desde=ayer", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), adminIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminHandlersSalesStats(t *testing.T) {
	orders := &stubOrderService{
		statsFn: func(_ context.Context, period domain.SalesPeriod) (domain.SalesStats, error) {
			if period != domain.PeriodWeek {
				t.Fatalf("expected semana, got %s", period)
			}
			return domain.SalesStats{
				Period:     domain.PeriodWeek,
				From:       time.Date(2026, 8, 8, 12, 0, 0, 0, time.UTC),
				OrderCount: 3,
				Revenue:    45000,
				AvgTicket:  15000,
				TopProducts: []domain.ProductSales{
					{ProductID: "prd_1", Name: "Aventus", Units: 4, Revenue: 30000},
				},
			}, nil
		},
	}
	router := newAdminRouter(&stubCatalogService{}, orders)

	req := httptest.NewRequest(http.MethodGet, "/admin/orders/stats/sales?periodo=semana", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), adminIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Period      string `json:"periodo"`
		OrderCount  int64  `json:"totalPedidos"`
		Revenue     int64  `json:"ingresos"`
		AvgTicket   int64  `json:"ticketPromedio"`
		TopProducts []struct {
			ProductID string `json:"productoId"`
			Units     int64  `json:"unidades"`
		} `json:"topProductos"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Period != "semana" || resp.OrderCount != 3 || resp.AvgTicket != 15000 {
		t.Fatalf("unexpected payload %+v", resp)
	}
	if len(resp.TopProducts) != 1 || resp.TopProducts[0].Units != 4 {
		t.Fatalf("unexpected top products %+v", resp.TopProducts)
	}
}

func TestAdminHandlersSetOrderStatus(t *testing.T) {
	var capturedTarget domain.OrderStatus
	orders := &stubOrderService{
		statusFn: func(_ context.Context, _ string, target domain.OrderStatus, _ services.Actor) (domain.Order, error) {
			capturedTarget = target
			order := sampleOrder()
			order.Status = target
			return order, nil
		},
	}
	router := newAdminRouter(&stubCatalogService{}, orders)

	req := httptest.NewRequest(http.MethodPatch, "/admin/orders/ord_1/status", strings.NewReader(`{"estado":"Enviado"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), adminIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if capturedTarget != domain.OrderStatusShipped {
		t.Fatalf("expected enviado, got %s", capturedTarget)
	}
}

func TestAdminHandlersSetOrderStatusInvalid(t *testing.T) {
	orders := &stubOrderService{
		statusFn: func(context.Context, string, domain.OrderStatus, services.Actor) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderInvalidStatus
		},
	}
	router := newAdminRouter(&stubCatalogService{}, orders)

	req := httptest.NewRequest(http.MethodPatch, "/admin/orders/ord_1/status", strings.NewReader(`{"estado":"despachado"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), adminIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "invalid_status" {
		t.Fatalf("expected invalid_status, got %v", resp["error"])
	}
}

func TestAdminHandlersDeleteOrderNoContent(t *testing.T) {
	deleted := false
	orders := &stubOrderService{
		deleteFn: func(_ context.Context, orderID string, actor services.Actor) error {
			deleted = true
			if orderID != "ord_1" || actor.Role != domain.UserRoleAdmin {
				t.Fatalf("unexpected call %s %+v", orderID, actor)
			}
			return nil
		},
	}
	router := newAdminRouter(&stubCatalogService{}, orders)

	req := httptest.NewRequest(http.MethodDelete, "/admin/orders/ord_1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), adminIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !deleted {
		t.Fatal("expected DeleteOrder to be called")
	}
}
