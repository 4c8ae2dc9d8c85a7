package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/perfume-decants/api/internal/domain"
	"github.com/perfume-decants/api/internal/platform/auth"
	"github.com/perfume-decants/api/internal/platform/httpx"
	"github.com/perfume-decants/api/internal/platform/pagination"
	"github.com/perfume-decants/api/internal/services"
)

const maxAdminBodySize = 64 * 1024

// AdminHandlers exposes the back-office catalog and order endpoints. Every
// route requires the admin role.
type AdminHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	orders  services.OrderService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(authn *auth.Authenticator, catalog services.CatalogService, orders services.OrderService) *AdminHandlers {
	return &AdminHandlers{
		authn:   authn,
		catalog: catalog,
		orders:  orders,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}

	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Delete("/products/{productID}", h.deleteProduct)
	r.Patch("/products/{productID}/stock", h.adjustStock)

	r.Get("/orders", h.listOrders)
	r.Get("/orders/stats/sales", h.salesStats)
	r.Patch("/orders/{orderID}/status", h.setOrderStatus)
	r.Delete("/orders/{orderID}", h.deleteOrder)
}

type productInputBody struct {
	Name        string   `json:"nombre"`
	Brand       string   `json:"marca"`
	Description string   `json:"descripcion"`
	Volume      string   `json:"volumen"`
	Price       int64    `json:"precio"`
	Stock       int64    `json:"stock"`
	Images      []string `json:"imagenes"`
	Category    string   `json:"categoria"`
	Gender      string   `json:"genero"`
	Active      *bool    `json:"activo"`
}

type stockPatchBody struct {
	Operation string `json:"operacion"`
	Quantity  int64  `json:"cantidad"`
}

type setStatusBody struct {
	Status string `json:"estado"`
}

type adminOrderListResponse struct {
	Items         []orderPayload         `json:"items"`
	NextPageToken string                 `json:"nextCursor,omitempty"`
	Aggregates    orderAggregatesPayload `json:"resumen"`
}

type orderAggregatesPayload struct {
	TotalRevenue   int64            `json:"ingresosTotales"`
	CountsByStatus map[string]int64 `json:"porEstado"`
}

type salesStatsResponse struct {
	Period      string                `json:"periodo"`
	From        string                `json:"desde"`
	OrderCount  int64                 `json:"totalPedidos"`
	Revenue     int64                 `json:"ingresos"`
	AvgTicket   int64                 `json:"ticketPromedio"`
	TopProducts []productSalesPayload `json:"topProductos"`
}

type productSalesPayload struct {
	ProductID string `json:"productoId"`
	Name      string `json:"nombre"`
	Units     int64  `json:"unidades"`
	Revenue   int64  `json:"ingresos"`
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var body productInputBody
	if err := decodeJSONBody(r, maxAdminBodySize, &body); err != nil {
		writeAdminBodyError(w, r, err)
		return
	}

	product, err := h.catalog.CreateProduct(ctx, productInputFromBody(body), actorFromIdentity(identity))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	var body productInputBody
	if err := decodeJSONBody(r, maxAdminBodySize, &body); err != nil {
		writeAdminBodyError(w, r, err)
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, productID, productInputFromBody(body), actorFromIdentity(identity))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteProduct(ctx, productID, actorFromIdentity(identity)); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	var body stockPatchBody
	if err := decodeJSONBody(r, maxAdminBodySize, &body); err != nil {
		writeAdminBodyError(w, r, err)
		return
	}

	product, err := h.catalog.AdjustStock(ctx, productID, services.StockPatch{
		Operation: body.Operation,
		Quantity:  body.Quantity,
	}, actorFromIdentity(identity))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.AdminOrderListFilter{
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}

	values := r.URL.Query()
	if raw := strings.TrimSpace(values.Get("estado")); raw != "" {
		status := domain.OrderStatus(strings.ToLower(raw))
		filter.Status = &status
	}
	if raw := strings.TrimSpace(values.Get("desde")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "desde must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.Created.From = &from
	}
	if raw := strings.TrimSpace(values.Get("hasta")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "hasta must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.Created.To = &to
	}

	listing, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(listing.Page.Items))
	for _, order := range listing.Page.Items {
		items = append(items, buildOrderPayload(order))
	}
	counts := make(map[string]int64, len(listing.Aggregates.CountsByStatus))
	for status, count := range listing.Aggregates.CountsByStatus {
		counts[string(status)] = count
	}
	writeJSONResponse(w, http.StatusOK, adminOrderListResponse{
		Items:         items,
		NextPageToken: listing.Page.NextPageToken,
		Aggregates: orderAggregatesPayload{
			TotalRevenue:   listing.Aggregates.TotalRevenue,
			CountsByStatus: counts,
		},
	})
}

func (h *AdminHandlers) salesStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	period := domain.SalesPeriod(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("periodo"))))
	stats, err := h.orders.SalesStats(ctx, period)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	top := make([]productSalesPayload, 0, len(stats.TopProducts))
	for _, entry := range stats.TopProducts {
		top = append(top, productSalesPayload{
			ProductID: entry.ProductID,
			Name:      entry.Name,
			Units:     entry.Units,
			Revenue:   entry.Revenue,
		})
	}
	writeJSONResponse(w, http.StatusOK, salesStatsResponse{
		Period:      string(stats.Period),
		From:        formatTime(stats.From),
		OrderCount:  stats.OrderCount,
		Revenue:     stats.Revenue,
		AvgTicket:   stats.AvgTicket,
		TopProducts: top,
	})
}

func (h *AdminHandlers) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var body setStatusBody
	if err := decodeJSONBody(r, maxAdminBodySize, &body); err != nil {
		writeAdminBodyError(w, r, err)
		return
	}

	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	order, err := h.orders.SetStatus(ctx, orderID, target, actorFromIdentity(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	if err := h.orders.DeleteOrder(ctx, orderID, actorFromIdentity(identity)); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func productInputFromBody(body productInputBody) services.ProductInput {
	return services.ProductInput{
		Name:        body.Name,
		Brand:       body.Brand,
		Description: body.Description,
		Volume:      body.Volume,
		Price:       body.Price,
		Stock:       body.Stock,
		Images:      body.Images,
		Category:    body.Category,
		Gender:      body.Gender,
		Active:      body.Active,
	}
}

func writeAdminBodyError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}
