package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/perfume-decants/api/internal/domain"
	"github.com/perfume-decants/api/internal/platform/httpx"
	"github.com/perfume-decants/api/internal/platform/pagination"
	"github.com/perfume-decants/api/internal/services"
)

// ProductHandlers exposes the public catalog endpoints.
type ProductHandlers struct {
	catalog services.CatalogService
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"nextCursor,omitempty"`
}

type productResponse struct {
	Product productPayload `json:"producto"`
}

type productPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"nombre"`
	Brand       string   `json:"marca"`
	Description string   `json:"descripcion,omitempty"`
	Volume      string   `json:"volumen"`
	Price       int64    `json:"precio"`
	Stock       int64    `json:"stock"`
	Sales       int64    `json:"ventas"`
	Images      []string `json:"imagenes,omitempty"`
	Category    string   `json:"categoria"`
	Gender      string   `json:"genero"`
	Active      bool     `json:"activo"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query, err := parseCatalogQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListProducts(ctx, query)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func parseCatalogQuery(r *http.Request) (services.CatalogQuery, error) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		return services.CatalogQuery{}, err
	}

	values := r.URL.Query()
	query := services.CatalogQuery{
		Category: values.Get("categoria"),
		Gender:   values.Get("genero"),
		Keyword:  values.Get("buscar"),
		Sort:     values.Get("orden"),
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}

	if raw := strings.TrimSpace(values.Get("precioMin")); raw != "" {
		min, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return services.CatalogQuery{}, errors.New("precioMin must be an integer")
		}
		query.PriceMin = &min
	}
	if raw := strings.TrimSpace(values.Get("precioMax")); raw != "" {
		max, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return services.CatalogQuery{}, errors.New("precioMax must be an integer")
		}
		query.PriceMax = &max
	}

	return query, nil
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		Name:        product.Name,
		Brand:       product.Brand,
		Description: product.Description,
		Volume:      string(product.Volume),
		Price:       product.Price,
		Stock:       product.Stock,
		Sales:       product.Sales,
		Images:      product.Images,
		Category:    string(product.Category),
		Gender:      string(product.Gender),
		Active:      product.Active,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrProductInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStockNegative):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductConflict):
		httpx.WriteError(ctx, w, httpx.NewError("product_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
