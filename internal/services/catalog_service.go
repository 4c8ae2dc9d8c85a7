package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/perfume-decants/api/internal/domain"
	"github.com/perfume-decants/api/internal/platform/textutil"
	"github.com/perfume-decants/api/internal/repositories"
)

const productIDPrefix = "prd_"

var (
	// ErrProductInvalidInput signals the caller provided invalid catalog data.
	ErrProductInvalidInput = errors.New("catalog: invalid input")
	// ErrProductNotFound indicates the product could not be located.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrProductConflict indicates a concurrent modification conflict.
	ErrProductConflict = errors.New("catalog: conflict")
	// ErrStockNegative indicates a stock adjustment would drop below zero.
	ErrStockNegative = errors.New("catalog: stock cannot go negative")
)

// CatalogQuery narrows and orders a public product listing.
type CatalogQuery struct {
	Category        string
	Gender          string
	PriceMin        *int64
	PriceMax        *int64
	Keyword         string
	Sort            string
	IncludeInactive bool
	Pagination      domain.Pagination
}

// ProductInput carries the writable fields of a product.
type ProductInput struct {
	Name        string
	Brand       string
	Description string
	Volume      string
	Price       int64
	Stock       int64
	Images      []string
	Category    string
	Gender      string
	Active      *bool
}

// StockPatch mutates a product's stock level.
type StockPatch struct {
	Operation string
	Quantity  int64
}

// CatalogService exposes catalog browsing and administration operations.
type CatalogService interface {
	ListProducts(ctx context.Context, query CatalogQuery) (domain.CursorPage[domain.Product], error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	CreateProduct(ctx context.Context, input ProductInput, actor Actor) (domain.Product, error)
	UpdateProduct(ctx context.Context, productID string, input ProductInput, actor Actor) (domain.Product, error)
	DeleteProduct(ctx context.Context, productID string, actor Actor) error
	AdjustStock(ctx context.Context, productID string, patch StockPatch, actor Actor) (domain.Product, error)
}

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	AuditLogs   repositories.AuditLogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	audit    repositories.AuditLogRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products: deps.Products,
		audit:    deps.AuditLogs,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, query CatalogQuery) (domain.CursorPage[domain.Product], error) {
	filter := repositories.ProductListFilter{
		IncludeInactive: query.IncludeInactive,
		Pagination:      query.Pagination,
	}

	if raw := strings.TrimSpace(query.Category); raw != "" {
		category := domain.ProductCategory(strings.ToLower(raw))
		if !category.IsValid() {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("%w: unknown category %q", ErrProductInvalidInput, raw)
		}
		filter.Category = &category
	}
	if raw := strings.TrimSpace(query.Gender); raw != "" {
		gender := domain.ProductGender(strings.ToLower(raw))
		if !gender.IsValid() {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("%w: unknown gender %q", ErrProductInvalidInput, raw)
		}
		filter.Gender = &gender
	}
	if query.PriceMin != nil {
		if *query.PriceMin < 0 {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("%w: minimum price cannot be negative", ErrProductInvalidInput)
		}
		filter.Price.From = query.PriceMin
	}
	if query.PriceMax != nil {
		if *query.PriceMax < 0 {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("%w: maximum price cannot be negative", ErrProductInvalidInput)
		}
		if query.PriceMin != nil && *query.PriceMax < *query.PriceMin {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("%w: maximum price is below minimum price", ErrProductInvalidInput)
		}
		filter.Price.To = query.PriceMax
	}
	if keyword := strings.TrimSpace(query.Keyword); keyword != "" {
		filter.Keyword = textutil.Fold(keyword)
	}
	if raw := strings.TrimSpace(query.Sort); raw != "" {
		sortOrder := repositories.ProductSort(strings.ToLower(raw))
		if !sortOrder.IsValid() {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("%w: unknown sort %q", ErrProductInvalidInput, raw)
		}
		filter.Sort = sortOrder
	} else {
		filter.Sort = repositories.ProductSortNewest
	}

	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, input ProductInput, actor Actor) (domain.Product, error) {
	normalized, err := normalizeProductInput(input)
	if err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	product := domain.Product{
		ID:          productIDPrefix + s.newID(),
		Name:        normalized.Name,
		Brand:       normalized.Brand,
		Description: normalized.Description,
		Volume:      domain.ProductVolume(normalized.Volume),
		Price:       normalized.Price,
		Stock:       normalized.Stock,
		Images:      normalized.Images,
		Category:    domain.ProductCategory(normalized.Category),
		Gender:      domain.ProductGender(normalized.Gender),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if normalized.Active != nil {
		product.Active = *normalized.Active
	}
	product.SearchTerms = buildSearchTerms(product)

	if err := s.products.Insert(ctx, product); err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, productID string, input ProductInput, actor Actor) (domain.Product, error) {
	normalized, err := normalizeProductInput(input)
	if err != nil {
		return domain.Product{}, err
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}

	product.Name = normalized.Name
	product.Brand = normalized.Brand
	product.Description = normalized.Description
	product.Volume = domain.ProductVolume(normalized.Volume)
	product.Price = normalized.Price
	product.Stock = normalized.Stock
	product.Images = normalized.Images
	product.Category = domain.ProductCategory(normalized.Category)
	product.Gender = domain.ProductGender(normalized.Gender)
	if normalized.Active != nil {
		product.Active = *normalized.Active
	}
	product.SearchTerms = buildSearchTerms(product)
	product.UpdatedAt = s.now()

	if err := s.products.Update(ctx, product); err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string, actor Actor) error {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return s.mapRepositoryError(err)
	}

	// Deletion is always soft; the document keeps serving order history
	// snapshots and the audit trail.
	now := s.now()
	if err := s.products.SoftDelete(ctx, productID, now); err != nil {
		return s.mapRepositoryError(err)
	}

	s.recordAudit(ctx, actor, "product.deleted", "products/"+productID, map[string]any{
		"name":  product.Name,
		"brand": product.Brand,
	}, now)
	return nil
}

func (s *catalogService) AdjustStock(ctx context.Context, productID string, patch StockPatch, actor Actor) (domain.Product, error) {
	operation := repositories.StockOperation(strings.ToLower(strings.TrimSpace(patch.Operation)))
	switch operation {
	case repositories.StockOperationAdd, repositories.StockOperationSet:
	default:
		return domain.Product{}, fmt.Errorf("%w: unknown stock operation %q", ErrProductInvalidInput, patch.Operation)
	}
	if operation == repositories.StockOperationSet && patch.Quantity < 0 {
		return domain.Product{}, fmt.Errorf("%w: stock cannot be set below zero", ErrProductInvalidInput)
	}

	product, err := s.products.AdjustStock(ctx, repositories.StockAdjustRequest{
		ProductID: productID,
		Operation: operation,
		Quantity:  patch.Quantity,
		UpdatedAt: s.now(),
	})
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			switch stockErr.Code {
			case repositories.StockErrorProductNotFound:
				return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
			case repositories.StockErrorInsufficientStock:
				return domain.Product{}, fmt.Errorf("%w: available %d, requested delta %d", ErrStockNegative, stockErr.Available, stockErr.Requested)
			}
		}
		return domain.Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func normalizeProductInput(input ProductInput) (ProductInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Brand = strings.TrimSpace(input.Brand)
	input.Description = strings.TrimSpace(input.Description)
	input.Volume = strings.ToLower(strings.TrimSpace(input.Volume))
	input.Category = strings.ToLower(strings.TrimSpace(input.Category))
	input.Gender = strings.ToLower(strings.TrimSpace(input.Gender))

	if input.Name == "" {
		return ProductInput{}, fmt.Errorf("%w: name is required", ErrProductInvalidInput)
	}
	if input.Brand == "" {
		return ProductInput{}, fmt.Errorf("%w: brand is required", ErrProductInvalidInput)
	}
	if !domain.ProductVolume(input.Volume).IsValid() {
		return ProductInput{}, fmt.Errorf("%w: unknown volume %q", ErrProductInvalidInput, input.Volume)
	}
	if input.Price <= 0 {
		return ProductInput{}, fmt.Errorf("%w: price must be positive", ErrProductInvalidInput)
	}
	if input.Stock < 0 {
		return ProductInput{}, fmt.Errorf("%w: stock cannot be negative", ErrProductInvalidInput)
	}
	if !domain.ProductCategory(input.Category).IsValid() {
		return ProductInput{}, fmt.Errorf("%w: unknown category %q", ErrProductInvalidInput, input.Category)
	}
	if !domain.ProductGender(input.Gender).IsValid() {
		return ProductInput{}, fmt.Errorf("%w: unknown gender %q", ErrProductInvalidInput, input.Gender)
	}

	images := make([]string, 0, len(input.Images))
	for _, image := range input.Images {
		if image = strings.TrimSpace(image); image != "" {
			images = append(images, image)
		}
	}
	input.Images = images

	return input, nil
}

// buildSearchTerms derives the accent-folded keyword index queried by the
// array-contains catalog search.
func buildSearchTerms(product domain.Product) []string {
	source := strings.Join([]string{
		product.Name,
		product.Brand,
		product.Description,
		string(product.Category),
		string(product.Gender),
	}, " ")
	return textutil.Keywords(source)
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrProductConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *catalogService) now() time.Time {
	return s.clock()
}

func (s *catalogService) recordAudit(ctx context.Context, actor Actor, action, targetRef string, metadata map[string]any, at time.Time) {
	if s.audit == nil {
		return
	}
	entry := domain.AuditLogEntry{
		ID:        auditLogIDPrefix + s.newID(),
		Actor:     actor.UserID,
		Action:    action,
		TargetRef: targetRef,
		Metadata:  metadata,
		CreatedAt: at,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger(ctx, "catalog.audit.append.failed", map[string]any{
			"action": action,
			"target": targetRef,
			"error":  err.Error(),
		})
	}
}
