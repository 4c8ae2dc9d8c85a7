package repositories

import (
	"context"
	"time"

	"github.com/perfume-decants/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close() error

	Products() ProductRepository
	Orders() OrderRepository
	Users() UserRepository
	AuditLogs() AuditLogRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductSort enumerates the supported catalog orderings.
type ProductSort string

const (
	ProductSortNewest     ProductSort = "nuevos"
	ProductSortPriceAsc   ProductSort = "precio-asc"
	ProductSortPriceDesc  ProductSort = "precio-desc"
	ProductSortName       ProductSort = "nombre"
	ProductSortBestSeller ProductSort = "mas-vendidos"
)

// IsValid reports whether the sort value is supported.
func (s ProductSort) IsValid() bool {
	switch s {
	case ProductSortNewest, ProductSortPriceAsc, ProductSortPriceDesc, ProductSortName, ProductSortBestSeller:
		return true
	}
	return false
}

// ProductListFilter narrows and orders catalog listings.
type ProductListFilter struct {
	Category        *domain.ProductCategory
	Gender          *domain.ProductGender
	Price           domain.RangeQuery[int64]
	Keyword         string
	Sort            ProductSort
	IncludeInactive bool
	Pagination      domain.Pagination
}

// StockOperation selects how a stock patch is applied.
type StockOperation string

const (
	// StockOperationAdd adds the delta to the current stock.
	StockOperationAdd StockOperation = "agregar"
	// StockOperationSet replaces the current stock with the given value.
	StockOperationSet StockOperation = "establecer"
)

// StockAdjustRequest mutates a product's stock inside a transaction.
// The resulting stock must remain non-negative or the operation fails.
type StockAdjustRequest struct {
	ProductID string
	Operation StockOperation
	Quantity  int64
	UpdatedAt time.Time
}

// ProductRepository persists catalog documents.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	SoftDelete(ctx context.Context, productID string, deletedAt time.Time) error
	AdjustStock(ctx context.Context, req StockAdjustRequest) (domain.Product, error)
}

// OrderListFilter narrows admin order listings.
type OrderListFilter struct {
	Status     *domain.OrderStatus
	Created    domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// OrderStatusUpdate carries the fields mutated by a status transition.
type OrderStatusUpdate struct {
	Status     domain.OrderStatus
	PaymentRef *string
	PaidAt     *time.Time
	UpdatedAt  time.Time
}

// OrderCancelUpdate carries the fields written when an order is cancelled
// with stock restoration.
type OrderCancelUpdate struct {
	CanceledAt time.Time
	UpdatedAt  time.Time
	PaymentRef *string
}

// OrderRepository persists orders. CreateWithStockDecrement and
// CancelWithStockRestore span the orders and products collections in a
// single transaction.
type OrderRepository interface {
	// CreateWithStockDecrement validates and decrements stock for every line
	// and creates the order atomically. Product reads happen in the
	// caller-supplied line order; the first unavailable line aborts the whole
	// transaction, so no partial decrement survives.
	CreateWithStockDecrement(ctx context.Context, order domain.Order) (domain.Order, error)
	// CancelWithStockRestore sets the order to cancelado and returns each
	// line's quantity to its product's stock (and subtracts it from sales),
	// skipping products that no longer exist. Restoration is applied at most
	// once per order, guarded by the stockRestored flag.
	CancelWithStockRestore(ctx context.Context, orderID string, update OrderCancelUpdate) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, update OrderStatusUpdate) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// ListCreatedSince returns orders created at or after the given time,
	// newest first, bounded by limit. Used by the stats service.
	ListCreatedSince(ctx context.Context, from time.Time, limit int) ([]domain.Order, error)
	Delete(ctx context.Context, orderID string) error
}

// UserRepository persists accounts. Insert enforces email uniqueness through
// an index collection written in the same transaction.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	TouchLastAccess(ctx context.Context, userID string, at time.Time) error
}

// AuditLogFilter narrows audit trail listings.
type AuditLogFilter struct {
	Actor      string
	Action     string
	Pagination domain.Pagination
}

// AuditLogRepository records privileged operations append-only.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Check(ctx context.Context) (domain.HealthStatus, error)
}
