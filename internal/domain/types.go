package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps a page of results together with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// ProductVolume enumerates the decant sizes sold by the storefront.
type ProductVolume string

const (
	Volume2ml  ProductVolume = "2ml"
	Volume5ml  ProductVolume = "5ml"
	Volume10ml ProductVolume = "10ml"
	Volume15ml ProductVolume = "15ml"
	Volume20ml ProductVolume = "20ml"
)

// ValidProductVolumes lists the accepted decant sizes in catalog order.
var ValidProductVolumes = []ProductVolume{Volume2ml, Volume5ml, Volume10ml, Volume15ml, Volume20ml}

// IsValid reports whether the volume is one of the supported decant sizes.
func (v ProductVolume) IsValid() bool {
	for _, valid := range ValidProductVolumes {
		if v == valid {
			return true
		}
	}
	return false
}

// ProductCategory enumerates seasonal catalog categories.
type ProductCategory string

const (
	CategorySpring ProductCategory = "primavera"
	CategorySummer ProductCategory = "verano"
	CategoryAutumn ProductCategory = "otoño"
	CategoryWinter ProductCategory = "invierno"
)

// ValidProductCategories lists the accepted categories.
var ValidProductCategories = []ProductCategory{CategorySpring, CategorySummer, CategoryAutumn, CategoryWinter}

// IsValid reports whether the category is supported.
func (c ProductCategory) IsValid() bool {
	for _, valid := range ValidProductCategories {
		if c == valid {
			return true
		}
	}
	return false
}

// ProductGender enumerates the target audience labels.
type ProductGender string

const (
	GenderMasculine ProductGender = "masculino"
	GenderFeminine  ProductGender = "femenino"
	GenderUnisex    ProductGender = "unisex"
)

// ValidProductGenders lists the accepted gender labels.
var ValidProductGenders = []ProductGender{GenderMasculine, GenderFeminine, GenderUnisex}

// IsValid reports whether the gender label is supported.
func (g ProductGender) IsValid() bool {
	for _, valid := range ValidProductGenders {
		if g == valid {
			return true
		}
	}
	return false
}

// Product is a perfume decant offered by the catalog. Monetary amounts are
// whole Chilean pesos.
type Product struct {
	ID          string
	Name        string
	Brand       string
	Description string
	Volume      ProductVolume
	Price       int64
	Stock       int64
	Sales       int64
	Images      []string
	Category    ProductCategory
	Gender      ProductGender
	Active      bool
	SearchTerms []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Purchasable reports whether the product can satisfy a line of the given quantity.
func (p Product) Purchasable(quantity int64) bool {
	return p.Active && quantity > 0 && p.Stock >= quantity
}

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pendiente"
	OrderStatusPaid       OrderStatus = "pagado"
	OrderStatusProcessing OrderStatus = "procesando"
	OrderStatusShipped    OrderStatus = "enviado"
	OrderStatusDelivered  OrderStatus = "entregado"
	OrderStatusCanceled   OrderStatus = "cancelado"
)

// ValidOrderStatuses lists the lifecycle states in progression order.
var ValidOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCanceled,
}

// IsValid reports whether the status is one of the lifecycle states.
func (s OrderStatus) IsValid() bool {
	for _, valid := range ValidOrderStatuses {
		if s == valid {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further customer-side transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCanceled
}

// PaidFamily reports whether the status counts toward sales statistics.
func (s OrderStatus) PaidFamily() bool {
	switch s {
	case OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

// PaymentMethod enumerates the checkout methods offered to customers.
type PaymentMethod string

const (
	PaymentMercadoPago PaymentMethod = "mercadopago"
	PaymentFlow        PaymentMethod = "flow"
)

// IsValid reports whether the payment method is supported.
func (m PaymentMethod) IsValid() bool {
	return m == PaymentMercadoPago || m == PaymentFlow
}

// Address is the shipping destination attached to an order or user profile.
type Address struct {
	Street     string
	City       string
	Region     string
	PostalCode string
}

// Complete reports whether all four address fields are present.
func (a Address) Complete() bool {
	return a.Street != "" && a.City != "" && a.Region != "" && a.PostalCode != ""
}

// OrderLineItem is a priced snapshot of a product at purchase time.
// Snapshots are never re-derived from live products.
type OrderLineItem struct {
	ProductID string
	Name      string
	Volume    ProductVolume
	Price     int64
	Quantity  int64
	Subtotal  int64
}

// Order is a customer purchase with its line snapshots and lifecycle state.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Items           []OrderLineItem
	Total           int64
	Status          OrderStatus
	PaymentMethod   PaymentMethod
	PaymentRef      string
	ShippingAddress Address
	CustomerNotes   string
	StockRestored   bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
	CanceledAt      *time.Time
}

// UserRole separates customers from back-office operators.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAdmin    UserRole = "admin"
)

// User is a registered storefront account. PasswordHash never leaves the
// repository layer in API responses.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	Phone        string
	Address      *Address
	CreatedAt    time.Time
	LastAccessAt *time.Time
}

// AuditLogEntry is an append-only record of privileged operations.
type AuditLogEntry struct {
	ID        string
	Actor     string
	Action    string
	TargetRef string
	Metadata  map[string]any
	CreatedAt time.Time
}

// SalesPeriod enumerates the reporting windows for sales statistics.
type SalesPeriod string

const (
	PeriodDay   SalesPeriod = "dia"
	PeriodWeek  SalesPeriod = "semana"
	PeriodMonth SalesPeriod = "mes"
	PeriodYear  SalesPeriod = "año"
)

// IsValid reports whether the period is a supported reporting window.
func (p SalesPeriod) IsValid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return true
	}
	return false
}

// WindowStart returns the inclusive lower bound of the reporting window
// relative to now.
func (p SalesPeriod) WindowStart(now time.Time) time.Time {
	switch p {
	case PeriodDay:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodYear:
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, -1, 0)
	}
}

// ProductSales aggregates units and revenue for a single product.
type ProductSales struct {
	ProductID string
	Name      string
	Units     int64
	Revenue   int64
}

// SalesStats summarises orders in paid-family states over a reporting window.
type SalesStats struct {
	Period      SalesPeriod
	From        time.Time
	OrderCount  int64
	Revenue     int64
	AvgTicket   int64
	TopProducts []ProductSales
}

// OrderAggregates summarises an admin order listing under its active filter.
type OrderAggregates struct {
	TotalRevenue   int64
	CountsByStatus map[OrderStatus]int64
}

// HealthStatus reports readiness of a backing dependency.
type HealthStatus struct {
	Component string
	Healthy   bool
	Detail    string
	CheckedAt time.Time
}
