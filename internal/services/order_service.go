package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/perfume-decants/api/internal/domain"
	"github.com/perfume-decants/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix    = "ord_"
	auditLogIDPrefix = "aud_"

	orderNumberCounter = "orders"

	maxCustomerNotesLength = 500
	statsScanLimit         = 5000
	aggregateScanLimit     = 1000
	topProductsLimit       = 5
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the actor may not act on the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidTransition indicates the current status forbids the transition.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderInvalidStatus indicates the target status is not a known value.
	ErrOrderInvalidStatus = errors.New("order: invalid status value")
	// ErrOrderConflict indicates concurrent modification conflicts.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderProductNotFound indicates a referenced product does not exist.
	ErrOrderProductNotFound = errors.New("order: product not found")
	// ErrOrderInsufficientStock indicates a line cannot be satisfied.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
)

// ProductNotFoundError names the missing product behind ErrOrderProductNotFound.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("order: product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrOrderProductNotFound
}

// InsufficientStockError names the product and availability behind
// ErrOrderInsufficientStock.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("order: insufficient stock for %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrOrderInsufficientStock
}

// Actor identifies the principal performing an operation.
type Actor struct {
	UserID string
	Role   domain.UserRole
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == domain.UserRoleAdmin
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber"`
	Status         string         `json:"status,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// PlaceOrderItem is one requested line of a new order.
type PlaceOrderItem struct {
	ProductID string
	Quantity  int64
}

// PlaceOrderCommand carries the input for placing an order.
type PlaceOrderCommand struct {
	UserID          string
	Items           []PlaceOrderItem
	PaymentMethod   domain.PaymentMethod
	ShippingAddress domain.Address
	CustomerNotes   string
}

// PaymentOutcomeCommand applies a payment result to an order.
type PaymentOutcomeCommand struct {
	OrderID    string
	PaymentRef string
	Approved   bool
	Rejected   bool
	Actor      Actor
}

// AdminOrderListFilter narrows the admin order listing.
type AdminOrderListFilter struct {
	Status     *domain.OrderStatus
	Created    domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// OrderListing bundles an admin order page with aggregates for the filter.
type OrderListing struct {
	Page       domain.CursorPage[domain.Order]
	Aggregates domain.OrderAggregates
}

// OrderService exposes order placement, lifecycle, and reporting operations.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string, actor Actor) (domain.Order, error)
	ListMine(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	ListOrders(ctx context.Context, filter AdminOrderListFilter) (OrderListing, error)
	CancelOrder(ctx context.Context, orderID string, actor Actor) (domain.Order, error)
	SetStatus(ctx context.Context, orderID string, target domain.OrderStatus, actor Actor) (domain.Order, error)
	AttachPaymentRef(ctx context.Context, orderID string, paymentRef string, actor Actor) (domain.Order, error)
	RecordPaymentOutcome(ctx context.Context, cmd PaymentOutcomeCommand) (domain.Order, error)
	DeleteOrder(ctx context.Context, orderID string, actor Actor) error
	SalesStats(ctx context.Context, period domain.SalesPeriod) (domain.SalesStats, error)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	AuditLogs   repositories.AuditLogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	counters repositories.CounterRepository
	audit    repositories.AuditLogRepository
	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
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

	return &orderService{
		orders:   deps.Orders,
		counters: deps.Counters,
		audit:    deps.AuditLogs,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	for i, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.Order{}, fmt.Errorf("%w: item %d is missing a product id", ErrOrderInvalidInput, i)
		}
		if item.Quantity < 1 {
			return domain.Order{}, fmt.Errorf("%w: item %d quantity must be at least 1", ErrOrderInvalidInput, i)
		}
	}
	if !cmd.PaymentMethod.IsValid() {
		return domain.Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	if !cmd.ShippingAddress.Complete() {
		return domain.Order{}, fmt.Errorf("%w: shipping address requires street, city, region, and postal code", ErrOrderInvalidInput)
	}
	notes := strings.TrimSpace(cmd.CustomerNotes)
	if utf8.RuneCountInString(notes) > maxCustomerNotesLength {
		return domain.Order{}, fmt.Errorf("%w: customer notes exceed %d characters", ErrOrderInvalidInput, maxCustomerNotesLength)
	}

	now := s.now()

	// Sequence numbers are drawn before the transaction; an aborted
	// placement leaves a gap, which is acceptable.
	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	items := make([]domain.OrderLineItem, len(cmd.Items))
	for i, item := range cmd.Items {
		items[i] = domain.OrderLineItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		}
	}

	order := domain.Order{
		ID:              orderIDPrefix + s.newID(),
		OrderNumber:     number,
		UserID:          userID,
		Items:           items,
		Status:          domain.OrderStatusPending,
		PaymentMethod:   cmd.PaymentMethod,
		ShippingAddress: cmd.ShippingAddress,
		CustomerNotes:   notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.orders.CreateWithStockDecrement(ctx, order)
	if err != nil {
		return domain.Order{}, s.mapStockError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventCreated,
		OrderID:     created.ID,
		OrderNumber: created.OrderNumber,
		Status:      string(created.Status),
		ActorID:     userID,
		OccurredAt:  now,
		Metadata:    map[string]any{"total": created.Total},
	})

	return created, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor Actor) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderAccess(order, actor); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *orderService) ListMine(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.ListByUser(ctx, userID, pager)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter AdminOrderListFilter) (OrderListing, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return OrderListing{}, fmt.Errorf("%w: %q is not one of %s", ErrOrderInvalidStatus, *filter.Status, validStatusList())
	}

	repoFilter := repositories.OrderListFilter{
		Status:     filter.Status,
		Created:    filter.Created,
		Pagination: filter.Pagination,
	}
	page, err := s.orders.List(ctx, repoFilter)
	if err != nil {
		return OrderListing{}, s.mapRepositoryError(err)
	}

	aggregates, err := s.collectAggregates(ctx, repoFilter)
	if err != nil {
		return OrderListing{}, err
	}

	return OrderListing{Page: page, Aggregates: aggregates}, nil
}

func (s *orderService) CancelOrder(ctx context.Context, orderID string, actor Actor) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderAccess(order, actor); err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Order{}, fmt.Errorf("%w: only pendiente orders can be cancelled, current status is %s", ErrOrderInvalidTransition, order.Status)
	}

	now := s.now()
	cancelled, err := s.orders.CancelWithStockRestore(ctx, orderID, repositories.OrderCancelUpdate{
		CanceledAt: now,
		UpdatedAt:  now,
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.publishStatusChange(ctx, cancelled, order.Status, actor.UserID, now)
	return cancelled, nil
}

func (s *orderService) SetStatus(ctx context.Context, orderID string, target domain.OrderStatus, actor Actor) (domain.Order, error) {
	if !actor.IsAdmin() {
		return domain.Order{}, fmt.Errorf("%w: status overrides require the admin role", ErrOrderForbidden)
	}
	if !target.IsValid() {
		return domain.Order{}, fmt.Errorf("%w: %q is not one of %s", ErrOrderInvalidStatus, target, validStatusList())
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	previous := order.Status

	now := s.now()
	var updated domain.Order
	if target == domain.OrderStatusCanceled {
		// Entering cancelado always restores stock; the stockRestored flag
		// keeps repeated overrides from restoring twice.
		updated, err = s.orders.CancelWithStockRestore(ctx, orderID, repositories.OrderCancelUpdate{
			CanceledAt: now,
			UpdatedAt:  now,
		})
	} else {
		update := repositories.OrderStatusUpdate{Status: target, UpdatedAt: now}
		if target == domain.OrderStatusPaid {
			update.PaidAt = &now
		}
		updated, err = s.orders.UpdateStatus(ctx, orderID, update)
	}
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.recordAudit(ctx, actor, "order.status.override", "orders/"+orderID, map[string]any{
		"from": string(previous),
		"to":   string(target),
	}, now)
	s.publishStatusChange(ctx, updated, previous, actor.UserID, now)
	return updated, nil
}

func (s *orderService) AttachPaymentRef(ctx context.Context, orderID string, paymentRef string, actor Actor) (domain.Order, error) {
	ref := strings.TrimSpace(paymentRef)
	if ref == "" {
		return domain.Order{}, fmt.Errorf("%w: payment ref is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderAccess(order, actor); err != nil {
		return domain.Order{}, err
	}

	now := s.now()
	updated, err := s.orders.UpdateStatus(ctx, orderID, repositories.OrderStatusUpdate{
		Status:     order.Status,
		PaymentRef: &ref,
		UpdatedAt:  now,
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

func (s *orderService) RecordPaymentOutcome(ctx context.Context, cmd PaymentOutcomeCommand) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderAccess(order, cmd.Actor); err != nil {
		return domain.Order{}, err
	}

	now := s.now()
	ref := strings.TrimSpace(cmd.PaymentRef)
	var refPtr *string
	if ref != "" {
		refPtr = &ref
	}

	var updated domain.Order
	switch {
	case cmd.Approved:
		updated, err = s.orders.UpdateStatus(ctx, cmd.OrderID, repositories.OrderStatusUpdate{
			Status:     domain.OrderStatusPaid,
			PaymentRef: refPtr,
			PaidAt:     &now,
			UpdatedAt:  now,
		})
	case cmd.Rejected:
		// A rejected payment runs the same cancellation as a customer
		// cancel, stock restoration included.
		updated, err = s.orders.CancelWithStockRestore(ctx, cmd.OrderID, repositories.OrderCancelUpdate{
			CanceledAt: now,
			UpdatedAt:  now,
			PaymentRef: refPtr,
		})
	default:
		updated, err = s.orders.UpdateStatus(ctx, cmd.OrderID, repositories.OrderStatusUpdate{
			Status:     domain.OrderStatusPending,
			PaymentRef: refPtr,
			UpdatedAt:  now,
		})
	}
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if updated.Status != order.Status {
		s.publishStatusChange(ctx, updated, order.Status, cmd.Actor.UserID, now)
	}
	return updated, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, orderID string, actor Actor) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: order deletion requires the admin role", ErrOrderForbidden)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}

	if err := s.orders.Delete(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}

	s.recordAudit(ctx, actor, "order.deleted", "orders/"+orderID, map[string]any{
		"orderNumber": order.OrderNumber,
		"userId":      order.UserID,
		"status":      string(order.Status),
		"total":       order.Total,
	}, s.now())
	return nil
}

func (s *orderService) SalesStats(ctx context.Context, period domain.SalesPeriod) (domain.SalesStats, error) {
	if period == "" {
		period = domain.PeriodMonth
	}
	if !period.IsValid() {
		return domain.SalesStats{}, fmt.Errorf("%w: unsupported period %q", ErrOrderInvalidInput, period)
	}

	now := s.now()
	from := period.WindowStart(now)

	orders, err := s.orders.ListCreatedSince(ctx, from, statsScanLimit)
	if err != nil {
		return domain.SalesStats{}, s.mapRepositoryError(err)
	}

	stats := domain.SalesStats{Period: period, From: from}
	perProduct := make(map[string]*domain.ProductSales)
	for _, order := range orders {
		if !order.Status.PaidFamily() {
			continue
		}
		stats.OrderCount++
		stats.Revenue += order.Total
		for _, item := range order.Items {
			entry, ok := perProduct[item.ProductID]
			if !ok {
				entry = &domain.ProductSales{ProductID: item.ProductID, Name: item.Name}
				perProduct[item.ProductID] = entry
			}
			entry.Units += item.Quantity
			entry.Revenue += item.Subtotal
		}
	}
	if stats.OrderCount > 0 {
		stats.AvgTicket = stats.Revenue / stats.OrderCount
	}

	top := make([]domain.ProductSales, 0, len(perProduct))
	for _, entry := range perProduct {
		top = append(top, *entry)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Units != top[j].Units {
			return top[i].Units > top[j].Units
		}
		return top[i].ProductID < top[j].ProductID
	})
	if len(top) > topProductsLimit {
		top = top[:topProductsLimit]
	}
	stats.TopProducts = top

	return stats, nil
}

func (s *orderService) collectAggregates(ctx context.Context, filter repositories.OrderListFilter) (domain.OrderAggregates, error) {
	scan := filter
	scan.Pagination = domain.Pagination{PageSize: aggregateScanLimit}

	aggregates := domain.OrderAggregates{CountsByStatus: make(map[domain.OrderStatus]int64)}
	page, err := s.orders.List(ctx, scan)
	if err != nil {
		return domain.OrderAggregates{}, s.mapRepositoryError(err)
	}
	for _, order := range page.Items {
		aggregates.CountsByStatus[order.Status]++
		if order.Status.PaidFamily() {
			aggregates.TotalRevenue += order.Total
		}
	}
	return aggregates, nil
}

func authorizeOrderAccess(order domain.Order, actor Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if strings.TrimSpace(actor.UserID) == "" || order.UserID != actor.UserID {
		return fmt.Errorf("%w: order belongs to another user", ErrOrderForbidden)
	}
	return nil
}

func (s *orderService) mapStockError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorProductNotFound:
			return &ProductNotFoundError{ProductID: stockErr.ProductID}
		case repositories.StockErrorInsufficientStock:
			return &InsufficientStockError{
				ProductID: stockErr.ProductID,
				Name:      stockErr.ProductName,
				Available: stockErr.Available,
				Requested: stockErr.Requested,
			}
		}
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PD-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) recordAudit(ctx context.Context, actor Actor, action, targetRef string, metadata map[string]any, at time.Time) {
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
		s.logger(ctx, "order.audit.append.failed", map[string]any{
			"action": action,
			"target": targetRef,
			"error":  err.Error(),
		})
	}
}

func (s *orderService) publishStatusChange(ctx context.Context, order domain.Order, previous domain.OrderStatus, actorID string, at time.Time) {
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         string(order.Status),
		PreviousStatus: string(previous),
		ActorID:        actorID,
		OccurredAt:     at,
	})
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.Status,
		})
	}
}

func validStatusList() string {
	values := make([]string, 0, len(domain.ValidOrderStatuses))
	for _, status := range domain.ValidOrderStatuses {
		values = append(values, string(status))
	}
	return strings.Join(values, ", ")
}
