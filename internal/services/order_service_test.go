package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/perfume-decants/api/internal/domain"
	"github.com/perfume-decants/api/internal/repositories"
)

type stubOrderRepository struct {
	createFn       func(context.Context, domain.Order) (domain.Order, error)
	cancelFn       func(context.Context, string, repositories.OrderCancelUpdate) (domain.Order, error)
	updateStatusFn func(context.Context, string, repositories.OrderStatusUpdate) (domain.Order, error)
	findFn         func(context.Context, string) (domain.Order, error)
	listByUserFn   func(context.Context, string, domain.Pagination) (domain.CursorPage[domain.Order], error)
	listFn         func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	listSinceFn    func(context.Context, time.Time, int) ([]domain.Order, error)
	deleteFn       func(context.Context, string) error
}

func (s *stubOrderRepository) CreateWithStockDecrement(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, order)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) CancelWithStockRestore(ctx context.Context, orderID string, update repositories.OrderCancelUpdate) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, orderID, update)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) UpdateStatus(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, orderID, update)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if s.listByUserFn != nil {
		return s.listByUserFn(ctx, userID, pager)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepository) ListCreatedSince(ctx context.Context, from time.Time, limit int) ([]domain.Order, error) {
	if s.listSinceFn != nil {
		return s.listSinceFn(ctx, from, limit)
	}
	return nil, nil
}

func (s *stubOrderRepository) Delete(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return errors.New("not implemented")
}

type stubCounterRepository struct {
	nextFn func(context.Context, string, int64) (int64, error)
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

type stubAuditRepository struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
}

func (s *stubAuditRepository) Append(_ context.Context, entry domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubAuditRepository) List(context.Context, repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	return domain.CursorPage[domain.AuditLogEntry]{}, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *capturingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type notFoundRepoError struct{}

func (notFoundRepoError) Error() string       { return "document not found" }
func (notFoundRepoError) IsNotFound() bool    { return true }
func (notFoundRepoError) IsConflict() bool    { return false }
func (notFoundRepoError) IsUnavailable() bool { return false }

func validPlaceOrderCommand() PlaceOrderCommand {
	return PlaceOrderCommand{
		UserID: "usr_1",
		Items: []PlaceOrderItem{
			{ProductID: "prd_1", Quantity: 2},
		},
		PaymentMethod: domain.PaymentMercadoPago,
		ShippingAddress: domain.Address{
			Street:     "Av. Providencia 1234",
			City:       "Santiago",
			Region:     "RM",
			PostalCode: "7500000",
		},
	}
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepository{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubCounterRepository{}
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func TestPlaceOrderValidation(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{})

	cases := []struct {
		name   string
		mutate func(*PlaceOrderCommand)
	}{
		{"missing user", func(cmd *PlaceOrderCommand) { cmd.UserID = " " }},
		{"no items", func(cmd *PlaceOrderCommand) { cmd.Items = nil }},
		{"zero quantity", func(cmd *PlaceOrderCommand) { cmd.Items[0].Quantity = 0 }},
		{"negative quantity", func(cmd *PlaceOrderCommand) { cmd.Items[0].Quantity = -3 }},
		{"blank product", func(cmd *PlaceOrderCommand) { cmd.Items[0].ProductID = "" }},
		{"bad payment method", func(cmd *PlaceOrderCommand) { cmd.PaymentMethod = "paypal" }},
		{"incomplete address", func(cmd *PlaceOrderCommand) { cmd.ShippingAddress.City = "" }},
		{"notes too long", func(cmd *PlaceOrderCommand) { cmd.CustomerNotes = strings.Repeat("x", 501) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := validPlaceOrderCommand()
			tc.mutate(&cmd)
			_, err := svc.PlaceOrder(context.Background(), cmd)
			if !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
			}
		})
	}
}

func TestPlaceOrderSuccess(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	publisher := &capturingPublisher{}

	var created domain.Order
	orders := &stubOrderRepository{
		createFn: func(_ context.Context, order domain.Order) (domain.Order, error) {
			created = order
			// The repository fills snapshots and the total from in-tx reads.
			order.Items[0].Name = "Aventus"
			order.Items[0].Price = 15990
			order.Items[0].Subtotal = 31980
			order.Total = 31980
			return order, nil
		},
	}
	counters := &stubCounterRepository{
		nextFn: func(_ context.Context, counterID string, _ int64) (int64, error) {
			if counterID != "orders" {
				t.Fatalf("unexpected counter id %s", counterID)
			}
			return 42, nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:      orders,
		Counters:    counters,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "TESTULID" },
		Events:      publisher,
	})

	order, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if created.ID != "ord_TESTULID" {
		t.Fatalf("expected id ord_TESTULID, got %s", created.ID)
	}
	if created.OrderNumber != "PD-2026-000042" {
		t.Fatalf("expected order number PD-2026-000042, got %s", created.OrderNumber)
	}
	if created.Status != domain.OrderStatusPending {
		t.Fatalf("expected status pendiente, got %s", created.Status)
	}
	if !created.CreatedAt.Equal(now) || !created.UpdatedAt.Equal(now) {
		t.Fatalf("expected timestamps %s, got %s / %s", now, created.CreatedAt, created.UpdatedAt)
	}
	if order.Total != 31980 {
		t.Fatalf("expected total 31980, got %d", order.Total)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Type != "order.created" || event.OrderID != "ord_TESTULID" || event.Status != "pendiente" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	orders := &stubOrderRepository{
		createFn: func(context.Context, domain.Order) (domain.Order, error) {
			return domain.Order{}, &repositories.StockError{
				Op:          "orders.create",
				Code:        repositories.StockErrorInsufficientStock,
				ProductID:   "prd_1",
				ProductName: "Aventus",
				Available:   1,
				Requested:   2,
			}
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	_, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand())
	if !errors.Is(err, ErrOrderInsufficientStock) {
		t.Fatalf("expected ErrOrderInsufficientStock, got %v", err)
	}
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %T", err)
	}
	if stockErr.Name != "Aventus" || stockErr.Available != 1 || stockErr.Requested != 2 {
		t.Fatalf("unexpected stock error %+v", stockErr)
	}
}

func TestPlaceOrderProductNotFound(t *testing.T) {
	orders := &stubOrderRepository{
		createFn: func(context.Context, domain.Order) (domain.Order, error) {
			return domain.Order{}, repositories.NewStockError(repositories.StockErrorProductNotFound, "prd_missing")
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	_, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand())
	if !errors.Is(err, ErrOrderProductNotFound) {
		t.Fatalf("expected ErrOrderProductNotFound, got %v", err)
	}
	var notFound *ProductNotFoundError
	if !errors.As(err, &notFound) || notFound.ProductID != "prd_missing" {
		t.Fatalf("expected ProductNotFoundError for prd_missing, got %v", err)
	}
}

// Two placements over the last unit serialize on the shared stock; exactly
// one succeeds. The stub honours the transactional contract the Firestore
// repository provides.
func TestPlaceOrderConcurrentLastUnit(t *testing.T) {
	var mu sync.Mutex
	stock := int64(1)

	orders := &stubOrderRepository{
		createFn: func(_ context.Context, order domain.Order) (domain.Order, error) {
			mu.Lock()
			defer mu.Unlock()
			qty := order.Items[0].Quantity
			if stock < qty {
				return domain.Order{}, &repositories.StockError{
					Code:        repositories.StockErrorInsufficientStock,
					ProductID:   order.Items[0].ProductID,
					ProductName: "Último Decant",
					Available:   stock,
					Requested:   qty,
				}
			}
			stock -= qty
			return order, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	cmd := validPlaceOrderCommand()
	cmd.Items[0].Quantity = 1

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), cmd)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, insufficient int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrOrderInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("expected exactly one success and one stock failure, got %d / %d", succeeded, insufficient)
	}
	if stock != 0 {
		t.Fatalf("expected stock 0, got %d", stock)
	}
}

func TestCancelOrderOwnerPendingRestoresStock(t *testing.T) {
	now := time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)
	publisher := &capturingPublisher{}

	cancelCalled := false
	orders := &stubOrderRepository{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "usr_1", Status: domain.OrderStatusPending, OrderNumber: "PD-2026-000001"}, nil
		},
		cancelFn: func(_ context.Context, orderID string, update repositories.OrderCancelUpdate) (domain.Order, error) {
			cancelCalled = true
			if !update.CanceledAt.Equal(now) {
				t.Fatalf("expected canceledAt %s, got %s", now, update.CanceledAt)
			}
			return domain.Order{ID: orderID, UserID: "usr_1", Status: domain.OrderStatusCanceled, OrderNumber: "PD-2026-000001", StockRestored: true}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: orders,
		Clock:  func() time.Time { return now },
		Events: publisher,
	})

	order, err := svc.CancelOrder(context.Background(), "ord_1", Actor{UserID: "usr_1", Role: domain.UserRoleCustomer})
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if !cancelCalled {
		t.Fatal("expected CancelWithStockRestore to be called")
	}
	if order.Status != domain.OrderStatusCanceled || !order.StockRestored {
		t.Fatalf("unexpected order state %+v", order)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "order.status.changed" {
		t.Fatalf("expected status change event, got %+v", publisher.events)
	}
	if publisher.events[0].PreviousStatus != "pendiente" || publisher.events[0].Status != "cancelado" {
		t.Fatalf("unexpected event transition %+v", publisher.events[0])
	}
}

func TestCancelOrderForbiddenForOtherUser(t *testing.T) {
	orders := &stubOrderRepository{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "usr_owner", Status: domain.OrderStatusPending}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	_, err := svc.CancelOrder(context.Background(), "ord_1", Actor{UserID: "usr_other", Role: domain.UserRoleCustomer})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestCancelOrderRejectsNonPending(t *testing.T) {
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusPaid,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCanceled,
	} {
		t.Run(string(status), func(t *testing.T) {
			orders := &stubOrderRepository{
				findFn: func(_ context.Context, orderID string) (domain.Order, error) {
					return domain.Order{ID: orderID, UserID: "usr_1", Status: status}, nil
				},
			}
			svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

			_, err := svc.CancelOrder(context.Background(), "ord_1", Actor{UserID: "usr_1", Role: domain.UserRoleCustomer})
			if !errors.Is(err, ErrOrderInvalidTransition) {
				t.Fatalf("expected ErrOrderInvalidTransition, got %v", err)
			}
		})
	}
}

func TestSetStatusRequiresAdmin(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{})
	_, err := svc.SetStatus(context.Background(), "ord_1", domain.OrderStatusPaid, Actor{UserID: "usr_1", Role: domain.UserRoleCustomer})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestSetStatusRejectsUnknownValue(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{})
	_, err := svc.SetStatus(context.Background(), "ord_1", "despachado", Actor{UserID: "adm_1", Role: domain.UserRoleAdmin})
	if !errors.Is(err, ErrOrderInvalidStatus) {
		t.Fatalf("expected ErrOrderInvalidStatus, got %v", err)
	}
	for _, status := range domain.ValidOrderStatuses {
		if !strings.Contains(err.Error(), string(status)) {
			t.Fatalf("expected error to list %s, got %q", status, err.Error())
		}
	}
}

func TestSetStatusPaidSetsPaidAt(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	audit := &stubAuditRepository{}

	var captured repositories.OrderStatusUpdate
	orders := &stubOrderRepository{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "usr_1", Status: domain.OrderStatusPending}, nil
		},
		updateStatusFn: func(_ context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
			captured = update
			return domain.Order{ID: orderID, UserID: "usr_1", Status: update.Status, PaidAt: update.PaidAt}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:    orders,
		AuditLogs: audit,
		Clock:     func() time.Time { return now },
	})

	order, err := svc.SetStatus(context.Background(), "ord_1", domain.OrderStatusPaid, Actor{UserID: "adm_1", Role: domain.UserRoleAdmin})
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if captured.PaidAt == nil || !captured.PaidAt.Equal(now) {
		t.Fatalf("expected paidAt %s, got %#v", now, captured.PaidAt)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected pagado, got %s", order.Status)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != "order.status.override" {
		t.Fatalf("expected audit entry, got %+v", audit.entries)
	}
}

func TestSetStatusCanceledRoutesThroughRestore(t *testing.T) {
	cancelCalled := false
	orders := &stubOrderRepository{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "usr_1", Status: domain.OrderStatusShipped}, nil
		},
		cancelFn: func(_ context.Context, orderID string, _ repositories.OrderCancelUpdate) (domain.Order, error) {
			cancelCalled = true
			return domain.Order{ID: orderID, Status: domain.OrderStatusCanceled, StockRestored: true}, nil
		},
		updateStatusFn: func(context.Context, string, repositories.OrderStatusUpdate) (domain.Order, error) {
			t.Fatal("UpdateStatus must not be used for cancellation")
			return domain.Order{}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	order, err := svc.SetStatus(context.Background(), "ord_1", domain.OrderStatusCanceled, Actor{UserID: "adm_1", Role: domain.UserRoleAdmin})
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if !cancelCalled {
		t.Fatal("expected CancelWithStockRestore to be called")
	}
	if order.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected cancelado, got %s", order.Status)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	orders := &stubOrderRepository{
		findFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{}, notFoundRepoError{}
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	_, err := svc.GetOrder(context.Background(), "ord_missing", Actor{UserID: "usr_1", Role: domain.UserRoleCustomer})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestGetOrderAdminBypassesOwnership(t *testing.T) {
	orders := &stubOrderRepository{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "usr_owner"}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	if _, err := svc.GetOrder(context.Background(), "ord_1", Actor{UserID: "adm_1", Role: domain.UserRoleAdmin}); err != nil {
		t.Fatalf("GetOrder as admin: %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), "ord_1", Actor{UserID: "usr_other", Role: domain.UserRoleCustomer}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestRecordPaymentOutcomeApproved(t *testing.T) {
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	var captured repositories.OrderStatusUpdate
	orders := &stubOrderRepository{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "usr_1", Status: domain.OrderStatusPending}, nil
		},
		updateStatusFn: func(_ context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
			captured = update
			return domain.Order{ID: orderID, UserID: "usr_1", Status: update.Status}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Clock: func() time.Time { return now }})

	order, err := svc.RecordPaymentOutcome(context.Background(), PaymentOutcomeCommand{
		OrderID:    "ord_1",
		PaymentRef: "mock_abc",
		Approved:   true,
		Actor:      Actor{UserID: "usr_1", Role: domain.UserRoleCustomer},
	})
	if err != nil {
		t.Fatalf("RecordPaymentOutcome: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected pagado, got %s", order.Status)
	}
	if captured.PaymentRef == nil || *captured.PaymentRef != "mock_abc" {
		t.Fatalf("expected payment ref mock_abc, got %#v", captured.PaymentRef)
	}
	if captured.PaidAt == nil || !captured.PaidAt.Equal(now) {
		t.Fatalf("expected paidAt %s, got %#v", now, captured.PaidAt)
	}
}

func TestRecordPaymentOutcomeRejectedRestoresStock(t *testing.T) {
	cancelCalled := false
	orders := &stubOrderRepository{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "usr_1", Status: domain.OrderStatusPending}, nil
		},
		cancelFn: func(_ context.Context, orderID string, update repositories.OrderCancelUpdate) (domain.Order, error) {
			cancelCalled = true
			if update.PaymentRef == nil || *update.PaymentRef != "mock_rej" {
				t.Fatalf("expected payment ref mock_rej, got %#v", update.PaymentRef)
			}
			return domain.Order{ID: orderID, UserID: "usr_1", Status: domain.OrderStatusCanceled, StockRestored: true}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	order, err := svc.RecordPaymentOutcome(context.Background(), PaymentOutcomeCommand{
		OrderID:    "ord_1",
		PaymentRef: "mock_rej",
		Rejected:   true,
		Actor:      Actor{UserID: "usr_1", Role: domain.UserRoleCustomer},
	})
	if err != nil {
		t.Fatalf("RecordPaymentOutcome: %v", err)
	}
	if !cancelCalled {
		t.Fatal("expected CancelWithStockRestore to be called for a rejected payment")
	}
	if order.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected cancelado, got %s", order.Status)
	}
}

func TestDeleteOrderAuditsAndRequiresAdmin(t *testing.T) {
	audit := &stubAuditRepository{}
	orders := &stubOrderRepository{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "usr_1", OrderNumber: "PD-2026-000007", Status: domain.OrderStatusDelivered, Total: 9990}, nil
		},
		deleteFn: func(context.Context, string) error { return nil },
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, AuditLogs: audit})

	if err := svc.DeleteOrder(context.Background(), "ord_1", Actor{UserID: "usr_1", Role: domain.UserRoleCustomer}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
	if err := svc.DeleteOrder(context.Background(), "ord_1", Actor{UserID: "adm_1", Role: domain.UserRoleAdmin}); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != "order.deleted" {
		t.Fatalf("expected order.deleted audit entry, got %+v", audit.entries)
	}
	if audit.entries[0].Metadata["orderNumber"] != "PD-2026-000007" {
		t.Fatalf("expected order number in audit metadata, got %+v", audit.entries[0].Metadata)
	}
}

func TestSalesStatsAggregatesPaidFamily(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	makeOrder := func(status domain.OrderStatus, total int64, items ...domain.OrderLineItem) domain.Order {
		return domain.Order{Status: status, Total: total, Items: items, CreatedAt: now.Add(-time.Hour)}
	}

	orders := &stubOrderRepository{
		listSinceFn: func(_ context.Context, from time.Time, _ int) ([]domain.Order, error) {
			expected := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
			if !from.Equal(expected) {
				t.Fatalf("expected window start %s, got %s", expected, from)
			}
			return []domain.Order{
				makeOrder(domain.OrderStatusPaid, 10000, domain.OrderLineItem{ProductID: "prd_a", Name: "A", Quantity: 2, Subtotal: 10000}),
				makeOrder(domain.OrderStatusDelivered, 20000, domain.OrderLineItem{ProductID: "prd_b", Name: "B", Quantity: 5, Subtotal: 20000}),
				makeOrder(domain.OrderStatusPending, 99999, domain.OrderLineItem{ProductID: "prd_c", Name: "C", Quantity: 9, Subtotal: 99999}),
				makeOrder(domain.OrderStatusCanceled, 55555, domain.OrderLineItem{ProductID: "prd_d", Name: "D", Quantity: 7, Subtotal: 55555}),
			}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Clock: func() time.Time { return now }})

	stats, err := svc.SalesStats(context.Background(), domain.PeriodMonth)
	if err != nil {
		t.Fatalf("SalesStats: %v", err)
	}
	if stats.OrderCount != 2 {
		t.Fatalf("expected 2 paid-family orders, got %d", stats.OrderCount)
	}
	if stats.Revenue != 30000 {
		t.Fatalf("expected revenue 30000, got %d", stats.Revenue)
	}
	if stats.AvgTicket != 15000 {
		t.Fatalf("expected avg ticket 15000, got %d", stats.AvgTicket)
	}
	if len(stats.TopProducts) != 2 {
		t.Fatalf("expected 2 top products, got %d", len(stats.TopProducts))
	}
	if stats.TopProducts[0].ProductID != "prd_b" || stats.TopProducts[0].Units != 5 {
		t.Fatalf("expected prd_b first with 5 units, got %+v", stats.TopProducts[0])
	}
}

func TestSalesStatsDefaultsToMonth(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepository{}})
	stats, err := svc.SalesStats(context.Background(), "")
	if err != nil {
		t.Fatalf("SalesStats: %v", err)
	}
	if stats.Period != domain.PeriodMonth {
		t.Fatalf("expected default period mes, got %s", stats.Period)
	}
}

func TestListOrdersAggregates(t *testing.T) {
	calls := 0
	orders := &stubOrderRepository{
		listFn: func(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			calls++
			// Second call is the unbounded aggregate scan.
			if calls == 2 && filter.Pagination.PageToken != "" {
				t.Fatalf("aggregate scan must not carry a cursor, got %q", filter.Pagination.PageToken)
			}
			return domain.CursorPage[domain.Order]{
				Items: []domain.Order{
					{Status: domain.OrderStatusPaid, Total: 12000},
					{Status: domain.OrderStatusPaid, Total: 8000},
					{Status: domain.OrderStatusPending, Total: 5000},
					{Status: domain.OrderStatusCanceled, Total: 7000},
				},
			}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	listing, err := svc.ListOrders(context.Background(), AdminOrderListFilter{
		Pagination: domain.Pagination{PageSize: 20, PageToken: "tok"},
	})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected list + aggregate scan, got %d calls", calls)
	}
	if listing.Aggregates.TotalRevenue != 20000 {
		t.Fatalf("expected revenue 20000, got %d", listing.Aggregates.TotalRevenue)
	}
	if listing.Aggregates.CountsByStatus[domain.OrderStatusPaid] != 2 {
		t.Fatalf("expected 2 pagado orders, got %d", listing.Aggregates.CountsByStatus[domain.OrderStatusPaid])
	}
}

func TestPublishFailureDoesNotFailPlacement(t *testing.T) {
	publisher := &capturingPublisher{err: fmt.Errorf("pubsub unavailable")}
	orders := &stubOrderRepository{
		createFn: func(_ context.Context, order domain.Order) (domain.Order, error) {
			return order, nil
		},
	}
	var logged []string
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: orders,
		Events: publisher,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})

	if _, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand()); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if len(logged) != 1 || logged[0] != "order.event.publish.failed" {
		t.Fatalf("expected publish failure to be logged, got %v", logged)
	}
}
