package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/perfume-decants/api/internal/domain"
	pfirestore "github.com/perfume-decants/api/internal/platform/firestore"
	"github.com/perfume-decants/api/internal/platform/pagination"
	"github.com/perfume-decants/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository implements repositories.OrderRepository backed by Firestore.
// Placement and cancellation span the orders and products collections within
// a single transaction.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// CreateWithStockDecrement validates availability, decrements stock, and
// creates the order in one transaction. All product reads happen first, in
// the caller-supplied line order, so the first unavailable line aborts the
// transaction before any write is staged. Line snapshots (name, price,
// volume, subtotal) and the order total are filled from the products read
// inside the transaction.
func (r *OrderRepository) CreateWithStockDecrement(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("orders.create: order id is required")
	}
	if len(order.Items) == 0 {
		return domain.Order{}, errors.New("orders.create: at least one item is required")
	}

	var created domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}

		type lineRead struct {
			ref *firestore.DocumentRef
			doc productDocument
		}

		// Reads phase, in line order.
		reads := make([]lineRead, 0, len(order.Items))
		for _, item := range order.Items {
			ref, err := r.products.DocumentRef(ctx, item.ProductID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if isNotFound(err) {
					return repositories.NewStockError(repositories.StockErrorProductNotFound, item.ProductID)
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", item.ProductID, err)
			}
			if !doc.Active || doc.Stock < item.Quantity {
				return &repositories.StockError{
					Code:        repositories.StockErrorInsufficientStock,
					ProductID:   item.ProductID,
					ProductName: doc.Name,
					Available:   doc.Stock,
					Requested:   item.Quantity,
				}
			}
			reads = append(reads, lineRead{ref: ref, doc: doc})
		}

		// Writes phase: decrement stock, record sales, snapshot each line.
		var total int64
		items := make([]domain.OrderLineItem, len(order.Items))
		for i, item := range order.Items {
			read := reads[i]
			read.doc.Stock -= item.Quantity
			read.doc.Sales += item.Quantity
			read.doc.UpdatedAt = order.CreatedAt.UTC()
			if err := tx.Set(read.ref, read.doc); err != nil {
				return err
			}

			subtotal := read.doc.Price * item.Quantity
			items[i] = domain.OrderLineItem{
				ProductID: item.ProductID,
				Name:      read.doc.Name,
				Volume:    domain.ProductVolume(read.doc.Volume),
				Price:     read.doc.Price,
				Quantity:  item.Quantity,
				Subtotal:  subtotal,
			}
			total += subtotal
		}

		order.Items = items
		order.Total = total
		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return domain.Order{}, stockErr
		}
		return domain.Order{}, pfirestore.WrapError("orders.create", err)
	}
	return created, nil
}

// CancelWithStockRestore marks the order cancelado and returns each line's
// quantity to its product, skipping lines whose product no longer exists.
// The stockRestored flag guarantees restoration happens at most once.
func (r *OrderRepository) CancelWithStockRestore(ctx context.Context, orderID string, update repositories.OrderCancelUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}

	var cancelled domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		type productRead struct {
			ref *firestore.DocumentRef
			doc productDocument
		}

		var reads []productRead
		var quantities []int64
		if !doc.StockRestored {
			for _, item := range doc.Items {
				ref, err := r.products.DocumentRef(ctx, item.ProductID)
				if err != nil {
					return err
				}
				psnap, err := tx.Get(ref)
				if err != nil {
					if isNotFound(err) {
						// Product deleted since purchase; nothing to restore.
						continue
					}
					return err
				}
				var pdoc productDocument
				if err := psnap.DataTo(&pdoc); err != nil {
					return fmt.Errorf("decode product %s: %w", item.ProductID, err)
				}
				reads = append(reads, productRead{ref: ref, doc: pdoc})
				quantities = append(quantities, item.Quantity)
			}
		}

		for i, read := range reads {
			read.doc.Stock += quantities[i]
			read.doc.Sales -= quantities[i]
			if read.doc.Sales < 0 {
				read.doc.Sales = 0
			}
			read.doc.UpdatedAt = update.UpdatedAt.UTC()
			if err := tx.Set(read.ref, read.doc); err != nil {
				return err
			}
		}

		canceledAt := update.CanceledAt.UTC()
		doc.Status = string(domain.OrderStatusCanceled)
		doc.StockRestored = true
		doc.CanceledAt = &canceledAt
		doc.UpdatedAt = update.UpdatedAt.UTC()
		if update.PaymentRef != nil {
			doc.PaymentRef = *update.PaymentRef
		}
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		cancelled = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.cancel", err)
	}
	return cancelled, nil
}

// UpdateStatus sets the order status without touching product stock.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		doc.Status = string(update.Status)
		doc.UpdatedAt = update.UpdatedAt.UTC()
		if update.PaidAt != nil {
			paidAt := update.PaidAt.UTC()
			doc.PaidAt = &paidAt
		}
		if update.PaymentRef != nil {
			doc.PaymentRef = *update.PaymentRef
		}
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.updatestatus", err)
	}
	return updated, nil
}

// FindByID fetches an order by its document id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByUser returns the user's orders newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return r.list(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID)
	})
}

// List returns orders matching the admin filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return r.list(ctx, filter.Pagination, func(q firestore.Query) firestore.Query {
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		if filter.Created.From != nil {
			q = q.Where("createdAt", ">=", filter.Created.From.UTC())
		}
		if filter.Created.To != nil {
			q = q.Where("createdAt", "<=", filter.Created.To.UTC())
		}
		return q
	})
}

// ListCreatedSince returns up to limit orders created at or after from,
// newest first.
func (r *OrderRepository) ListCreatedSince(ctx context.Context, from time.Time, limit int) ([]domain.Order, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	if limit <= 0 {
		limit = 1000
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("createdAt", ">=", from.UTC()).
			OrderBy("createdAt", firestore.Desc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

// Delete removes the order document permanently.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	return r.orders.Delete(ctx, orderID)
}

func (r *OrderRepository) list(ctx context.Context, pager domain.Pagination, narrow func(firestore.Query) firestore.Query) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	startAfter, err := decodeCreatedAtCursor(cursor)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = narrow(q)
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) > 0 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	token, err := encodeNextToken(docs, hasMore, func(doc pfirestore.Document[orderDocument]) pagination.Cursor {
		return createdAtCursor(doc.Data.CreatedAt, doc.ID)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	page.NextPageToken = token
	return page, nil
}
