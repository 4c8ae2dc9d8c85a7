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

const productsCollection = "products"

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection)
	return &ProductRepository{provider: provider, products: base}, nil
}

// Insert creates the product document, failing when the id already exists.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	ref, err := r.products.DocumentRef(ctx, product.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newProductDocument(product)); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// Update replaces the product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	return r.products.Set(ctx, product.ID, newProductDocument(product))
}

// FindByID fetches a product by its document id.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a catalog page honouring filters, sorting, and the cursor.
// When a price range is present Firestore requires the first ordering to be
// on price, so price range queries are served in price order.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	orders := productOrderings(filter)

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	startAfter, err := normaliseProductCursor(cursor, orders)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if !filter.IncludeInactive {
			q = q.Where("active", "==", true)
		}
		if filter.Category != nil {
			q = q.Where("category", "==", string(*filter.Category))
		}
		if filter.Gender != nil {
			q = q.Where("gender", "==", string(*filter.Gender))
		}
		if filter.Price.From != nil {
			q = q.Where("price", ">=", *filter.Price.From)
		}
		if filter.Price.To != nil {
			q = q.Where("price", "<=", *filter.Price.To)
		}
		if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
			q = q.Where("searchTerms", "array-contains", keyword)
		}
		for _, order := range orders {
			dir := firestore.Asc
			if order.desc {
				dir = firestore.Desc
			}
			q = q.OrderBy(order.field, dir)
		}
		if len(startAfter) > 0 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	page := domain.CursorPage[domain.Product]{}
	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: productCursorValues(last, orders)})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// SoftDelete deactivates the product and stamps deletedAt.
func (r *ProductRepository) SoftDelete(ctx context.Context, productID string, deletedAt time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	return r.products.Update(ctx, productID, []firestore.Update{
		{Path: "active", Value: false},
		{Path: "deletedAt", Value: deletedAt.UTC()},
		{Path: "updatedAt", Value: deletedAt.UTC()},
	})
}

// AdjustStock applies the stock patch inside a transaction. The resulting
// stock must be non-negative.
func (r *ProductRepository) AdjustStock(ctx context.Context, req repositories.StockAdjustRequest) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	if req.Operation != repositories.StockOperationAdd && req.Operation != repositories.StockOperationSet {
		return domain.Product{}, fmt.Errorf("products.adjuststock: unsupported operation %q", req.Operation)
	}

	var updated domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, req.ProductID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, req.ProductID)
			}
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", req.ProductID, err)
		}

		newStock := doc.Stock + req.Quantity
		if req.Operation == repositories.StockOperationSet {
			newStock = req.Quantity
		}
		if newStock < 0 {
			return &repositories.StockError{
				Code:        repositories.StockErrorNegativeStock,
				ProductID:   req.ProductID,
				ProductName: doc.Name,
				Available:   doc.Stock,
				Requested:   req.Quantity,
			}
		}

		doc.Stock = newStock
		doc.UpdatedAt = req.UpdatedAt.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(req.ProductID)
		return nil
	})
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return domain.Product{}, stockErr
		}
		return domain.Product{}, pfirestore.WrapError("products.adjuststock", err)
	}
	return updated, nil
}

type productOrder struct {
	field string
	desc  bool
}

func productOrderings(filter repositories.ProductListFilter) []productOrder {
	var orders []productOrder

	// Range-filtered fields must lead the ordering.
	priceFiltered := filter.Price.From != nil || filter.Price.To != nil

	switch filter.Sort {
	case repositories.ProductSortPriceAsc:
		orders = append(orders, productOrder{field: "price"})
	case repositories.ProductSortPriceDesc:
		orders = append(orders, productOrder{field: "price", desc: true})
	case repositories.ProductSortName:
		if priceFiltered {
			orders = append(orders, productOrder{field: "price"})
		}
		orders = append(orders, productOrder{field: "name"})
	case repositories.ProductSortBestSeller:
		if priceFiltered {
			orders = append(orders, productOrder{field: "price"})
		}
		orders = append(orders, productOrder{field: "sales", desc: true})
	default:
		if priceFiltered {
			orders = append(orders, productOrder{field: "price"})
		}
		orders = append(orders, productOrder{field: "createdAt", desc: true})
	}

	orders = append(orders, productOrder{field: firestore.DocumentID})
	return orders
}

func productCursorValues(doc pfirestore.Document[productDocument], orders []productOrder) []any {
	values := make([]any, 0, len(orders))
	for _, order := range orders {
		switch order.field {
		case "price":
			values = append(values, doc.Data.Price)
		case "name":
			values = append(values, doc.Data.Name)
		case "sales":
			values = append(values, doc.Data.Sales)
		case "createdAt":
			values = append(values, doc.Data.CreatedAt.UTC().Format(time.RFC3339Nano))
		default:
			values = append(values, doc.ID)
		}
	}
	return values
}

// normaliseProductCursor restores typed cursor values after the JSON round
// trip through the page token (numbers arrive as float64, times as strings).
func normaliseProductCursor(cursor pagination.Cursor, orders []productOrder) ([]any, error) {
	if cursor.IsZero() {
		return nil, nil
	}
	if len(cursor.StartAfter) != len(orders) {
		return nil, pagination.ErrInvalidPageToken
	}
	values := make([]any, 0, len(orders))
	for i, order := range orders {
		raw := cursor.StartAfter[i]
		switch order.field {
		case "price", "sales":
			num, ok := raw.(float64)
			if !ok {
				return nil, pagination.ErrInvalidPageToken
			}
			values = append(values, int64(num))
		case "createdAt":
			str, ok := raw.(string)
			if !ok {
				return nil, pagination.ErrInvalidPageToken
			}
			ts, err := time.Parse(time.RFC3339Nano, str)
			if err != nil {
				return nil, pagination.ErrInvalidPageToken
			}
			values = append(values, ts)
		default:
			str, ok := raw.(string)
			if !ok {
				return nil, pagination.ErrInvalidPageToken
			}
			values = append(values, str)
		}
	}
	return values, nil
}
