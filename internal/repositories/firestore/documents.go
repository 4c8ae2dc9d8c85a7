package firestore

import (
	"time"

	"github.com/perfume-decants/api/internal/domain"
)

type productDocument struct {
	Name        string     `firestore:"name"`
	Brand       string     `firestore:"brand"`
	Description string     `firestore:"description"`
	Volume      string     `firestore:"volume"`
	Price       int64      `firestore:"price"`
	Stock       int64      `firestore:"stock"`
	Sales       int64      `firestore:"sales"`
	Images      []string   `firestore:"images"`
	Category    string     `firestore:"category"`
	Gender      string     `firestore:"gender"`
	Active      bool       `firestore:"active"`
	SearchTerms []string   `firestore:"searchTerms"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
	DeletedAt   *time.Time `firestore:"deletedAt,omitempty"`
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		Name:        product.Name,
		Brand:       product.Brand,
		Description: product.Description,
		Volume:      string(product.Volume),
		Price:       product.Price,
		Stock:       product.Stock,
		Sales:       product.Sales,
		Images:      append([]string(nil), product.Images...),
		Category:    string(product.Category),
		Gender:      string(product.Gender),
		Active:      product.Active,
		SearchTerms: append([]string(nil), product.SearchTerms...),
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
		DeletedAt:   product.DeletedAt,
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        d.Name,
		Brand:       d.Brand,
		Description: d.Description,
		Volume:      domain.ProductVolume(d.Volume),
		Price:       d.Price,
		Stock:       d.Stock,
		Sales:       d.Sales,
		Images:      append([]string(nil), d.Images...),
		Category:    domain.ProductCategory(d.Category),
		Gender:      domain.ProductGender(d.Gender),
		Active:      d.Active,
		SearchTerms: append([]string(nil), d.SearchTerms...),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		DeletedAt:   d.DeletedAt,
	}
}

type addressDocument struct {
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	Region     string `firestore:"region"`
	PostalCode string `firestore:"postalCode"`
}

func newAddressDocument(addr domain.Address) addressDocument {
	return addressDocument{
		Street:     addr.Street,
		City:       addr.City,
		Region:     addr.Region,
		PostalCode: addr.PostalCode,
	}
}

func (d addressDocument) toDomain() domain.Address {
	return domain.Address{
		Street:     d.Street,
		City:       d.City,
		Region:     d.Region,
		PostalCode: d.PostalCode,
	}
}

type orderLineDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Volume    string `firestore:"volume"`
	Price     int64  `firestore:"price"`
	Quantity  int64  `firestore:"quantity"`
	Subtotal  int64  `firestore:"subtotal"`
}

type orderDocument struct {
	OrderNumber     string              `firestore:"orderNumber"`
	UserID          string              `firestore:"userId"`
	Items           []orderLineDocument `firestore:"items"`
	Total           int64               `firestore:"total"`
	Status          string              `firestore:"status"`
	PaymentMethod   string              `firestore:"paymentMethod"`
	PaymentRef      string              `firestore:"paymentRef,omitempty"`
	ShippingAddress addressDocument     `firestore:"shippingAddress"`
	CustomerNotes   string              `firestore:"customerNotes,omitempty"`
	StockRestored   bool                `firestore:"stockRestored"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	PaidAt          *time.Time          `firestore:"paidAt,omitempty"`
	CanceledAt      *time.Time          `firestore:"canceledAt,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderLineDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderLineDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Volume:    string(item.Volume),
			Price:     item.Price,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal,
		})
	}
	return orderDocument{
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Items:           items,
		Total:           order.Total,
		Status:          string(order.Status),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentRef:      order.PaymentRef,
		ShippingAddress: newAddressDocument(order.ShippingAddress),
		CustomerNotes:   order.CustomerNotes,
		StockRestored:   order.StockRestored,
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
		PaidAt:          order.PaidAt,
		CanceledAt:      order.CanceledAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderLineItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderLineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Volume:    domain.ProductVolume(item.Volume),
			Price:     item.Price,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal,
		})
	}
	return domain.Order{
		ID:              id,
		OrderNumber:     d.OrderNumber,
		UserID:          d.UserID,
		Items:           items,
		Total:           d.Total,
		Status:          domain.OrderStatus(d.Status),
		PaymentMethod:   domain.PaymentMethod(d.PaymentMethod),
		PaymentRef:      d.PaymentRef,
		ShippingAddress: d.ShippingAddress.toDomain(),
		CustomerNotes:   d.CustomerNotes,
		StockRestored:   d.StockRestored,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		PaidAt:          d.PaidAt,
		CanceledAt:      d.CanceledAt,
	}
}

type userDocument struct {
	Name         string           `firestore:"name"`
	Email        string           `firestore:"email"`
	PasswordHash string           `firestore:"passwordHash"`
	Role         string           `firestore:"role"`
	Phone        string           `firestore:"phone,omitempty"`
	Address      *addressDocument `firestore:"address,omitempty"`
	CreatedAt    time.Time        `firestore:"createdAt"`
	LastAccessAt *time.Time       `firestore:"lastAccessAt,omitempty"`
}

func newUserDocument(user domain.User) userDocument {
	doc := userDocument{
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		Phone:        user.Phone,
		CreatedAt:    user.CreatedAt.UTC(),
		LastAccessAt: user.LastAccessAt,
	}
	if user.Address != nil {
		addr := newAddressDocument(*user.Address)
		doc.Address = &addr
	}
	return doc
}

func (d userDocument) toDomain(id string) domain.User {
	user := domain.User{
		ID:           id,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         domain.UserRole(d.Role),
		Phone:        d.Phone,
		CreatedAt:    d.CreatedAt,
		LastAccessAt: d.LastAccessAt,
	}
	if d.Address != nil {
		addr := d.Address.toDomain()
		user.Address = &addr
	}
	return user
}

type auditLogDocument struct {
	Actor     string         `firestore:"actor"`
	Action    string         `firestore:"action"`
	TargetRef string         `firestore:"targetRef"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	CreatedAt time.Time      `firestore:"createdAt"`
}

func newAuditLogDocument(entry domain.AuditLogEntry) auditLogDocument {
	return auditLogDocument{
		Actor:     entry.Actor,
		Action:    entry.Action,
		TargetRef: entry.TargetRef,
		Metadata:  entry.Metadata,
		CreatedAt: entry.CreatedAt.UTC(),
	}
}

func (d auditLogDocument) toDomain(id string) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:        id,
		Actor:     d.Actor,
		Action:    d.Action,
		TargetRef: d.TargetRef,
		Metadata:  d.Metadata,
		CreatedAt: d.CreatedAt,
	}
}
