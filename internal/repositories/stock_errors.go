package repositories

import "fmt"

// StockErrorCode enumerates repository error causes for stock-affecting operations.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorProductNotFound indicates the referenced product document is missing.
	StockErrorProductNotFound StockErrorCode = "product_not_found"
	// StockErrorInsufficientStock indicates the requested quantity exceeds availability
	// or the product is inactive.
	StockErrorInsufficientStock StockErrorCode = "insufficient_stock"
	// StockErrorNegativeStock indicates the adjustment would drive stock below zero.
	StockErrorNegativeStock StockErrorCode = "negative_stock"
)

// StockError wraps stock-specific failures with machine readable codes and
// the offending product's identity and availability.
type StockError struct {
	Op          string
	Code        StockErrorCode
	ProductID   string
	ProductName string
	Available   int64
	Requested   int64
	Err         error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Code)
	if e.ProductID != "" {
		msg = fmt.Sprintf("%s: product %s", msg, e.ProductID)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, productID string) *StockError {
	return &StockError{Code: code, ProductID: productID}
}
