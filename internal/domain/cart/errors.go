package cart

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for draft validation and lifecycle.
var (
	ErrEmptyProductID = errors.New("product id required")
	ErrEmptyDetailKey = errors.New("detail key required")
	ErrEmptyCart      = errors.New("cart is empty")
	ErrSubmitting     = errors.New("order submission in progress")
)

// InvalidQuantityError indicates a quantity that cannot be set on a line item.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s, got %d", e.ProductID, e.Quantity)
}

// UnknownProductError indicates a product that is not in the catalog.
type UnknownProductError struct {
	ProductID string
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// SubmitError is returned by PlaceOrder when the order could not be handed to
// the order store. The draft is kept as it was.
type SubmitError struct {
	OrderID string
	Err     error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("place order %s: %v", e.OrderID, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
