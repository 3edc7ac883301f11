package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Status is the lifecycle state of a submitted order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ErrInvalidStatus is returned when a status string is not one of the known statuses.
var ErrInvalidStatus = errors.New("invalid order status")

// ParseStatus converts s to a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusCompleted, StatusCancelled:
		return st, nil
	default:
		return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
	}
}

// Keys of Record.Details written by the storefront.
const (
	DetailCreatedBy  = "created_by"
	DetailUpdatedBy  = "updated_by"
	DetailOrderedBy  = "ordered_by"
	DetailCustomerID = "customerId"
	DetailOrderNote  = "orderNote"
	DetailOrderType  = "order_type"
)

// Order types recorded under DetailOrderType.
const (
	TypeSalesAssisted = "sales_assisted"
	TypeSelfService   = "self_service"
)

// LineItem is a (product, quantity) pair of a submitted order.
type LineItem struct {
	ProductID string
	Quantity  int
}

// Record is the document stored at OrderPath(OrderID).
type Record struct {
	OrderID   string
	Items     []LineItem
	Details   map[string]string
	Status    Status
	CreatedOn time.Time
	UpdatedOn time.Time
	Timeline  Timeline
}

// CreatedBy returns the user attribution of the order, if any.
func (r *Record) CreatedBy() string { return r.Details[DetailCreatedBy] }

// CustomerID returns the customer the order was placed for, if any.
func (r *Record) CustomerID() string { return r.Details[DetailCustomerID] }

// TotalQuantity returns the sum of all line item quantities.
func (r *Record) TotalQuantity() int {
	total := 0
	for _, it := range r.Items {
		total += it.Quantity
	}
	return total
}

// Store is the remote document store holding orders and order indexes.
//
// Put merges the top-level fields of doc into the document at path, creating
// it when absent. Get reports false when nothing is stored at path.
type Store interface {
	Get(ctx context.Context, path string) ([]byte, bool, error)
	Put(ctx context.Context, path string, doc []byte) error
}

// OrderPath returns the document path of an order record.
func OrderPath(orderID string) string { return "orders/" + orderID }

// UserIndexPath returns the document path of a user's order index.
func UserIndexPath(userID string) string { return "userOrders/" + userID }

// CustomerIndexPath returns the document path of a customer's order index.
func CustomerIndexPath(customerID string) string { return "customerOrders/" + customerID }
