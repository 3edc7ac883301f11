package order

import "slices"

// Index is the list of order IDs attributed to a user or a customer.
type Index struct {
	Orders []string
}

// Append adds orderID unless it is already listed, so that resubmitting an
// order after a partial failure does not duplicate it. It reports whether the
// index changed.
func (ix *Index) Append(orderID string) bool {
	if slices.Contains(ix.Orders, orderID) {
		return false
	}
	ix.Orders = append(ix.Orders, orderID)
	return true
}
