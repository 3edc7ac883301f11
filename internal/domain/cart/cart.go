// Package cart implements the draft order: the in-progress cart and its
// additional details, persisted locally after every change and handed to the
// order service when placed.
package cart

import (
	"maps"
	"math"
	"slices"

	"github.com/xenking/storefront/internal/domain/order"
)

// LineItem is a (product, quantity) pair of the draft.
type LineItem = order.LineItem

// State is the draft order. Items holds at most one entry per product and
// keeps insertion order.
type State struct {
	OrderID string
	Items   []LineItem
	Details map[string]string
}

// Fresh returns an empty draft for orderID.
func Fresh(orderID string) State {
	return State{OrderID: orderID, Details: map[string]string{}}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{
		OrderID: s.OrderID,
		Items:   slices.Clone(s.Items),
		Details: maps.Clone(s.Details),
	}
	if out.Details == nil {
		out.Details = map[string]string{}
	}
	return out
}

func (s State) find(productID string) int {
	return slices.IndexFunc(s.Items, func(it LineItem) bool { return it.ProductID == productID })
}

// QuantityOf returns the quantity of productID, or 0 when it is not in the
// draft.
func (s State) QuantityOf(productID string) int {
	if i := s.find(productID); i >= 0 {
		return s.Items[i].Quantity
	}
	return 0
}

// Contains reports whether productID has a line item, including one with
// quantity 0.
func (s State) Contains(productID string) bool {
	return s.find(productID) >= 0
}

// TotalQuantity returns the sum of all line item quantities.
func (s State) TotalQuantity() int {
	total := 0
	for _, it := range s.Items {
		total += it.Quantity
	}
	return total
}

// Quantities returns the line items as a product ID to quantity map.
func (s State) Quantities() map[string]int {
	out := make(map[string]int, len(s.Items))
	for _, it := range s.Items {
		out[it.ProductID] = it.Quantity
	}
	return out
}

// Action is a state transition request consumed by Reduce.
type Action interface {
	action()
}

// AddItem sets the quantity of a product, adding a line item when absent.
type AddItem struct {
	ProductID string
	Quantity  int
}

// RemoveItem deletes the line item of a product.
type RemoveItem struct {
	ProductID string
}

// ChangeQuantity adds Delta to an existing line item, clamped at zero.
type ChangeQuantity struct {
	ProductID string
	Delta     int
}

// SetDetail upserts an additional detail.
type SetDetail struct {
	Key   string
	Value string
}

// Reset replaces the draft with an empty one for OrderID.
type Reset struct {
	OrderID string
}

func (AddItem) action()        {}
func (RemoveItem) action()     {}
func (ChangeQuantity) action() {}
func (SetDetail) action()      {}
func (Reset) action()          {}

// Reduce returns the state that results from applying a to s. It does not
// modify s. Input validation is the caller's job; Reduce only keeps the
// structural invariants (unique products, non-negative quantities).
func Reduce(s State, a Action) State {
	next := s.Clone()
	switch a := a.(type) {
	case AddItem:
		qty := max(a.Quantity, 0)
		if i := next.find(a.ProductID); i >= 0 {
			next.Items[i].Quantity = qty
		} else {
			next.Items = append(next.Items, LineItem{ProductID: a.ProductID, Quantity: qty})
		}
	case RemoveItem:
		next.Items = slices.DeleteFunc(next.Items, func(it LineItem) bool { return it.ProductID == a.ProductID })
	case ChangeQuantity:
		if i := next.find(a.ProductID); i >= 0 {
			next.Items[i].Quantity = addClamped(next.Items[i].Quantity, a.Delta)
		}
	case SetDetail:
		next.Details[a.Key] = a.Value
	case Reset:
		next = Fresh(a.OrderID)
	}
	return next
}

// addClamped returns q+delta limited to [0, MaxInt].
func addClamped(q, delta int) int {
	if delta > 0 && q > math.MaxInt-delta {
		return math.MaxInt
	}
	return max(q+delta, 0)
}
