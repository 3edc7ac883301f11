package catalog

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Estimate is the price band of a cart computed from product price ranges.
type Estimate struct {
	Min decimal.Decimal
	Max decimal.Decimal
	// Unpriced lists products of the cart that are unknown or have no price
	// range, sorted by ID.
	Unpriced []string
}

// EstimateTotal sums min and max prices of quantities over products.
func EstimateTotal(products []Product, quantities map[string]int) Estimate {
	byID := make(map[string]*Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	est := Estimate{Min: decimal.Zero, Max: decimal.Zero}
	for id, qty := range quantities {
		if qty <= 0 {
			continue
		}
		p, ok := byID[id]
		if !ok || p.Price.IsZero() {
			est.Unpriced = append(est.Unpriced, id)
			continue
		}
		q := decimal.NewFromInt(int64(qty))
		est.Min = est.Min.Add(p.Price.Min.Mul(q))
		est.Max = est.Max.Add(p.Price.Max.Mul(q))
	}
	slices.Sort(est.Unpriced)
	return est
}
