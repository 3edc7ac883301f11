// Package catalog holds the product catalog as seen by the storefront: the
// product records, their price ranges, a locally cached copy that is only
// refreshed when the remote catalog changes, and a compact membership filter
// used to reject unknown products before they reach the cart.
package catalog

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrInvalidPriceRange is returned when a price range cannot be parsed.
var ErrInvalidPriceRange = errors.New("invalid price range")

// Product represents a catalog item available for ordering.
type Product struct {
	ID        string
	Name      string
	AliasName string
	Brand     string
	Category  string
	PartNo    string
	PartDesc  string
	HSNCode   string
	MRP       decimal.Decimal
	Price     PriceRange
	Images    []string
}

// PriceRange is the negotiable unit price band of a product. A zero range
// means the product has no price.
type PriceRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// ParsePriceRange parses "min-max" or a single "price". An empty string
// yields the zero range.
func ParsePriceRange(s string) (PriceRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PriceRange{}, nil
	}
	lo, hi, found := strings.Cut(s, "-")
	if !found {
		hi = lo
	}
	minPrice, err := decimal.NewFromString(strings.TrimSpace(lo))
	if err != nil {
		return PriceRange{}, errors.Wrapf(ErrInvalidPriceRange, "%q", s)
	}
	maxPrice, err := decimal.NewFromString(strings.TrimSpace(hi))
	if err != nil {
		return PriceRange{}, errors.Wrapf(ErrInvalidPriceRange, "%q", s)
	}
	if minPrice.IsNegative() || maxPrice.LessThan(minPrice) {
		return PriceRange{}, errors.Wrapf(ErrInvalidPriceRange, "%q", s)
	}
	return PriceRange{Min: minPrice, Max: maxPrice}, nil
}

// IsZero reports whether the range carries no price.
func (r PriceRange) IsZero() bool {
	return r.Min.IsZero() && r.Max.IsZero()
}

// String formats the range as "min-max", or "" for the zero range.
func (r PriceRange) String() string {
	if r.IsZero() {
		return ""
	}
	return r.Min.String() + "-" + r.Max.String()
}

// Repository defines read operations for the remote product catalog.
type Repository interface {
	// List returns every product.
	List(ctx context.Context) ([]Product, error)
	// Version returns an opaque marker that changes whenever the catalog
	// changes. An empty marker means the catalog never recorded an update.
	Version(ctx context.Context) (string, error)
}
