package catalog

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/xenking/storefront/internal/domain/cart"
)

var _ cart.ProductFilter = (*Filter)(nil)

// DefaultFilterFPR is the false positive rate used by NewFilter.
const DefaultFilterFPR = 0.001

// Filter is a probabilistic set of product IDs. MayContain never returns
// false for a product the filter was built from.
type Filter struct {
	bf *bloom.BloomFilter
}

// NewFilter builds a Filter over the IDs of products.
func NewFilter(products []Product, fpr float64) *Filter {
	if fpr <= 0 || fpr >= 1 {
		fpr = DefaultFilterFPR
	}
	bf := bloom.NewWithEstimates(uint(max(len(products), 1)), fpr)
	for _, p := range products {
		bf.AddString(p.ID)
	}
	return &Filter{bf: bf}
}

// MayContain reports whether id may be a catalog product.
func (f *Filter) MayContain(id string) bool {
	return f.bf.TestString(id)
}
