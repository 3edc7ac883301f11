package memory

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync"

	"github.com/xenking/storefront/internal/domain/catalog"
)

var _ catalog.Repository = (*Catalog)(nil)

// Catalog is an in-memory product catalog. Every Upsert bumps its version.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]catalog.Product
	version  int
}

// NewCatalog returns a catalog holding products.
func NewCatalog(products ...catalog.Product) *Catalog {
	c := &Catalog{products: map[string]catalog.Product{}}
	if len(products) > 0 {
		c.upsert(products)
	}
	return c
}

// List returns the products sorted by ID.
func (c *Catalog) List(context.Context) ([]catalog.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]catalog.Product, 0, len(c.products))
	for _, p := range c.products {
		p.Images = slices.Clone(p.Images)
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b catalog.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// Version returns the update counter, or "" before the first Upsert.
func (c *Catalog) Version(context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.version == 0 {
		return "", nil
	}
	return strconv.Itoa(c.version), nil
}

// Upsert inserts or replaces products by ID.
func (c *Catalog) Upsert(_ context.Context, products []catalog.Product) error {
	c.upsert(products)
	return nil
}

func (c *Catalog) upsert(products []catalog.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range products {
		p.Images = slices.Clone(p.Images)
		c.products[p.ID] = p
	}
	c.version++
}
