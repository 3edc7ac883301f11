package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Local store keys of the cached catalog.
const (
	ProductsKey = "products"
	VersionKey  = "lastProductUpdate"
)

// Store is the local key-value storage holding the cached catalog.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
}

// Cache serves the product catalog from the local store, fetching it from the
// repository only when the remote version marker differs from the cached one.
type Cache struct {
	repo      Repository
	store     Store
	lg        *zap.Logger
	onRefresh func(ctx context.Context, products []Product)
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the cache logger.
func WithCacheLogger(lg *zap.Logger) CacheOption {
	return func(c *Cache) { c.lg = lg }
}

// WithOnRefresh registers fn to run after the catalog was fetched from the
// repository, e.g. to prefetch product images.
func WithOnRefresh(fn func(ctx context.Context, products []Product)) CacheOption {
	return func(c *Cache) { c.onRefresh = fn }
}

// NewCache creates a Cache over repo and store.
func NewCache(repo Repository, store Store, opts ...CacheOption) *Cache {
	c := &Cache{repo: repo, store: store, lg: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Products returns the catalog. With force set the repository is always
// queried. When the version marker cannot be read, the cached catalog is
// served if there is one.
func (c *Cache) Products(ctx context.Context, force bool) ([]Product, error) {
	remote, err := c.repo.Version(ctx)
	if err != nil {
		if cached, ok := c.cached(ctx); ok && !force {
			c.lg.Warn("Catalog version unavailable, serving cached products", zap.Error(err))
			return cached, nil
		}
		return nil, errors.Wrap(err, "read catalog version")
	}

	if !force {
		local, ok, err := c.store.Load(ctx, VersionKey)
		if err != nil {
			return nil, errors.Wrap(err, "load cached version")
		}
		if ok && string(local) == remote {
			if cached, ok := c.cached(ctx); ok {
				c.lg.Debug("Serving cached catalog", zap.String("version", remote), zap.Int("products", len(cached)))
				return cached, nil
			}
		}
	}

	products, err := c.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	if err := c.store.Save(ctx, ProductsKey, EncodeProducts(products)); err != nil {
		return nil, errors.Wrap(err, "save products")
	}
	if err := c.store.Save(ctx, VersionKey, []byte(remote)); err != nil {
		return nil, errors.Wrap(err, "save version")
	}
	c.lg.Info("Catalog refreshed", zap.String("version", remote), zap.Int("products", len(products)))

	if c.onRefresh != nil {
		c.onRefresh(ctx, products)
	}
	return products, nil
}

func (c *Cache) cached(ctx context.Context) ([]Product, bool) {
	data, ok, err := c.store.Load(ctx, ProductsKey)
	if err != nil || !ok {
		return nil, false
	}
	products, err := DecodeProducts(data)
	if err != nil {
		c.lg.Warn("Discarding unreadable catalog cache", zap.Error(err))
		return nil, false
	}
	return products, true
}
