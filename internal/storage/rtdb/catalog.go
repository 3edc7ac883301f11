package rtdb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
)

const (
	productsPath = "products"
	statesPath   = "states"
	versionField = "lastProductUpdate"
)

var _ catalog.Repository = (*Catalog)(nil)

// Catalog reads and writes the products collection of the database.
type Catalog struct {
	c   *Client
	now func() time.Time
}

// NewCatalog returns a Catalog on top of c.
func NewCatalog(c *Client) *Catalog {
	return &Catalog{c: c, now: time.Now}
}

// List returns all products sorted by ID.
func (r *Catalog) List(ctx context.Context) ([]catalog.Product, error) {
	data, ok, err := r.c.Get(ctx, productsPath)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	if !ok {
		return nil, nil
	}
	return catalog.DecodeProducts(data)
}

// Version returns the last product update timestamp.
func (r *Catalog) Version(ctx context.Context) (string, error) {
	data, ok, err := r.c.Get(ctx, statesPath+"/"+versionField)
	if err != nil {
		return "", errors.Wrap(err, "get catalog version")
	}
	if !ok {
		return "", nil
	}
	d := jx.DecodeBytes(data)
	if d.Next() != jx.String {
		return string(data), nil
	}
	v, err := d.Str()
	if err != nil {
		return "", errors.Wrap(err, "decode catalog version")
	}
	return v, nil
}

// Upsert merges products into the collection and bumps the version marker.
func (r *Catalog) Upsert(ctx context.Context, products []catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	if err := r.c.Put(ctx, productsPath, catalog.EncodeProductMap(products)); err != nil {
		return errors.Wrap(err, "put products")
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart(versionField)
	e.Str(r.now().UTC().Format(order.TimeLayout))
	e.ObjEnd()
	if err := r.c.Put(ctx, statesPath, e.Bytes()); err != nil {
		return errors.Wrap(err, "bump catalog version")
	}
	return nil
}
