package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/catalog"
)

const (
	listProductsSQL = `SELECT id, name, alias_name, brand, category, part_no, part_desc, hsn_code,
		mrp, price_min, price_max, images
		FROM products ORDER BY id`

	productsVersionSQL = `SELECT max(updated_at) FROM products`

	upsertProductSQL = `INSERT INTO products (id, name, alias_name, brand, category, part_no, part_desc, hsn_code,
		mrp, price_min, price_max, images)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, alias_name = EXCLUDED.alias_name, brand = EXCLUDED.brand,
			category = EXCLUDED.category, part_no = EXCLUDED.part_no, part_desc = EXCLUDED.part_desc,
			hsn_code = EXCLUDED.hsn_code, mrp = EXCLUDED.mrp, price_min = EXCLUDED.price_min,
			price_max = EXCLUDED.price_max, images = EXCLUDED.images, updated_at = now()`
)

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Version returns the time of the latest product change, or "" for an
// empty catalog.
func (r *ProductRepository) Version(ctx context.Context) (string, error) {
	var last *time.Time
	if err := r.pool.QueryRow(ctx, productsVersionSQL).Scan(&last); err != nil {
		return "", fmt.Errorf("reading products version: %w", err)
	}
	if last == nil {
		return "", nil
	}
	return last.UTC().Format(time.RFC3339Nano), nil
}

// Upsert inserts or replaces products in a single transaction.
func (r *ProductRepository) Upsert(ctx context.Context, products []catalog.Product) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range products {
			images := p.Images
			if images == nil {
				images = []string{}
			}
			batch.Queue(upsertProductSQL,
				p.ID, p.Name, p.AliasName, p.Brand, p.Category, p.PartNo, p.PartDesc, p.HSNCode,
				p.MRP, p.Price.Min, p.Price.Max, images,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting %d products: %w", len(products), err)
		}
		return nil
	})
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.AliasName, &p.Brand, &p.Category, &p.PartNo, &p.PartDesc, &p.HSNCode,
		&p.MRP, &p.Price.Min, &p.Price.Max, &p.Images,
	)
	return p, err
}
