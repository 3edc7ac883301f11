package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	getDocumentSQL = `SELECT doc FROM documents WHERE path = $1`

	// Top-level fields of the new document replace stored ones; null fields
	// are dropped, which deletes them.
	putDocumentSQL = `INSERT INTO documents (path, doc) VALUES ($1, jsonb_strip_nulls($2::jsonb))
		ON CONFLICT (path) DO UPDATE
		SET doc = jsonb_strip_nulls(documents.doc || EXCLUDED.doc), updated_at = now()`
)

var _ order.Store = (*DocumentStore)(nil)

// DocumentStore implements order.Store on the documents table.
type DocumentStore struct {
	pool *pgxpool.Pool
}

// NewDocumentStore returns a DocumentStore that uses the given pool.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// Get returns the document stored at path.
func (s *DocumentStore) Get(ctx context.Context, path string) ([]byte, bool, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, getDocumentSQL, path).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting document %q: %w", path, err)
	}
	return doc, true, nil
}

// Put merges the top-level fields of doc into the document at path.
func (s *DocumentStore) Put(ctx context.Context, path string, doc []byte) error {
	if !jx.Valid(doc) || jx.DecodeBytes(doc).Next() != jx.Object {
		return errors.Errorf("document %q must be a JSON object", path)
	}
	if _, err := s.pool.Exec(ctx, putDocumentSQL, path, doc); err != nil {
		return fmt.Errorf("putting document %q: %w", path, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errors.Wrap(err, "ping postgres")
	}
	return nil
}
