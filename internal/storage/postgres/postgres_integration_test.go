//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "storefront",
				"POSTGRES_PASSWORD": "storefront",
				"POSTGRES_DB":       "storefront",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pg.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://storefront:storefront@%s:%s/storefront?sslmode=disable", host, port.Port())
	pool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer pool.Close()

	if err := RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// Migrations must be re-runnable.
	if err := RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrations rerun: %v", err)
	}

	return m.Run()
}

func TestDocumentStore_MergeAndIndex(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore(pool)
	require.NoError(t, store.Ping(ctx))

	_, ok, err := store.Get(ctx, "orders/missing")
	require.NoError(t, err)
	assert.False(t, ok)

	svc, err := order.NewService(store)
	require.NoError(t, err)

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := order.NewRecord("PG1", []order.LineItem{{ProductID: "P1", Quantity: 2}}, map[string]string{
		order.DetailCreatedBy:  "U1",
		order.DetailCustomerID: "C1",
	}, now)
	require.NoError(t, svc.Submit(ctx, rec))
	require.NoError(t, svc.Submit(ctx, rec))

	got, err := svc.Get(ctx, "PG1")
	require.NoError(t, err)
	assert.Equal(t, rec.Items, got.Items)
	assert.Equal(t, order.StatusPending, got.Status)

	list, err := svc.ListByCustomer(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.Put(ctx, "scratch", []byte(`{"a":1,"b":2}`)))
	require.NoError(t, store.Put(ctx, "scratch", []byte(`{"b":null,"c":3}`)))
	doc, ok, err := store.Get(ctx, "scratch")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1,"c":3}`, string(doc))

	require.Error(t, store.Put(ctx, "scratch", []byte(`[1]`)))
}

func TestProductRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(pool)

	v0, err := repo.Version(ctx)
	require.NoError(t, err)

	products := []catalog.Product{
		{
			ID: "P1", Name: "Brake pad", Brand: "Bosch", MRP: decimal.RequireFromString("15.00"),
			Price:  catalog.PriceRange{Min: decimal.RequireFromString("10"), Max: decimal.RequireFromString("12.50")},
			Images: []string{"https://img/p1.jpg"},
		},
		{ID: "P2", Name: "Wiper"},
	}
	require.NoError(t, repo.Upsert(ctx, products))

	v1, err := repo.Version(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, v1)
	assert.NotEqual(t, v0, v1)

	got, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Bosch", got[0].Brand)
	assert.True(t, got[0].Price.Max.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, []string{"https://img/p1.jpg"}, got[0].Images)
	assert.True(t, got[1].Price.IsZero())
	assert.Empty(t, got[1].Images)
}
