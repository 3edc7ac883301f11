package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/rtdb"
)

type upserter interface {
	Upsert(ctx context.Context, products []catalog.Product) error
}

func main() {
	var (
		driver       string
		databaseURL  string
		rtdbURL      string
		authToken    string
		productsFile string
	)

	flag.StringVar(&driver, "driver", "postgres", "target store: postgres or rtdb")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&rtdbURL, "rtdb-url", "", "Realtime Database base URL (or STOREFRONT_REMOTE_URL env)")
	flag.StringVar(&authToken, "auth-token", "", "Realtime Database auth token (or STOREFRONT_REMOTE_AUTH_TOKEN env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if rtdbURL == "" {
		rtdbURL = os.Getenv("STOREFRONT_REMOTE_URL")
	}
	if authToken == "" {
		authToken = os.Getenv("STOREFRONT_REMOTE_AUTH_TOKEN")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, driver, databaseURL, rtdbURL, authToken, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, driver, databaseURL, rtdbURL, authToken, productsFile string) error {
	products, err := readProducts(productsFile)
	if err != nil {
		return err
	}

	var target upserter
	switch driver {
	case "postgres":
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		slog.Info("connecting to database")

		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		slog.Info("running migrations")

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		target = postgres.NewProductRepository(pool)
	case "rtdb":
		if rtdbURL == "" {
			return errors.New("database URL is required: set --rtdb-url or STOREFRONT_REMOTE_URL")
		}
		var opts []rtdb.Option
		if authToken != "" {
			opts = append(opts, rtdb.WithAuth(authToken))
		}
		client, err := rtdb.New(rtdbURL, opts...)
		if err != nil {
			return errors.Wrap(err, "create database client")
		}
		if err := client.Ping(ctx); err != nil {
			return err
		}
		target = rtdb.NewCatalog(client)
	default:
		return errors.Errorf("unknown driver %q", driver)
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	if err := target.Upsert(ctx, products); err != nil {
		return errors.Wrap(err, "upsert products")
	}

	for _, p := range products {
		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("name", p.Name),
			slog.String("price_range", p.Price.String()),
		)
	}

	return nil
}

func readProducts(path string) ([]catalog.Product, error) {
	slog.Info("reading products file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}

	products, err := catalog.DecodeProducts(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse products file")
	}
	for _, p := range products {
		if p.ID == "" {
			return nil, errors.New("parse products file: product without id")
		}
	}
	return products, nil
}
