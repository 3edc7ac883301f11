package app

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/imagecache"
	"github.com/xenking/storefront/internal/storage/local"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/rtdb"
	"github.com/xenking/storefront/pkg/health"
)

// Run executes the storefront command line with args. It is the single
// wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, args []string) error {
	ctx = zctx.Base(ctx, lg)
	open := func(ctx context.Context, files []string) (*Runtime, error) {
		cfg, err := LoadConfig(files...)
		if err != nil {
			return nil, err
		}
		return NewRuntime(ctx, cfg, Telemetry{
			Logger:         lg,
			TracerProvider: m.TracerProvider(),
			MeterProvider:  m.MeterProvider(),
		})
	}

	root, c := newRootCommand(open)
	defer c.close()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// Telemetry carries the process logger and telemetry providers into the
// runtime.
type Telemetry struct {
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// KV is the local key-value store shared by the draft and the catalog cache.
type KV interface {
	cart.LocalStore
	catalog.Store
}

// Runtime holds the dependencies the commands operate on.
type Runtime struct {
	cfg     *Config
	lg      *zap.Logger
	local   KV
	remote  order.Store
	repo    catalog.Repository
	orders  *order.Service
	catalog *catalog.Cache
	images  *imagecache.Cache
	checker *health.Checker
	closers []func()

	machine *cart.Machine
}

// NewRuntime opens the stores selected by cfg and wires the services.
func NewRuntime(ctx context.Context, cfg *Config, tel Telemetry) (_ *Runtime, rerr error) {
	lg := tel.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	if tel.TracerProvider == nil {
		tel.TracerProvider = otel.GetTracerProvider()
	}
	if tel.MeterProvider == nil {
		tel.MeterProvider = otel.GetMeterProvider()
	}
	rt := &Runtime{
		cfg:     cfg,
		lg:      lg,
		checker: health.New(),
	}
	defer func() {
		if rerr != nil {
			rt.Close()
		}
	}()

	if err := rt.openLocal(); err != nil {
		return nil, err
	}
	if err := rt.openRemote(ctx, tel); err != nil {
		return nil, err
	}

	orders, err := order.NewService(rt.remote,
		order.WithLogger(lg.Named("orders")),
		order.WithTracerProvider(tel.TracerProvider),
		order.WithMeterProvider(tel.MeterProvider),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	rt.orders = orders

	images, err := imagecache.New(cfg.Images.Dir,
		imagecache.WithLogger(lg.Named("images")),
		imagecache.WithConcurrency(cfg.Images.Concurrency),
		imagecache.WithTracerProvider(tel.TracerProvider),
		imagecache.WithMeterProvider(tel.MeterProvider),
	)
	if err != nil {
		return nil, errors.Wrap(err, "open image cache")
	}
	rt.images = images
	rt.checker.Add("images", cfg.Doctor.Timeout, images.Check)

	cacheOpts := []catalog.CacheOption{catalog.WithCacheLogger(lg.Named("catalog"))}
	if cfg.Images.Prefetch {
		cacheOpts = append(cacheOpts, catalog.WithOnRefresh(rt.prefetchImages))
	}
	rt.catalog = catalog.NewCache(rt.repo, rt.local, cacheOpts...)

	return rt, nil
}

func (rt *Runtime) openLocal() error {
	switch rt.cfg.Local.Driver {
	case DriverMemory:
		rt.local = memory.NewKV()
	default:
		fs, err := local.Open(rt.cfg.Local.Path)
		if err != nil {
			return errors.Wrap(err, "open local store")
		}
		rt.local = fs
		rt.checker.Add("local", rt.cfg.Doctor.Timeout, fs.Check)
	}
	return nil
}

func (rt *Runtime) openRemote(ctx context.Context, tel Telemetry) error {
	cfg := rt.cfg.Remote
	switch cfg.Driver {
	case DriverRTDB:
		opts := []rtdb.Option{
			rtdb.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			rtdb.WithLogger(rt.lg.Named("rtdb")),
			rtdb.WithTracerProvider(tel.TracerProvider),
			rtdb.WithMeterProvider(tel.MeterProvider),
		}
		if cfg.AuthToken != "" {
			opts = append(opts, rtdb.WithAuth(cfg.AuthToken))
		}
		client, err := rtdb.New(cfg.URL, opts...)
		if err != nil {
			return errors.Wrap(err, "create database client")
		}
		rt.remote = client
		rt.repo = rtdb.NewCatalog(client)
		rt.checker.Add("remote", rt.cfg.Doctor.Timeout, client.Ping)
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		rt.closers = append(rt.closers, pool.Close)
		if cfg.Migrate {
			if err := postgres.RunMigrations(ctx, pool); err != nil {
				return errors.Wrap(err, "run migrations")
			}
		}
		docs := postgres.NewDocumentStore(pool)
		rt.remote = docs
		rt.repo = postgres.NewProductRepository(pool)
		rt.checker.Add("remote", rt.cfg.Doctor.Timeout, docs.Ping)
	default:
		rt.remote = memory.NewDocuments()
		rt.repo = memory.NewCatalog()
	}
	return nil
}

func (rt *Runtime) prefetchImages(ctx context.Context, products []catalog.Product) {
	var urls []string
	for _, p := range products {
		urls = append(urls, p.Images...)
	}
	if _, err := rt.images.Prefetch(ctx, urls); err != nil {
		rt.lg.Warn("Image prefetch interrupted", zap.Error(err))
	}
}

// Machine returns the draft order machine, restoring it on first use. When
// catalog validation is enabled and the catalog can be read, additions of
// unknown products are rejected.
func (rt *Runtime) Machine(ctx context.Context) (*cart.Machine, error) {
	if rt.machine != nil {
		return rt.machine, nil
	}
	opts := []cart.Option{cart.WithLogger(rt.lg.Named("cart"))}
	if rt.cfg.Catalog.Validate {
		products, err := rt.catalog.Products(ctx, false)
		switch {
		case err != nil:
			rt.lg.Warn("Catalog unavailable, product validation disabled", zap.Error(err))
		case len(products) == 0:
			rt.lg.Debug("Catalog is empty, product validation disabled")
		default:
			opts = append(opts, cart.WithProductFilter(catalog.NewFilter(products, rt.cfg.Catalog.FilterFPR)))
		}
	}
	m, err := cart.New(ctx, rt.local, rt.orders, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "restore draft")
	}
	rt.machine = m
	return m, nil
}

// Config returns the runtime configuration.
func (rt *Runtime) Config() *Config { return rt.cfg }

// Orders returns the order service.
func (rt *Runtime) Orders() *order.Service { return rt.orders }

// Catalog returns the cached product catalog.
func (rt *Runtime) Catalog() *catalog.Cache { return rt.catalog }

// Images returns the image cache.
func (rt *Runtime) Images() *imagecache.Cache { return rt.images }

// Check runs the dependency checks.
func (rt *Runtime) Check(ctx context.Context) health.Report {
	return rt.checker.Run(ctx)
}

// Close releases the opened stores.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
