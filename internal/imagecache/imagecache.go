// Package imagecache keeps product images on local disk. Images are fetched
// once on first use and then served from the cache directory.
package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxImageSize bounds a single downloaded image.
const maxImageSize = 32 << 20

// StatusError is returned when an image download gets a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return "fetch " + e.URL + ": " + http.StatusText(e.Code)
}

// Cache is a directory of downloaded images keyed by URL.
type Cache struct {
	dir   string
	http  *http.Client
	lg    *zap.Logger
	limit int

	tp         trace.TracerProvider
	mp         metric.MeterProvider
	instrument bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithHTTPClient sets the client used for downloads. Its transport is
// wrapped with otelhttp unless WithoutInstrumentation is given.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Cache) { c.http = h }
}

// WithoutInstrumentation leaves the HTTP transport as is.
func WithoutInstrumentation() Option {
	return func(c *Cache) { c.instrument = false }
}

// WithTracerProvider sets the tracer provider for downloads.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Cache) { c.tp = tp }
}

// WithMeterProvider sets the meter provider for downloads.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Cache) { c.mp = mp }
}

// WithLogger sets the cache logger.
func WithLogger(lg *zap.Logger) Option {
	return func(c *Cache) { c.lg = lg }
}

// WithConcurrency sets how many downloads Prefetch runs at once.
func WithConcurrency(n int) Option {
	return func(c *Cache) { c.limit = n }
}

// New creates a Cache in dir, creating the directory when missing.
func New(dir string, opts ...Option) (*Cache, error) {
	c := &Cache{
		dir:   dir,
		http:  &http.Client{Timeout: 30 * time.Second},
		lg:    zap.NewNop(),
		limit: 4,

		tp:         otel.GetTracerProvider(),
		mp:         otel.GetMeterProvider(),
		instrument: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limit < 1 {
		c.limit = 1
	}
	if c.instrument {
		h := *c.http
		base := h.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		h.Transport = otelhttp.NewTransport(base,
			otelhttp.WithTracerProvider(c.tp),
			otelhttp.WithMeterProvider(c.mp),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "imagecache." + r.Method
			}),
		)
		c.http = &h
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create %s", dir)
	}
	return c, nil
}

// Path returns the file an image URL is cached in. The file may not exist.
func (c *Cache) Path(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+extension(rawURL))
}

func extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) < 2 || len(ext) > 5 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// Cached reports whether the image is already on disk.
func (c *Cache) Cached(rawURL string) bool {
	_, err := os.Stat(c.Path(rawURL))
	return err == nil
}

// Get returns the local file of the image, downloading it on a miss.
func (c *Cache) Get(ctx context.Context, rawURL string) (string, error) {
	dst := c.Path(rawURL)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	if err := c.fetch(ctx, rawURL, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (c *Cache) fetch(ctx context.Context, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrapf(err, "create request for %s", rawURL)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "fetch %s", rawURL)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxImageSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "download %s", rawURL)
	}
	if n > maxImageSize {
		return errors.Errorf("image %s exceeds %d bytes", rawURL, maxImageSize)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return errors.Wrapf(err, "store %s", rawURL)
	}
	c.lg.Debug("Image cached", zap.String("url", rawURL), zap.Int64("bytes", n))
	return nil
}

// PrefetchResult summarizes a Prefetch run.
type PrefetchResult struct {
	Fetched int
	Cached  int
	Failed  int
}

// Prefetch downloads every image of urls that is not cached yet. Individual
// failures are logged and counted; only context cancellation is returned.
func (c *Cache) Prefetch(ctx context.Context, urls []string) (PrefetchResult, error) {
	var fetched, cached, failed atomic.Int64
	seen := make(map[string]struct{}, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		if c.Cached(u) {
			cached.Add(1)
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := c.fetch(gctx, u, c.Path(u)); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				c.lg.Warn("Image prefetch failed", zap.String("url", u), zap.Error(err))
				return nil
			}
			fetched.Add(1)
			return nil
		})
	}
	err := g.Wait()

	res := PrefetchResult{
		Fetched: int(fetched.Load()),
		Cached:  int(cached.Load()),
		Failed:  int(failed.Load()),
	}
	if err != nil {
		return res, errors.Wrap(err, "prefetch images")
	}
	c.lg.Info("Images prefetched",
		zap.Int("fetched", res.Fetched),
		zap.Int("cached", res.Cached),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// Check verifies that the cache directory is writable.
func (c *Cache) Check(context.Context) error {
	f, err := os.CreateTemp(c.dir, ".check-*")
	if err != nil {
		return errors.Wrapf(err, "write %s", c.dir)
	}
	_ = f.Close()
	return os.Remove(f.Name())
}
