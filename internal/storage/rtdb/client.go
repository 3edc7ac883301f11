// Package rtdb talks to a Firebase-style Realtime Database over its REST API:
// every path is addressed as {base}/{path}.json and a missing node reads as
// the JSON literal null.
package rtdb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Store = (*Client)(nil)

// maxBody bounds the response bodies read from the database.
const maxBody = 64 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
}

// Client is a Realtime Database REST client.
type Client struct {
	base       *url.URL
	auth       string
	http       *http.Client
	lg         *zap.Logger
	tp         trace.TracerProvider
	mp         metric.MeterProvider
	instrument bool
}

// Option configures a Client.
type Option func(*Client)

// WithAuth sets the token sent as the auth query parameter.
func WithAuth(token string) Option {
	return func(c *Client) { c.auth = token }
}

// WithHTTPClient sets the underlying HTTP client. Its transport is wrapped
// with otelhttp unless WithoutInstrumentation is given.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithoutInstrumentation leaves the HTTP transport as is.
func WithoutInstrumentation() Option {
	return func(c *Client) { c.instrument = false }
}

// WithLogger sets the client logger.
func WithLogger(lg *zap.Logger) Option {
	return func(c *Client) { c.lg = lg }
}

// WithTracerProvider sets the tracer provider for outgoing requests.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tp = tp }
}

// WithMeterProvider sets the meter provider for outgoing requests.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) { c.mp = mp }
}

// New creates a Client for the database at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("database url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:       u,
		http:       &http.Client{Timeout: 15 * time.Second},
		lg:         zap.NewNop(),
		tp:         otel.GetTracerProvider(),
		mp:         otel.GetMeterProvider(),
		instrument: true,
	}
	for _, opt := range opts {
		opt(c)
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
				return "rtdb." + r.Method
			}),
		)
		c.http = &h
	}
	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	escaped := make([]string, len(segs))
	for i, s := range segs {
		escaped[i] = url.PathEscape(s)
	}
	u := *c.base
	u.RawPath = strings.TrimSuffix(u.EscapedPath(), "/") + "/" + strings.Join(escaped, "/") + ".json"
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.Join(segs, "/") + ".json"
	if query == nil {
		query = url.Values{}
	}
	if c.auth != "" {
		query.Set("auth", c.auth)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), r)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s %s", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: errorMessage(data)}
	}
	c.lg.Debug("Database request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
	)
	return data, nil
}

// errorMessage extracts the "error" field of an error response body.
func errorMessage(data []byte) string {
	var msg string
	_ = jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "error" || d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		msg = v
		return err
	})
	if msg == "" && !jx.Valid(data) {
		msg = strings.TrimSpace(string(data))
	}
	return msg
}

// Get reads the node at path. A null node is reported as absent.
func (c *Client) Get(ctx context.Context, path string) ([]byte, bool, error) {
	data, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, false, err
	}
	if isNull(data) {
		return nil, false, nil
	}
	return data, true, nil
}

// Put merges the top-level fields of doc into the node at path (PATCH).
func (c *Client) Put(ctx context.Context, path string, doc []byte) error {
	_, err := c.do(ctx, http.MethodPatch, path, nil, doc)
	return err
}

// Set replaces the node at path (PUT).
func (c *Client) Set(ctx context.Context, path string, doc []byte) error {
	_, err := c.do(ctx, http.MethodPut, path, nil, doc)
	return err
}

// Ping performs a shallow read of the database root.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "", url.Values{"shallow": {"true"}}, nil)
	return errors.Wrap(err, "ping database")
}

func isNull(data []byte) bool {
	return len(bytes.TrimSpace(data)) == 0 || jx.DecodeBytes(data).Next() == jx.Null
}
