package imagecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func newImageServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("image:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestCache_GetFetchesOnce(t *testing.T) {
	ctx := context.Background()
	srv, hits := newImageServer(t)
	c, err := New(t.TempDir(), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	u := srv.URL + "/p1.JPG"
	assert.False(t, c.Cached(u))

	p, err := c.Get(ctx, u)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, ".jpg"))
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "image:/p1.JPG", string(data))

	p2, err := c.Get(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, p, p2)
	assert.Equal(t, int64(1), hits.Load())
	assert.True(t, c.Cached(u))
}

func TestCache_GetStatusError(t *testing.T) {
	srv, _ := newImageServer(t)
	c, err := New(t.TempDir(), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), srv.URL+"/missing.png")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.False(t, c.Cached(srv.URL+"/missing.png"))
}

func TestCache_Prefetch(t *testing.T) {
	ctx := context.Background()
	srv, hits := newImageServer(t)
	c, err := New(t.TempDir(), WithHTTPClient(srv.Client()), WithConcurrency(2))
	require.NoError(t, err)

	_, err = c.Get(ctx, srv.URL+"/a.png")
	require.NoError(t, err)

	res, err := c.Prefetch(ctx, []string{
		srv.URL + "/a.png",
		srv.URL + "/b.png",
		srv.URL + "/b.png",
		srv.URL + "/c.png",
		srv.URL + "/missing.png",
		"",
	})
	require.NoError(t, err)
	assert.Equal(t, PrefetchResult{Fetched: 2, Cached: 1, Failed: 1}, res)
	assert.Equal(t, int64(4), hits.Load())
	require.NoError(t, c.Check(ctx))
}

func TestCache_PrefetchCanceled(t *testing.T) {
	srv, _ := newImageServer(t)
	c, err := New(t.TempDir(), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Prefetch(ctx, []string{srv.URL + "/a.png"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"https://cdn/x/photo.webp?alt=media":            ".webp",
		"https://cdn/x/photo":                           "",
		"https://cdn/x/photo.a$b":                       "",
		"https://cdn/x/archive.toolong":                 "",
		"https://firebasestorage/o/img%2Fp.PNG?token=1": ".png",
	}
	for in, want := range tests {
		assert.Equal(t, want, extension(in), in)
	}
}

func TestNew_InstrumentsTransport(t *testing.T) {
	srv, _ := newImageServer(t)

	c, err := New(t.TempDir(),
		WithHTTPClient(srv.Client()),
		WithTracerProvider(tracenoop.NewTracerProvider()),
		WithMeterProvider(metricnoop.NewMeterProvider()),
	)
	require.NoError(t, err)
	assert.IsType(t, &otelhttp.Transport{}, c.http.Transport)
	assert.NotSame(t, srv.Client(), c.http)

	_, err = c.Get(context.Background(), srv.URL+"/p.png")
	require.NoError(t, err)

	plain, err := New(t.TempDir(), WithHTTPClient(srv.Client()), WithoutInstrumentation())
	require.NoError(t, err)
	assert.Same(t, srv.Client(), plain.http)
}
