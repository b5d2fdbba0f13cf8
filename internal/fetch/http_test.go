package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/market-scanner/internal/resilience"
)

func newTestHTTP() *HTTP {
	return NewHTTP(HTTPOptions{
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		DefaultRate: 100,
		Burst:       100,
	})
}

func serverHost(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Host
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	h := newTestHTTP()
	body, err := h.Fetch(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestFetch_429IsTransientWithRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	h := newTestHTTP()
	_, err := h.Fetch(context.Background(), srv.URL+"/limited")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))

	after, ok := resilience.RetryAfterHint(err)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, after)
}

func TestFetch_429HalvesHostRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	h := newTestHTTP()
	_, err := h.Fetch(context.Background(), srv.URL+"/limited")
	require.Error(t, err)

	lim := h.limiter(serverHost(t, srv))
	assert.InDelta(t, 50.0, float64(lim.Limit()), 0.1)
}

func TestFetch_SuccessRaisesHostRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	h := newTestHTTP()
	body, err := h.Fetch(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	body.Close()

	lim := h.limiter(serverHost(t, srv))
	assert.InDelta(t, 120.0, float64(lim.Limit()), 0.1)
}

func TestFetch_RetryAfterHTTPDateIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "Wed, 21 Oct 2026 07:28:00 GMT")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	h := newTestHTTP()
	_, err := h.Fetch(context.Background(), srv.URL+"/limited")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))

	_, ok := resilience.RetryAfterHint(err)
	assert.False(t, ok)
}

func TestFetch_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := newTestHTTP()
	_, err := h.Fetch(context.Background(), srv.URL+"/down")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestFetch_NotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := newTestHTTP()
	_, err := h.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestFetch_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	h := newTestHTTP()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Fetch(ctx, srv.URL+"/data")
	require.Error(t, err)
}

func TestLimiter_PerHostOverride(t *testing.T) {
	h := NewHTTP(HTTPOptions{
		DefaultRate: 100,
		Burst:       100,
		PerHost:     map[string]rate.Limit{"slow.example.com": 2},
	})

	assert.InDelta(t, 2.0, float64(h.limiter("slow.example.com").Limit()), 0.01)
	assert.InDelta(t, 100.0, float64(h.limiter("other.example.com").Limit()), 0.01)
}

func TestLimiter_ReusedAcrossCalls(t *testing.T) {
	h := newTestHTTP()
	first := h.limiter("api.example.com")
	first.OnRateLimit()
	assert.Same(t, first, h.limiter("api.example.com"))
}

func TestNewHTTP_Defaults(t *testing.T) {
	h := NewHTTP(HTTPOptions{})
	assert.Equal(t, "market-scanner/1.0", h.opts.UserAgent)
	assert.Equal(t, 30*time.Second, h.opts.Timeout)
	assert.InDelta(t, 10.0, float64(h.opts.DefaultRate), 0.01)
}

func TestAdaptiveLimiter_OnSuccessCapsAt2x(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 10)
	for range 20 {
		lim.OnSuccess()
	}
	assert.InDelta(t, 20.0, float64(lim.Limit()), 0.1)
}

func TestAdaptiveLimiter_OnRateLimitFloorsAtQuarter(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 10)
	for range 10 {
		lim.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(lim.Limit()), 0.1)
}

func TestAdaptiveLimiter_RecoversAfterRateLimit(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 10)
	lim.OnRateLimit()
	assert.InDelta(t, 5.0, float64(lim.Limit()), 0.1)

	lim.OnSuccess()
	assert.InDelta(t, 6.0, float64(lim.Limit()), 0.1)
}
