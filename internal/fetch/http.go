// Package fetch downloads and parses reference feeds over HTTP and FTP:
// JSON, CSV, RSS/Atom, and XLSX payloads, optionally inside ZIP archives.
package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/market-scanner/internal/resilience"
)

// AdaptiveLimiter is a per-host rate limiter that auto-tunes: successes
// raise the rate by 20% up to 2x the initial, a 429 halves it down to a
// quarter of the initial.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	max     rate.Limit
	min     rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter creates a limiter tuned around the initial rate.
func NewAdaptiveLimiter(initial rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(initial, burst),
		max:     initial * 2,
		min:     initial / 4,
		current: initial,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess nudges the rate up.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.current * 1.2
	if next > a.max {
		next = a.max
	}
	a.current = next
	a.limiter.SetLimit(next)
}

// OnRateLimit halves the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.current * 0.5
	if next < a.min {
		next = a.min
	}
	a.current = next
	a.limiter.SetLimit(next)
	zap.L().Warn("fetch: halving rate after 429", zap.Float64("rate", float64(next)))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// HTTPOptions configures the HTTP downloader.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration

	// PerHost overrides the sustained request rate for specific hosts.
	PerHost map[string]rate.Limit

	// DefaultRate applies to hosts without an override. Default 10 rps.
	DefaultRate rate.Limit
	Burst       int
}

// HTTP is a rate-limited downloader. It classifies retryable responses as
// resilience.TransientError (with any Retry-After hint attached) and does
// not retry internally; attempt counting stays with the caller's policy.
type HTTP struct {
	client *http.Client
	opts   HTTPOptions

	mu    sync.Mutex
	hosts map[string]*AdaptiveLimiter
}

// NewHTTP creates an HTTP downloader.
func NewHTTP(opts HTTPOptions) *HTTP {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "market-scanner/1.0"
	}
	if opts.DefaultRate == 0 {
		opts.DefaultRate = 10
	}
	if opts.Burst == 0 {
		opts.Burst = int(opts.DefaultRate)
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTP{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:  opts,
		hosts: make(map[string]*AdaptiveLimiter),
	}
}

// limiter returns the host's adaptive limiter, creating one on first use.
func (h *HTTP) limiter(host string) *AdaptiveLimiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if lim, ok := h.hosts[host]; ok {
		return lim
	}
	r := h.opts.DefaultRate
	if override, ok := h.opts.PerHost[host]; ok {
		r = override
	}
	burst := h.opts.Burst
	if int(r) > burst {
		burst = int(r)
	}
	lim := NewAdaptiveLimiter(r, burst)
	h.hosts[host] = lim
	return lim
}

// Fetch downloads the URL and returns the response body. The caller must
// close it.
func (h *HTTP) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %s", rawURL)
	}
	lim := h.limiter(u.Host)
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetch: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", h.opts.UserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: get %s", rawURL)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		lim.OnSuccess()
		return resp.Body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		_ = resp.Body.Close()
		lim.OnRateLimit()
		return nil, resilience.TransientAfter(
			eris.Errorf("fetch: 429 from %s", u.Host),
			resp.StatusCode,
			retryAfter(resp),
		)

	case resilience.TransientStatus(resp.StatusCode):
		_ = resp.Body.Close()
		return nil, resilience.Transient(
			eris.Errorf("fetch: %d from %s", resp.StatusCode, rawURL),
			resp.StatusCode,
		)

	default:
		_ = resp.Body.Close()
		return nil, eris.Errorf("fetch: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
}

// retryAfter parses a Retry-After header given in seconds. HTTP-date values
// are ignored.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
