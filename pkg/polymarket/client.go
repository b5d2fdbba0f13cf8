// Package polymarket provides a client for the Polymarket Gamma markets API.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-scanner/internal/resilience"
)

// DefaultBaseURL is the public Gamma API endpoint. No credentials required.
const DefaultBaseURL = "https://gamma-api.polymarket.com"

// pageSize is the per-request market count; Gamma pages with limit/offset.
const pageSize = 100

// Client defines the Gamma API operations the scanner uses.
type Client interface {
	// Markets fetches up to max active binary markets ordered by volume.
	Markets(ctx context.Context, max int) ([]Market, error)
}

// Market is one market as the Gamma API returns it. Numeric fields arrive as
// strings, and Outcomes/OutcomePrices are JSON arrays encoded *inside* a JSON
// string; the accessor methods below decode them.
type Market struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Slug          string `json:"slug"`
	Category      string `json:"category"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
	Volume        string `json:"volume"`
	Liquidity     string `json:"liquidity"`
	EndDate       string `json:"endDate"`
	Active        bool   `json:"active"`
	Closed        bool   `json:"closed"`
}

// YesPrice decodes the outcome arrays and returns the YES probability.
// Reports false for malformed payloads or markets without a YES outcome.
func (m Market) YesPrice() (float64, bool) {
	var outcomes, prices []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return 0, false
	}
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil {
		return 0, false
	}
	if len(outcomes) == 0 || len(outcomes) != len(prices) {
		return 0, false
	}

	idx := 0
	for i, o := range outcomes {
		if strings.EqualFold(o, "yes") {
			idx = i
			break
		}
	}
	p, err := strconv.ParseFloat(prices[idx], 64)
	if err != nil || p < 0 || p > 1 {
		return 0, false
	}
	return p, true
}

// VolumeUSD parses the stringified volume; 0 when absent or malformed.
func (m Market) VolumeUSD() float64 {
	v, err := strconv.ParseFloat(m.Volume, 64)
	if err != nil {
		return 0
	}
	return v
}

// LiquidityUSD parses the stringified liquidity; 0 when absent or malformed.
func (m Market) LiquidityUSD() float64 {
	v, err := strconv.ParseFloat(m.Liquidity, 64)
	if err != nil {
		return 0
	}
	return v
}

// End parses the close timestamp; nil when absent or malformed.
func (m Market) End() *time.Time {
	if m.EndDate == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, m.EndDate)
	if err != nil {
		return nil
	}
	return &t
}

// URL returns the public market page.
func (m Market) URL() string {
	if m.Slug == "" {
		return ""
	}
	return "https://polymarket.com/market/" + m.Slug
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Gamma API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Markets pages through /markets until max markets are collected or a short
// page signals the end. Failures classify as transient where the caller's
// retry policy should re-attempt; the client itself never retries.
func (c *httpClient) Markets(ctx context.Context, max int) ([]Market, error) {
	if max <= 0 {
		max = 500
	}

	var all []Market
	offset := 0
	for len(all) < max {
		limit := pageSize
		if remaining := max - len(all); remaining < limit {
			limit = remaining
		}

		page, err := c.page(ctx, limit, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		offset += len(page)
		if len(page) < limit {
			break
		}
	}
	return all, nil
}

func (c *httpClient) page(ctx context.Context, limit, offset int) ([]Market, error) {
	url := fmt.Sprintf(
		"%s/markets?active=true&closed=false&order=volume&ascending=false&limit=%d&offset=%d",
		c.baseURL, limit, offset,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "polymarket: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "polymarket: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "polymarket: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.Transient(
			eris.New("polymarket: rate limited"), resp.StatusCode)
	case resilience.TransientStatus(resp.StatusCode):
		return nil, resilience.Transient(
			eris.Errorf("polymarket: status %d", resp.StatusCode), resp.StatusCode)
	default:
		return nil, eris.Errorf("polymarket: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	// Gamma returns a bare JSON array, not a wrapper object.
	var page []Market
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, eris.Wrap(err, "polymarket: unmarshal markets")
	}
	return page, nil
}
