// Package kalshi provides a client for the Kalshi trade API v2.
package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-scanner/internal/resilience"
)

// DefaultBaseURL is the public trade API v2 endpoint. Market data reads need
// no credentials.
const DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

// pageSize is the per-request market count; the API pages with a cursor.
const pageSize = 200

// Client defines the Kalshi operations the scanner uses.
type Client interface {
	// Markets fetches up to max open markets.
	Markets(ctx context.Context, max int) ([]Market, error)
}

// Market is one market as the trade API returns it. Prices are in cents.
type Market struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Category    string `json:"category"`
	Status      string `json:"status"`

	YesBid    int `json:"yes_bid"`
	YesAsk    int `json:"yes_ask"`
	NoBid     int `json:"no_bid"`
	NoAsk     int `json:"no_ask"`
	LastPrice int `json:"last_price"`

	Volume       int64 `json:"volume"`
	Volume24h    int64 `json:"volume_24h"`
	OpenInterest int64 `json:"open_interest"`
	Liquidity    int64 `json:"liquidity"`

	CloseTime string `json:"close_time"`
}

// YesPrice converts the cent quotes into a YES probability: the bid/ask mid
// when a two-sided book exists, otherwise the last trade.
func (m Market) YesPrice() (float64, bool) {
	if m.YesBid > 0 && m.YesAsk > 0 {
		return float64(m.YesBid+m.YesAsk) / 200, true
	}
	if m.LastPrice > 0 {
		return float64(m.LastPrice) / 100, true
	}
	return 0, false
}

// Close parses the close timestamp; nil when absent or malformed.
func (m Market) Close() *time.Time {
	if m.CloseTime == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, m.CloseTime)
	if err != nil {
		return nil
	}
	return &t
}

// URL returns the public market page.
func (m Market) URL() string {
	if m.Ticker == "" {
		return ""
	}
	return "https://kalshi.com/markets/" + strings.ToLower(m.Ticker)
}

// marketsResponse is the GET /markets payload.
type marketsResponse struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
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

// NewClient creates a trade API client.
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

// Markets follows the cursor until max markets are collected or the cursor
// runs out. Failures classify as transient where the caller's retry policy
// should re-attempt; the client itself never retries.
func (c *httpClient) Markets(ctx context.Context, max int) ([]Market, error) {
	if max <= 0 {
		max = 500
	}

	var all []Market
	cursor := ""
	for len(all) < max {
		limit := pageSize
		if remaining := max - len(all); remaining < limit {
			limit = remaining
		}

		resp, err := c.page(ctx, limit, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Markets...)
		if resp.Cursor == "" {
			break
		}
		cursor = resp.Cursor
	}
	return all, nil
}

func (c *httpClient) page(ctx context.Context, limit int, cursor string) (*marketsResponse, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("status", "open")
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/markets?%s", c.baseURL, query.Encode()), nil)
	if err != nil {
		return nil, eris.Wrap(err, "kalshi: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "kalshi: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "kalshi: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.Transient(
			eris.New("kalshi: rate limited"), resp.StatusCode)
	case resilience.TransientStatus(resp.StatusCode):
		return nil, resilience.Transient(
			eris.Errorf("kalshi: status %d", resp.StatusCode), resp.StatusCode)
	default:
		return nil, eris.Errorf("kalshi: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out marketsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "kalshi: unmarshal markets")
	}
	return &out, nil
}
