package kalshi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-scanner/internal/resilience"
)

func fedMarket(ticker string) Market {
	return Market{
		Ticker:      ticker,
		EventTicker: "FED-25SEP",
		Title:       "Fed cuts rates in September?",
		Category:    "Economics",
		Status:      "open",
		YesBid:      60,
		YesAsk:      64,
		NoBid:       36,
		NoAsk:       40,
		LastPrice:   62,
		Volume:      250000,
		CloseTime:   "2026-09-17T18:00:00Z",
	}
}

func TestMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "open", q.Get("status"))
		assert.Equal(t, "5", q.Get("limit"))
		assert.Empty(t, q.Get("cursor"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(marketsResponse{
			Markets: []Market{fedMarket("FED-25SEP-C25")},
		})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	markets, err := client.Markets(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "FED-25SEP-C25", markets[0].Ticker)
	assert.Equal(t, int64(250000), markets[0].Volume)
}

func TestMarketsCursorPagination(t *testing.T) {
	type reqInfo struct {
		limit  string
		cursor string
	}
	var requests []reqInfo
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		requests = append(requests, reqInfo{limit: q.Get("limit"), cursor: q.Get("cursor")})

		resp := marketsResponse{}
		if q.Get("cursor") == "" {
			resp.Markets = []Market{fedMarket("A-1"), fedMarket("A-2"), fedMarket("A-3")}
			resp.Cursor = "c1"
		} else {
			resp.Markets = []Market{fedMarket("B-1"), fedMarket("B-2")}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	markets, err := client.Markets(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, markets, 5)
	assert.Equal(t, []reqInfo{
		{limit: "5", cursor: ""},
		{limit: "2", cursor: "c1"},
	}, requests)
}

func TestMarketsStopsAtMax(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(marketsResponse{
			Markets: []Market{fedMarket("A-1"), fedMarket("A-2")},
			Cursor:  "more",
		})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	markets, err := client.Markets(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, markets, 2)
	assert.Equal(t, 1, calls)
}

func TestMarketsErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{name: "rate_limited", status: http.StatusTooManyRequests, transient: true},
		{name: "service_unavailable", status: http.StatusServiceUnavailable, transient: true},
		{name: "unauthorized", status: http.StatusUnauthorized, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := NewClient(WithBaseURL(srv.URL))
			_, err := client.Markets(context.Background(), 10)
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestYesPrice(t *testing.T) {
	tests := []struct {
		name   string
		market Market
		want   float64
		ok     bool
	}{
		{name: "bid_ask_mid", market: Market{YesBid: 60, YesAsk: 64}, want: 0.62, ok: true},
		{name: "last_trade_fallback", market: Market{LastPrice: 55}, want: 0.55, ok: true},
		{name: "one_sided_book_uses_last", market: Market{YesAsk: 90, LastPrice: 85}, want: 0.85, ok: true},
		{name: "no_quotes", market: Market{}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.market.YesPrice()
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.0001)
			}
		})
	}
}

func TestMarketAccessors(t *testing.T) {
	m := fedMarket("FED-25SEP-C25")

	closeAt := m.Close()
	require.NotNil(t, closeAt)
	assert.Equal(t, time.Date(2026, 9, 17, 18, 0, 0, 0, time.UTC), closeAt.UTC())

	assert.Equal(t, "https://kalshi.com/markets/fed-25sep-c25", m.URL())

	assert.Nil(t, Market{CloseTime: "tomorrow"}.Close())
	assert.Empty(t, Market{}.URL())
}
