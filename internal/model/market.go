package model

import (
	"time"
)

// Platform identifies the venue a market trades on.
type Platform string

const (
	PlatformPolymarket Platform = "polymarket"
	PlatformKalshi     Platform = "kalshi"
)

// SourceCategory classifies what kind of data a source provides.
type SourceCategory string

const (
	CategoryMarketData SourceCategory = "market_data"
	CategoryNews       SourceCategory = "news"
	CategoryReference  SourceCategory = "reference"
	CategoryDerived    SourceCategory = "derived" // processor outputs
)

// Market is the canonical cross-platform record for a tradable binary market.
// It is an immutable snapshot for the duration of one pipeline run. Price is
// the YES probability in [0,1] regardless of how the venue quotes it.
type Market struct {
	Platform  Platform   `json:"platform"`
	ID        string     `json:"id"`
	Ticker    string     `json:"ticker,omitempty"`
	Title     string     `json:"title"`
	Category  string     `json:"category,omitempty"`
	Price     float64    `json:"price"`
	Volume    float64    `json:"volume,omitempty"`
	Liquidity float64    `json:"liquidity,omitempty"`
	CloseTime *time.Time `json:"close_time,omitempty"`
	URL       string     `json:"url,omitempty"`
}

// Key returns the process-wide market identity used for dedup and cooldowns.
func (m Market) Key() string {
	return string(m.Platform) + ":" + m.ID
}

// ClosesWithin reports whether the market resolves within d of now.
// Markets without a close time never "close soon".
func (m Market) ClosesWithin(now time.Time, d time.Duration) bool {
	if m.CloseTime == nil {
		return false
	}
	return m.CloseTime.After(now) && m.CloseTime.Sub(now) <= d
}

// NewsItem is a single headline from a news or RSS source.
type NewsItem struct {
	Title     string    `json:"title"`
	Link      string    `json:"link,omitempty"`
	Source    string    `json:"source,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Published time.Time `json:"published,omitempty"`
}

// Table is a generic tabular payload produced by CSV/XLSX reference feeds.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Col returns the index of the named column, or -1.
func (t Table) Col(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
