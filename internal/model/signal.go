package model

// SignalType discriminates the detector family that produced an edge.
type SignalType string

const (
	SignalVenueDivergence SignalType = "venue_divergence"
	SignalKeywordNews     SignalType = "keyword_news"
	SignalLongshotDecay   SignalType = "longshot_decay"
	SignalDeepAnalysis    SignalType = "deep_analysis"
	SignalCustom          SignalType = "custom"
)

// Signal is the tagged payload attached to an Edge. Exactly one variant field
// matching Type is set; third-party detectors use Type SignalCustom plus Extra.
type Signal struct {
	Type SignalType `json:"type"`

	VenueDivergence *VenueDivergenceSignal `json:"venue_divergence,omitempty"`
	KeywordNews     *KeywordNewsSignal     `json:"keyword_news,omitempty"`
	LongshotDecay   *LongshotDecaySignal   `json:"longshot_decay,omitempty"`
	DeepAnalysis    *DeepAnalysisSignal    `json:"deep_analysis,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// VenueDivergenceSignal carries evidence for a cross-venue price gap on
// near-identical markets.
type VenueDivergenceSignal struct {
	OtherPlatform Platform `json:"other_platform"`
	OtherID       string   `json:"other_id"`
	OtherPrice    float64  `json:"other_price"`
	Gap           float64  `json:"gap"`
	TitleMatch    float64  `json:"title_match"`
}

// KeywordNewsSignal carries the watchlist keyword and the headlines behind a
// news-driven edge. Several keywords can legitimately fire on one market, so
// the keyword participates in the dedup key.
type KeywordNewsSignal struct {
	Keyword   string   `json:"keyword"`
	Topic     string   `json:"topic,omitempty"`
	Headlines []string `json:"headlines,omitempty"`
	Sentiment float64  `json:"sentiment"`
	HitCount  int      `json:"hit_count"`
}

// LongshotDecaySignal carries evidence for the favorite-longshot fade on
// extreme-priced markets near resolution.
type LongshotDecaySignal struct {
	HoursToClose float64 `json:"hours_to_close"`
	ImpliedMove  float64 `json:"implied_move"`
}

// DeepAnalysisSignal carries the escalation controller's verdict.
type DeepAnalysisSignal struct {
	Model       string   `json:"model"`
	Tier        string   `json:"tier"` // "scan" or "deep"
	Probability float64  `json:"probability"`
	CostUSD     float64  `json:"cost_usd"`
	Citations   []string `json:"citations,omitempty"`
}

// Subkey returns the discriminator appended to the market key when several
// independent sub-signals of the same family may coexist on one market.
// An empty subkey means one signal per market per the usual dedup rule.
func (s Signal) Subkey() string {
	switch s.Type {
	case SignalKeywordNews:
		if s.KeywordNews != nil {
			return s.KeywordNews.Keyword
		}
	case SignalCustom:
		if v, ok := s.Extra["subkey"].(string); ok {
			return v
		}
	}
	return ""
}
