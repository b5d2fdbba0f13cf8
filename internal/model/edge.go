package model

// Direction says which side of the market the signal favors.
type Direction string

const (
	DirectionYes Direction = "YES"
	DirectionNo  Direction = "NO"
)

// Urgency is a coarse freshness hint set by the producing detector.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyToday     Urgency = "today"
	UrgencyWatch     Urgency = "watch"
)

// Tier is the severity classification assigned by the aggregator.
type Tier string

const (
	TierCritical   Tier = "critical"
	TierActionable Tier = "actionable"
	TierWatchlist  Tier = "watchlist"
)

// tierRank orders tiers for sorting; lower sorts first.
func tierRank(t Tier) int {
	switch t {
	case TierCritical:
		return 0
	case TierActionable:
		return 1
	case TierWatchlist:
		return 2
	default:
		return 3
	}
}

// Edge is a single directional trading signal. Edges are transient: they are
// recomputed every run and never act as a system of record.
type Edge struct {
	Market     Market    `json:"market"`
	Direction  Direction `json:"direction"`
	Edge       float64   `json:"edge"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Detector   string    `json:"detector"`
	Signal     Signal    `json:"signal"`
	Urgency    Urgency   `json:"urgency,omitempty"`

	// Set by the aggregator.
	Tier  Tier    `json:"tier,omitempty"`
	Score float64 `json:"score,omitempty"`
}

// DedupKey collapses competing signals about the same market. Signals that
// declare a subkey (e.g. one keyword among several) coexist on one market.
func (e Edge) DedupKey() string {
	k := e.Market.Key()
	if sub := e.Signal.Subkey(); sub != "" {
		return k + "|" + sub
	}
	return k
}

// Weight is the edge-times-confidence product used to pick a dedup winner and
// as the default ranking score.
func (e Edge) Weight() float64 {
	return e.Edge * e.Confidence
}

// TierRank exposes the sort order of the edge's tier.
func (e Edge) TierRank() int {
	return tierRank(e.Tier)
}
