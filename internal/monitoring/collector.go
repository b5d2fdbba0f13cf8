package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/store"
)

// MetricsSnapshot holds a point-in-time view of scanner health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	FailureRate  float64 `json:"failure_rate"`
	AvgRunMS     int64   `json:"avg_run_ms"`

	// Latest run, if any.
	MarketCount int                `json:"market_count"`
	EdgeCount   int                `json:"edge_count"`
	EdgesByTier map[model.Tier]int `json:"edges_by_tier,omitempty"`

	// Escalation spend, summed over the window.
	EscalationSpendUSD float64 `json:"escalation_spend_usd"`
	EscalationAnalyzed int     `json:"escalation_analyzed"`

	// Cooldown table depth.
	CooldownCount int `json:"cooldown_count"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the run store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of scanner metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	// Fetch runs within the window, newest first.
	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		Since: cutoff,
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalMS int64
	var timedRuns int64

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		}
		if r.Result == nil {
			continue
		}
		if r.Result.Stats.TotalTimeMS > 0 {
			totalMS += r.Result.Stats.TotalTimeMS
			timedRuns++
		}
		if r.Result.Escalation != nil {
			snap.EscalationSpendUSD += r.Result.Escalation.SpentUSD
			snap.EscalationAnalyzed += r.Result.Escalation.Analyzed
		}
	}

	if snap.RunsTotal > 0 {
		snap.FailureRate = float64(snap.RunsFailed) / float64(snap.RunsTotal)
	}
	if timedRuns > 0 {
		snap.AvgRunMS = totalMS / timedRuns
	}

	// Latest run describes the current state of the market universe.
	if len(runs) > 0 && runs[0].Result != nil {
		latest := runs[0].Result
		snap.MarketCount = latest.Stats.MarketCount
		snap.EdgeCount = len(latest.Edges)
		if len(latest.Edges) > 0 {
			snap.EdgesByTier = make(map[model.Tier]int)
			for _, e := range latest.Edges {
				snap.EdgesByTier[e.Tier]++
			}
		}
	}

	// Cooldown table depth.
	cooldowns, err := c.store.CountAnalyzed(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count cooldowns")
	}
	snap.CooldownCount = cooldowns

	return snap, nil
}
