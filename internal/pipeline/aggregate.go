package pipeline

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/market-scanner/internal/model"
)

// Reranker scores edges externally (an ML ranking service, for example).
// It returns one score per edge in input order; any error falls the run
// back to the built-in composite score.
type Reranker func(ctx context.Context, edges []model.Edge) ([]float64, error)

// AggregateConfig tunes the aggregator thresholds. Edge magnitudes are
// absolute probabilities in (0,1).
type AggregateConfig struct {
	// MinEdge drops edges below it outright.
	MinEdge float64

	// ActionableEdge and CriticalEdge bound the severity tiers; surviving
	// edges below ActionableEdge land on the watchlist.
	ActionableEdge float64
	CriticalEdge   float64

	// MaxEdges caps the final ranked list. Zero means no cap.
	MaxEdges int

	// Reranker optionally replaces the composite score for ranking.
	Reranker Reranker
}

// DefaultAggregateConfig mirrors the shipped config defaults.
func DefaultAggregateConfig() AggregateConfig {
	return AggregateConfig{
		MinEdge:        0.04,
		ActionableEdge: 0.08,
		CriticalEdge:   0.15,
		MaxEdges:       25,
	}
}

// Aggregator merges every detector's output into the ranked result set:
// dedup on (market key, signal subkey) keeping the edge that maximizes
// edge*confidence, severity tiering, then ranking. It is idempotent and
// side-effect free; the input slice is never mutated.
type Aggregator struct {
	cfg AggregateConfig
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg AggregateConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Aggregate produces the ranked, bounded edge list from the raw multiset.
func (a *Aggregator) Aggregate(ctx context.Context, raw []model.Edge) []model.Edge {
	if len(raw) == 0 {
		return nil
	}

	// Dedup in input order; a later edge replaces an earlier one only when
	// strictly heavier, so ties keep the first and repeat runs agree.
	index := make(map[string]int, len(raw))
	out := make([]model.Edge, 0, len(raw))
	for _, e := range raw {
		if e.Edge < a.cfg.MinEdge {
			continue
		}
		key := e.DedupKey()
		if i, ok := index[key]; ok {
			if e.Weight() > out[i].Weight() {
				out[i] = e
			}
			continue
		}
		index[key] = len(out)
		out = append(out, e)
	}

	for i := range out {
		out[i].Tier = a.tier(out[i].Edge)
		out[i].Score = out[i].Weight()
	}

	a.rerank(ctx, out)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TierRank() != out[j].TierRank() {
			return out[i].TierRank() < out[j].TierRank()
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DedupKey() < out[j].DedupKey()
	})

	if a.cfg.MaxEdges > 0 && len(out) > a.cfg.MaxEdges {
		out = out[:a.cfg.MaxEdges]
	}
	return out
}

func (a *Aggregator) tier(edge float64) model.Tier {
	switch {
	case edge >= a.cfg.CriticalEdge:
		return model.TierCritical
	case edge >= a.cfg.ActionableEdge:
		return model.TierActionable
	default:
		return model.TierWatchlist
	}
}

func (a *Aggregator) rerank(ctx context.Context, edges []model.Edge) {
	if a.cfg.Reranker == nil || len(edges) == 0 {
		return
	}
	scores, err := a.cfg.Reranker(ctx, edges)
	if err != nil {
		zap.L().Warn("aggregate: reranker failed, using composite score", zap.Error(err))
		return
	}
	if len(scores) != len(edges) {
		zap.L().Warn("aggregate: reranker returned wrong score count",
			zap.Int("want", len(edges)), zap.Int("got", len(scores)))
		return
	}
	for i := range edges {
		edges[i].Score = scores[i]
	}
}
