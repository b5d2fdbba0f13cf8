// Package escalate layers budget-gated LLM analysis on top of the scan
// pipeline: the controller picks the markets worth spending on, runs a cheap
// scan tier over each, and promotes strong signals to a deep tier, all
// against a per-run spend ceiling and a cross-run cooldown.
package escalate

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
)

// Config tunes the escalation controller. Zero durations and thresholds
// fall back to defaults; DeepTimeout defaults to twice ScanTimeout.
type Config struct {
	// MaxPerRun caps how many markets one run may analyze.
	MaxPerRun int

	// MinVolume excludes markets too thin to be worth analyst spend.
	// Zero disables the filter.
	MinVolume float64

	// Cooldown is how long an analyzed market stays ineligible, across runs.
	Cooldown time.Duration

	// RunBudgetUSD is the per-run spend ceiling.
	RunBudgetUSD float64

	// ScanBudgetUSD and DeepBudgetUSD are the per-call cost estimates
	// reserved against the ceiling before each tier runs.
	ScanBudgetUSD float64
	DeepBudgetUSD float64

	// MinEdge is the floor below which a verdict carries no signal.
	MinEdge float64

	// EscalateEdge promotes a scan verdict to the deep tier.
	EscalateEdge float64

	ScanTimeout time.Duration
	DeepTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxPerRun <= 0 {
		c.MaxPerRun = 10
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Minute
	}
	if c.RunBudgetUSD <= 0 {
		c.RunBudgetUSD = 1.00
	}
	if c.ScanBudgetUSD <= 0 {
		c.ScanBudgetUSD = 0.05
	}
	if c.DeepBudgetUSD <= 0 {
		c.DeepBudgetUSD = 0.25
	}
	if c.MinEdge <= 0 {
		c.MinEdge = 0.04
	}
	if c.EscalateEdge <= 0 {
		c.EscalateEdge = 0.10
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = 45 * time.Second
	}
	if c.DeepTimeout <= 0 {
		c.DeepTimeout = 2 * c.ScanTimeout
	}
	return c
}

// Controller implements pipeline.Escalator. One controller serves many runs;
// the ledger resets per run while cooldowns carry over.
type Controller struct {
	cfg       Config
	analyst   Analyst
	cooldowns CooldownStore
	ledger    *Ledger

	// boost, when set, raises a market's ordering priority.
	boost func(model.Market) float64

	now func() time.Time
}

// NewController creates a Controller.
func NewController(cfg Config, analyst Analyst, cooldowns CooldownStore) *Controller {
	return &Controller{
		cfg:       cfg.withDefaults(),
		analyst:   analyst,
		cooldowns: cooldowns,
		ledger:    NewLedger(),
		now:       time.Now,
	}
}

// SetBoost installs a priority boost consulted during candidate ordering,
// typically fed by the watchlist topics.
func (c *Controller) SetBoost(fn func(model.Market) float64) {
	c.boost = fn
}

// Cooldowns exposes the store for status reporting.
func (c *Controller) Cooldowns() CooldownStore {
	return c.cooldowns
}

// Process runs the escalation pass for one run: select candidates, analyze
// each sequentially against the spend ledger, and return the resulting
// edges. Analysis failures skip the market and never fail the pass.
func (c *Controller) Process(ctx context.Context, snap pipeline.Snapshot, edges []model.Edge) ([]model.Edge, *model.EscalationStats) {
	if c.analyst == nil {
		return nil, nil
	}

	c.ledger.Reset()
	now := c.now()
	stats := &model.EscalationStats{}
	log := zap.L()

	candidates := c.selectCandidates(ctx, now, edges)
	stats.Candidates = len(candidates)
	if len(candidates) == 0 {
		return nil, stats
	}
	log.Info("escalate: pass started",
		zap.Int("candidates", len(candidates)),
		zap.Float64("budget_usd", c.cfg.RunBudgetUSD),
	)

	var out []model.Edge
	for i, m := range candidates {
		if ctx.Err() != nil {
			break
		}
		if !c.ledger.Allows(c.cfg.ScanBudgetUSD, c.cfg.RunBudgetUSD) {
			log.Info("escalate: run budget exhausted",
				zap.Float64("spent_usd", c.ledger.Spent()),
				zap.Int("skipped", len(candidates)-i),
			)
			break
		}
		if e := c.analyzeOne(ctx, now, m, snap, stats); e != nil {
			out = append(out, *e)
		}
	}

	stats.SpentUSD = c.ledger.Spent()
	log.Info("escalate: pass complete",
		zap.Int("analyzed", stats.Analyzed),
		zap.Int("escalated", stats.Escalated),
		zap.Int("edges", len(out)),
		zap.Float64("spent_usd", stats.SpentUSD),
	)
	return out, stats
}

// selectCandidates picks the markets worth spending on: referenced by at
// least one aggregated edge, liquid enough, outside their cooldown window,
// ordered by priority and capped at MaxPerRun.
func (c *Controller) selectCandidates(ctx context.Context, now time.Time, edges []model.Edge) []model.Market {
	seen := make(map[string]bool)
	var cands []model.Market
	for _, e := range edges {
		m := e.Market
		key := m.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		if c.cfg.MinVolume > 0 && m.Volume < c.cfg.MinVolume {
			continue
		}
		if last, ok := c.cooldowns.LastAnalyzed(ctx, key); ok && now.Sub(last) < c.cfg.Cooldown {
			continue
		}
		cands = append(cands, m)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return c.priority(cands[i]) > c.priority(cands[j])
	})
	if len(cands) > c.cfg.MaxPerRun {
		cands = cands[:c.cfg.MaxPerRun]
	}
	return cands
}

func (c *Controller) priority(m model.Market) float64 {
	if c.boost == nil {
		return m.Volume
	}
	return m.Volume * (1 + c.boost(m))
}

// analyzeOne runs the scan tier and, for strong signals, the deep tier for
// one market. The market is marked analyzed whatever the outcome, so a
// failed or empty analysis still consumes its cooldown slot.
func (c *Controller) analyzeOne(ctx context.Context, now time.Time, m model.Market, snap pipeline.Snapshot, stats *model.EscalationStats) *model.Edge {
	log := zap.L().With(zap.String("market", m.Key()))

	sctx, cancel := context.WithTimeout(ctx, c.cfg.ScanTimeout)
	verdict, err := c.analyst.Scan(sctx, m, snap)
	cancel()

	stats.Analyzed++
	if markErr := c.cooldowns.Mark(ctx, m.Key(), now); markErr != nil {
		log.Warn("escalate: cooldown mark failed", zap.Error(markErr))
	}
	if verdict != nil && verdict.CostUSD > 0 {
		c.ledger.Add(verdict.CostUSD)
	}
	if err != nil {
		log.Warn("escalate: scan tier failed", zap.Error(err))
		return nil
	}
	if !verdict.Usable(c.cfg.MinEdge) {
		log.Debug("escalate: no signal", zap.Float64("edge", verdict.Edge))
		return nil
	}

	final := verdict
	if verdict.Edge >= c.cfg.EscalateEdge {
		if c.ledger.Allows(c.cfg.DeepBudgetUSD, c.cfg.RunBudgetUSD) {
			stats.Escalated++
			dctx, dcancel := context.WithTimeout(ctx, c.cfg.DeepTimeout)
			deep, derr := c.analyst.Deep(dctx, m, snap)
			dcancel()

			if deep != nil && deep.CostUSD > 0 {
				c.ledger.Add(deep.CostUSD)
			}
			switch {
			case derr != nil:
				// Deep failure falls back to the scan verdict.
				log.Warn("escalate: deep tier failed, keeping scan verdict", zap.Error(derr))
			case !deep.Usable(c.cfg.MinEdge):
				log.Info("escalate: deep tier cleared the signal",
					zap.Float64("scan_edge", verdict.Edge),
					zap.Float64("deep_edge", deep.Edge),
				)
				return nil
			default:
				final = deep
			}
		} else {
			log.Info("escalate: budget too low for deep tier",
				zap.Float64("spent_usd", c.ledger.Spent()),
			)
		}
	}

	e := c.toEdge(m, final)
	log.Info("escalate: edge found",
		zap.String("tier", final.Tier),
		zap.String("direction", string(e.Direction)),
		zap.Float64("edge", e.Edge),
		zap.Float64("confidence", e.Confidence),
	)
	return &e
}

func (c *Controller) toEdge(m model.Market, v *Verdict) model.Edge {
	urgency := model.UrgencyToday
	if v.Tier == TierDeep {
		urgency = model.UrgencyImmediate
	}
	return model.Edge{
		Market:     m,
		Direction:  v.Direction,
		Edge:       v.Edge,
		Confidence: v.Confidence,
		Reason:     v.Reason,
		Detector:   "escalation",
		Urgency:    urgency,
		Signal: model.Signal{
			Type: model.SignalDeepAnalysis,
			DeepAnalysis: &model.DeepAnalysisSignal{
				Model:       v.Model,
				Tier:        v.Tier,
				Probability: v.Probability,
				CostUSD:     v.CostUSD,
				Citations:   v.Citations,
			},
		},
	}
}
