package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/market-scanner/internal/cache"
	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/resilience"
)

// ErrRunInFlight is returned when Run is called while another run holds the
// pipeline. Schedulers treat it as "skip this tick".
var ErrRunInFlight = eris.New("pipeline: run already in flight")

// Snapshot is the read-only view of one run's data handed to the escalation
// pass: the full source data map plus the canonical market universe.
type Snapshot struct {
	Data    SourceData
	Markets []model.Market
}

// Escalator is the optional budget-gated deep-analysis pass applied to the
// aggregated edges. It returns any additional edges plus its spend stats.
type Escalator interface {
	Process(ctx context.Context, snap Snapshot, edges []model.Edge) ([]model.Edge, *model.EscalationStats)
}

// Options tunes one Pipeline. Zero values fall back to defaults.
type Options struct {
	// FetchConcurrency bounds the source fetch fan-out.
	FetchConcurrency int

	// FetchTimeout bounds each individual source fetch.
	FetchTimeout time.Duration

	// DetectorTimeout bounds each detector invocation.
	DetectorTimeout time.Duration

	// Retry applies to each source fetch.
	Retry resilience.Policy

	// Breakers, when set, shields each source behind a per-source circuit
	// breaker.
	Breakers *resilience.BreakerSet

	// Escalator, when set, runs after aggregation.
	Escalator Escalator
}

func (o Options) withDefaults() Options {
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = 4
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 20 * time.Second
	}
	if o.DetectorTimeout <= 0 {
		o.DetectorTimeout = 30 * time.Second
	}
	return o
}

// Pipeline executes full scan passes over an injected registry. A plugin
// failure is a reported outcome, never a run failure; only a cancelled
// context or an overlapping run aborts a pass.
type Pipeline struct {
	reg   *Registry
	cache cache.Store
	agg   *Aggregator
	opts  Options

	running atomic.Bool
}

// New creates a Pipeline.
func New(reg *Registry, cacheStore cache.Store, agg *Aggregator, opts Options) *Pipeline {
	return &Pipeline{
		reg:   reg,
		cache: cacheStore,
		agg:   agg,
		opts:  opts.withDefaults(),
	}
}

// Registry returns the injected registry.
func (p *Pipeline) Registry() *Registry { return p.reg }

// Running reports whether a run is currently in flight.
func (p *Pipeline) Running() bool { return p.running.Load() }

// Run executes exactly one pipeline pass. Overlapping calls get
// ErrRunInFlight; everything else returns a RunResult, even when every
// plugin failed.
func (p *Pipeline) Run(ctx context.Context) (*model.RunResult, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrRunInFlight
	}
	defer p.running.Store(false)

	started := time.Now()
	res := &model.RunResult{
		RunID:     uuid.NewString(),
		StartedAt: started,
		Stats:     model.RunStats{SourceTimesMS: make(map[string]int64)},
	}
	log := zap.L().With(zap.String("run_id", res.RunID))
	log.Info("pipeline: run started",
		zap.Int("sources", len(p.reg.Sources())),
		zap.Int("detectors", len(p.reg.Detectors())),
	)

	data := p.fetchSources(ctx, log, res)
	p.runProcessors(ctx, log, data, res)

	markets := BuildMarkets(p.reg, data)
	res.Stats.MarketCount = len(markets)

	raw := p.runDetectors(ctx, log, data, markets, res)
	res.Stats.RawEdgeCount = len(raw)

	res.Edges = p.agg.Aggregate(ctx, raw)

	if p.opts.Escalator != nil {
		extra, escStats := p.opts.Escalator.Process(ctx, Snapshot{Data: data, Markets: markets}, res.Edges)
		res.Escalation = escStats
		if len(extra) > 0 {
			res.Edges = p.agg.Aggregate(ctx, append(res.Edges, extra...))
		}
	}

	res.Stats.TotalTimeMS = time.Since(started).Milliseconds()
	log.Info("pipeline: run complete",
		zap.Int("edges", len(res.Edges)),
		zap.Int("errors", len(res.Errors)),
		zap.Int("markets", res.Stats.MarketCount),
		zap.Int64("total_ms", res.Stats.TotalTimeMS),
	)
	return res, nil
}

// FetchSource fetches one named source through the cache, refreshing it when
// stale. Used by the sources CLI and the escalation tools for ad-hoc pulls
// outside a full run.
func (p *Pipeline) FetchSource(ctx context.Context, name string) (any, error) {
	src, ok := p.reg.Source(name)
	if !ok {
		return nil, eris.Errorf("pipeline: unknown source %q", name)
	}

	if entry, ok := p.cache.Get(ctx, name); ok && entry.Fresh(time.Now()) {
		return entry.Value, nil
	}

	val, err := p.fetchOne(ctx, src)
	if err != nil {
		// Last-good fallback, the same degradation a full run applies.
		if entry, ok := p.cache.Get(ctx, name); ok {
			return entry.Value, nil
		}
		return nil, err
	}
	if putErr := p.cache.Put(ctx, name, val, src.TTL()); putErr != nil {
		zap.L().Warn("pipeline: cache put failed", zap.String("source", name), zap.Error(putErr))
	}
	return val, nil
}

// fetchSources fills the data map from cache or live fetches, recording
// per-source timing and errors. A failed fetch leaves any previous cached
// value in place and visible to downstream stages.
func (p *Pipeline) fetchSources(ctx context.Context, log *zap.Logger, res *model.RunResult) SourceData {
	sources := p.reg.Sources()
	data := make(SourceData, len(sources))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.FetchConcurrency)

	for _, src := range sources {
		g.Go(func() error {
			name := src.Name()

			if entry, ok := p.cache.Get(gctx, name); ok && entry.Fresh(time.Now()) {
				mu.Lock()
				data[name] = entry.Value
				res.Stats.SourcesCached++
				mu.Unlock()
				return nil
			}

			start := time.Now()
			val, err := p.fetchOne(gctx, src)
			elapsed := time.Since(start).Milliseconds()

			mu.Lock()
			defer mu.Unlock()
			res.Stats.SourceTimesMS[name] = elapsed

			if err != nil {
				res.Errors = append(res.Errors, model.SourceError{
					Source: name, Stage: model.StageSource, Error: err.Error(),
				})
				log.Warn("pipeline: source fetch failed",
					zap.String("source", name),
					zap.Int64("elapsed_ms", elapsed),
					zap.Error(err),
				)
				// Stale-but-usable beats nothing.
				if entry, ok := p.cache.Get(gctx, name); ok {
					data[name] = entry.Value
				}
				return nil
			}

			data[name] = val
			res.Stats.SourcesFetched++
			if putErr := p.cache.Put(gctx, name, val, src.TTL()); putErr != nil {
				log.Warn("pipeline: cache put failed", zap.String("source", name), zap.Error(putErr))
			}
			return nil
		})
	}
	_ = g.Wait()

	return data
}

func (p *Pipeline) fetchOne(ctx context.Context, src Source) (any, error) {
	fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	policy := p.opts.Retry
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.LogRetries(src.Name(), "fetch")
	}

	fetch := func(c context.Context) (any, error) { return safeFetch(c, src) }
	if p.opts.Breakers != nil {
		b := p.opts.Breakers.For(src.Name())
		return resilience.DoVal(fctx, policy, func(c context.Context) (any, error) {
			return resilience.BreakerVal(c, b, fetch)
		})
	}
	return resilience.DoVal(fctx, policy, fetch)
}

// runProcessors runs every processor once all of its declared inputs have
// been attempted, which holds by construction after the fetch phase. Absent
// inputs are passed through as missing keys.
func (p *Pipeline) runProcessors(ctx context.Context, log *zap.Logger, data SourceData, res *model.RunResult) {
	for _, proc := range p.reg.Processors() {
		out, err := safeProcess(ctx, proc, data)
		if err != nil {
			res.Errors = append(res.Errors, model.SourceError{
				Source: proc.Name(), Stage: model.StageProcessor, Error: err.Error(),
			})
			log.Warn("pipeline: processor failed", zap.String("processor", proc.Name()), zap.Error(err))
			continue
		}
		data[proc.OutputKey()] = out
	}
}

// runDetectors fans out to every detector concurrently. A detector failure
// or panic contributes zero edges and one error entry; siblings are never
// affected.
func (p *Pipeline) runDetectors(ctx context.Context, log *zap.Logger, data SourceData, markets []model.Market, res *model.RunResult) []model.Edge {
	var (
		mu    sync.Mutex
		edges []model.Edge
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, det := range p.reg.Detectors() {
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(gctx, p.opts.DetectorTimeout)
			defer cancel()

			start := time.Now()
			out, err := safeDetect(dctx, det, data, markets)
			elapsed := time.Since(start).Milliseconds()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors = append(res.Errors, model.SourceError{
					Source: det.Name(), Stage: model.StageDetector, Error: err.Error(),
				})
				log.Warn("pipeline: detector failed",
					zap.String("detector", det.Name()),
					zap.Int64("elapsed_ms", elapsed),
					zap.Error(err),
				)
				return nil
			}
			edges = append(edges, out...)
			log.Debug("pipeline: detector done",
				zap.String("detector", det.Name()),
				zap.Int("edges", len(out)),
				zap.Int64("elapsed_ms", elapsed),
			)
			return nil
		})
	}
	_ = g.Wait()

	return edges
}

func safeFetch(ctx context.Context, src Source) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pipeline: source %s panicked: %v", src.Name(), r)
		}
	}()
	return src.Fetch(ctx)
}

func safeProcess(ctx context.Context, proc Processor, data SourceData) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pipeline: processor %s panicked: %v", proc.Name(), r)
		}
	}()
	return proc.Process(ctx, data)
}

func safeDetect(ctx context.Context, det Detector, data SourceData, markets []model.Market) (edges []model.Edge, err error) {
	defer func() {
		if r := recover(); r != nil {
			edges = nil
			err = eris.Errorf("pipeline: detector %s panicked: %v", det.Name(), r)
		}
	}()
	return det.Detect(ctx, data, markets)
}
