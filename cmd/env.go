package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-scanner/internal/cache"
	"github.com/sells-group/market-scanner/internal/cost"
	"github.com/sells-group/market-scanner/internal/detect"
	"github.com/sells-group/market-scanner/internal/enrich"
	"github.com/sells-group/market-scanner/internal/escalate"
	"github.com/sells-group/market-scanner/internal/fetch"
	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
	"github.com/sells-group/market-scanner/internal/resilience"
	"github.com/sells-group/market-scanner/internal/source"
	"github.com/sells-group/market-scanner/internal/store"
	"github.com/sells-group/market-scanner/internal/watchlist"
	"github.com/sells-group/market-scanner/pkg/claude"
	"github.com/sells-group/market-scanner/pkg/kalshi"
	"github.com/sells-group/market-scanner/pkg/polymarket"
)

// Divergence pairs need most of their title terms in common before a price
// gap counts as the same market quoted twice.
const divergenceMinMatch = 0.6

// Longshot decay fades prices within this band of 0 or 1 inside the window.
const (
	longshotBand   = 0.10
	longshotWindow = 72 * time.Hour
)

// Provider circuit breakers: consecutive failures before opening, and how
// long an open breaker rejects before probing again.
const (
	breakerThreshold = 5
	breakerCooldown  = 60 * time.Second
)

// scanEnv holds everything the scan/serve/sources/analyze commands need.
type scanEnv struct {
	Store     store.Store
	Redis     *redis.Client // nil when redis is not configured or unreachable
	Cache     cache.Store
	Watch     *watchlist.Watchlist
	Breakers  *resilience.BreakerSet
	Pipeline  *pipeline.Pipeline
	Escalator *escalate.Controller // nil when escalation is disabled
	Analyst   escalate.Analyst     // nil when no Anthropic key is set
}

// Close releases resources held by the environment.
func (e *scanEnv) Close() {
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured persistence backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DSN, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return store.NewSQLite(cfg.Store.DSN)
	}
}

// initEnv validates config for the given mode and wires the store, caches,
// sources, processors, detectors, and the escalation controller into a
// ready Pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*scanEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	// Redis is optional. When it is down we degrade to in-process caching
	// rather than refusing to scan.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			zap.L().Warn("redis unreachable, using in-process cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = rdb.Close()
			rdb = nil
		}
	}

	var cacheStore cache.Store
	if rdb != nil {
		cacheStore = cache.NewRedis(rdb, cfg.Redis.Prefix)
	} else {
		cacheStore = cache.NewMemory()
	}

	wl, err := watchlist.Load(ctx, watchlist.Config{
		NotionToken: cfg.Watchlist.NotionToken,
		NotionDB:    cfg.Watchlist.NotionDB,
		File:        cfg.Watchlist.File,
	})
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		_ = st.Close()
		return nil, err
	}

	reg := pipeline.NewRegistry()

	pmClient := polymarket.NewClient(polymarket.WithBaseURL(cfg.Polymarket.BaseURL))
	reg.RegisterSource(source.NewPolymarket(pmClient, cfg.Polymarket.MaxMarkets, secs(cfg.TTL.PolymarketSecs)))

	kClient := kalshi.NewClient(kalshi.WithBaseURL(cfg.Kalshi.BaseURL))
	reg.RegisterSource(source.NewKalshi(kClient, cfg.Kalshi.MaxMarkets, secs(cfg.TTL.KalshiSecs)))

	feedClient := fetch.NewClient(fetch.NewHTTP(fetch.HTTPOptions{}), fetch.NewFTP(fetch.FTPOptions{}))
	specs, err := source.LoadSpecs(cfg.Feeds.File)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		_ = st.Close()
		return nil, err
	}
	source.RegisterFeeds(reg, feedClient, specs)

	var newsInputs []string
	for _, src := range reg.Sources() {
		if src.Category() == model.CategoryNews {
			newsInputs = append(newsInputs, src.Name())
		}
	}

	marketInputs := []string{source.PolymarketName, source.KalshiName}
	reg.RegisterProcessor(enrich.NewStatsProcessor(marketInputs))

	var topics []string
	for _, t := range wl.Topics() {
		topics = append(topics, t.Name)
	}
	if len(topics) > 0 && len(newsInputs) > 0 {
		reg.RegisterProcessor(enrich.NewSentimentProcessor(topics, newsInputs))
	}

	reg.RegisterDetector(detect.NewDivergence(cfg.Aggregate.MinEdge, divergenceMinMatch))
	reg.RegisterDetector(detect.NewLongshot(cfg.Aggregate.MinEdge, longshotBand, longshotWindow))
	if wl.Len() > 0 && len(newsInputs) > 0 {
		reg.RegisterDetector(detect.NewKeywordNews(wl, newsInputs, cfg.Aggregate.MinEdge))
	}

	breakers := resilience.NewBreakerSet(breakerThreshold, breakerCooldown)

	agg := pipeline.NewAggregator(pipeline.AggregateConfig{
		MinEdge:        cfg.Aggregate.MinEdge,
		ActionableEdge: cfg.Aggregate.ActionableEdge,
		CriticalEdge:   cfg.Aggregate.CriticalEdge,
		MaxEdges:       cfg.Aggregate.MaxEdges,
	})

	env := &scanEnv{
		Store:    st,
		Redis:    rdb,
		Cache:    cacheStore,
		Watch:    wl,
		Breakers: breakers,
	}

	opts := pipeline.Options{
		FetchConcurrency: cfg.Pipeline.FetchConcurrency,
		FetchTimeout:     secs(cfg.Pipeline.FetchTimeoutSecs),
		DetectorTimeout:  secs(cfg.Pipeline.DetectorTimeoutSecs),
		Retry:            resilience.DefaultPolicy(),
		Breakers:         breakers,
	}

	if cfg.Anthropic.Key != "" {
		rates := cfg.Pricing
		if len(rates.Anthropic) == 0 {
			rates = cost.DefaultRates()
		}
		calc := cost.NewCalculator(rates)
		env.Analyst = escalate.NewClaudeAnalyst(claude.New(cfg.Anthropic.Key), calc, cfg.Anthropic.ScanModel, cfg.Anthropic.DeepModel)
	}

	if cfg.Escalate.Enabled && env.Analyst != nil {
		var cooldowns escalate.CooldownStore
		if rdb != nil {
			cooldowns = escalate.NewRedisCooldowns(rdb, cfg.Redis.Prefix)
		} else {
			cooldowns = escalate.NewDBCooldowns(st)
		}
		ctrl := escalate.NewController(escalate.Config{
			MaxPerRun:     cfg.Escalate.MaxMarketsPerRun,
			MinVolume:     cfg.Escalate.MinVolume,
			Cooldown:      time.Duration(cfg.Escalate.CooldownMinutes) * time.Minute,
			RunBudgetUSD:  cfg.Escalate.RunBudgetUSD,
			ScanBudgetUSD: cfg.Escalate.ScanBudgetUSD,
			DeepBudgetUSD: cfg.Escalate.DeepBudgetUSD,
			MinEdge:       cfg.Aggregate.MinEdge,
			EscalateEdge:  cfg.Escalate.EscalateEdge,
			ScanTimeout:   secs(cfg.Escalate.ScanTimeoutSecs),
			DeepTimeout:   secs(cfg.Escalate.DeepTimeoutSecs),
		}, env.Analyst, cooldowns)
		ctrl.SetBoost(wl.BoostFunc())
		env.Escalator = ctrl
		opts.Escalator = ctrl
	} else if cfg.Escalate.Enabled {
		zap.L().Info("escalation disabled: no anthropic key configured")
	}

	env.Pipeline = pipeline.New(reg, cacheStore, agg, opts)

	zap.L().Info("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("redis", rdb != nil),
		zap.Int("sources", len(reg.Sources())),
		zap.Int("watchlist_topics", wl.Len()),
		zap.Bool("escalation", env.Escalator != nil),
	)

	return env, nil
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
