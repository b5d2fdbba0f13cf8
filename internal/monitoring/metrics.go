package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/market-scanner/internal/model"
)

// Recorder exposes scanner counters on a Prometheus registry. One Recorder
// lives for the whole serve process; scan results are folded into it as
// runs finish.
type Recorder struct {
	runsTotal          *prometheus.CounterVec
	runDuration        prometheus.Histogram
	sourceFetches      *prometheus.CounterVec
	marketCount        prometheus.Gauge
	edgesEmitted       *prometheus.CounterVec
	escalationSpend    prometheus.Counter
	escalationAnalyzed prometheus.Counter
}

// NewRecorder registers the scanner metrics on reg and returns the recorder.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_runs_total",
				Help: "Total number of scan runs by final status",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scanner_run_duration_seconds",
				Help:    "Wall-clock duration of scan runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		sourceFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_source_fetches_total",
				Help: "Source fetch outcomes across all runs",
			},
			[]string{"result"},
		),
		marketCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scanner_market_count",
				Help: "Markets in the universe of the most recent run",
			},
		),
		edgesEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_edges_emitted_total",
				Help: "Edges emitted by detector and tier",
			},
			[]string{"detector", "tier"},
		),
		escalationSpend: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scanner_escalation_spend_usd_total",
				Help: "Cumulative escalation spend in USD",
			},
		),
		escalationAnalyzed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scanner_escalation_analyzed_total",
				Help: "Markets sent through escalation analysis",
			},
		),
	}
}

// ObserveRun folds one finished run into the metrics.
func (r *Recorder) ObserveRun(result *model.RunResult) {
	r.runsTotal.WithLabelValues(string(result.Status())).Inc()
	r.runDuration.Observe(float64(result.Stats.TotalTimeMS) / 1000)
	r.marketCount.Set(float64(result.Stats.MarketCount))

	r.sourceFetches.WithLabelValues("fetch").Add(float64(result.Stats.SourcesFetched))
	r.sourceFetches.WithLabelValues("cache").Add(float64(result.Stats.SourcesCached))
	sourceErrors := 0
	for _, e := range result.Errors {
		if e.Stage == model.StageSource {
			sourceErrors++
		}
	}
	if sourceErrors > 0 {
		r.sourceFetches.WithLabelValues("error").Add(float64(sourceErrors))
	}

	for _, edge := range result.Edges {
		r.edgesEmitted.WithLabelValues(edge.Detector, string(edge.Tier)).Inc()
	}

	if result.Escalation != nil {
		r.escalationSpend.Add(result.Escalation.SpentUSD)
		r.escalationAnalyzed.Add(float64(result.Escalation.Analyzed))
	}
}
