package enrich

import (
	"context"
	"time"

	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
)

// StatsKey is the data key the stats processor publishes under.
const StatsKey = "market_stats"

// longshotBand marks prices close enough to 0 or 1 to count as longshots.
const longshotBand = 0.05

// Stats summarizes the fetched market universe for one run.
type Stats struct {
	PerVenue    map[model.Platform]int
	Total       int
	TotalVolume float64
	AvgPrice    float64
	Closing24h  int
	Longshots   int
}

// StatsFrom reads the published stats back out of a run's data map.
func StatsFrom(data pipeline.SourceData) (Stats, bool) {
	s, ok := data[StatsKey].(Stats)
	return s, ok
}

// NewStatsProcessor builds a processor that aggregates the named market
// inputs into universe-level stats: per-venue counts, total volume, mean
// price, markets closing inside 24h, and longshot count (price within 0.05
// of either bound). Published under "market_stats".
func NewStatsProcessor(marketInputs []string) pipeline.Processor {
	return pipeline.NewProcessor("market-stats", marketInputs, StatsKey,
		func(_ context.Context, data pipeline.SourceData) (any, error) {
			s := Stats{PerVenue: make(map[model.Platform]int, len(marketInputs))}

			var priceSum float64
			cutoff := time.Now().Add(24 * time.Hour)
			for _, in := range marketInputs {
				for _, m := range data.Markets(in) {
					s.PerVenue[m.Platform]++
					s.Total++
					s.TotalVolume += m.Volume
					priceSum += m.Price
					if m.CloseTime != nil && m.CloseTime.Before(cutoff) {
						s.Closing24h++
					}
					if m.Price <= longshotBand || m.Price >= 1-longshotBand {
						s.Longshots++
					}
				}
			}
			if s.Total > 0 {
				s.AvgPrice = priceSum / float64(s.Total)
			}
			return s, nil
		})
}
