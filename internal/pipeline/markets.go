package pipeline

import (
	"github.com/sells-group/market-scanner/internal/model"
)

// BuildMarkets derives the canonical market universe for one run by
// concatenating the market-data source outputs in source-name order. The
// result is an immutable snapshot for the rest of the run.
func BuildMarkets(reg *Registry, data SourceData) []model.Market {
	var out []model.Market
	seen := make(map[string]struct{})

	for _, src := range reg.Sources() {
		if src.Category() != model.CategoryMarketData {
			continue
		}
		for _, m := range data.Markets(src.Name()) {
			if m.ID == "" {
				continue
			}
			key := m.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, normalize(m))
		}
	}
	return out
}

// normalize clamps prices into the probability range; upstream feeds
// occasionally deliver rounding artifacts a hair outside it.
func normalize(m model.Market) model.Market {
	if m.Price < 0 {
		m.Price = 0
	}
	if m.Price > 1 {
		m.Price = 1
	}
	return m
}
