package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
	"github.com/sells-group/market-scanner/pkg/kalshi"
)

// KalshiName is the registry name of the Kalshi source.
const KalshiName = "kalshi"

// NewKalshi adapts the trade API client into a market-data source. Markets
// with no quotes at all (no book, no last trade) are dropped.
func NewKalshi(client kalshi.Client, max int, ttl time.Duration) pipeline.Source {
	return pipeline.NewSource(KalshiName, model.CategoryMarketData, ttl, func(ctx context.Context) (any, error) {
		raw, err := client.Markets(ctx, max)
		if err != nil {
			return nil, err
		}

		out := make([]model.Market, 0, len(raw))
		skipped := 0
		for _, km := range raw {
			price, ok := km.YesPrice()
			if !ok {
				skipped++
				continue
			}
			title := km.Title
			if km.Subtitle != "" {
				title += " " + km.Subtitle
			}
			out = append(out, model.Market{
				Platform: model.PlatformKalshi,
				ID:       km.Ticker,
				Ticker:   km.Ticker,
				Title:    title,
				Category: km.Category,
				Price:    price,
				Volume:   float64(km.Volume),
				// Liquidity arrives in cents.
				Liquidity: float64(km.Liquidity) / 100,
				CloseTime: km.Close(),
				URL:       km.URL(),
			})
		}
		if skipped > 0 {
			zap.L().Debug("source: kalshi markets without quotes",
				zap.Int("skipped", skipped),
				zap.Int("kept", len(out)),
			)
		}
		return out, nil
	})
}
