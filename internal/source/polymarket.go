// Package source holds the built-in market data sources: the Polymarket and
// Kalshi venue adapters and the config-driven reference feeds.
package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
	"github.com/sells-group/market-scanner/pkg/polymarket"
)

// PolymarketName is the registry name of the Polymarket source.
const PolymarketName = "polymarket"

// NewPolymarket adapts the Gamma client into a market-data source. Markets
// whose outcome payload cannot be read as a YES probability are dropped, not
// fatal; the venue mixes binary and exotic structures.
func NewPolymarket(client polymarket.Client, max int, ttl time.Duration) pipeline.Source {
	return pipeline.NewSource(PolymarketName, model.CategoryMarketData, ttl, func(ctx context.Context) (any, error) {
		raw, err := client.Markets(ctx, max)
		if err != nil {
			return nil, err
		}

		out := make([]model.Market, 0, len(raw))
		skipped := 0
		for _, pm := range raw {
			price, ok := pm.YesPrice()
			if !ok {
				skipped++
				continue
			}
			out = append(out, model.Market{
				Platform:  model.PlatformPolymarket,
				ID:        pm.ID,
				Title:     pm.Question,
				Category:  pm.Category,
				Price:     price,
				Volume:    pm.VolumeUSD(),
				Liquidity: pm.LiquidityUSD(),
				CloseTime: pm.End(),
				URL:       pm.URL(),
			})
		}
		if skipped > 0 {
			zap.L().Debug("source: polymarket markets without readable prices",
				zap.Int("skipped", skipped),
				zap.Int("kept", len(out)),
			)
		}
		return out, nil
	})
}
