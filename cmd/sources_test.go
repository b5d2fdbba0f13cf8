package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
)

func TestFormatSources(t *testing.T) {
	sources := []pipeline.Source{
		pipeline.NewSource("polymarket", model.CategoryMarketData, 3*time.Minute, nil),
		pipeline.NewSource("reuters-politics", model.CategoryNews, time.Hour, nil),
	}

	var buf bytes.Buffer
	formatSources(&buf, sources)

	output := buf.String()
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "CATEGORY")
	assert.Contains(t, output, "polymarket")
	assert.Contains(t, output, "market_data")
	assert.Contains(t, output, "3m0s")
	assert.Contains(t, output, "reuters-politics")
	assert.Contains(t, output, "news")
	assert.Contains(t, output, "1h0m0s")
}

func TestFindMarket(t *testing.T) {
	markets := []model.Market{
		{Platform: model.PlatformPolymarket, ID: "123", Title: "Fed cuts in December?"},
		{Platform: model.PlatformKalshi, ID: "FED-25DEC", Title: "Fed decision December"},
	}

	m, ok := findMarket(markets, "kalshi:FED-25DEC")
	require.True(t, ok)
	assert.Equal(t, model.PlatformKalshi, m.Platform)

	// A bare ID matches any platform.
	m, ok = findMarket(markets, "123")
	require.True(t, ok)
	assert.Equal(t, model.PlatformPolymarket, m.Platform)

	_, ok = findMarket(markets, "nope")
	assert.False(t, ok)
}
