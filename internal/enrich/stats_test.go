package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
)

func TestStatsProcessor(t *testing.T) {
	soon := time.Now().Add(6 * time.Hour)
	far := time.Now().Add(72 * time.Hour)

	data := pipeline.SourceData{
		"polymarket": []model.Market{
			{Platform: model.PlatformPolymarket, ID: "1", Price: 0.60, Volume: 1000, CloseTime: &soon},
			{Platform: model.PlatformPolymarket, ID: "2", Price: 0.03, Volume: 500, CloseTime: &far},
		},
		"kalshi": []model.Market{
			{Platform: model.PlatformKalshi, ID: "A", Price: 0.97, Volume: 2500},
		},
	}

	proc := NewStatsProcessor([]string{"polymarket", "kalshi"})
	assert.Equal(t, "market-stats", proc.Name())
	assert.Equal(t, StatsKey, proc.OutputKey())
	assert.Equal(t, []string{"polymarket", "kalshi"}, proc.Inputs())

	v, err := proc.Process(context.Background(), data)
	require.NoError(t, err)

	s, ok := v.(Stats)
	require.True(t, ok)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.PerVenue[model.PlatformPolymarket])
	assert.Equal(t, 1, s.PerVenue[model.PlatformKalshi])
	assert.InDelta(t, 4000, s.TotalVolume, 1e-9)
	assert.InDelta(t, (0.60+0.03+0.97)/3, s.AvgPrice, 1e-9)
	assert.Equal(t, 1, s.Closing24h)
	assert.Equal(t, 2, s.Longshots)
}

func TestStatsProcessor_EmptyInputs(t *testing.T) {
	proc := NewStatsProcessor([]string{"polymarket"})

	v, err := proc.Process(context.Background(), pipeline.SourceData{})
	require.NoError(t, err)

	s, ok := v.(Stats)
	require.True(t, ok)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.AvgPrice)
}

func TestStatsFrom(t *testing.T) {
	data := pipeline.SourceData{StatsKey: Stats{Total: 7}}

	s, ok := StatsFrom(data)
	require.True(t, ok)
	assert.Equal(t, 7, s.Total)

	_, ok = StatsFrom(pipeline.SourceData{})
	assert.False(t, ok)
}
