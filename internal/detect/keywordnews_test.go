package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
	"github.com/sells-group/market-scanner/internal/watchlist"
)

func fedWatchlist(keywords ...string) *watchlist.Watchlist {
	return watchlist.New([]watchlist.Topic{
		{Name: "Fed Policy", Keywords: keywords, Boost: 0.5},
	})
}

func fedMarkets() []model.Market {
	return []model.Market{
		{Platform: model.PlatformPolymarket, ID: "p1", Title: "Will the Fed cut rates in September?", Price: 0.62},
		{Platform: model.PlatformKalshi, ID: "k1", Title: "Bitcoin above 100k by December?", Price: 0.30},
	}
}

func TestKeywordNews_Metadata(t *testing.T) {
	d := NewKeywordNews(fedWatchlist("fed"), []string{"news_a", "news_b"}, 0.04)

	assert.Equal(t, KeywordNewsName, d.Name())
	assert.Equal(t, []string{"news_a", "news_b"}, d.Requires())
	assert.InDelta(t, 0.04, d.MinEdge(), 1e-9)
}

func TestKeywordNews_PositiveTone(t *testing.T) {
	data := pipeline.SourceData{
		"news_a": []model.NewsItem{
			{Title: "Fed officials signal rally ahead", Source: "reuters"},
			{Title: "Strong jobs gain lifts Fed outlook", Source: "ap"},
		},
		"news_b": []model.NewsItem{
			{Title: "Fed confident as markets surge", Source: "wsj"},
		},
	}

	d := NewKeywordNews(fedWatchlist("fed"), []string{"news_a", "news_b"}, 0.04)
	edges, err := d.Detect(context.Background(), data, fedMarkets())
	require.NoError(t, err)
	require.Len(t, edges, 1)

	e := edges[0]
	assert.Equal(t, "p1", e.Market.ID)
	assert.Equal(t, model.DirectionYes, e.Direction)
	assert.InDelta(t, 0.25, e.Edge, 1e-9) // 3 unanimous headlines hit the cap
	assert.InDelta(t, 0.45, e.Confidence, 1e-9)
	assert.Equal(t, KeywordNewsName, e.Detector)

	require.NotNil(t, e.Signal.KeywordNews)
	assert.Equal(t, "fed", e.Signal.KeywordNews.Keyword)
	assert.Equal(t, "fed", e.Signal.Subkey())
	assert.Equal(t, "Fed Policy", e.Signal.KeywordNews.Topic)
	assert.Equal(t, 3, e.Signal.KeywordNews.HitCount)
	assert.Len(t, e.Signal.KeywordNews.Headlines, 3)
	assert.InDelta(t, 1.0, e.Signal.KeywordNews.Sentiment, 1e-9)
}

func TestKeywordNews_NegativeToneFadesYes(t *testing.T) {
	data := pipeline.SourceData{
		"news": []model.NewsItem{
			{Title: "Fed delay fears deepen"},
			{Title: "Senate fears Fed plan will fail"},
		},
	}

	d := NewKeywordNews(fedWatchlist("fed"), []string{"news"}, 0.04)
	edges, err := d.Detect(context.Background(), data, fedMarkets())
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, model.DirectionNo, edges[0].Direction)
	assert.InDelta(t, -1.0, edges[0].Signal.KeywordNews.Sentiment, 1e-9)
}

func TestKeywordNews_SeparateEdgesPerKeyword(t *testing.T) {
	data := pipeline.SourceData{
		"news": []model.NewsItem{
			{Title: "Fed officials signal rally in rates"},
			{Title: "Rates surge as Fed stays strong"},
		},
	}

	d := NewKeywordNews(fedWatchlist("fed", "rates"), []string{"news"}, 0.04)
	edges, err := d.Detect(context.Background(), data, fedMarkets())
	require.NoError(t, err)
	require.Len(t, edges, 2)

	keys := map[string]bool{}
	for _, e := range edges {
		assert.Equal(t, "p1", e.Market.ID)
		keys[e.DedupKey()] = true
	}
	// Different keywords never collapse into one dedup slot.
	assert.Len(t, keys, 2)
}

func TestKeywordNews_NeutralToneIgnored(t *testing.T) {
	data := pipeline.SourceData{
		"news": []model.NewsItem{
			{Title: "Fed meeting scheduled for Wednesday"},
			{Title: "Fed members to speak at conference"},
		},
	}

	d := NewKeywordNews(fedWatchlist("fed"), []string{"news"}, 0.04)
	edges, err := d.Detect(context.Background(), data, fedMarkets())
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestKeywordNews_SingleHitIgnored(t *testing.T) {
	data := pipeline.SourceData{
		"news": []model.NewsItem{{Title: "Fed officials signal rally ahead"}},
	}

	d := NewKeywordNews(fedWatchlist("fed"), []string{"news"}, 0.04)
	edges, err := d.Detect(context.Background(), data, fedMarkets())
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestKeywordNews_RespectsMinEdge(t *testing.T) {
	data := pipeline.SourceData{
		"news": []model.NewsItem{
			{Title: "Fed officials signal rally ahead"},
			{Title: "Fed confident as markets surge"},
		},
	}

	// The cap sits below this floor, so nothing can qualify.
	d := NewKeywordNews(fedWatchlist("fed"), []string{"news"}, 0.30)
	edges, err := d.Detect(context.Background(), data, fedMarkets())
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestKeywordNews_NoNews(t *testing.T) {
	d := NewKeywordNews(fedWatchlist("fed"), []string{"news"}, 0.04)
	edges, err := d.Detect(context.Background(), pipeline.SourceData{}, fedMarkets())
	require.NoError(t, err)
	assert.Empty(t, edges)
}
