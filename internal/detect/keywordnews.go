package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/market-scanner/internal/enrich"
	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
	"github.com/sells-group/market-scanner/internal/watchlist"
)

// KeywordNewsName is the registry name of the keyword news detector.
const KeywordNewsName = "keyword-news"

const (
	// minHits is the fewest matching headlines worth reacting to.
	minHits = 2
	// minTone is the sentiment magnitude below which news reads as neutral.
	minTone = 0.2
	// maxKeywordEdge caps how much edge a pile of headlines can claim.
	maxKeywordEdge = 0.25
	// signalHeadlines caps the evidence carried on the signal.
	signalHeadlines = 5
)

type keywordNews struct {
	wl      *watchlist.Watchlist
	inputs  []string
	minEdge float64
}

// NewKeywordNews builds the watchlist keyword detector over the named news
// inputs. Each (market, keyword) pair is an independent edge: the keyword is
// the signal subkey, so several keywords may coexist on one market through
// aggregation.
func NewKeywordNews(wl *watchlist.Watchlist, newsInputs []string, minEdge float64) pipeline.Detector {
	d := keywordNews{wl: wl, inputs: newsInputs, minEdge: minEdge}
	return pipeline.NewDetector(
		KeywordNewsName,
		"watchlist keywords surging in news around matching markets",
		newsInputs,
		minEdge,
		d.detect,
	)
}

func (d keywordNews) detect(_ context.Context, data pipeline.SourceData, markets []model.Market) ([]model.Edge, error) {
	var items []model.NewsItem
	for _, in := range d.inputs {
		items = append(items, data.News(in)...)
	}
	if len(items) == 0 || d.wl.Len() == 0 {
		return nil, nil
	}

	var edges []model.Edge
	for _, topic := range d.wl.Topics() {
		for _, kw := range topic.Keywords {
			hits, sentiment, headlines := keywordTone(items, kw)
			if hits < minHits || sentiment > -minTone && sentiment < minTone {
				continue
			}

			edge := keywordEdge(hits, sentiment)
			if edge < d.minEdge {
				continue
			}

			dir := model.DirectionYes
			if sentiment < 0 {
				dir = model.DirectionNo
			}
			urgency := model.UrgencyWatch
			if hits >= 5 {
				urgency = model.UrgencyToday
			}

			for _, m := range markets {
				if !strings.Contains(strings.ToLower(m.Title), kw) {
					continue
				}
				edges = append(edges, model.Edge{
					Market:     m,
					Direction:  dir,
					Edge:       edge,
					Confidence: keywordConfidence(hits),
					Reason: fmt.Sprintf("%d headlines on %q with %+.2f sentiment",
						hits, kw, sentiment),
					Detector: KeywordNewsName,
					Signal: model.Signal{
						Type: model.SignalKeywordNews,
						KeywordNews: &model.KeywordNewsSignal{
							Keyword:   kw,
							Topic:     topic.Name,
							Headlines: headlines,
							Sentiment: sentiment,
							HitCount:  hits,
						},
					},
					Urgency: urgency,
				})
			}
		}
	}
	return edges, nil
}

// keywordTone scans the news for one keyword: hit count, mean sentiment,
// and the first few matching titles as evidence.
func keywordTone(items []model.NewsItem, kw string) (int, float64, []string) {
	var hits int
	var sum float64
	var headlines []string
	for _, it := range items {
		text := it.Title + " " + it.Summary
		if !strings.Contains(strings.ToLower(text), kw) {
			continue
		}
		hits++
		sum += enrich.Score(text)
		if len(headlines) < signalHeadlines {
			headlines = append(headlines, it.Title)
		}
	}
	if hits == 0 {
		return 0, 0, nil
	}
	return hits, sum / float64(hits), headlines
}

// keywordEdge converts headline volume and tone into an edge magnitude.
// Hit count saturates so a wire-service storm cannot claim unbounded edge.
func keywordEdge(hits int, sentiment float64) float64 {
	if sentiment < 0 {
		sentiment = -sentiment
	}
	e := sentiment * float64(hits) / float64(hits+4)
	if e > maxKeywordEdge {
		return maxKeywordEdge
	}
	return e
}

func keywordConfidence(hits int) float64 {
	c := 0.3 + 0.05*float64(hits)
	if c > 0.8 {
		return 0.8
	}
	return c
}
