// Package enrich holds the built-in processors that derive secondary data
// from fetched sources, plus the lexicon scorer they share with the
// escalation tools.
package enrich

import (
	"context"
	"strings"
	"unicode"

	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
)

// Crude headline lexicon. Good enough to rank topics by tone; never used as
// a trading signal on its own.
var positiveWords = map[string]bool{
	"advance": true, "agree": true, "approve": true, "beat": true,
	"boost": true, "confirm": true, "gain": true, "jump": true,
	"lead": true, "pass": true, "rally": true, "rebound": true,
	"record": true, "rise": true, "settle": true, "strong": true,
	"succeed": true, "surge": true, "win": true, "wins": true,
}

var negativeWords = map[string]bool{
	"ban": true, "block": true, "collapse": true, "crash": true,
	"cut": true, "delay": true, "deny": true, "drop": true,
	"fail": true, "fall": true, "fears": true, "indict": true,
	"lose": true, "loses": true, "miss": true, "plunge": true,
	"reject": true, "resign": true, "slump": true, "weak": true,
}

// Score returns a lexicon sentiment for text in [-1, 1]. Zero means neutral
// or no lexicon hits at all.
func Score(text string) float64 {
	var pos, neg int
	for _, w := range Tokenize(text) {
		if positiveWords[w] {
			pos++
		}
		if negativeWords[w] {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

// Tokenize splits text into lowercase word tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// NewSentimentProcessor builds a processor that averages headline sentiment
// per topic across the named news inputs. It publishes a
// map[string]float64 of topic to mean score under "topic_sentiment";
// topics with no matching headlines are omitted.
func NewSentimentProcessor(topics []string, newsInputs []string) pipeline.Processor {
	return pipeline.NewProcessor("topic-sentiment", newsInputs, "topic_sentiment",
		func(_ context.Context, data pipeline.SourceData) (any, error) {
			var items []model.NewsItem
			for _, in := range newsInputs {
				items = append(items, data.News(in)...)
			}

			out := make(map[string]float64, len(topics))
			for _, topic := range topics {
				needle := strings.ToLower(topic)
				var sum float64
				var n int
				for _, it := range items {
					text := it.Title + " " + it.Summary
					if !strings.Contains(strings.ToLower(text), needle) {
						continue
					}
					sum += Score(text)
					n++
				}
				if n > 0 {
					out[topic] = sum / float64(n)
				}
			}
			return out, nil
		})
}
