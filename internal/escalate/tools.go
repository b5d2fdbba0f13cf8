package escalate

import (
	"sort"
	"strings"

	"github.com/sells-group/market-scanner/internal/enrich"
	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
)

// Tools are the read-only lookups the analysts use to build prompts. Every
// method is a pure query over one run's snapshot; nothing here fetches or
// mutates.
type Tools struct {
	snap pipeline.Snapshot
}

// NewTools wraps a run snapshot.
func NewTools(snap pipeline.Snapshot) *Tools {
	return &Tools{snap: snap}
}

// News returns every news item in the snapshot across all sources, in
// deterministic source-name order.
func (t *Tools) News() []model.NewsItem {
	keys := make([]string, 0, len(t.snap.Data))
	for k := range t.snap.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []model.NewsItem
	for _, k := range keys {
		out = append(out, t.snap.Data.News(k)...)
	}
	return out
}

// Headlines returns news items mentioning any of the terms, newest first.
func (t *Tools) Headlines(terms []string, limit int) []model.NewsItem {
	var out []model.NewsItem
	for _, it := range t.News() {
		if matchesAny(it.Title+" "+it.Summary, terms) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Published.After(out[j].Published)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SimilarMarkets returns other markets sharing title terms with m, ordered
// by shared-term count then volume.
func (t *Tools) SimilarMarkets(m model.Market, limit int) []model.Market {
	terms := enrich.Terms(m.Title)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		m     model.Market
		score int
	}
	var hits []scored
	for _, other := range t.snap.Markets {
		if other.Key() == m.Key() {
			continue
		}
		n := sharedTerms(terms, enrich.Terms(other.Title))
		if n > 0 {
			hits = append(hits, scored{m: other, score: n})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].m.Volume > hits[j].m.Volume
	})

	out := make([]model.Market, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.m)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Universe returns the run's market-stats summary when the stats processor
// ran.
func (t *Tools) Universe() (enrich.Stats, bool) {
	return enrich.StatsFrom(t.snap.Data)
}

// TopicSentiment averages lexicon sentiment over news mentioning any of the
// terms. The count reports how many items matched.
func (t *Tools) TopicSentiment(terms []string) (float64, int) {
	var sum float64
	var n int
	for _, it := range t.News() {
		text := it.Title + " " + it.Summary
		if !matchesAny(text, terms) {
			continue
		}
		sum += enrich.Score(text)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func matchesAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

func sharedTerms(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	n := 0
	for _, w := range b {
		if set[w] {
			n++
		}
	}
	return n
}
