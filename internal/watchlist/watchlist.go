// Package watchlist holds the curated topic registry: named topics with
// keywords and a priority boost, maintained in a Notion database or a local
// YAML file. Topics feed the keyword news detector and bias escalation
// candidate ordering.
package watchlist

import (
	"strings"

	"github.com/sells-group/market-scanner/internal/model"
)

// Topic is one watched subject with the keywords that identify it in market
// titles and headlines. Boost is a fractional priority multiplier applied
// during escalation candidate ordering (0.5 means 1.5x).
type Topic struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Boost    float64  `yaml:"boost,omitempty" json:"boost,omitempty"`
}

// Watchlist is an immutable set of topics. The zero value and New(nil) both
// behave as an empty list: no keywords, zero boost everywhere.
type Watchlist struct {
	topics []Topic
}

// New normalizes the given topics: keywords are lowercased and deduplicated,
// topics without a name or without any usable keyword are dropped, negative
// boosts are clamped to zero.
func New(topics []Topic) *Watchlist {
	var clean []Topic
	for _, t := range topics {
		if strings.TrimSpace(t.Name) == "" {
			continue
		}
		seen := make(map[string]bool, len(t.Keywords))
		var kws []string
		for _, kw := range t.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			kws = append(kws, kw)
		}
		if len(kws) == 0 {
			continue
		}
		boost := t.Boost
		if boost < 0 {
			boost = 0
		}
		clean = append(clean, Topic{Name: t.Name, Keywords: kws, Boost: boost})
	}
	return &Watchlist{topics: clean}
}

// Topics returns the normalized topic list.
func (w *Watchlist) Topics() []Topic {
	if w == nil {
		return nil
	}
	return w.topics
}

// Len returns the number of topics.
func (w *Watchlist) Len() int {
	if w == nil {
		return 0
	}
	return len(w.topics)
}

// TopicFor returns the first topic that lists the given keyword.
func (w *Watchlist) TopicFor(keyword string) (Topic, bool) {
	keyword = strings.ToLower(keyword)
	for _, t := range w.Topics() {
		for _, kw := range t.Keywords {
			if kw == keyword {
				return t, true
			}
		}
	}
	return Topic{}, false
}

// Boost returns the largest boost among topics with a keyword appearing in
// the given text, or zero.
func (w *Watchlist) Boost(text string) float64 {
	text = strings.ToLower(text)
	best := 0.0
	for _, t := range w.Topics() {
		for _, kw := range t.Keywords {
			if strings.Contains(text, kw) {
				if t.Boost > best {
					best = t.Boost
				}
				break
			}
		}
	}
	return best
}

// BoostFunc adapts the watchlist to the escalation controller's boost hook.
func (w *Watchlist) BoostFunc() func(model.Market) float64 {
	return func(m model.Market) float64 {
		return w.Boost(m.Title)
	}
}
