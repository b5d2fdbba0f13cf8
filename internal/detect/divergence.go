// Package detect holds the built-in reference detectors. Each one is a pure
// function over the run snapshot, registered like any third-party detector;
// none of them is a complete trading strategy on its own.
package detect

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/market-scanner/internal/enrich"
	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
)

// DivergenceName is the registry name of the cross-venue divergence detector.
const DivergenceName = "venue-divergence"

// minSharedTerms is the index cutoff below which two titles are never
// compared in full.
const minSharedTerms = 2

// divergence pairs near-identical markets across venues and flags price gaps.
type divergence struct {
	minEdge  float64
	minMatch float64
}

// NewDivergence builds the cross-venue divergence detector. minEdge is the
// smallest price gap worth reporting and minMatch the title-overlap score
// two markets must clear to count as the same question.
func NewDivergence(minEdge, minMatch float64) pipeline.Detector {
	d := divergence{minEdge: minEdge, minMatch: minMatch}
	return pipeline.NewDetector(
		DivergenceName,
		"price gaps between near-identical markets on different venues",
		nil,
		minEdge,
		d.detect,
	)
}

func (d divergence) detect(_ context.Context, _ pipeline.SourceData, markets []model.Market) ([]model.Edge, error) {
	byPlatform := make(map[model.Platform][]model.Market)
	for _, m := range markets {
		byPlatform[m.Platform] = append(byPlatform[m.Platform], m)
	}
	if len(byPlatform) < 2 {
		return nil, nil
	}

	platforms := make([]model.Platform, 0, len(byPlatform))
	for p := range byPlatform {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

	now := time.Now()
	var edges []model.Edge
	for i := 0; i < len(platforms); i++ {
		for j := i + 1; j < len(platforms); j++ {
			edges = append(edges, d.pairVenues(now, byPlatform[platforms[i]], byPlatform[platforms[j]])...)
		}
	}
	return edges, nil
}

// pairVenues matches markets between two venues through a term index and
// emits one edge per matched pair, on whichever side has more volume.
func (d divergence) pairVenues(now time.Time, a, b []model.Market) []model.Edge {
	index := make(map[string][]int)
	terms := make([][]string, len(b))
	for i, m := range b {
		terms[i] = titleTerms(m.Title)
		for _, t := range terms[i] {
			index[t] = append(index[t], i)
		}
	}

	var edges []model.Edge
	for _, m := range a {
		mTerms := titleTerms(m.Title)
		if len(mTerms) < minSharedTerms {
			continue
		}

		shared := make(map[int]int)
		for _, t := range mTerms {
			for _, i := range index[t] {
				shared[i]++
			}
		}

		bestIdx, bestMatch := -1, 0.0
		for i, n := range shared {
			if n < minSharedTerms {
				continue
			}
			match := overlap(n, len(mTerms), len(terms[i]))
			if match > bestMatch {
				bestIdx, bestMatch = i, match
			}
		}
		if bestIdx < 0 || bestMatch < d.minMatch {
			continue
		}

		other := b[bestIdx]
		gap := m.Price - other.Price
		if gap < 0 {
			gap = -gap
		}
		if gap < d.minEdge {
			continue
		}
		edges = append(edges, d.edge(now, m, other, gap, bestMatch))
	}
	return edges
}

// edge builds the signal on the deeper side of the pair, pointing toward the
// other venue's price.
func (d divergence) edge(now time.Time, m, other model.Market, gap, match float64) model.Edge {
	if other.Volume > m.Volume {
		m, other = other, m
	}

	dir := model.DirectionYes
	if other.Price < m.Price {
		dir = model.DirectionNo
	}

	urgency := model.UrgencyWatch
	if m.ClosesWithin(now, 48*time.Hour) {
		urgency = model.UrgencyToday
	}

	return model.Edge{
		Market:     m,
		Direction:  dir,
		Edge:       gap,
		Confidence: match,
		Reason: fmt.Sprintf("%s at %.3f vs %s at %.3f on a near-identical market (title match %.2f)",
			m.Platform, m.Price, other.Platform, other.Price, match),
		Detector: DivergenceName,
		Signal: model.Signal{
			Type: model.SignalVenueDivergence,
			VenueDivergence: &model.VenueDivergenceSignal{
				OtherPlatform: other.Platform,
				OtherID:       other.ID,
				OtherPrice:    other.Price,
				Gap:           gap,
				TitleMatch:    match,
			},
		},
		Urgency: urgency,
	}
}

// overlap is the overlap coefficient: shared terms over the smaller title's
// term count. Friendlier than Jaccard to venues that pad titles differently.
func overlap(shared, lenA, lenB int) float64 {
	n := lenA
	if lenB < n {
		n = lenB
	}
	if n == 0 {
		return 0
	}
	return float64(shared) / float64(n)
}

// foldTransform strips diacritics after canonical decomposition so venue
// title variants compare equal.
var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// titleTerms folds a market title and extracts its significant terms.
func titleTerms(title string) []string {
	folded, _, err := transform.String(foldTransform, title)
	if err != nil {
		folded = title
	}
	return enrich.Terms(folded)
}
