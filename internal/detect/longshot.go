package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
)

// LongshotName is the registry name of the longshot decay detector.
const LongshotName = "longshot-decay"

// longshotMinVolume filters out markets too thin for the bias to be
// tradeable.
const longshotMinVolume = 1000

type longshot struct {
	minEdge float64
	band    float64
	window  time.Duration
}

// NewLongshot builds the favorite-longshot detector: markets priced within
// band of either bound and closing inside window tend to finish their move
// faster than the price implies, so the extreme side is the fade. band 0.10
// and a 72h window are sensible defaults.
func NewLongshot(minEdge, band float64, window time.Duration) pipeline.Detector {
	d := longshot{minEdge: minEdge, band: band, window: window}
	return pipeline.NewDetector(
		LongshotName,
		"favorite-longshot fade on extreme prices near resolution",
		nil,
		minEdge,
		d.detect,
	)
}

func (d longshot) detect(_ context.Context, _ pipeline.SourceData, markets []model.Market) ([]model.Edge, error) {
	now := time.Now()

	var edges []model.Edge
	for _, m := range markets {
		if m.Volume < longshotMinVolume || !m.ClosesWithin(now, d.window) {
			continue
		}

		var dir model.Direction
		var move float64
		switch {
		case m.Price <= d.band:
			dir, move = model.DirectionNo, m.Price
		case m.Price >= 1-d.band:
			dir, move = model.DirectionYes, 1-m.Price
		default:
			continue
		}

		hours := m.CloseTime.Sub(now).Hours()
		decay := 1 - hours/d.window.Hours()
		edge := move * decay
		if edge < d.minEdge {
			continue
		}

		urgency := model.UrgencyToday
		if m.ClosesWithin(now, 24*time.Hour) {
			urgency = model.UrgencyImmediate
		}

		edges = append(edges, model.Edge{
			Market:     m,
			Direction:  dir,
			Edge:       edge,
			Confidence: 0.4 + 0.2*decay,
			Reason: fmt.Sprintf("longshot at %.3f with %.0fh to close, remaining move should decay",
				m.Price, hours),
			Detector: LongshotName,
			Signal: model.Signal{
				Type: model.SignalLongshotDecay,
				LongshotDecay: &model.LongshotDecaySignal{
					HoursToClose: hours,
					ImpliedMove:  move,
				},
			},
			Urgency: urgency,
		})
	}
	return edges, nil
}
