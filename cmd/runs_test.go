package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/market-scanner/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:     "abc12345-6789-0000-0000-000000000000",
			Status: model.RunStatusComplete,
			Result: &model.RunResult{
				RunID: "abc12345-6789-0000-0000-000000000000",
				Edges: []model.Edge{{Detector: "venue-divergence"}, {Detector: "longshot-decay"}},
				Stats: model.RunStats{TotalTimeMS: 4200, MarketCount: 812},
				Escalation: &model.EscalationStats{
					Analyzed: 3,
					SpentUSD: 0.12,
				},
			},
			StartedAt: now,
			UpdatedAt: now.Add(5 * time.Second),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Status:    model.RunStatusFailed,
			StartedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "MARKETS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "812")
	assert.Contains(t, output, "$0.12")
	assert.Contains(t, output, "2026-03-10 09:30")
	assert.Contains(t, output, "def12345")
	assert.Contains(t, output, "failed")
}

func TestFormatRunsList_NoResult(t *testing.T) {
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Status:    model.RunStatusFailed,
			StartedAt: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	// A run without a stored result shows a dash, not a zero duration.
	assert.Contains(t, buf.String(), "-")
}

func TestRunsStats(t *testing.T) {
	runs := []model.Run{
		{
			ID:     "1",
			Status: model.RunStatusComplete,
			Result: &model.RunResult{
				Edges: []model.Edge{{}, {}, {}},
				Stats: model.RunStats{TotalTimeMS: 4000, MarketCount: 800},
				Escalation: &model.EscalationStats{
					Escalated: 1,
					SpentUSD:  0.30,
				},
			},
		},
		{
			ID:     "2",
			Status: model.RunStatusComplete,
			Result: &model.RunResult{
				Edges: []model.Edge{{}},
				Stats: model.RunStats{TotalTimeMS: 6000, MarketCount: 1000},
			},
		},
		{
			ID:     "3",
			Status: model.RunStatusFailed,
		},
	}

	stats := computeRunStats(runs)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Complete)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 4, stats.TotalEdges)
	assert.Equal(t, 1, stats.Escalated)
	assert.InDelta(t, 0.30, stats.TotalSpentUSD, 1e-9)
	// Two runs with results: (4s + 6s) / 2 = 5s.
	assert.InDelta(t, 5.0, stats.AvgDurSecs, 0.1)
	assert.InDelta(t, 900.0, stats.AvgMarkets, 0.1)

	var buf bytes.Buffer
	formatRunStats(&buf, stats)

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "3")
	assert.Contains(t, output, "Complete:")
	assert.Contains(t, output, "Total edges:")
	assert.Contains(t, output, "Escalated:")
	assert.Contains(t, output, "$0.30")
	assert.Contains(t, output, "5.0s")
	assert.Contains(t, output, "900")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
