package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-scanner/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, status, result, started_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	result := &model.RunResult{RunID: "run-1", StartedAt: started, Stats: model.RunStats{MarketCount: 80}}
	resultJSON, err := json.Marshal(result)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, status, result, started_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "result", "started_at", "updated_at"}).
			AddRow("run-1", model.RunStatusComplete, resultJSON, started, started.Add(time.Minute)))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 80, run.Result.Stats.MarketCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs .* ON CONFLICT`).
		WithArgs("run-1", "complete", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	result := &model.RunResult{
		RunID:     "run-1",
		StartedAt: time.Now().UTC(),
		Stats:     model.RunStats{MarketCount: 42},
	}
	require.NoError(t, s.SaveRun(context.Background(), result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun_FailedStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs .* ON CONFLICT`).
		WithArgs("run-dead", "failed", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	result := &model.RunResult{
		RunID:     "run-dead",
		StartedAt: time.Now().UTC(),
		Errors:    []model.SourceError{{Source: "polymarket", Stage: model.StageSource, Error: "boom"}},
	}
	require.NoError(t, s.SaveRun(context.Background(), result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LogEdges_InsertsEach(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO edge_log`).
		WithArgs(pgxmock.AnyArg(), "run-1", "polymarket:0xabc", "polymarket", "Fed cuts?", "venue-divergence",
			"YES", 0.15, 0.7, 0.62, "actionable", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO edge_log`).
		WithArgs(pgxmock.AnyArg(), "run-1", "kalshi:FED-25SEP", "kalshi", "Fed cuts?", "keyword-news",
			"NO", 0.08, 0.5, 0.47, "watchlist", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	edges := []model.Edge{
		{
			Market:     model.Market{Platform: model.PlatformPolymarket, ID: "0xabc", Title: "Fed cuts?", Price: 0.62},
			Direction:  model.DirectionYes,
			Edge:       0.15,
			Confidence: 0.7,
			Detector:   "venue-divergence",
			Tier:       model.TierActionable,
		},
		{
			Market:     model.Market{Platform: model.PlatformKalshi, ID: "FED-25SEP", Title: "Fed cuts?", Price: 0.47},
			Direction:  model.DirectionNo,
			Edge:       0.08,
			Confidence: 0.5,
			Detector:   "keyword-news",
			Tier:       model.TierWatchlist,
		},
	}
	require.NoError(t, s.LogEdges(context.Background(), "run-1", time.Now().UTC(), edges))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListEdges_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM edge_log WHERE true AND detector = \$1`).
		WithArgs("keyword-news", 100).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "run_id", "market_key", "platform", "title", "detector",
			"direction", "edge", "confidence", "price", "tier", "detected_at",
		}).AddRow("edge-1", "run-1", "kalshi:FED-25SEP", "kalshi", "Fed cuts?", "keyword-news",
			model.DirectionNo, 0.08, 0.5, 0.47, model.TierWatchlist, at))

	entries, err := s.ListEdges(context.Background(), EdgeFilter{Detector: "keyword-news"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kalshi:FED-25SEP", entries[0].MarketKey)
	assert.Equal(t, at, entries[0].DetectedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetAnalyzed_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO escalation_state .* ON CONFLICT`).
		WithArgs("polymarket:0xabc", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetAnalyzed(context.Background(), "polymarket:0xabc", time.Now().UTC())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAnalyzed_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT analyzed_at FROM escalation_state`).
		WithArgs("polymarket:unknown").
		WillReturnError(pgx.ErrNoRows)

	at, ok, err := s.GetAnalyzed(context.Background(), "polymarket:unknown")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, at.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAnalyzed_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT analyzed_at FROM escalation_state`).
		WithArgs("polymarket:0xabc").
		WillReturnRows(pgxmock.NewRows([]string{"analyzed_at"}).AddRow(at))

	got, ok, err := s.GetAnalyzed(context.Background(), "polymarket:0xabc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountAnalyzed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM escalation_state`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountAnalyzed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PruneAnalyzed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM escalation_state WHERE analyzed_at < \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.PruneAnalyzed(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
