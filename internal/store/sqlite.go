package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/market-scanner/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	result     TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS edge_log (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	market_key  TEXT NOT NULL,
	platform    TEXT NOT NULL,
	title       TEXT NOT NULL,
	detector    TEXT NOT NULL,
	direction   TEXT NOT NULL,
	edge        REAL NOT NULL,
	confidence  REAL NOT NULL,
	price       REAL NOT NULL,
	tier        TEXT NOT NULL,
	detected_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS escalation_state (
	market_key  TEXT PRIMARY KEY,
	analyzed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_edge_log_run_id ON edge_log(run_id);
CREATE INDEX IF NOT EXISTS idx_edge_log_market_key ON edge_log(market_key);
CREATE INDEX IF NOT EXISTS idx_edge_log_detected_at ON edge_log(detected_at);
CREATE INDEX IF NOT EXISTS idx_escalation_state_analyzed_at ON escalation_state(analyzed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, result, started_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, result = excluded.result, updated_at = excluded.updated_at`,
		result.RunID, string(result.Status()), string(resultJSON), result.StartedAt.UTC(), now,
	)
	return eris.Wrapf(err, "sqlite: save run %s", result.RunID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, result, started_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, result, started_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) LogEdges(ctx context.Context, runID string, at time.Time, edges []model.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin edge log tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, e := range edges {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO edge_log (id, run_id, market_key, platform, title, detector, direction, edge, confidence, price, tier, detected_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), runID, e.Market.Key(), string(e.Market.Platform), e.Market.Title,
			e.Detector, string(e.Direction), e.Edge, e.Confidence, e.Market.Price, string(e.Tier), at.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: log edge for run %s", runID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit edge log")
}

func (s *SQLiteStore) ListEdges(ctx context.Context, filter EdgeFilter) ([]EdgeLogEntry, error) {
	query := `SELECT id, run_id, market_key, platform, title, detector, direction, edge, confidence, price, tier, detected_at
	          FROM edge_log WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Detector != "" {
		query += ` AND detector = ?`
		args = append(args, filter.Detector)
	}
	if !filter.Since.IsZero() {
		query += ` AND detected_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY detected_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list edges")
	}
	defer rows.Close()

	var entries []EdgeLogEntry
	for rows.Next() {
		var e EdgeLogEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.MarketKey, &e.Platform, &e.Title, &e.Detector,
			&e.Direction, &e.Edge, &e.Confidence, &e.Price, &e.Tier, &e.DetectedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan edge")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list edges iterate")
}

func (s *SQLiteStore) SetAnalyzed(ctx context.Context, marketKey string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO escalation_state (market_key, analyzed_at) VALUES (?, ?)
		 ON CONFLICT(market_key) DO UPDATE SET analyzed_at = excluded.analyzed_at`,
		marketKey, at.UTC(),
	)
	return eris.Wrapf(err, "sqlite: set analyzed %s", marketKey)
}

func (s *SQLiteStore) GetAnalyzed(ctx context.Context, marketKey string) (time.Time, bool, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT analyzed_at FROM escalation_state WHERE market_key = ?`,
		marketKey,
	).Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, eris.Wrapf(err, "sqlite: get analyzed %s", marketKey)
	}
	return at.UTC(), true, nil
}

func (s *SQLiteStore) CountAnalyzed(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalation_state`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count analyzed")
}

func (s *SQLiteStore) PruneAnalyzed(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM escalation_state WHERE analyzed_at < ?`,
		before.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune analyzed")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// scanRun reads one runs row from either a Row or Rows.
func scanRun(row interface{ Scan(dest ...any) error }) (*model.Run, error) {
	var r model.Run
	var resultJSON string

	err := row.Scan(&r.ID, &r.Status, &resultJSON, &r.StartedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Result = &model.RunResult{}
	if err := json.Unmarshal([]byte(resultJSON), r.Result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal result")
	}
	r.StartedAt = r.StartedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}
