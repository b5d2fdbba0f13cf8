package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/market-scanner/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. The
// cooldown pair runs once per escalation candidate, every run.
var preparedStatements = map[string]string{
	"save_run":     `INSERT INTO runs (id, status, result, started_at, updated_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO UPDATE SET status = excluded.status, result = excluded.result, updated_at = excluded.updated_at`,
	"get_run":      `SELECT id, status, result, started_at, updated_at FROM runs WHERE id = $1`,
	"set_analyzed": `INSERT INTO escalation_state (market_key, analyzed_at) VALUES ($1, $2) ON CONFLICT (market_key) DO UPDATE SET analyzed_at = excluded.analyzed_at`,
	"get_analyzed": `SELECT analyzed_at FROM escalation_state WHERE market_key = $1`,
	"insert_edge":  `INSERT INTO edge_log (id, run_id, market_key, platform, title, detector, direction, edge, confidence, price, tier, detected_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	result     JSONB NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS edge_log (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	market_key  TEXT NOT NULL,
	platform    TEXT NOT NULL,
	title       TEXT NOT NULL,
	detector    TEXT NOT NULL,
	direction   TEXT NOT NULL,
	edge        DOUBLE PRECISION NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	tier        TEXT NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS escalation_state (
	market_key  TEXT PRIMARY KEY,
	analyzed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_edge_log_run_id ON edge_log(run_id);
CREATE INDEX IF NOT EXISTS idx_edge_log_market_key ON edge_log(market_key);
CREATE INDEX IF NOT EXISTS idx_edge_log_detected_at ON edge_log(detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_escalation_state_analyzed_at ON escalation_state(analyzed_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) SaveRun(ctx context.Context, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, result, started_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET status = excluded.status, result = excluded.result, updated_at = excluded.updated_at`,
		result.RunID, string(result.Status()), resultJSON, result.StartedAt.UTC(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save run %s", result.RunID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var resultJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, status, result, started_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Status, &resultJSON, &r.StartedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	r.Result = &model.RunResult{}
	if err := json.Unmarshal(resultJSON, r.Result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal result")
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, result, started_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND started_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var resultJSON []byte
		if err := rows.Scan(&r.ID, &r.Status, &resultJSON, &r.StartedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) LogEdges(ctx context.Context, runID string, at time.Time, edges []model.Edge) error {
	for _, e := range edges {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO edge_log (id, run_id, market_key, platform, title, detector, direction, edge, confidence, price, tier, detected_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			uuid.New().String(), runID, e.Market.Key(), string(e.Market.Platform), e.Market.Title,
			e.Detector, string(e.Direction), e.Edge, e.Confidence, e.Market.Price, string(e.Tier), at.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: log edge for run %s", runID)
		}
	}
	return nil
}

func (s *PostgresStore) ListEdges(ctx context.Context, filter EdgeFilter) ([]EdgeLogEntry, error) {
	query := `SELECT id, run_id, market_key, platform, title, detector, direction, edge, confidence, price, tier, detected_at
	          FROM edge_log WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	if filter.Detector != "" {
		query += fmt.Sprintf(` AND detector = $%d`, argIdx)
		args = append(args, filter.Detector)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND detected_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY detected_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list edges")
	}
	defer rows.Close()

	var entries []EdgeLogEntry
	for rows.Next() {
		var e EdgeLogEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.MarketKey, &e.Platform, &e.Title, &e.Detector,
			&e.Direction, &e.Edge, &e.Confidence, &e.Price, &e.Tier, &e.DetectedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan edge")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list edges iterate")
}

func (s *PostgresStore) SetAnalyzed(ctx context.Context, marketKey string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO escalation_state (market_key, analyzed_at) VALUES ($1, $2)
		 ON CONFLICT (market_key) DO UPDATE SET analyzed_at = excluded.analyzed_at`,
		marketKey, at.UTC(),
	)
	return eris.Wrapf(err, "postgres: set analyzed %s", marketKey)
}

func (s *PostgresStore) GetAnalyzed(ctx context.Context, marketKey string) (time.Time, bool, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT analyzed_at FROM escalation_state WHERE market_key = $1`,
		marketKey,
	).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, eris.Wrapf(err, "postgres: get analyzed %s", marketKey)
	}
	return at.UTC(), true, nil
}

func (s *PostgresStore) CountAnalyzed(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM escalation_state`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count analyzed")
}

func (s *PostgresStore) PruneAnalyzed(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM escalation_state WHERE analyzed_at < $1`,
		before.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune analyzed")
	}
	return int(tag.RowsAffected()), nil
}
