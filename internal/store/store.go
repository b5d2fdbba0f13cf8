// Package store persists run history, the escalation cooldown state, and the
// edge calibration log. Two backends: SQLite for single-box deployments and
// Postgres for shared ones.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-scanner/internal/model"
)

// ErrRunNotFound is returned by GetRun for unknown run IDs.
var ErrRunNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing stored runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Since  time.Time       `json:"since,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// EdgeFilter specifies criteria for querying the edge log.
type EdgeFilter struct {
	RunID    string    `json:"run_id,omitempty"`
	Detector string    `json:"detector,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Limit    int       `json:"limit,omitempty"`
}

// EdgeLogEntry is one calibration-log row: the edge as it looked at
// detection time, flattened so it can later be scored against how the
// market actually resolved.
type EdgeLogEntry struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	MarketKey  string          `json:"market_key"`
	Platform   string          `json:"platform"`
	Title      string          `json:"title"`
	Detector   string          `json:"detector"`
	Direction  model.Direction `json:"direction"`
	Edge       float64         `json:"edge"`
	Confidence float64         `json:"confidence"`
	Price      float64         `json:"price"`
	Tier       model.Tier      `json:"tier"`
	DetectedAt time.Time       `json:"detected_at"`
}

// Store is the persistence interface for the scanner.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Edge calibration log
	LogEdges(ctx context.Context, runID string, at time.Time, edges []model.Edge) error
	ListEdges(ctx context.Context, filter EdgeFilter) ([]EdgeLogEntry, error)

	// Escalation cooldown state
	SetAnalyzed(ctx context.Context, marketKey string, at time.Time) error
	GetAnalyzed(ctx context.Context, marketKey string) (time.Time, bool, error)
	CountAnalyzed(ctx context.Context) (int, error)
	PruneAnalyzed(ctx context.Context, before time.Time) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

