package model

import "time"

// RunStatus represents the state of a stored pipeline run.
type RunStatus string

const (
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Stage names where in the pipeline a plugin error occurred.
type Stage string

const (
	StageSource    Stage = "source"
	StageProcessor Stage = "processor"
	StageDetector  Stage = "detector"
	StageEscalate  Stage = "escalate"
)

// SourceError records one plugin failure within a run. Failures are
// first-class outcomes, never fatal to the run.
type SourceError struct {
	Source string `json:"source"`
	Stage  Stage  `json:"stage"`
	Error  string `json:"error"`
}

// RunStats captures wall-clock timing and fetch accounting for one run.
type RunStats struct {
	TotalTimeMS    int64            `json:"total_time_ms"`
	SourceTimesMS  map[string]int64 `json:"source_times_ms,omitempty"`
	SourcesFetched int              `json:"sources_fetched"`
	SourcesCached  int              `json:"sources_cached"`
	MarketCount    int              `json:"market_count"`
	RawEdgeCount   int              `json:"raw_edge_count"`
}

// EscalationStats summarizes the escalation controller's work within a run.
type EscalationStats struct {
	Candidates int     `json:"candidates"`
	Analyzed   int     `json:"analyzed"`
	Escalated  int     `json:"escalated"`
	SpentUSD   float64 `json:"spent_usd"`
}

// RunResult is the only artifact consumers may depend on: the ranked edges,
// the per-plugin errors, and the run stats. Zero edges with a non-empty error
// list is a valid outcome.
type RunResult struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	Edges      []Edge           `json:"edges"`
	Errors     []SourceError    `json:"errors,omitempty"`
	Stats      RunStats         `json:"stats"`
	Escalation *EscalationStats `json:"escalation,omitempty"`
}

// Status classifies a finished run. A run that built no market universe and
// reported errors produced nothing usable; everything else is complete, even
// with a partially failed plugin set.
func (r *RunResult) Status() RunStatus {
	if r.Stats.MarketCount == 0 && len(r.Errors) > 0 {
		return RunStatusFailed
	}
	return RunStatusComplete
}

// Run is a stored pipeline run with its final result, if finished.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
