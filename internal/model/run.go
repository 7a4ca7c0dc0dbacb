package model

import "time"

// Stage is a state of the pipeline's single linear pass.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageSearching  Stage = "searching"
	StageExtracting Stage = "extracting"
	StagePersisting Stage = "persisting"
	StageScoring    Stage = "scoring"
	StageDone       Stage = "done"
)

// RunStatus is the persisted status of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunResult summarizes one pipeline invocation. Counts reflect whatever was
// achieved before a fatal error, so partial progress stays visible.
type RunResult struct {
	RunID         string    `json:"run_id"`
	Success       bool      `json:"success"`
	Stage         Stage     `json:"stage"`
	Queries       int       `json:"queries"`
	QueriesFailed int       `json:"queries_failed"`
	RawResults    int       `json:"raw_results"`
	Candidates    int       `json:"candidates"`
	Discovered    int       `json:"discovered"`
	Existing      int       `json:"existing"`
	Scored        int       `json:"scored"`
	ScoreFailed   int       `json:"score_failed"`
	Errors        []string  `json:"errors,omitempty"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
}

// AddError records a per-item failure that did not abort the run.
func (r *RunResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}
