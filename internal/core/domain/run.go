package domain

import "time"

// RunStatus is the lifecycle state of a collection run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status closes a run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// Job names.
const (
	JobDailyCollection = "daily-collection"
	JobWeeklyAnalytics = "weekly-analytics"
	JobManual          = "manual"
)

// Summary strings recorded on failed runs.
const (
	SummaryCancelled = "cancelled"
	SummaryAbandoned = "abandoned"
)

// CollectionJobRun is the bookkeeping record of one collection run.
type CollectionJobRun struct {
	ID           string     `json:"id"`
	JobName      string     `json:"job_name"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       RunStatus  `json:"status"`
	ErrorSummary string     `json:"error_summary,omitempty"`
	Stats        RunStats   `json:"stats"`
}

// RunStats aggregates counters of a run.
type RunStats struct {
	Fetched   map[Source]int `json:"fetched,omitempty"`
	Malformed int            `json:"malformed"`
	Created   int            `json:"entities_created"`
	Linked    int            `json:"entities_linked"`
	Conflicts int            `json:"merge_conflicts"`
	Snapshots int            `json:"snapshots"`
}
