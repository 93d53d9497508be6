package collection

import (
	"time"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
)

// Ticket is the acceptance token of a triggered run.
type Ticket struct {
	RunID     string    `json:"run_id"`
	JobName   string    `json:"job_name"`
	StartedAt time.Time `json:"started_at"`
}

// SourceOutcome is the result of draining one adapter.
type SourceOutcome struct {
	Source   domain.Source
	Fetched  int
	Duration time.Duration
	Err      error
}

// Failed reports whether the adapter ended with an error.
func (o SourceOutcome) Failed() bool {
	return o.Err != nil
}

// RunReport describes a finished run.
type RunReport struct {
	Run       domain.CollectionJobRun
	Sources   []SourceOutcome
	Divergent int
}

// Succeeded reports whether the run reached the succeeded state.
func (r RunReport) Succeeded() bool {
	return r.Run.Status == domain.RunStatusSucceeded
}

// failedSources lists sources with at least one failing adapter.
func failedSources(outcomes []SourceOutcome) map[domain.Source]bool {
	failed := make(map[domain.Source]bool)

	for _, o := range outcomes {
		if o.Failed() {
			failed[o.Source] = true
		}
	}

	return failed
}

func allFailed(outcomes []SourceOutcome) bool {
	for _, o := range outcomes {
		if !o.Failed() {
			return false
		}
	}

	return true
}
