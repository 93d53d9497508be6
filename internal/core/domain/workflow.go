package domain

import "time"

// RawMetrics holds the numeric fields reported by a source. Fields a source
// does not report stay zero.
type RawMetrics struct {
	Views    int64
	Likes    int64
	Comments int64
	Replies  int64
	Interest float64
}

// WorkflowObservation is one source's report about one workflow at one point in time.
type WorkflowObservation struct {
	Source     Source
	ExternalID string
	Title      string
	URL        string
	Country    string
	ObservedAt time.Time
	RawMetrics RawMetrics

	// Engagement is the per-source sub-score computed at normalization.
	Engagement float64
}

// WorkflowEntity is the canonical, deduplicated workflow.
type WorkflowEntity struct {
	ID              string
	CanonicalTitle  string
	NormalizedTitle string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SourceLinks     map[Source]string
}

// Clone returns a deep copy so callers can modify links without aliasing.
func (e WorkflowEntity) Clone() WorkflowEntity {
	links := make(map[Source]string, len(e.SourceLinks))
	for k, v := range e.SourceLinks {
		links[k] = v
	}

	e.SourceLinks = links

	return e
}

// HasLink reports whether the entity already links an external id for the source.
func (e WorkflowEntity) HasLink(src Source) bool {
	_, ok := e.SourceLinks[src]

	return ok
}
