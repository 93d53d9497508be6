// Package ports provides domain-centric interfaces for external dependencies.
// These interfaces follow the ports and adapters (hexagonal) architecture pattern,
// allowing business logic to remain independent of infrastructure concerns.
package ports

import (
	"context"
	"time"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
)

// EntityRepository persists canonical workflow entities and their source links.
type EntityRepository interface {
	// LoadEntityBySourceLink returns nil when no entity links the external id.
	LoadEntityBySourceLink(ctx context.Context, src domain.Source, externalID string) (*domain.WorkflowEntity, error)
	// LoadEntityByTitleCandidates returns entities sharing at least one title token.
	LoadEntityByTitleCandidates(ctx context.Context, normalizedTitle string) ([]domain.WorkflowEntity, error)
	SaveEntity(ctx context.Context, entity domain.WorkflowEntity) error
	LoadEntity(ctx context.Context, id string) (*domain.WorkflowEntity, error)
	// ListEntities pages through entities ordered by id, starting after afterID.
	ListEntities(ctx context.Context, afterID string, limit int) ([]domain.WorkflowEntity, error)
}

// SnapshotRepository stores append-only score snapshots.
type SnapshotRepository interface {
	AppendSnapshot(ctx context.Context, snap domain.PopularityScoreSnapshot) error
	// LoadSnapshotHistory returns the most recent limit snapshots for the
	// entity and country ("" means global), ascending by ComputedAt.
	LoadSnapshotHistory(ctx context.Context, entityID, country string, limit int) ([]domain.PopularityScoreSnapshot, error)
	// LoadLatestSnapshots returns the most recent snapshot of every country
	// of the entity, the global one included.
	LoadLatestSnapshots(ctx context.Context, entityID string) ([]domain.PopularityScoreSnapshot, error)
	// LoadSnapshotsBetween returns snapshots of every country computed in (from, to].
	LoadSnapshotsBetween(ctx context.Context, entityID string, from, to time.Time) ([]domain.PopularityScoreSnapshot, error)
}

// RunRepository owns the single-flight claim and run bookkeeping.
type RunRepository interface {
	// TryStartRun atomically claims the system-wide run slot. ok is false
	// when another run is already running.
	TryStartRun(ctx context.Context, jobName string) (run domain.CollectionJobRun, ok bool, err error)
	FinishRun(ctx context.Context, runID string, status domain.RunStatus, errorSummary string, stats domain.RunStats) error
	LoadRun(ctx context.Context, runID string) (*domain.CollectionJobRun, error)
	// LastRun returns the latest finished run of the job, succeeded or failed,
	// nil if none.
	LastRun(ctx context.Context, jobName string) (*domain.CollectionJobRun, error)
	// RecoverStaleRuns fails runs left running longer than olderThan.
	RecoverStaleRuns(ctx context.Context, olderThan time.Duration) (int64, error)
}

// WatermarkRepository tracks the last successful fetch time per source.
type WatermarkRepository interface {
	LoadWatermark(ctx context.Context, src domain.Source) (time.Time, error)
	SaveWatermark(ctx context.Context, src domain.Source, at time.Time) error
}

// Store combines every storage capability the core needs.
type Store interface {
	EntityRepository
	SnapshotRepository
	RunRepository
	WatermarkRepository
}
