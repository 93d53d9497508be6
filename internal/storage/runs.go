package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
)

// TryStartRun inserts a running run. The partial unique index on running
// runs makes the insert a no-op while any run is running, so the claim is
// atomic across processes.
func (db *DB) TryStartRun(ctx context.Context, jobName string) (domain.CollectionJobRun, bool, error) {
	id := uuid.New()

	var started pgtype.Timestamptz

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO collection_runs (id, job_name, started_at, status)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT DO NOTHING
		RETURNING started_at
	`, id, jobName, string(domain.RunStatusRunning)).Scan(&started)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CollectionJobRun{}, false, nil
		}

		return domain.CollectionJobRun{}, false, fmt.Errorf("claim run: %w", err)
	}

	return domain.CollectionJobRun{
		ID:        id.String(),
		JobName:   jobName,
		StartedAt: fromTimestamptz(started),
		Status:    domain.RunStatusRunning,
	}, true, nil
}

// FinishRun closes a running run.
func (db *DB) FinishRun(ctx context.Context, runID string, status domain.RunStatus, errorSummary string, stats domain.RunStats) error {
	id, ok := parseUUID(runID)
	if !ok {
		return fmt.Errorf("run %q: %w", runID, coreerrors.ErrNotFound)
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE collection_runs
		SET finished_at = now(), status = $2, error_summary = $3, stats = $4
		WHERE id = $1 AND status = $5
	`, id, string(status), toText(errorSummary), stats, string(domain.RunStatusRunning))
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("running run %s: %w", runID, coreerrors.ErrNotFound)
	}

	return nil
}

// LoadRun returns a run by id, or nil.
func (db *DB) LoadRun(ctx context.Context, runID string) (*domain.CollectionJobRun, error) {
	id, ok := parseUUID(runID)
	if !ok {
		return nil, nil
	}

	run, err := scanRun(db.Pool.QueryRow(ctx, `
		SELECT id, job_name, started_at, finished_at, status, error_summary, stats
		FROM collection_runs
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("load run: %w", err)
	}

	return run, nil
}

// LastRun returns the latest finished run of the job in any terminal status,
// or nil.
func (db *DB) LastRun(ctx context.Context, jobName string) (*domain.CollectionJobRun, error) {
	run, err := scanRun(db.Pool.QueryRow(ctx, `
		SELECT id, job_name, started_at, finished_at, status, error_summary, stats
		FROM collection_runs
		WHERE job_name = $1 AND status <> $2
		ORDER BY started_at DESC
		LIMIT 1
	`, jobName, string(domain.RunStatusRunning)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("load last run: %w", err)
	}

	return run, nil
}

// RecoverStaleRuns fails runs left running longer than olderThan.
func (db *DB) RecoverStaleRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE collection_runs
		SET finished_at = now(), status = $1, error_summary = $2
		WHERE status = $3 AND started_at < $4
	`, string(domain.RunStatusFailed), domain.SummaryAbandoned, string(domain.RunStatusRunning), time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("recover stale runs: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (*domain.CollectionJobRun, error) {
	var (
		id       pgtype.UUID
		run      domain.CollectionJobRun
		started  pgtype.Timestamptz
		finished pgtype.Timestamptz
		status   string
		summary  pgtype.Text
	)

	if err := row.Scan(&id, &run.JobName, &started, &finished, &status, &summary, &run.Stats); err != nil {
		return nil, err
	}

	run.ID = fromUUID(id)
	run.StartedAt = fromTimestamptz(started)
	run.Status = domain.RunStatus(status)
	run.ErrorSummary = fromText(summary)

	if finished.Valid {
		at := fromTimestamptz(finished)
		run.FinishedAt = &at
	}

	return &run, nil
}
