package db

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
)

var snapshotColumns = []string{"entity_id", "country", "score", "decayed_prior", "breakdown", "computed_at"}

// AppendSnapshot inserts a snapshot. Snapshots are never updated.
func (db *DB) AppendSnapshot(ctx context.Context, snap domain.PopularityScoreSnapshot) error {
	id, ok := parseUUID(snap.EntityID)
	if !ok {
		return fmt.Errorf("append snapshot: unknown entity id %q", snap.EntityID)
	}

	breakdown := snap.Breakdown
	if breakdown == nil {
		breakdown = map[domain.Source]float64{}
	}

	query, args, err := psql.Insert(tableSnapshots).
		Columns(snapshotColumns...).
		Values(id, snap.Country, snap.Score, snap.DecayedPrior, breakdown, snap.ComputedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build snapshot insert: %w", err)
	}

	if _, err := db.Pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}

	return nil
}

// LoadSnapshotHistory returns the most recent limit snapshots of a country
// ("" means global), ascending by ComputedAt.
func (db *DB) LoadSnapshotHistory(ctx context.Context, entityID, country string, limit int) ([]domain.PopularityScoreSnapshot, error) {
	id, ok := parseUUID(entityID)
	if !ok {
		return nil, nil
	}

	if country == "" {
		country = domain.CountryGlobal
	}

	builder := psql.Select(snapshotColumns...).
		From(tableSnapshots).
		Where(sq.Eq{"entity_id": id, "country": country}).
		OrderBy("computed_at DESC", "id DESC")

	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	snaps, err := db.querySnapshots(ctx, builder)
	if err != nil {
		return nil, fmt.Errorf("load snapshot history: %w", err)
	}

	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}

	return snaps, nil
}

// LoadLatestSnapshots returns the latest snapshot of every country of the entity.
func (db *DB) LoadLatestSnapshots(ctx context.Context, entityID string) ([]domain.PopularityScoreSnapshot, error) {
	id, ok := parseUUID(entityID)
	if !ok {
		return nil, nil
	}

	builder := psql.Select(snapshotColumns...).
		Options("DISTINCT ON (country)").
		From(tableSnapshots).
		Where(sq.Eq{"entity_id": id}).
		OrderBy("country", "computed_at DESC", "id DESC")

	snaps, err := db.querySnapshots(ctx, builder)
	if err != nil {
		return nil, fmt.Errorf("load latest snapshots: %w", err)
	}

	return snaps, nil
}

// LoadSnapshotsBetween returns snapshots with from < ComputedAt <= to.
func (db *DB) LoadSnapshotsBetween(ctx context.Context, entityID string, from, to time.Time) ([]domain.PopularityScoreSnapshot, error) {
	id, ok := parseUUID(entityID)
	if !ok {
		return nil, nil
	}

	builder := psql.Select(snapshotColumns...).
		From(tableSnapshots).
		Where(sq.Eq{"entity_id": id}).
		Where(sq.Gt{"computed_at": from}).
		Where(sq.LtOrEq{"computed_at": to}).
		OrderBy("computed_at", "id")

	snaps, err := db.querySnapshots(ctx, builder)
	if err != nil {
		return nil, fmt.Errorf("load snapshots between: %w", err)
	}

	return snaps, nil
}

func (db *DB) querySnapshots(ctx context.Context, builder sq.SelectBuilder) ([]domain.PopularityScoreSnapshot, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build snapshot query: %w", err)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	snaps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PopularityScoreSnapshot, error) {
		var (
			id        pgtype.UUID
			snap      domain.PopularityScoreSnapshot
			computed  pgtype.Timestamptz
			breakdown map[domain.Source]float64
		)

		if err := row.Scan(&id, &snap.Country, &snap.Score, &snap.DecayedPrior, &breakdown, &computed); err != nil {
			return snap, err
		}

		snap.EntityID = fromUUID(id)
		snap.ComputedAt = fromTimestamptz(computed)
		snap.Breakdown = breakdown

		return snap, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan snapshots: %w", err)
	}

	return snaps, nil
}
