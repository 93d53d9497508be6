package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
)

// LoadWatermark returns the zero time when no watermark was saved.
func (db *DB) LoadWatermark(ctx context.Context, src domain.Source) (time.Time, error) {
	var at pgtype.Timestamptz

	err := db.Pool.QueryRow(ctx, `SELECT fetched_until FROM source_watermarks WHERE source = $1`, string(src)).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}

		return time.Time{}, fmt.Errorf("load watermark: %w", err)
	}

	return fromTimestamptz(at), nil
}

// SaveWatermark records the watermark. It never moves backwards.
func (db *DB) SaveWatermark(ctx context.Context, src domain.Source, at time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO source_watermarks (source, fetched_until, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (source) DO UPDATE SET
			fetched_until = GREATEST(source_watermarks.fetched_until, EXCLUDED.fetched_until),
			updated_at = now()
	`, string(src), at)
	if err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}

	return nil
}
