package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
)

// titleCandidateLimit caps fuzzy-match candidates; the best overlapping come first.
const titleCandidateLimit = 200

// LoadEntityBySourceLink returns the entity linking (src, externalID), or nil.
func (db *DB) LoadEntityBySourceLink(ctx context.Context, src domain.Source, externalID string) (*domain.WorkflowEntity, error) {
	var id pgtype.UUID

	err := db.Pool.QueryRow(ctx, `
		SELECT entity_id FROM entity_source_links
		WHERE source = $1 AND external_id = $2
	`, string(src), externalID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("load source link: %w", err)
	}

	entities, err := db.loadEntities(ctx, []pgtype.UUID{id})
	if err != nil {
		return nil, err
	}

	if len(entities) == 0 {
		return nil, nil
	}

	return &entities[0], nil
}

// LoadEntityByTitleCandidates returns entities sharing at least one title
// token, most shared tokens first.
func (db *DB) LoadEntityByTitleCandidates(ctx context.Context, normalizedTitle string) ([]domain.WorkflowEntity, error) {
	tokens := titleTokens(normalizedTitle)
	if len(tokens) == 0 {
		return nil, nil
	}

	query, args, err := candidateQuery(tokens).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}

	ids, err := db.queryIDs(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load title candidates: %w", err)
	}

	return db.loadEntities(ctx, ids)
}

func candidateQuery(tokens []string) sq.SelectBuilder {
	return psql.Select("id").
		From(tableEntities).
		Where("title_tokens && ?", tokens).
		OrderByClause("cardinality(ARRAY(SELECT unnest(title_tokens) INTERSECT SELECT unnest(?::text[]))) DESC", tokens).
		OrderBy("created_at", "id").
		Limit(titleCandidateLimit)
}

// LoadEntity returns the entity by id, or nil.
func (db *DB) LoadEntity(ctx context.Context, id string) (*domain.WorkflowEntity, error) {
	uid, ok := parseUUID(id)
	if !ok {
		return nil, nil
	}

	entities, err := db.loadEntities(ctx, []pgtype.UUID{uid})
	if err != nil {
		return nil, err
	}

	if len(entities) == 0 {
		return nil, nil
	}

	return &entities[0], nil
}

// ListEntities pages through entities ordered by id, starting after afterID.
func (db *DB) ListEntities(ctx context.Context, afterID string, limit int) ([]domain.WorkflowEntity, error) {
	builder := psql.Select("id").From(tableEntities).OrderBy("id")

	if afterID != "" {
		after, ok := parseUUID(afterID)
		if !ok {
			return nil, fmt.Errorf("cursor %q: %w", afterID, coreerrors.ErrInvalidInput)
		}

		builder = builder.Where(sq.Gt{"id": after})
	}

	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	ids, err := db.queryIDs(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	return db.loadEntities(ctx, ids)
}

// SaveEntity upserts the entity and adds its source links. It fails with
// ErrLinkTaken when a link already belongs to another entity.
func (db *DB) SaveEntity(ctx context.Context, entity domain.WorkflowEntity) error {
	id, ok := parseUUID(entity.ID)
	if !ok {
		return fmt.Errorf("entity id %q: %w", entity.ID, coreerrors.ErrInvalidInput)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO workflow_entities (id, canonical_title, normalized_title, title_tokens, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			canonical_title = EXCLUDED.canonical_title,
			normalized_title = EXCLUDED.normalized_title,
			title_tokens = EXCLUDED.title_tokens,
			updated_at = EXCLUDED.updated_at
	`, id, SanitizeUTF8(entity.CanonicalTitle), entity.NormalizedTitle, titleTokens(entity.NormalizedTitle),
		toTimestamptz(entity.CreatedAt), toTimestamptz(entity.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}

	srcs := make([]string, 0, len(entity.SourceLinks))
	for src := range entity.SourceLinks {
		srcs = append(srcs, string(src))
	}

	sort.Strings(srcs)

	for _, src := range srcs {
		if err := linkSource(ctx, tx, id, src, entity.SourceLinks[domain.Source(src)]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("commit entity %s: %w", entity.ID, ErrLinkTaken)
		}

		return fmt.Errorf("commit entity: %w", err)
	}

	return nil
}

func linkSource(ctx context.Context, tx pgx.Tx, id pgtype.UUID, src, externalID string) error {
	var owner pgtype.UUID

	err := tx.QueryRow(ctx, `
		INSERT INTO entity_source_links (source, external_id, entity_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (source, external_id) DO UPDATE SET entity_id = entity_source_links.entity_id
		RETURNING entity_id
	`, src, externalID, id).Scan(&owner)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("link %s/%s: %w", src, externalID, ErrLinkTaken)
		}

		return fmt.Errorf("link %s/%s: %w", src, externalID, err)
	}

	if owner != id {
		return fmt.Errorf("link %s/%s: %w", src, externalID, ErrLinkTaken)
	}

	return nil
}

func (db *DB) queryIDs(ctx context.Context, query string, args ...any) ([]pgtype.UUID, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[pgtype.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect ids: %w", err)
	}

	return ids, nil
}

// loadEntities loads entities with their links, preserving the order of ids.
func (db *DB) loadEntities(ctx context.Context, ids []pgtype.UUID) ([]domain.WorkflowEntity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, canonical_title, normalized_title, created_at, updated_at
		FROM workflow_entities
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	defer rows.Close()

	byID := make(map[pgtype.UUID]*domain.WorkflowEntity, len(ids))

	for rows.Next() {
		var (
			id               pgtype.UUID
			title, norm      string
			created, updated pgtype.Timestamptz
		)

		if err := rows.Scan(&id, &title, &norm, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}

		byID[id] = &domain.WorkflowEntity{
			ID:              fromUUID(id),
			CanonicalTitle:  title,
			NormalizedTitle: norm,
			CreatedAt:       fromTimestamptz(created),
			UpdatedAt:       fromTimestamptz(updated),
			SourceLinks:     make(map[domain.Source]string),
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	if err := db.attachLinks(ctx, ids, byID); err != nil {
		return nil, err
	}

	out := make([]domain.WorkflowEntity, 0, len(byID))

	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, *e)
		}
	}

	return out, nil
}

func (db *DB) attachLinks(ctx context.Context, ids []pgtype.UUID, byID map[pgtype.UUID]*domain.WorkflowEntity) error {
	rows, err := db.Pool.Query(ctx, `
		SELECT entity_id, source, external_id
		FROM entity_source_links
		WHERE entity_id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("load source links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id         pgtype.UUID
			src, extID string
		)

		if err := rows.Scan(&id, &src, &extID); err != nil {
			return fmt.Errorf("scan source link: %w", err)
		}

		if e, ok := byID[id]; ok {
			e.SourceLinks[domain.Source(src)] = extID
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate source links: %w", err)
	}

	return nil
}

// titleTokens returns the distinct whitespace-separated tokens of a
// normalized title.
func titleTokens(normalized string) []string {
	fields := strings.Fields(normalized)
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))

	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}

		seen[f] = struct{}{}
		out = append(out, f)
	}

	return out
}
