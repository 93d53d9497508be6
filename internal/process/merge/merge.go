// Package merge reconciles observations that refer to the same workflow
// across sources and runs into canonical workflow entities.
package merge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
	"github.com/lueurxax/workflow-popularity/internal/process/normalize"
)

const (
	logFieldSource     = "source"
	logFieldExternalID = "external_id"
	logFieldEntityID   = "entity_id"
	logFieldTitleMatch = "title_match_id"
	logFieldSimilarity = "similarity"
)

// entityNamespace seeds name-based entity ids.
var entityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://n8n.io/workflow-popularity/entity"))

// Repository is the subset of storage the merger needs.
type Repository interface {
	LoadEntityBySourceLink(ctx context.Context, src domain.Source, externalID string) (*domain.WorkflowEntity, error)
	LoadEntityByTitleCandidates(ctx context.Context, normalizedTitle string) ([]domain.WorkflowEntity, error)
	SaveEntity(ctx context.Context, entity domain.WorkflowEntity) error
}

// Merged pairs an observation with the entity it resolved to.
type Merged struct {
	Entity      domain.WorkflowEntity
	Observation domain.WorkflowObservation
}

// Result is the outcome of merging one batch.
type Result struct {
	Pairs     []Merged
	Created   int
	Linked    int
	Conflicts int
}

// Merger resolves observations against persisted entities. It is the only
// component that writes entity identity and source links.
type Merger struct {
	repo       Repository
	similarity Similarity
	threshold  float64
	logger     *zerolog.Logger
	now        func() time.Time
}

// Option customizes a Merger.
type Option func(*Merger)

// WithSimilarity swaps the title similarity function.
func WithSimilarity(s Similarity) Option {
	return func(m *Merger) {
		m.similarity = s
	}
}

// WithClock overrides the clock used when an observation has no timestamp.
func WithClock(now func() time.Time) Option {
	return func(m *Merger) {
		m.now = now
	}
}

// New creates a Merger using the title similarity threshold of tuning.
func New(repo Repository, tuning domain.Tuning, logger *zerolog.Logger, opts ...Option) *Merger {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	m := &Merger{
		repo:       repo,
		similarity: TitleSimilarity,
		threshold:  tuning.TitleSimilarityThreshold,
		logger:     logger,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Merge resolves every observation to an entity. Observations are processed in
// canonical order so any permutation of the same batch yields the same
// entity graph. Matching rules, in priority order: exact (source, externalId)
// link, fuzzy normalized title above the threshold, new entity.
func (m *Merger) Merge(ctx context.Context, observations []domain.WorkflowObservation) (Result, error) {
	ordered := make([]domain.WorkflowObservation, len(observations))
	copy(ordered, observations)
	SortCanonical(ordered)

	res := Result{Pairs: make([]Merged, 0, len(ordered))}

	for _, obs := range ordered {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		entity, err := m.mergeOne(ctx, obs, &res)
		if err != nil {
			return res, err
		}

		res.Pairs = append(res.Pairs, Merged{Entity: entity, Observation: obs})
	}

	return res, nil
}

func (m *Merger) mergeOne(ctx context.Context, obs domain.WorkflowObservation, res *Result) (domain.WorkflowEntity, error) {
	normalized := normalize.NormalizeTitle(obs.Title)

	linked, err := m.repo.LoadEntityBySourceLink(ctx, obs.Source, obs.ExternalID)
	if err != nil {
		return domain.WorkflowEntity{}, fmt.Errorf("load entity by link %s/%s: %w", obs.Source, obs.ExternalID, err)
	}

	candidates, err := m.repo.LoadEntityByTitleCandidates(ctx, normalized)
	if err != nil {
		return domain.WorkflowEntity{}, fmt.Errorf("load title candidates: %w", err)
	}

	if linked != nil {
		if m.detectConflict(*linked, obs, normalized, candidates) {
			res.Conflicts++
		}

		return m.refresh(ctx, *linked, obs, normalized)
	}

	if best, ok := m.bestCandidate(obs.Source, normalized, candidates); ok {
		entity := best.Clone()
		entity.SourceLinks[obs.Source] = obs.ExternalID
		entity.UpdatedAt = laterOf(entity.UpdatedAt, m.observedAt(obs))

		if err := m.repo.SaveEntity(ctx, entity); err != nil {
			return domain.WorkflowEntity{}, fmt.Errorf("link entity %s: %w", entity.ID, err)
		}

		res.Linked++

		return entity, nil
	}

	at := m.observedAt(obs)
	entity := domain.WorkflowEntity{
		ID:              EntityID(obs.Source, obs.ExternalID),
		CanonicalTitle:  obs.Title,
		NormalizedTitle: normalized,
		CreatedAt:       at,
		UpdatedAt:       at,
		SourceLinks:     map[domain.Source]string{obs.Source: obs.ExternalID},
	}

	if err := m.repo.SaveEntity(ctx, entity); err != nil {
		return domain.WorkflowEntity{}, fmt.Errorf("create entity: %w", err)
	}

	res.Created++

	return entity, nil
}

// refresh updates the canonical title when a newer observation renames the workflow.
func (m *Merger) refresh(ctx context.Context, entity domain.WorkflowEntity, obs domain.WorkflowObservation, normalized string) (domain.WorkflowEntity, error) {
	at := m.observedAt(obs)
	if obs.Title == entity.CanonicalTitle || !at.After(entity.UpdatedAt) {
		return entity, nil
	}

	entity.CanonicalTitle = obs.Title
	entity.NormalizedTitle = normalized
	entity.UpdatedAt = at

	if err := m.repo.SaveEntity(ctx, entity); err != nil {
		return domain.WorkflowEntity{}, fmt.Errorf("refresh entity %s: %w", entity.ID, err)
	}

	return entity, nil
}

// detectConflict reports and logs when the title points to a different entity
// than the identifier link. The link always wins.
func (m *Merger) detectConflict(linked domain.WorkflowEntity, obs domain.WorkflowObservation, normalized string, candidates []domain.WorkflowEntity) bool {
	if m.similarity(normalized, linked.NormalizedTitle) >= m.threshold {
		return false
	}

	var (
		other domain.WorkflowEntity
		best  float64
	)

	for _, c := range candidates {
		if c.ID == linked.ID {
			continue
		}

		if s := m.similarity(normalized, c.NormalizedTitle); s >= m.threshold && s > best {
			other, best = c, s
		}
	}

	if other.ID == "" {
		return false
	}

	m.logger.Warn().
		Err(coreerrors.ErrMergeConflict).
		Str(logFieldSource, string(obs.Source)).
		Str(logFieldExternalID, obs.ExternalID).
		Str(logFieldEntityID, linked.ID).
		Str(logFieldTitleMatch, other.ID).
		Float64(logFieldSimilarity, best).
		Msg("identifier and title disagree, keeping identifier match")

	return true
}

// bestCandidate picks the most similar entity that has no link for src yet.
// Ties go to the earliest created entity, then the smallest id.
func (m *Merger) bestCandidate(src domain.Source, normalized string, candidates []domain.WorkflowEntity) (domain.WorkflowEntity, bool) {
	var (
		best  domain.WorkflowEntity
		score float64
		found bool
	)

	for _, c := range candidates {
		if c.HasLink(src) {
			continue
		}

		s := m.similarity(normalized, c.NormalizedTitle)
		if s < m.threshold {
			continue
		}

		if !found || s > score || (s == score && earlier(c, best)) {
			best, score, found = c, s, true
		}
	}

	return best, found
}

func (m *Merger) observedAt(obs domain.WorkflowObservation) time.Time {
	if obs.ObservedAt.IsZero() {
		return m.now().UTC()
	}

	return obs.ObservedAt
}

// EntityID derives the stable id of an entity first created from (src, externalID).
func EntityID(src domain.Source, externalID string) string {
	return uuid.NewSHA1(entityNamespace, []byte(string(src)+":"+externalID)).String()
}

// SortCanonical orders observations by source, external id, time, title and country.
func SortCanonical(obs []domain.WorkflowObservation) {
	sort.SliceStable(obs, func(i, j int) bool {
		a, b := obs[i], obs[j]

		if a.Source != b.Source {
			return sourceRank(a.Source) < sourceRank(b.Source)
		}

		if a.ExternalID != b.ExternalID {
			return a.ExternalID < b.ExternalID
		}

		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.Before(b.ObservedAt)
		}

		if a.Title != b.Title {
			return a.Title < b.Title
		}

		return a.Country < b.Country
	})
}

func sourceRank(s domain.Source) int {
	for i, v := range domain.AllSources {
		if v == s {
			return i
		}
	}

	return len(domain.AllSources)
}

func earlier(a, b domain.WorkflowEntity) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}

	return a.ID < b.ID
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}

	return a
}
