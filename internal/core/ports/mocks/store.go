package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
)

// Store is a thread-safe in-memory implementation of ports.Store.
type Store struct {
	mu         sync.RWMutex
	entities   map[string]domain.WorkflowEntity
	links      map[linkKey]string
	snapshots  map[string][]domain.PopularityScoreSnapshot
	runs       map[string]domain.CollectionJobRun
	running    string
	watermarks map[domain.Source]time.Time

	// Now is used for run timestamps; defaults to time.Now.
	Now func() time.Time

	// TryStartRunFn allows overriding TryStartRun behavior.
	TryStartRunFn func(ctx context.Context, jobName string) (domain.CollectionJobRun, bool, error)

	// AppendSnapshotFn allows overriding AppendSnapshot behavior.
	AppendSnapshotFn func(ctx context.Context, snap domain.PopularityScoreSnapshot) error
}

type linkKey struct {
	source     domain.Source
	externalID string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	s := &Store{Now: time.Now}
	s.Reset()

	return s
}

// Reset clears all state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities = make(map[string]domain.WorkflowEntity)
	s.links = make(map[linkKey]string)
	s.snapshots = make(map[string][]domain.PopularityScoreSnapshot)
	s.runs = make(map[string]domain.CollectionJobRun)
	s.running = ""
	s.watermarks = make(map[domain.Source]time.Time)
}

// LoadEntityBySourceLink returns the entity linking (src, externalID), or nil.
func (s *Store) LoadEntityBySourceLink(_ context.Context, src domain.Source, externalID string) (*domain.WorkflowEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.links[linkKey{source: src, externalID: externalID}]
	if !ok {
		return nil, nil
	}

	e := s.entities[id].Clone()

	return &e, nil
}

// LoadEntityByTitleCandidates returns entities sharing a title token, ordered by id.
func (s *Store) LoadEntityByTitleCandidates(_ context.Context, normalizedTitle string) ([]domain.WorkflowEntity, error) {
	tokens := strings.Fields(normalizedTitle)
	if len(tokens) == 0 {
		return nil, nil
	}

	want := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		want[t] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.WorkflowEntity

	for _, e := range s.entities {
		for _, t := range strings.Fields(e.NormalizedTitle) {
			if _, ok := want[t]; ok {
				out = append(out, e.Clone())
				break
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// SaveEntity upserts the entity and its links.
func (s *Store) SaveEntity(_ context.Context, entity domain.WorkflowEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for src, ext := range entity.SourceLinks {
		key := linkKey{source: src, externalID: ext}
		if owner, ok := s.links[key]; ok && owner != entity.ID {
			return ErrLinkTaken
		}
	}

	if prev, ok := s.entities[entity.ID]; ok {
		for src, ext := range prev.SourceLinks {
			if entity.SourceLinks[src] != ext {
				delete(s.links, linkKey{source: src, externalID: ext})
			}
		}
	}

	for src, ext := range entity.SourceLinks {
		s.links[linkKey{source: src, externalID: ext}] = entity.ID
	}

	s.entities[entity.ID] = entity.Clone()

	return nil
}

// LoadEntity returns the entity by id, or nil.
func (s *Store) LoadEntity(_ context.Context, id string) (*domain.WorkflowEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, nil
	}

	c := e.Clone()

	return &c, nil
}

// ListEntities pages entities by id.
func (s *Store) ListEntities(_ context.Context, afterID string, limit int) ([]domain.WorkflowEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		if id > afterID {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]domain.WorkflowEntity, len(ids))
	for i, id := range ids {
		out[i] = s.entities[id].Clone()
	}

	return out, nil
}

// Entities returns every entity ordered by id.
func (s *Store) Entities() []domain.WorkflowEntity {
	out, _ := s.ListEntities(context.Background(), "", 0)

	return out
}

// AppendSnapshot appends a snapshot.
func (s *Store) AppendSnapshot(ctx context.Context, snap domain.PopularityScoreSnapshot) error {
	if s.AppendSnapshotFn != nil {
		return s.AppendSnapshotFn(ctx, snap)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	breakdown := make(map[domain.Source]float64, len(snap.Breakdown))
	for k, v := range snap.Breakdown {
		breakdown[k] = v
	}

	snap.Breakdown = breakdown

	list := append(s.snapshots[snap.EntityID], snap)
	sort.SliceStable(list, func(i, j int) bool { return list[i].ComputedAt.Before(list[j].ComputedAt) })
	s.snapshots[snap.EntityID] = list

	return nil
}

// LoadSnapshotHistory returns the latest limit snapshots of a country, ascending.
func (s *Store) LoadSnapshotHistory(_ context.Context, entityID, country string, limit int) ([]domain.PopularityScoreSnapshot, error) {
	if country == "" {
		country = domain.CountryGlobal
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PopularityScoreSnapshot

	for _, snap := range s.snapshots[entityID] {
		if snap.Country == country {
			out = append(out, snap)
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}

	return out, nil
}

// LoadLatestSnapshots returns the latest snapshot per country ordered by country.
func (s *Store) LoadLatestSnapshots(_ context.Context, entityID string) ([]domain.PopularityScoreSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]domain.PopularityScoreSnapshot)

	for _, snap := range s.snapshots[entityID] {
		if cur, ok := latest[snap.Country]; !ok || !snap.ComputedAt.Before(cur.ComputedAt) {
			latest[snap.Country] = snap
		}
	}

	out := make([]domain.PopularityScoreSnapshot, 0, len(latest))
	for _, snap := range latest {
		out = append(out, snap)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })

	return out, nil
}

// LoadSnapshotsBetween returns snapshots with from < ComputedAt <= to.
func (s *Store) LoadSnapshotsBetween(_ context.Context, entityID string, from, to time.Time) ([]domain.PopularityScoreSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PopularityScoreSnapshot

	for _, snap := range s.snapshots[entityID] {
		if snap.ComputedAt.After(from) && !snap.ComputedAt.After(to) {
			out = append(out, snap)
		}
	}

	return out, nil
}

// Snapshots returns all snapshots of an entity.
func (s *Store) Snapshots(entityID string) []domain.PopularityScoreSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PopularityScoreSnapshot, len(s.snapshots[entityID]))
	copy(out, s.snapshots[entityID])

	return out
}

// TryStartRun claims the run slot when no run is running.
func (s *Store) TryStartRun(ctx context.Context, jobName string) (domain.CollectionJobRun, bool, error) {
	if s.TryStartRunFn != nil {
		return s.TryStartRunFn(ctx, jobName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running != "" {
		return domain.CollectionJobRun{}, false, nil
	}

	run := domain.CollectionJobRun{
		ID:        uuid.NewString(),
		JobName:   jobName,
		StartedAt: s.Now(),
		Status:    domain.RunStatusRunning,
	}

	s.runs[run.ID] = run
	s.running = run.ID

	return run, true, nil
}

// FinishRun closes a run and frees the slot.
func (s *Store) FinishRun(_ context.Context, runID string, status domain.RunStatus, errorSummary string, stats domain.RunStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok || run.Status != domain.RunStatusRunning {
		return ErrRunNotFound
	}

	finished := s.Now()
	run.FinishedAt = &finished
	run.Status = status
	run.ErrorSummary = errorSummary
	run.Stats = stats
	s.runs[runID] = run

	if s.running == runID {
		s.running = ""
	}

	return nil
}

// LoadRun returns a run by id, or nil.
func (s *Store) LoadRun(_ context.Context, runID string) (*domain.CollectionJobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, nil
	}

	return &run, nil
}

// LastRun returns the latest finished run of the job.
func (s *Store) LastRun(_ context.Context, jobName string) (*domain.CollectionJobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *domain.CollectionJobRun

	for _, run := range s.runs {
		if run.JobName != jobName || !run.Status.Terminal() {
			continue
		}

		if last == nil || run.StartedAt.After(last.StartedAt) {
			r := run
			last = &r
		}
	}

	return last, nil
}

// RecoverStaleRuns fails the running run when it is older than olderThan.
func (s *Store) RecoverStaleRuns(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running == "" {
		return 0, nil
	}

	run := s.runs[s.running]
	if s.Now().Sub(run.StartedAt) < olderThan {
		return 0, nil
	}

	finished := s.Now()
	run.FinishedAt = &finished
	run.Status = domain.RunStatusFailed
	run.ErrorSummary = domain.SummaryAbandoned
	s.runs[run.ID] = run
	s.running = ""

	return 1, nil
}

// LoadWatermark returns the zero time when no watermark was saved.
func (s *Store) LoadWatermark(_ context.Context, src domain.Source) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.watermarks[src], nil
}

// SaveWatermark records the watermark.
func (s *Store) SaveWatermark(_ context.Context, src domain.Source, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.watermarks[src] = at

	return nil
}
