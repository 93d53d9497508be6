// Package novelty derives geographic divergence and short-horizon trend
// forecasts from stored score history. Everything here is read-only.
package novelty

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
)

const (
	entityPageSize = 500

	// MaxHorizonDays bounds forecast requests.
	MaxHorizonDays = 365
)

// Repository is the read-only storage the engine needs.
type Repository interface {
	LoadEntity(ctx context.Context, id string) (*domain.WorkflowEntity, error)
	ListEntities(ctx context.Context, afterID string, limit int) ([]domain.WorkflowEntity, error)
	LoadSnapshotHistory(ctx context.Context, entityID, country string, limit int) ([]domain.PopularityScoreSnapshot, error)
	LoadSnapshotsBetween(ctx context.Context, entityID string, from, to time.Time) ([]domain.PopularityScoreSnapshot, error)
}

// Service answers divergence and forecast queries over stored snapshots.
type Service struct {
	repo   Repository
	tuning domain.Tuning
	now    func() time.Time
}

// NewService creates a Service.
func NewService(repo Repository, tuning domain.Tuning) *Service {
	return &Service{repo: repo, tuning: tuning, now: time.Now}
}

// WithClock overrides the clock used as asOf.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now

	return s
}

// GetDivergence returns the divergence of one entity, or of every entity when
// entityID is empty, ordered by magnitude descending.
func (s *Service) GetDivergence(ctx context.Context, entityID string) ([]domain.DivergenceResult, error) {
	asOf := s.now().UTC()

	if entityID != "" {
		if err := s.requireEntity(ctx, entityID); err != nil {
			return nil, err
		}

		res, ok, err := s.entityDivergence(ctx, entityID, asOf)
		if err != nil || !ok {
			return nil, err
		}

		return []domain.DivergenceResult{res}, nil
	}

	var (
		out   []domain.DivergenceResult
		after string
	)

	for {
		page, err := s.repo.ListEntities(ctx, after, entityPageSize)
		if err != nil {
			return nil, fmt.Errorf("list entities: %w", err)
		}

		for _, e := range page {
			res, ok, err := s.entityDivergence(ctx, e.ID, asOf)
			if err != nil {
				return nil, err
			}

			if ok {
				out = append(out, res)
			}
		}

		if len(page) < entityPageSize {
			break
		}

		after = page[len(page)-1].ID
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Magnitude != out[j].Magnitude {
			return out[i].Magnitude > out[j].Magnitude
		}

		return out[i].EntityID < out[j].EntityID
	})

	return out, nil
}

// GetForecast projects the global score of an entity horizonDays ahead.
func (s *Service) GetForecast(ctx context.Context, entityID string, horizonDays int) (domain.ForecastResult, error) {
	return s.GetCountryForecast(ctx, entityID, domain.CountryGlobal, horizonDays)
}

// GetCountryForecast projects the score of one country scope.
func (s *Service) GetCountryForecast(ctx context.Context, entityID, country string, horizonDays int) (domain.ForecastResult, error) {
	if horizonDays < 1 || horizonDays > MaxHorizonDays {
		return domain.ForecastResult{}, fmt.Errorf("horizon_days must be in [1, %d]: %w", MaxHorizonDays, coreerrors.ErrInvalidInput)
	}

	if err := s.requireEntity(ctx, entityID); err != nil {
		return domain.ForecastResult{}, err
	}

	limit := max(s.tuning.RegressionWindow, s.tuning.MinHistory)

	history, err := s.repo.LoadSnapshotHistory(ctx, entityID, country, limit)
	if err != nil {
		return domain.ForecastResult{}, fmt.Errorf("load snapshot history: %w", err)
	}

	return Forecast(entityID, country, history, horizonDays, s.tuning), nil
}

func (s *Service) entityDivergence(ctx context.Context, entityID string, asOf time.Time) (domain.DivergenceResult, bool, error) {
	var from time.Time
	if s.tuning.DivergenceTolerance > 0 {
		from = asOf.Add(-s.tuning.DivergenceTolerance - time.Nanosecond)
	}

	snaps, err := s.repo.LoadSnapshotsBetween(ctx, entityID, from, asOf)
	if err != nil {
		return domain.DivergenceResult{}, false, fmt.Errorf("load snapshots of %s: %w", entityID, err)
	}

	res, ok := Divergence(entityID, snaps, asOf, s.tuning)

	return res, ok, nil
}

func (s *Service) requireEntity(ctx context.Context, entityID string) error {
	entity, err := s.repo.LoadEntity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("load entity %s: %w", entityID, err)
	}

	if entity == nil {
		return fmt.Errorf("entity %s: %w", entityID, coreerrors.ErrNotFound)
	}

	return nil
}
