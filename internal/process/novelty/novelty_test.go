package novelty

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
	"github.com/lueurxax/workflow-popularity/internal/core/ports/mocks"
)

var asOf = time.Date(2026, 4, 15, 2, 0, 0, 0, time.UTC)

func snap(country string, score float64, age time.Duration) domain.PopularityScoreSnapshot {
	return domain.PopularityScoreSnapshot{EntityID: "e", Country: country, Score: score, ComputedAt: asOf.Add(-age)}
}

func TestDivergence(t *testing.T) {
	tuning := domain.DefaultTuning()

	tests := []struct {
		name      string
		snaps     []domain.PopularityScoreSnapshot
		ok        bool
		high      string
		low       string
		magnitude float64
	}{
		{
			name:      "worked example",
			snaps:     []domain.PopularityScoreSnapshot{snap(domain.CountryGlobal, 1660, 0), snap("IN", 1600, 0), snap("US", 60, 0)},
			ok:        true,
			high:      "IN",
			low:       "US",
			magnitude: 1540,
		},
		{
			name:      "baseline is the mean when it exceeds the minimum",
			snaps:     []domain.PopularityScoreSnapshot{snap("IN", 1000, 0), snap("US", 100, 0), snap("DE", 500, 0)},
			ok:        true,
			high:      "IN",
			low:       "US",
			magnitude: 700,
		},
		{
			name:  "uniformly low activity is noise",
			snaps: []domain.PopularityScoreSnapshot{snap("IN", 90, 0), snap("US", 5, 0)},
		},
		{
			name:      "tie on high picks smallest country code",
			snaps:     []domain.PopularityScoreSnapshot{snap("US", 900, 0), snap("IN", 900, 0), snap("BR", 10, 0)},
			ok:        true,
			high:      "IN",
			low:       "BR",
			magnitude: 900 - 455,
		},
		{
			name:      "single country is compared to rest of world",
			snaps:     []domain.PopularityScoreSnapshot{snap(domain.CountryGlobal, 1000, 0), snap("US", 800, 0)},
			ok:        true,
			high:      "US",
			low:       domain.RestOfWorld,
			magnitude: 600,
		},
		{
			name:      "latest snapshot within tolerance wins",
			snaps:     []domain.PopularityScoreSnapshot{snap("IN", 10, 30*time.Hour), snap("IN", 700, time.Hour), snap("US", 50, 47*time.Hour)},
			ok:        true,
			high:      "IN",
			low:       "US",
			magnitude: 650,
		},
		{
			name:      "stale and future snapshots are ignored",
			snaps:     []domain.PopularityScoreSnapshot{snap("IN", 700, 0), snap("US", 690, 72*time.Hour), snap("US", 690, -time.Hour)},
			ok:        true,
			high:      "IN",
			low:       domain.RestOfWorld,
			magnitude: 700,
		},
		{
			name:  "global only",
			snaps: []domain.PopularityScoreSnapshot{snap(domain.CountryGlobal, 5000, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := Divergence("e", tt.snaps, asOf, tuning)
			require.Equal(t, tt.ok, ok)

			if !ok {
				return
			}

			assert.Equal(t, tt.high, res.HighCountry)
			assert.Equal(t, tt.low, res.LowCountry)
			assert.InDelta(t, tt.magnitude, res.Magnitude, 1e-9)
			assert.Equal(t, asOf, res.AsOf)
		})
	}
}

func history(scores ...float64) []domain.PopularityScoreSnapshot {
	out := make([]domain.PopularityScoreSnapshot, len(scores))
	for i, s := range scores {
		out[i] = domain.PopularityScoreSnapshot{
			EntityID: "e", Country: domain.CountryGlobal, Score: s,
			ComputedAt: asOf.Add(time.Duration(i-len(scores)+1) * 24 * time.Hour),
		}
	}

	return out
}

func TestForecast_Floor(t *testing.T) {
	tuning := domain.DefaultTuning()

	for n := 0; n < tuning.MinHistory; n++ {
		res := Forecast("e", "", history(make([]float64, n)...), 7, tuning)
		require.False(t, res.HasForecast())
		require.NotNil(t, res.Insufficient)
		assert.Equal(t, n, res.Insufficient.Have)
		assert.Equal(t, tuning.MinHistory, res.Insufficient.Need)
	}

	res := Forecast("e", "", history(1, 2, 3), 7, tuning)
	assert.True(t, res.HasForecast())
}

func TestForecast_LinearGrowth(t *testing.T) {
	tuning := domain.DefaultTuning()

	res := Forecast("e", "", history(100, 110, 120, 130, 140), 5, tuning)
	require.True(t, res.HasForecast())

	f := res.Forecast
	assert.InDelta(t, 190, f.PredictedScore, 1e-6)
	assert.InDelta(t, 10, f.Slope, 1e-6)
	assert.Equal(t, 5, f.Basis)
	assert.Equal(t, domain.ConfidenceHigh, f.Confidence)
	assert.Equal(t, domain.TrendRising, f.Direction)
	assert.Equal(t, domain.CountryGlobal, f.Country)
}

func TestForecast_ClampedAtZero(t *testing.T) {
	res := Forecast("e", "", history(300, 200, 100), 30, domain.DefaultTuning())
	require.True(t, res.HasForecast())
	assert.Zero(t, res.Forecast.PredictedScore)
	assert.Equal(t, domain.TrendFalling, res.Forecast.Direction)
}

func TestForecast_UsesLastWindow(t *testing.T) {
	tuning := domain.DefaultTuning()
	tuning.RegressionWindow = 3

	res := Forecast("e", "", history(1000, 0, 50, 50, 50), 10, tuning)
	require.True(t, res.HasForecast())
	assert.Equal(t, 3, res.Forecast.Basis)
	assert.InDelta(t, 50, res.Forecast.PredictedScore, 1e-6)
	assert.Equal(t, domain.TrendFlat, res.Forecast.Direction)
}

func TestConfidence(t *testing.T) {
	tuning := domain.DefaultTuning()

	tests := []struct {
		name     string
		variance float64
		mean     float64
		points   int
		want     domain.Confidence
	}{
		{"tight fit with enough points", 25, 100, 5, domain.ConfidenceHigh},
		{"tight fit with few points", 25, 100, 3, domain.ConfidenceMedium},
		{"moderate spread", 400, 100, 10, domain.ConfidenceMedium},
		{"wide spread", 1600, 100, 10, domain.ConfidenceLow},
		{"zero mean", 0, 0, 10, domain.ConfidenceLow},
		{"boundary high", 100, 100, 5, domain.ConfidenceHigh},
		{"boundary medium", 900, 100, 5, domain.ConfidenceMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Confidence(tt.variance, tt.mean, tt.points, tuning))
		})
	}
}

func TestFitLine_SameTimestamp(t *testing.T) {
	h := []domain.PopularityScoreSnapshot{
		{Score: 10, ComputedAt: asOf},
		{Score: 20, ComputedAt: asOf},
		{Score: 30, ComputedAt: asOf},
	}

	fit := FitLine(h)
	assert.Zero(t, fit.Slope)
	assert.InDelta(t, 20, fit.Intercept, 1e-9)
	assert.InDelta(t, 200, fit.ResidualVariance, 1e-9)
}

func seedStore(t *testing.T) *mocks.Store {
	t.Helper()

	store := mocks.NewStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveEntity(ctx, domain.WorkflowEntity{
			ID: id, CanonicalTitle: id, SourceLinks: map[domain.Source]string{domain.SourceVideo: id},
		}))
	}

	for _, s := range []domain.PopularityScoreSnapshot{
		{EntityID: "a", Country: "IN", Score: 1600, ComputedAt: asOf.Add(-time.Hour)},
		{EntityID: "a", Country: "US", Score: 60, ComputedAt: asOf.Add(-time.Hour)},
		{EntityID: "b", Country: "US", Score: 3000, ComputedAt: asOf.Add(-2 * time.Hour)},
		{EntityID: "b", Country: "DE", Score: 100, ComputedAt: asOf.Add(-2 * time.Hour)},
		{EntityID: "c", Country: "US", Score: 10, ComputedAt: asOf.Add(-time.Hour)},
	} {
		require.NoError(t, store.AppendSnapshot(ctx, s))
	}

	return store
}

func TestService_GetDivergence(t *testing.T) {
	store := seedStore(t)
	svc := NewService(store, domain.DefaultTuning()).WithClock(func() time.Time { return asOf })
	ctx := context.Background()

	all, err := svc.GetDivergence(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].EntityID)
	assert.Equal(t, "a", all[1].EntityID)
	assert.InDelta(t, 1540, all[1].Magnitude, 1e-9)

	one, err := svc.GetDivergence(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, one)

	_, err = svc.GetDivergence(ctx, "missing")
	assert.ErrorIs(t, err, coreerrors.ErrNotFound)
}

func TestService_GetDivergenceWithoutTolerance(t *testing.T) {
	store := seedStore(t)
	require.NoError(t, store.AppendSnapshot(context.Background(), domain.PopularityScoreSnapshot{
		EntityID: "c", Country: "IN", Score: 900, ComputedAt: asOf.Add(-60 * 24 * time.Hour),
	}))

	tuning := domain.DefaultTuning()
	tuning.DivergenceTolerance = 0

	svc := NewService(store, tuning).WithClock(func() time.Time { return asOf })

	got, err := svc.GetDivergence(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "IN", got[0].HighCountry)
	assert.Equal(t, "US", got[0].LowCountry)
	assert.InDelta(t, 890, got[0].Magnitude, 1e-9)
}

func TestService_GetForecast(t *testing.T) {
	store := mocks.NewStore()
	ctx := context.Background()

	require.NoError(t, store.SaveEntity(ctx, domain.WorkflowEntity{ID: "e", SourceLinks: map[domain.Source]string{}}))

	svc := NewService(store, domain.DefaultTuning())

	res, err := svc.GetForecast(ctx, "e", 7)
	require.NoError(t, err)
	require.NotNil(t, res.Insufficient)
	assert.Zero(t, res.Insufficient.Have)

	for _, s := range history(10, 20, 30) {
		require.NoError(t, store.AppendSnapshot(ctx, s))
	}

	res, err = svc.GetForecast(ctx, "e", 1)
	require.NoError(t, err)
	require.True(t, res.HasForecast())
	assert.InDelta(t, 40, res.Forecast.PredictedScore, 1e-6)

	_, err = svc.GetForecast(ctx, "e", 0)
	assert.ErrorIs(t, err, coreerrors.ErrInvalidInput)

	_, err = svc.GetForecast(ctx, "nope", 3)
	assert.ErrorIs(t, err, coreerrors.ErrNotFound)
}
