package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	"github.com/lueurxax/workflow-popularity/internal/process/normalize"
)

var now = time.Date(2026, 4, 15, 2, 0, 0, 0, time.UTC)

func byCountry(snaps []domain.PopularityScoreSnapshot) map[string]domain.PopularityScoreSnapshot {
	out := make(map[string]domain.PopularityScoreSnapshot, len(snaps))
	for _, s := range snaps {
		out[s.Country] = s
	}

	return out
}

func TestScorer_WorkedExample(t *testing.T) {
	n := normalize.New(domain.DefaultTuning())

	var window []domain.WorkflowObservation

	for _, rec := range []domain.VideoRecord{
		{VideoID: "v1", Title: "Slack Notifier", Country: "IN", Views: 1000, Likes: 100, Comments: 10, FetchedAt: now},
		{VideoID: "v1", Title: "Slack Notifier", Country: "US", Views: 50, Likes: 2, Comments: 0, FetchedAt: now},
	} {
		o, err := n.Normalize(domain.NewVideoRecord(rec))
		require.NoError(t, err)

		window = append(window, o)
	}

	snaps := New(domain.DefaultTuning()).Score("e1", window, nil, now)
	require.Len(t, snaps, 3)
	assert.Equal(t, domain.CountryGlobal, snaps[0].Country)

	got := byCountry(snaps)
	assert.InDelta(t, 1660, got[domain.CountryGlobal].Score, 1e-9)
	assert.InDelta(t, 1600, got["IN"].Score, 1e-9)
	assert.InDelta(t, 60, got["US"].Score, 1e-9)
	assert.InDelta(t, 1660, got[domain.CountryGlobal].Breakdown[domain.SourceVideo], 1e-9)
}

func TestScorer_DecayHalvesAfterHalfLife(t *testing.T) {
	s := New(domain.DefaultTuning())

	priors := map[string]domain.PopularityScoreSnapshot{
		domain.CountryGlobal: {EntityID: "e", Country: domain.CountryGlobal, Score: 200, ComputedAt: now.Add(-14 * 24 * time.Hour)},
	}

	window := []domain.WorkflowObservation{{Source: domain.SourceForum, Country: domain.CountryGlobal, Engagement: 10}}

	snaps := s.Score("e", window, priors, now)
	require.Len(t, snaps, 1)
	assert.InDelta(t, 100, snaps[0].DecayedPrior, 1e-9)
	assert.InDelta(t, 110, snaps[0].Score, 1e-9)
	assert.Equal(t, map[domain.Source]float64{domain.SourceForum: 10}, snaps[0].Breakdown)
}

func TestScorer_DecayIdempotence(t *testing.T) {
	s := New(domain.DefaultTuning())

	priors := map[string]domain.PopularityScoreSnapshot{
		domain.CountryGlobal: {Country: domain.CountryGlobal, Score: 500, ComputedAt: now.Add(-3 * 24 * time.Hour)},
		"US":                 {Country: "US", Score: 120, ComputedAt: now.Add(-3 * 24 * time.Hour)},
	}

	first := s.Score("e", nil, priors, now)
	second := s.Score("e", nil, priors, now)
	assert.Equal(t, first, second)

	decayA := s.Decay("e", priors, now)
	decayB := s.Decay("e", priors, now)
	assert.Equal(t, decayA, decayB)
	require.Len(t, decayA, 2)
	assert.InDelta(t, 500*s.DecayFactor(3), byCountry(decayA)[domain.CountryGlobal].Score, 1e-9)
}

func TestScorer_DecayPreservesOrdering(t *testing.T) {
	s := New(domain.DefaultTuning())
	at := now.Add(-5 * 24 * time.Hour)

	hi := s.Decay("a", map[string]domain.PopularityScoreSnapshot{domain.CountryGlobal: {Score: 300, ComputedAt: at}}, now)
	lo := s.Decay("b", map[string]domain.PopularityScoreSnapshot{domain.CountryGlobal: {Score: 100, ComputedAt: at}}, now)

	require.Len(t, hi, 1)
	require.Len(t, lo, 1)
	assert.Greater(t, hi[0].Score, lo[0].Score)
}

func TestScorer_SkipsZeroSignal(t *testing.T) {
	s := New(domain.DefaultTuning())

	assert.Empty(t, s.Score("e", nil, nil, now))
	assert.Empty(t, s.Score("e", []domain.WorkflowObservation{{Source: domain.SourceVideo, Country: "US"}}, nil, now))
	assert.Empty(t, s.Decay("e", map[string]domain.PopularityScoreSnapshot{domain.CountryGlobal: {Score: 0, ComputedAt: now}}, now))
}

func TestScorer_FutureComputedAtDoesNotGrow(t *testing.T) {
	s := New(domain.DefaultTuning())

	priors := map[string]domain.PopularityScoreSnapshot{
		domain.CountryGlobal: {Score: 50, ComputedAt: now.Add(time.Hour)},
	}

	snaps := s.Score("e", nil, priors, now)
	require.Len(t, snaps, 1)
	assert.InDelta(t, 50, snaps[0].Score, 1e-9)
}

func TestScorer_GlobalObservationsOnlyInGlobalScope(t *testing.T) {
	s := New(domain.DefaultTuning())

	snaps := s.Score("e", []domain.WorkflowObservation{
		{Source: domain.SourceForum, Country: domain.CountryGlobal, Engagement: 40},
		{Source: domain.SourceTrend, Country: "DE", Engagement: 60},
	}, nil, now)

	got := byCountry(snaps)
	require.Len(t, got, 2)
	assert.InDelta(t, 100, got[domain.CountryGlobal].Score, 1e-9)
	assert.InDelta(t, 60, got["DE"].Score, 1e-9)
	assert.NotContains(t, got["DE"].Breakdown, domain.SourceForum)
}

func TestPriorsByCountry(t *testing.T) {
	priors := PriorsByCountry([]domain.PopularityScoreSnapshot{
		{Country: "US", Score: 1, ComputedAt: now.Add(-time.Hour)},
		{Country: "US", Score: 2, ComputedAt: now},
		{Country: domain.CountryGlobal, Score: 3, ComputedAt: now},
	})

	assert.Len(t, priors, 2)
	assert.Equal(t, 2.0, priors["US"].Score)
}
