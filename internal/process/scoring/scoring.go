// Package scoring turns merged observations into popularity score snapshots
// with exponential decay of prior scores.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
)

const hoursPerDay = 24

// Scorer computes snapshots. It is pure and safe for concurrent use.
type Scorer struct {
	lambda float64
}

// New creates a Scorer with the decay rate of tuning.
func New(tuning domain.Tuning) *Scorer {
	return &Scorer{lambda: tuning.DecayLambda}
}

// DecayFactor returns exp(-lambda * days); negative days count as zero.
func (s *Scorer) DecayFactor(days float64) float64 {
	if days <= 0 {
		return 1
	}

	return math.Exp(-s.lambda * days)
}

// Score returns one global snapshot and one per country observed in window.
// Each snapshot is the prior score of that scope decayed to now plus the sum
// of the window's engagement. Scopes with neither prior nor current signal are
// skipped. priors is keyed by country, domain.CountryGlobal for the global scope.
func (s *Scorer) Score(entityID string, window []domain.WorkflowObservation, priors map[string]domain.PopularityScoreSnapshot, now time.Time) []domain.PopularityScoreSnapshot {
	scopes := map[string]map[domain.Source]float64{domain.CountryGlobal: {}}

	for _, o := range window {
		scopes[domain.CountryGlobal][o.Source] += o.Engagement

		if o.Country == "" || o.Country == domain.CountryGlobal {
			continue
		}

		if scopes[o.Country] == nil {
			scopes[o.Country] = map[domain.Source]float64{}
		}

		scopes[o.Country][o.Source] += o.Engagement
	}

	out := make([]domain.PopularityScoreSnapshot, 0, len(scopes))

	for _, country := range sortedScopes(scopes) {
		breakdown := scopes[country]

		var contribution float64
		for _, v := range breakdown {
			contribution += v
		}

		decayed := 0.0
		if prior, ok := priors[country]; ok {
			decayed = s.decayed(prior, now)
		}

		if decayed == 0 && contribution == 0 {
			continue
		}

		out = append(out, domain.PopularityScoreSnapshot{
			EntityID:     entityID,
			Country:      country,
			Score:        decayed + contribution,
			DecayedPrior: decayed,
			ComputedAt:   now,
			Breakdown:    breakdown,
		})
	}

	return out
}

// Decay is Score with an empty window applied to every prior scope. Running it
// twice with the same priors and now yields identical snapshots.
func (s *Scorer) Decay(entityID string, priors map[string]domain.PopularityScoreSnapshot, now time.Time) []domain.PopularityScoreSnapshot {
	countries := make([]string, 0, len(priors))
	for c := range priors {
		countries = append(countries, c)
	}

	sort.Strings(countries)

	out := make([]domain.PopularityScoreSnapshot, 0, len(countries))

	for _, c := range countries {
		decayed := s.decayed(priors[c], now)
		if decayed == 0 {
			continue
		}

		out = append(out, domain.PopularityScoreSnapshot{
			EntityID:     entityID,
			Country:      c,
			Score:        decayed,
			DecayedPrior: decayed,
			ComputedAt:   now,
			Breakdown:    map[domain.Source]float64{},
		})
	}

	return out
}

func (s *Scorer) decayed(prior domain.PopularityScoreSnapshot, now time.Time) float64 {
	if prior.Score <= 0 {
		return 0
	}

	days := now.Sub(prior.ComputedAt).Hours() / hoursPerDay

	return prior.Score * s.DecayFactor(days)
}

// PriorsByCountry keeps the latest snapshot per country.
func PriorsByCountry(snaps []domain.PopularityScoreSnapshot) map[string]domain.PopularityScoreSnapshot {
	out := make(map[string]domain.PopularityScoreSnapshot, len(snaps))

	for _, snap := range snaps {
		if cur, ok := out[snap.Country]; !ok || snap.ComputedAt.After(cur.ComputedAt) {
			out[snap.Country] = snap
		}
	}

	return out
}

// sortedScopes lists global first, then countries alphabetically.
func sortedScopes(scopes map[string]map[domain.Source]float64) []string {
	out := make([]string, 0, len(scopes))

	for c := range scopes {
		if c != domain.CountryGlobal {
			out = append(out, c)
		}
	}

	sort.Strings(out)

	return append([]string{domain.CountryGlobal}, out...)
}
