package novelty

import (
	"sort"
	"time"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
)

// Divergence compares the country-scoped scores of one entity at asOf. For
// every country the latest snapshot computed no later than asOf and within the
// tolerance window is used. The country with the greatest absolute score is
// high; magnitude is high minus the larger of the lowest other country and the
// mean of all other countries. An entity seen in a single country is compared
// against the rest of the world, scored as the global score minus that
// country's score. ok is false when magnitude does not exceed the threshold.
func Divergence(entityID string, snaps []domain.PopularityScoreSnapshot, asOf time.Time, tuning domain.Tuning) (domain.DivergenceResult, bool) {
	latest := latestWithin(snaps, asOf, tuning.DivergenceTolerance)

	global, hasGlobal := latest[domain.CountryGlobal]
	delete(latest, domain.CountryGlobal)

	if len(latest) == 0 {
		return domain.DivergenceResult{}, false
	}

	countries := make([]string, 0, len(latest))
	for c := range latest {
		countries = append(countries, c)
	}

	sort.Slice(countries, func(i, j int) bool {
		a, b := latest[countries[i]].Score, latest[countries[j]].Score
		if a != b {
			return a > b
		}

		return countries[i] < countries[j]
	})

	high := countries[0]
	highScore := latest[high].Score

	var (
		low      string
		lowScore float64
		baseline float64
	)

	others := countries[1:]
	if len(others) == 0 {
		low = domain.RestOfWorld
		if hasGlobal {
			lowScore = max(0, global.Score-highScore)
		}

		baseline = lowScore
	} else {
		// others is sorted by score descending with ties by country, so the
		// lowest score with the smallest country code is found scanning back.
		low = others[len(others)-1]
		lowScore = latest[low].Score

		for i := len(others) - 2; i >= 0 && latest[others[i]].Score == lowScore; i-- {
			low = others[i]
		}

		var sum float64
		for _, c := range others {
			sum += latest[c].Score
		}

		baseline = max(lowScore, sum/float64(len(others)))
	}

	magnitude := highScore - baseline
	if magnitude <= tuning.DivergenceThreshold {
		return domain.DivergenceResult{}, false
	}

	return domain.DivergenceResult{
		EntityID:    entityID,
		HighCountry: high,
		LowCountry:  low,
		HighScore:   highScore,
		LowScore:    lowScore,
		Magnitude:   magnitude,
		AsOf:        asOf,
	}, true
}

func latestWithin(snaps []domain.PopularityScoreSnapshot, asOf time.Time, tolerance time.Duration) map[string]domain.PopularityScoreSnapshot {
	out := make(map[string]domain.PopularityScoreSnapshot)

	for _, s := range snaps {
		if s.ComputedAt.After(asOf) {
			continue
		}

		if tolerance > 0 && asOf.Sub(s.ComputedAt) > tolerance {
			continue
		}

		if cur, ok := out[s.Country]; !ok || s.ComputedAt.After(cur.ComputedAt) {
			out[s.Country] = s
		}
	}

	return out
}
