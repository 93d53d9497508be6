package merge

import "github.com/lueurxax/workflow-popularity/internal/process/normalize"

// Similarity scores two normalized titles in [0, 1].
type Similarity func(a, b string) float64

// TitleSimilarity is the token-set Jaccard overlap of two normalized titles:
// |A ∩ B| / |A ∪ B|. Two empty titles score 0.
func TitleSimilarity(a, b string) float64 {
	ta := normalize.TitleTokens(a)
	tb := normalize.TitleTokens(b)

	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		set[t] = struct{}{}
	}

	shared := 0

	for _, t := range tb {
		if _, ok := set[t]; ok {
			shared++
		}
	}

	union := len(ta) + len(tb) - shared

	return float64(shared) / float64(union)
}
