package domain

import (
	"math"
	"time"
)

// Default tuning values.
const (
	DefaultVideoViewWeight          = 1.0
	DefaultVideoLikeWeight          = 5.0
	DefaultVideoCommentWeight       = 10.0
	DefaultForumViewWeight          = 1.0
	DefaultForumReplyWeight         = 8.0
	DefaultTrendInterestWeight      = 1.0
	DefaultDecayHalfLifeDays        = 14.0
	DefaultTitleSimilarityThreshold = 0.8
	DefaultDivergenceThreshold      = 100.0
	DefaultDivergenceTolerance      = 48 * time.Hour
	DefaultRegressionWindow         = 10
	DefaultMinHistory               = 3
	DefaultHighConfidenceMinPoints  = 5
	DefaultHighConfidenceMaxCV      = 0.10
	DefaultMediumConfidenceMaxCV    = 0.30
	DefaultFlatSlopeRatio           = 0.01
)

// Tuning carries every numeric constant used by normalization, merging,
// scoring and analytics. Components receive it explicitly.
type Tuning struct {
	// Engagement weights per source.
	VideoViewWeight     float64
	VideoLikeWeight     float64
	VideoCommentWeight  float64
	ForumViewWeight     float64
	ForumReplyWeight    float64
	TrendInterestWeight float64

	// DecayLambda is the per-day exponential decay rate of prior scores.
	DecayLambda float64

	// TitleSimilarityThreshold is the minimum token-set overlap for a fuzzy merge.
	TitleSimilarityThreshold float64

	// DivergenceThreshold is the minimum magnitude reported as divergence.
	DivergenceThreshold float64

	// DivergenceTolerance bounds how old a country snapshot may be relative to asOf.
	DivergenceTolerance time.Duration

	// RegressionWindow is the number of most recent points fitted (K).
	RegressionWindow int

	// MinHistory is the minimum number of points required to forecast (N).
	MinHistory int

	// Confidence mapping thresholds on the residual coefficient of variation.
	HighConfidenceMinPoints int
	HighConfidenceMaxCV     float64
	MediumConfidenceMaxCV   float64

	// FlatSlopeRatio is the |slope|/mean per day under which a trend is flat.
	FlatSlopeRatio float64
}

// DecayLambdaForHalfLife returns the lambda that halves a score after halfLifeDays.
func DecayLambdaForHalfLife(halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 0
	}

	return math.Ln2 / halfLifeDays
}

// DefaultTuning returns the documented defaults.
func DefaultTuning() Tuning {
	return Tuning{
		VideoViewWeight:          DefaultVideoViewWeight,
		VideoLikeWeight:          DefaultVideoLikeWeight,
		VideoCommentWeight:       DefaultVideoCommentWeight,
		ForumViewWeight:          DefaultForumViewWeight,
		ForumReplyWeight:         DefaultForumReplyWeight,
		TrendInterestWeight:      DefaultTrendInterestWeight,
		DecayLambda:              DecayLambdaForHalfLife(DefaultDecayHalfLifeDays),
		TitleSimilarityThreshold: DefaultTitleSimilarityThreshold,
		DivergenceThreshold:      DefaultDivergenceThreshold,
		DivergenceTolerance:      DefaultDivergenceTolerance,
		RegressionWindow:         DefaultRegressionWindow,
		MinHistory:               DefaultMinHistory,
		HighConfidenceMinPoints:  DefaultHighConfidenceMinPoints,
		HighConfidenceMaxCV:      DefaultHighConfidenceMaxCV,
		MediumConfidenceMaxCV:    DefaultMediumConfidenceMaxCV,
		FlatSlopeRatio:           DefaultFlatSlopeRatio,
	}
}
