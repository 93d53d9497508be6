package novelty

import (
	"math"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
)

const hoursPerDay = 24

// Fit is an ordinary least squares line over a score history, x in days since
// the first point.
type Fit struct {
	Slope            float64
	Intercept        float64
	Mean             float64
	ResidualVariance float64
	LastX            float64
	Points           int
}

// Forecast projects the score horizonDays after the last snapshot. history
// must be ascending by ComputedAt; only the last RegressionWindow points are
// fitted. Fewer than MinHistory points yield InsufficientHistory.
func Forecast(entityID, country string, history []domain.PopularityScoreSnapshot, horizonDays int, tuning domain.Tuning) domain.ForecastResult {
	need := max(tuning.MinHistory, 1)
	if len(history) < need {
		return domain.ForecastResult{Insufficient: &domain.InsufficientHistory{
			EntityID: entityID,
			Have:     len(history),
			Need:     need,
		}}
	}

	if k := tuning.RegressionWindow; k > 0 && len(history) > k {
		history = history[len(history)-k:]
	}

	horizonDays = max(horizonDays, 0)

	fit := FitLine(history)
	predicted := fit.Intercept + fit.Slope*(fit.LastX+float64(horizonDays))

	if country == "" {
		country = domain.CountryGlobal
	}

	return domain.ForecastResult{Forecast: &domain.TrendForecast{
		EntityID:       entityID,
		Country:        country,
		HorizonDays:    horizonDays,
		PredictedScore: max(predicted, 0),
		Confidence:     Confidence(fit.ResidualVariance, fit.Mean, fit.Points, tuning),
		Basis:          fit.Points,
		Slope:          fit.Slope,
		Direction:      Direction(fit.Slope, fit.Mean, tuning),
	}}
}

// FitLine fits score = intercept + slope*days. Points sharing one timestamp
// give a flat line through the mean.
func FitLine(history []domain.PopularityScoreSnapshot) Fit {
	n := len(history)
	if n == 0 {
		return Fit{}
	}

	first := history[0].ComputedAt
	xs := make([]float64, n)

	var sumX, sumY float64

	for i, s := range history {
		xs[i] = s.ComputedAt.Sub(first).Hours() / hoursPerDay
		sumX += xs[i]
		sumY += s.Score
	}

	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, sxy float64

	for i, s := range history {
		dx := xs[i] - meanX
		sxx += dx * dx
		sxy += dx * (s.Score - meanY)
	}

	fit := Fit{Mean: meanY, LastX: xs[n-1], Points: n, Intercept: meanY}

	if sxx > 0 {
		fit.Slope = sxy / sxx
		fit.Intercept = meanY - fit.Slope*meanX
	}

	var sse float64

	for i, s := range history {
		r := s.Score - (fit.Intercept + fit.Slope*xs[i])
		sse += r * r
	}

	dof := max(n-2, 1)
	fit.ResidualVariance = sse / float64(dof)

	return fit
}

// Confidence maps the residual coefficient of variation of a fit to a level:
//
//	cv = sqrt(residualVariance) / mean
//	mean <= 0                                   -> low
//	cv <= HighConfidenceMaxCV and points >= HighConfidenceMinPoints -> high
//	cv <= MediumConfidenceMaxCV                 -> medium
//	otherwise                                   -> low
func Confidence(residualVariance, mean float64, points int, tuning domain.Tuning) domain.Confidence {
	if mean <= 0 || residualVariance < 0 || math.IsNaN(residualVariance) {
		return domain.ConfidenceLow
	}

	cv := math.Sqrt(residualVariance) / mean

	switch {
	case cv <= tuning.HighConfidenceMaxCV && points >= tuning.HighConfidenceMinPoints:
		return domain.ConfidenceHigh
	case cv <= tuning.MediumConfidenceMaxCV:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// Direction classifies a slope relative to the mean score per day.
func Direction(slope, mean float64, tuning domain.Tuning) domain.TrendDirection {
	if mean <= 0 {
		if slope > 0 {
			return domain.TrendRising
		}

		return domain.TrendFlat
	}

	ratio := slope / mean

	switch {
	case ratio > tuning.FlatSlopeRatio:
		return domain.TrendRising
	case ratio < -tuning.FlatSlopeRatio:
		return domain.TrendFalling
	default:
		return domain.TrendFlat
	}
}
