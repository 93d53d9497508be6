package domain

import "time"

// PopularityScoreSnapshot is a timestamped score for one entity, global or per country.
// Snapshots are append-only.
type PopularityScoreSnapshot struct {
	EntityID     string
	Country      string
	Score        float64
	DecayedPrior float64
	ComputedAt   time.Time
	Breakdown    map[Source]float64
}

// DivergenceResult reports that an entity is popular in one region and not another.
type DivergenceResult struct {
	EntityID    string    `json:"entity_id"`
	HighCountry string    `json:"high_country"`
	LowCountry  string    `json:"low_country"`
	HighScore   float64   `json:"high_score"`
	LowScore    float64   `json:"low_score"`
	Magnitude   float64   `json:"divergence_magnitude"`
	AsOf        time.Time `json:"as_of"`
}

// Confidence is the qualitative reliability of a forecast.
type Confidence string

// Confidence levels.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// TrendDirection summarizes the sign of the fitted slope.
type TrendDirection string

// Trend directions.
const (
	TrendRising  TrendDirection = "rising"
	TrendFalling TrendDirection = "falling"
	TrendFlat    TrendDirection = "flat"
)

// TrendForecast is a projected score at a horizon.
type TrendForecast struct {
	EntityID       string         `json:"entity_id"`
	Country        string         `json:"country"`
	HorizonDays    int            `json:"horizon_days"`
	PredictedScore float64        `json:"predicted_score"`
	Confidence     Confidence     `json:"confidence"`
	Basis          int            `json:"basis"`
	Slope          float64        `json:"slope_per_day"`
	Direction      TrendDirection `json:"direction"`
}

// InsufficientHistory signals that no forecast can be produced yet.
type InsufficientHistory struct {
	EntityID string `json:"entity_id"`
	Have     int    `json:"have"`
	Need     int    `json:"need"`
}

// ForecastResult is either a forecast or an InsufficientHistory signal.
type ForecastResult struct {
	Forecast     *TrendForecast
	Insufficient *InsufficientHistory
}

// HasForecast reports whether a numeric forecast was produced.
func (r ForecastResult) HasForecast() bool {
	return r.Forecast != nil
}
