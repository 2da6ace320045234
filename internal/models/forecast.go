package models

import "time"

// ForecastMethod identifies the strategy that produced a forecast point
type ForecastMethod string

const (
	MethodARIMA                ForecastMethod = "ARIMA"
	MethodProphet              ForecastMethod = "PROPHET"
	MethodExponentialSmoothing ForecastMethod = "EXPONENTIAL_SMOOTHING"
	MethodAI                   ForecastMethod = "AI"
	MethodEnsemble             ForecastMethod = "ENSEMBLE"
)

// ParseForecastMethod maps user input to a known method; the second result is false for unknown names.
func ParseForecastMethod(s string) (ForecastMethod, bool) {
	switch ForecastMethod(s) {
	case MethodARIMA, MethodProphet, MethodExponentialSmoothing, MethodAI, MethodEnsemble:
		return ForecastMethod(s), true
	}
	switch s {
	case "arima":
		return MethodARIMA, true
	case "prophet", "seasonal":
		return MethodProphet, true
	case "exponential_smoothing", "holt_winters", "smoothing":
		return MethodExponentialSmoothing, true
	case "ai", "llm":
		return MethodAI, true
	}
	return "", false
}

// AccuracyLevel is a coarse rating derived from data volume and model performance
type AccuracyLevel string

const (
	AccuracyHigh    AccuracyLevel = "HIGH"
	AccuracyMedium  AccuracyLevel = "MEDIUM"
	AccuracyLow     AccuracyLevel = "LOW"
	AccuracyVeryLow AccuracyLevel = "VERY_LOW"
)

// ConfidenceInterval is the [lower, upper] band around a prediction
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ForecastPoint is a single predicted day
type ForecastPoint struct {
	Date               string             `json:"date"`
	PredictedCost      float64            `json:"predicted_cost"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval"`
	MethodUsed         ForecastMethod     `json:"method_used"`
	ConfidenceScore    float64            `json:"confidence_score"`
	KeyDrivers         []string           `json:"key_drivers"`
}

// VarianceRange bounds the summed forecast
type VarianceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// TotalForecast summarises the whole horizon
type TotalForecast struct {
	Amount        float64       `json:"amount"`
	Confidence    float64       `json:"confidence"`
	VarianceRange VarianceRange `json:"variance_range"`
}

// ForecastMetadata explains how a result was produced
type ForecastMetadata struct {
	ForecastID     string                    `json:"forecast_id"`
	GeneratedAt    time.Time                 `json:"generated_at"`
	DataPointsUsed int                       `json:"data_points_used"`
	MethodsUsed    []ForecastMethod          `json:"methods_used"`
	Horizon        int                       `json:"horizon"`
	Strategies     map[ForecastMethod]string `json:"strategies,omitempty"`
	FailedMethods  map[ForecastMethod]string `json:"failed_methods,omitempty"`
	Notes          []string                  `json:"notes,omitempty"`
}

// ForecastResult is the complete output of one forecast request
type ForecastResult struct {
	ForecastPeriod     string                     `json:"forecast_period"`
	Predictions        []ForecastPoint            `json:"predictions"`
	TotalForecast      TotalForecast              `json:"total_forecast"`
	ModelPerformance   map[ForecastMethod]float64 `json:"model_performance"`
	Assumptions        []string                   `json:"assumptions"`
	Methodology        string                     `json:"methodology"`
	AccuracyAssessment AccuracyLevel              `json:"accuracy_assessment"`
	Metadata           ForecastMetadata           `json:"metadata"`
}

// TrendSummary is the compact description of a history sent to the AI collaborator
type TrendSummary struct {
	Direction        string  `json:"direction"` // increasing, decreasing, stable
	ChangePercent    float64 `json:"change_percent"`
	MeanCost         float64 `json:"mean_cost"`
	LastCost         float64 `json:"last_cost"`
	MovingAverage7   float64 `json:"moving_average_7"`
	DataPoints       int     `json:"data_points"`
	VolatilityStdDev float64 `json:"volatility_stddev"`
}

// AIForecastRequest is sent to the external AI forecasting service
type AIForecastRequest struct {
	History []HistoricalPoint `json:"historical_points"`
	Trend   TrendSummary      `json:"trend_summary"`
	Horizon int               `json:"forecast_horizon"`
}

// AIPrediction is one day returned by the AI forecasting service
type AIPrediction struct {
	Date               string             `json:"date"`
	PredictedCost      float64            `json:"predicted_cost"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval"`
	KeyDrivers         []string           `json:"key_drivers"`
}
