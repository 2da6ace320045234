package forecast

import (
	"math"

	"github.com/irfndi/costcast/internal/models"
)

// Strategy names recorded in result metadata
const (
	StrategyARIMA            = "arima"
	StrategySeasonal         = "seasonal_decomposition"
	StrategyHoltWinters      = "holt_winters"
	StrategyAI               = "ai_collaborator"
	StrategyLinearTrend      = "linear_trend"
	StrategySeasonalNaive    = "seasonal_naive"
	StrategySmoothedConstant = "smoothed_constant"
	StrategyMinimal          = "last_value"
)

// fallback band applied by every sparse-data strategy
const (
	fallbackLowerRatio = 0.8
	fallbackUpperRatio = 1.2
)

// newPoint assembles a forecast point for step i, keeping the interval
// non-negative and ordered around the prediction.
func newPoint(s Series, i int, value, lower, upper float64, method models.ForecastMethod, confidence float64, drivers ...string) models.ForecastPoint {
	value = floorZero(value)
	lower = floorZero(math.Min(lower, value))
	upper = math.Max(upper, value)
	if math.IsNaN(upper) || math.IsInf(upper, 0) {
		upper = value
	}
	return models.ForecastPoint{
		Date:               s.forecastDateString(i),
		PredictedCost:      value,
		ConfidenceInterval: models.ConfidenceInterval{Lower: lower, Upper: upper},
		MethodUsed:         method,
		ConfidenceScore:    clamp01(confidence),
		KeyDrivers:         append([]string(nil), drivers...),
	}
}

func bandedPoint(s Series, i int, value float64, method models.ForecastMethod, confidence float64, drivers ...string) models.ForecastPoint {
	value = floorZero(value)
	return newPoint(s, i, value, value*fallbackLowerRatio, value*fallbackUpperRatio, method, confidence, drivers...)
}

// linearTrend extends the straight line through the first and last observation.
func linearTrend(method models.ForecastMethod, s Series, horizon int) Outcome {
	n := s.Len()
	if n == 0 {
		return Fail(method, ReasonInsufficientData, ErrInsufficientData)
	}
	first, last := s.Values[0], s.Last()
	slope := 0.0
	if n > 1 {
		slope = (last - first) / float64(n-1)
	}
	points := make([]models.ForecastPoint, horizon)
	for i := 0; i < horizon; i++ {
		points[i] = bandedPoint(s, i, last+slope*float64(i+1), method, 0.3, "linear_trend")
	}
	return Succeed(method, StrategyLinearTrend, points)
}

// seasonalNaive repeats the recent weekly average with a negligible drift.
func seasonalNaive(method models.ForecastMethod, s Series, horizon int) Outcome {
	if s.Len() == 0 {
		return Fail(method, ReasonInsufficientData, ErrInsufficientData)
	}
	base := mean(lastN(s.Values, 7))
	points := make([]models.ForecastPoint, horizon)
	for i := 0; i < horizon; i++ {
		points[i] = bandedPoint(s, i, base*(1+0.001*float64(i+1)), method, 0.4, "recent_average")
	}
	return Succeed(method, StrategySeasonalNaive, points)
}

// smoothedConstant repeats the exponentially weighted average of the history.
func smoothedConstant(method models.ForecastMethod, alpha float64, s Series, horizon int) Outcome {
	if s.Len() == 0 {
		return Fail(method, ReasonInsufficientData, ErrInsufficientData)
	}
	level := s.Values[0]
	for _, v := range s.Values[1:] {
		level = alpha*v + (1-alpha)*level
	}
	points := make([]models.ForecastPoint, horizon)
	for i := 0; i < horizon; i++ {
		points[i] = bandedPoint(s, i, level, method, 0.4, "smoothed_level")
	}
	return Succeed(method, StrategySmoothedConstant, points)
}

// minimalForecast is the flat line at the last known value used when the
// history is too short for any forecaster.
func minimalForecast(s Series, horizon int) []models.ForecastPoint {
	if s.Len() == 0 {
		return []models.ForecastPoint{}
	}
	points := make([]models.ForecastPoint, horizon)
	for i := 0; i < horizon; i++ {
		points[i] = bandedPoint(s, i, s.Last(), models.MethodEnsemble, 0.3, "last_known_value")
	}
	return points
}
