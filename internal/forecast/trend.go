package forecast

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"

	"github.com/irfndi/costcast/internal/models"
)

const (
	trendWindow          = 14
	trendChangeThreshold = 10.0 // percent
)

// Trend directions
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// movingAverage returns the simple moving average of the last period values
func movingAverage(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period <= 1 || len(values) < period {
		return mean(values)
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	result := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
	if len(result) == 0 {
		return mean(lastN(values, period))
	}
	return result[len(result)-1]
}

// recentChangePercent compares the last 14 days against the 14 before them.
// ok is false when fewer than 28 points exist or the prior window averages zero.
func recentChangePercent(values []float64) (change float64, ok bool) {
	if len(values) < 2*trendWindow {
		return 0, false
	}
	recent := mean(values[len(values)-trendWindow:])
	prior := mean(values[len(values)-2*trendWindow : len(values)-trendWindow])
	if prior == 0 {
		return 0, false
	}
	return (recent - prior) / prior * 100, true
}

// SummarizeTrend builds the compact trend description shared with the AI collaborator
func SummarizeTrend(s Series) models.TrendSummary {
	summary := models.TrendSummary{
		Direction:        TrendStable,
		MeanCost:         mean(s.Values),
		LastCost:         s.Last(),
		MovingAverage7:   movingAverage(s.Values, 7),
		DataPoints:       s.Len(),
		VolatilityStdDev: stdDev(s.Values),
	}

	change, ok := recentChangePercent(s.Values)
	if !ok && s.Len() > 1 && s.Values[0] != 0 {
		change, ok = (s.Last()-s.Values[0])/s.Values[0]*100, true
	}
	if ok && !math.IsNaN(change) && !math.IsInf(change, 0) {
		summary.ChangePercent = change
		switch {
		case change > trendChangeThreshold:
			summary.Direction = TrendIncreasing
		case change < -trendChangeThreshold:
			summary.Direction = TrendDecreasing
		}
	}
	return summary
}
