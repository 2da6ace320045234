package forecast

import (
	"context"
	"fmt"
	"math"

	"github.com/irfndi/costcast/internal/models"
)

// seasonalMinPoints is two full weeks of history
const seasonalMinPoints = 14

// SeasonalForecaster decomposes the history into a moving-average trend and
// day-of-week offsets, in the spirit of Prophet's additive weekly component.
type SeasonalForecaster struct{}

func NewSeasonalForecaster() *SeasonalForecaster {
	return &SeasonalForecaster{}
}

func (f *SeasonalForecaster) Method() models.ForecastMethod {
	return models.MethodProphet
}

func (f *SeasonalForecaster) Forecast(_ context.Context, s Series, horizon int) Outcome {
	method := f.Method()
	return FirstOf(
		Guard(method, func() Outcome { return f.decompose(s, horizon) }),
		Guard(method, func() Outcome { return seasonalNaive(method, s, horizon) }),
	)
}

// weeklyOffsets returns mean(weekday) - overall mean, indexed by time.Weekday.
// Weekdays without observations get no offset.
func weeklyOffsets(s Series) [7]float64 {
	var sums [7]float64
	var counts [7]int
	for i, d := range s.Dates {
		wd := d.Weekday()
		sums[wd] += s.Values[i]
		counts[wd]++
	}
	overall := mean(s.Values)
	var offsets [7]float64
	for wd := range offsets {
		if counts[wd] > 0 {
			offsets[wd] = sums[wd]/float64(counts[wd]) - overall
		}
	}
	return offsets
}

func (f *SeasonalForecaster) decompose(s Series, horizon int) Outcome {
	method := f.Method()
	n := s.Len()
	if n < seasonalMinPoints {
		return Fail(method, ReasonInsufficientData,
			fmt.Errorf("%w: have %d points, need %d", ErrInsufficientData, n, seasonalMinPoints))
	}

	trend := centeredMovingAverage(s.Values, min(7, n/3))
	lastTrend := trend[len(trend)-1]
	slope := leastSquaresSlope(lastN(trend, 7))
	offsets := weeklyOffsets(s)
	spread := z95 * math.Sqrt(sampleVariance(s.Values))

	points := make([]models.ForecastPoint, horizon)
	for i := 0; i < horizon; i++ {
		seasonal := offsets[s.forecastDate(i).Weekday()]
		value := lastTrend + slope*float64(i) + seasonal
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return Fail(method, ReasonComputation, fmt.Errorf("non-finite prediction at step %d", i))
		}
		value = floorZero(value)

		width := spread * (1 + 0.1*float64(i))
		points[i] = newPoint(s, i, value, value-width, value+width, method,
			math.Max(0.2, 0.8-0.05*float64(i)),
			"weekly_seasonality", "trend_component")
	}
	return Succeed(method, StrategySeasonal, points)
}
