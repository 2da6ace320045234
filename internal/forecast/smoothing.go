package forecast

import (
	"context"
	"fmt"
	"math"

	"github.com/irfndi/costcast/internal/models"
)

const (
	seasonLength          = 7
	smoothingMinPoints    = 3
	smoothingSeasonPoints = 14
)

// SmoothingConfig holds the Holt-Winters smoothing factors
type SmoothingConfig struct {
	Alpha float64 `mapstructure:"alpha"`
	Beta  float64 `mapstructure:"beta"`
	Gamma float64 `mapstructure:"gamma"`
}

// DefaultSmoothingConfig returns alpha 0.3, beta 0.1, gamma 0.1
func DefaultSmoothingConfig() SmoothingConfig {
	return SmoothingConfig{Alpha: 0.3, Beta: 0.1, Gamma: 0.1}
}

// SmoothingForecaster is an additive Holt-Winters model with a weekly season
type SmoothingForecaster struct {
	cfg SmoothingConfig
}

func NewSmoothingForecaster(cfg SmoothingConfig) *SmoothingForecaster {
	def := DefaultSmoothingConfig()
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		cfg.Alpha = def.Alpha
	}
	if cfg.Beta <= 0 || cfg.Beta >= 1 {
		cfg.Beta = def.Beta
	}
	if cfg.Gamma <= 0 || cfg.Gamma >= 1 {
		cfg.Gamma = def.Gamma
	}
	return &SmoothingForecaster{cfg: cfg}
}

func (f *SmoothingForecaster) Method() models.ForecastMethod {
	return models.MethodExponentialSmoothing
}

func (f *SmoothingForecaster) Forecast(_ context.Context, s Series, horizon int) Outcome {
	method := f.Method()
	return FirstOf(
		Guard(method, func() Outcome { return f.holtWinters(s, horizon) }),
		Guard(method, func() Outcome { return smoothedConstant(method, f.cfg.Alpha, s, horizon) }),
	)
}

// hwState is the smoothed state after replaying the history
type hwState struct {
	level    float64
	trend    float64
	seasonal []float64 // nil when the history is shorter than two weeks
	variance float64
}

// initialSeason averages each weekly slot and centers the result to zero mean
func initialSeason(values []float64) []float64 {
	season := make([]float64, seasonLength)
	for slot := 0; slot < seasonLength; slot++ {
		var sum float64
		var count int
		for t := slot; t < len(values); t += seasonLength {
			sum += values[t]
			count++
		}
		if count > 0 {
			season[slot] = sum / float64(count)
		}
	}
	center := mean(season)
	for slot := range season {
		season[slot] -= center
	}
	return season
}

func (f *SmoothingForecaster) fit(values []float64) hwState {
	alpha, beta, gamma := f.cfg.Alpha, f.cfg.Beta, f.cfg.Gamma

	st := hwState{level: values[0]}
	if len(values) > 1 {
		st.trend = values[1] - values[0]
	}
	if len(values) >= smoothingSeasonPoints {
		st.seasonal = initialSeason(values)
	}

	seasonAt := func(t int) float64 {
		if st.seasonal == nil {
			return 0
		}
		return st.seasonal[t%seasonLength]
	}

	var sumSquares float64
	var residuals int
	for t := 1; t < len(values); t++ {
		actual := values[t]
		predicted := st.level + st.trend + seasonAt(t)
		sumSquares += (actual - predicted) * (actual - predicted)
		residuals++

		prevLevel := st.level
		st.level = alpha*actual + (1-alpha)*(st.level+st.trend)
		st.trend = beta*(st.level-prevLevel) + (1-beta)*st.trend
		if st.seasonal != nil {
			slot := t % seasonLength
			st.seasonal[slot] = gamma*(actual-st.level) + (1-gamma)*st.seasonal[slot]
		}
	}
	if residuals > 0 {
		st.variance = sumSquares / float64(residuals)
	}
	return st
}

func (f *SmoothingForecaster) holtWinters(s Series, horizon int) Outcome {
	method := f.Method()
	n := s.Len()
	if n < smoothingMinPoints {
		return Fail(method, ReasonInsufficientData,
			fmt.Errorf("%w: have %d points, need %d", ErrInsufficientData, n, smoothingMinPoints))
	}

	st := f.fit(s.Values)
	spread := z95 * math.Sqrt(st.variance)

	drivers := []string{"smoothed_level", "trend_component"}
	if st.seasonal != nil {
		drivers = append(drivers, "weekly_seasonality")
	}

	points := make([]models.ForecastPoint, horizon)
	for i := 0; i < horizon; i++ {
		value := st.level + st.trend*float64(i+1)
		if st.seasonal != nil {
			value += st.seasonal[i%seasonLength]
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return Fail(method, ReasonComputation, fmt.Errorf("non-finite prediction at step %d", i))
		}
		value = floorZero(value)

		width := spread * (1 + 0.1*float64(i))
		points[i] = newPoint(s, i, value, value-width, value+width, method,
			math.Max(0.3, 0.7-0.05*float64(i)), drivers...)
	}
	return Succeed(method, StrategyHoltWinters, points)
}
