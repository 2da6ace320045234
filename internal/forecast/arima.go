package forecast

import (
	"context"
	"fmt"
	"math"

	"github.com/irfndi/costcast/internal/models"
)

// ARIMAConfig holds the (p, d, q) order of the autoregressive forecaster
type ARIMAConfig struct {
	P int `mapstructure:"p"`
	D int `mapstructure:"d"`
	Q int `mapstructure:"q"`
}

// DefaultARIMAConfig returns the (1,1,1) order
func DefaultARIMAConfig() ARIMAConfig {
	return ARIMAConfig{P: 1, D: 1, Q: 1}
}

// ARIMAForecaster is a simplified autoregressive model over a differenced
// series. Coefficients are scaled lag autocorrelations rather than fitted
// estimates.
type ARIMAForecaster struct {
	cfg ARIMAConfig
}

func NewARIMAForecaster(cfg ARIMAConfig) *ARIMAForecaster {
	if cfg.P < 0 {
		cfg.P = 0
	}
	if cfg.D < 0 {
		cfg.D = 0
	}
	if cfg.Q < 0 {
		cfg.Q = 0
	}
	return &ARIMAForecaster{cfg: cfg}
}

func (f *ARIMAForecaster) Method() models.ForecastMethod {
	return models.MethodARIMA
}

// MinPoints is the history length below which the linear trend is used
func (f *ARIMAForecaster) MinPoints() int {
	return max(f.cfg.P, f.cfg.Q) + f.cfg.D
}

func (f *ARIMAForecaster) Forecast(_ context.Context, s Series, horizon int) Outcome {
	method := f.Method()
	return FirstOf(
		Guard(method, func() Outcome { return f.model(s, horizon) }),
		Guard(method, func() Outcome { return linearTrend(method, s, horizon) }),
	)
}

func (f *ARIMAForecaster) model(s Series, horizon int) Outcome {
	method := f.Method()
	n := s.Len()
	if n == 0 || n < f.MinPoints() {
		return Fail(method, ReasonInsufficientData,
			fmt.Errorf("%w: have %d points, need %d", ErrInsufficientData, n, f.MinPoints()))
	}

	diff := append([]float64(nil), s.Values...)
	for i := 0; i < f.cfg.D; i++ {
		diff = difference(diff)
	}

	ar := make([]float64, f.cfg.P)
	for lag := 1; lag <= f.cfg.P; lag++ {
		ar[lag-1] = autocorrelation(diff, lag) * 0.5
	}

	smooth := centeredMovingAverage(diff, min(3, len(diff)))
	residuals := make([]float64, len(diff))
	for i := range diff {
		residuals[i] = diff[i] - smooth[i]
	}
	ma := make([]float64, f.cfg.Q)
	for lag := 1; lag <= f.cfg.Q; lag++ {
		ma[lag-1] = autocorrelation(residuals, lag) * 0.3
	}

	// error terms stay at zero; there is no residual feedback across steps
	errs := make([]float64, f.cfg.Q)
	history := append([]float64(nil), diff...)
	spread := z95 * stdDev(diff)
	level := s.Last()

	points := make([]models.ForecastPoint, horizon)
	for i := 0; i < horizon; i++ {
		var next float64
		for j, coef := range ar {
			idx := len(history) - 1 - j
			if idx >= 0 {
				next += coef * history[idx]
			}
		}
		for j, coef := range ma {
			next += coef * errs[j]
		}
		history = append(history, next)

		value := next
		if f.cfg.D == 1 {
			level += next
			value = level
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return Fail(method, ReasonComputation, fmt.Errorf("non-finite prediction at step %d", i))
		}
		value = floorZero(value)

		points[i] = newPoint(s, i, value, value-spread, value+spread, method,
			math.Max(0.3, 1.0-0.1*float64(i)),
			"historical_trend", "autoregressive_pattern")
	}
	return Succeed(method, StrategyARIMA, points)
}
