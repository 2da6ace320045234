package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/irfndi/costcast/internal/models"
)

// AIClient is the external AI forecasting collaborator
type AIClient interface {
	Forecast(ctx context.Context, req models.AIForecastRequest) ([]models.AIPrediction, error)
}

// AIConfig bounds calls to the AI collaborator
type AIConfig struct {
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultAIConfig returns a 10s call timeout and a breaker that opens after 3 consecutive failures
func DefaultAIConfig() AIConfig {
	return AIConfig{
		Timeout:         10 * time.Second,
		BreakerFailures: 3,
		BreakerTimeout:  60 * time.Second,
	}
}

// AIForecaster adapts an AIClient to the Forecaster interface. Every call
// runs under a timeout and a circuit breaker; any failure is reported as an
// external service failure and never retried.
type AIForecaster struct {
	client  AIClient
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

func NewAIForecaster(client AIClient, cfg AIConfig, logger *logrus.Logger) *AIForecaster {
	def := DefaultAIConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	failures := cfg.BreakerFailures
	settings := gobreaker.Settings{
		Name:        "ai-forecaster",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("AI forecaster circuit breaker state changed")
		},
	}

	return &AIForecaster{
		client:  client,
		timeout: cfg.Timeout,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

func (f *AIForecaster) Method() models.ForecastMethod {
	return models.MethodAI
}

// BreakerState reports the circuit breaker state for health checks
func (f *AIForecaster) BreakerState() string {
	return f.breaker.State().String()
}

func (f *AIForecaster) Forecast(ctx context.Context, s Series, horizon int) Outcome {
	method := f.Method()
	if f.client == nil {
		return Fail(method, ReasonExternalService, ErrNotConfigured)
	}
	if s.Len() == 0 {
		return Fail(method, ReasonInsufficientData, ErrInsufficientData)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req := models.AIForecastRequest{
		History: make([]models.HistoricalPoint, s.Len()),
		Trend:   SummarizeTrend(s),
		Horizon: horizon,
	}
	for i, d := range s.Dates {
		req.History[i] = models.HistoricalPoint{
			Date: d.Format(models.DateLayout),
			Cost: decimal.NewFromFloat(s.Values[i]),
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	res, err := f.breaker.Execute(func() (interface{}, error) {
		predictions, err := f.client.Forecast(callCtx, req)
		if err != nil {
			return nil, err
		}
		points, err := f.convert(s, horizon, predictions)
		if err != nil {
			return nil, err
		}
		return points, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("AI collaborator unavailable: %w", err)
		}
		return Fail(method, ReasonExternalService, err)
	}
	return Succeed(method, StrategyAI, res.([]models.ForecastPoint))
}

// convert validates collaborator output and maps it onto the forecast calendar.
// Dates must follow the history day by day; extra days beyond the horizon are dropped.
func (f *AIForecaster) convert(s Series, horizon int, predictions []models.AIPrediction) ([]models.ForecastPoint, error) {
	if len(predictions) == 0 {
		return nil, fmt.Errorf("%w: empty prediction list", ErrMalformedOutput)
	}
	if len(predictions) > horizon {
		predictions = predictions[:horizon]
	}

	points := make([]models.ForecastPoint, len(predictions))
	for i, p := range predictions {
		want := s.forecastDateString(i)
		if p.Date != want {
			return nil, fmt.Errorf("%w: prediction %d dated %q, expected %s", ErrMalformedOutput, i, p.Date, want)
		}
		ci := p.ConfidenceInterval
		for _, v := range []float64{p.PredictedCost, ci.Lower, ci.Upper} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: non-finite value on %s", ErrMalformedOutput, p.Date)
			}
		}
		if ci.Lower > ci.Upper {
			return nil, fmt.Errorf("%w: interval lower %.2f above upper %.2f on %s", ErrMalformedOutput, ci.Lower, ci.Upper, p.Date)
		}

		drivers := p.KeyDrivers
		if len(drivers) == 0 {
			drivers = []string{"ai_analysis"}
		}
		points[i] = newPoint(s, i, p.PredictedCost, ci.Lower, ci.Upper, models.MethodAI,
			math.Max(0.3, 0.7-0.05*float64(i)), drivers...)
	}
	return points, nil
}
