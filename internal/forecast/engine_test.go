package forecast

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/costcast/internal/models"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(cfg Config, opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewEngine(cfg, quietLogger(), opts...)
}

type panickingForecaster struct {
	method models.ForecastMethod
}

func (f panickingForecaster) Method() models.ForecastMethod { return f.method }

func (f panickingForecaster) Forecast(context.Context, Series, int) Outcome {
	panic("division by zero")
}

type countingRecorder struct {
	mu       sync.Mutex
	methods  map[models.ForecastMethod]int
	failures map[models.ForecastMethod]FailureReason
	results  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		methods:  make(map[models.ForecastMethod]int),
		failures: make(map[models.ForecastMethod]FailureReason),
	}
}

func (r *countingRecorder) ObserveMethod(m models.ForecastMethod, _ time.Duration, failure *Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[m]++
	if failure != nil {
		r.failures[m] = failure.Reason
	}
}

func (r *countingRecorder) ObserveResult(*models.ForecastResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results++
}

func TestEngine_EmptyInput(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	result := e.Generate(context.Background(), Request{Horizon: 7})

	require.NotNil(t, result)
	assert.Empty(t, result.Predictions)
	assert.NotNil(t, result.Predictions)
	assert.Equal(t, 0.0, result.TotalForecast.Amount)
	assert.Equal(t, models.AccuracyVeryLow, result.AccuracyAssessment)
	assert.Equal(t, []string{AssumptionNoData}, result.Assumptions)
	assert.Equal(t, 0, result.Metadata.DataPointsUsed)
	assert.NotEmpty(t, result.Metadata.ForecastID)
}

func TestEngine_InvalidInputYieldsEmptyResult(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	result := e.Generate(context.Background(), Request{
		History: []models.HistoricalPoint{
			{Date: "2024-01-01", Cost: decimal.NewFromInt(10)},
			{Date: "not-a-date", Cost: decimal.NewFromInt(10)},
		},
		Horizon: 7,
	})
	assert.Empty(t, result.Predictions)
	assert.Equal(t, models.AccuracyVeryLow, result.AccuracyAssessment)
	require.Len(t, result.Metadata.Notes, 1)
	assert.True(t, strings.HasPrefix(result.Metadata.Notes[0], "invalid input"))
}

func TestEngine_MinimalForecastBoundary(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	t.Run("six points take the minimal path", func(t *testing.T) {
		result := e.Generate(context.Background(), Request{
			History: history("2024-01-01", 10, 12, 11, 13, 12, 15),
			Horizon: 5,
		})
		require.Len(t, result.Predictions, 5)
		for _, p := range result.Predictions {
			assert.InDelta(t, 15, p.PredictedCost, 1e-9)
			assert.InDelta(t, 12, p.ConfidenceInterval.Lower, 1e-9)
			assert.InDelta(t, 18, p.ConfidenceInterval.Upper, 1e-9)
			assert.InDelta(t, 0.3, p.ConfidenceScore, 1e-9)
			assert.Equal(t, models.MethodEnsemble, p.MethodUsed)
		}
		assert.Equal(t, models.AccuracyVeryLow, result.AccuracyAssessment)
		assert.Equal(t, []string{AssumptionInsufficientData, AssumptionLastKnownValue}, result.Assumptions)
		assert.Empty(t, result.Metadata.MethodsUsed)
		assert.InDelta(t, 75, result.TotalForecast.Amount, 1e-9)
		assert.Equal(t, "2024-01-07 to 2024-01-11", result.ForecastPeriod)
	})

	t.Run("seven points run the ensemble", func(t *testing.T) {
		result := e.Generate(context.Background(), Request{
			History: history("2024-01-01", 10, 12, 11, 13, 12, 15, 14),
			Horizon: 5,
		})
		require.Len(t, result.Predictions, 5)
		assert.Equal(t, []models.ForecastMethod{
			models.MethodARIMA, models.MethodProphet, models.MethodExponentialSmoothing,
		}, result.Metadata.MethodsUsed)
		assert.Equal(t, StrategyARIMA, result.Metadata.Strategies[models.MethodARIMA])
		assert.Equal(t, StrategySeasonalNaive, result.Metadata.Strategies[models.MethodProphet])
		assert.Equal(t, StrategyHoltWinters, result.Metadata.Strategies[models.MethodExponentialSmoothing])
		assert.Contains(t, result.Assumptions, AssumptionLimitedData)
		assert.Len(t, result.ModelPerformance, 3)
	})
}

func TestEngine_ConstantSeries(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	result := e.Generate(context.Background(), Request{
		History: history("2024-01-01", constantValues(30, 250)...),
		Horizon: 14,
	})

	require.Len(t, result.Predictions, 14)
	for _, p := range result.Predictions {
		assert.InDelta(t, 250, p.PredictedCost, 1e-6)
		assert.LessOrEqual(t, p.ConfidenceInterval.Lower, 250+1e-6)
		assert.GreaterOrEqual(t, p.ConfidenceInterval.Upper, 250-1e-6)
		assert.InDelta(t, 250, (p.ConfidenceInterval.Lower+p.ConfidenceInterval.Upper)/2, 1e-6)
	}
	assert.InDelta(t, 250*14, result.TotalForecast.Amount, 1e-4)
	for m, score := range result.ModelPerformance {
		assert.InDelta(t, 1.0, score, 1e-9, "method %s", m)
	}
	assert.Equal(t, models.AccuracyHigh, result.AccuracyAssessment)
	assert.NotContains(t, result.Assumptions, AssumptionLimitedData)
	assert.NotContains(t, result.Assumptions, AssumptionUpwardTrend)
	assert.NotContains(t, result.Assumptions, AssumptionDownwardTrend)
}

func TestEngine_HorizonLengthAndBounds(t *testing.T) {
	values := []float64{40, 42, 39, 55, 61, 20, 18, 44, 47, 41, 58, 66, 22, 19}
	e := newTestEngine(DefaultConfig())

	for _, horizon := range []int{1, 7, 30, 90} {
		result := e.Generate(context.Background(), Request{History: history("2024-03-01", values...), Horizon: horizon})
		require.Len(t, result.Predictions, horizon)
		assert.Equal(t, horizon, result.Metadata.Horizon)

		prev, err := time.Parse(models.DateLayout, "2024-03-14")
		require.NoError(t, err)
		for _, p := range result.Predictions {
			day, err := time.Parse(models.DateLayout, p.Date)
			require.NoError(t, err)
			assert.Equal(t, prev.AddDate(0, 0, 1), day)
			prev = day

			assert.GreaterOrEqual(t, p.PredictedCost, 0.0)
			assert.GreaterOrEqual(t, p.ConfidenceInterval.Lower, 0.0)
			assert.LessOrEqual(t, p.ConfidenceInterval.Lower, p.ConfidenceInterval.Upper)
			assert.GreaterOrEqual(t, p.ConfidenceScore, 0.0)
			assert.LessOrEqual(t, p.ConfidenceScore, 1.0)
			assert.Equal(t, models.MethodEnsemble, p.MethodUsed)
		}
		assert.GreaterOrEqual(t, result.TotalForecast.VarianceRange.Min, 0.0)
		assert.LessOrEqual(t, result.TotalForecast.VarianceRange.Min, result.TotalForecast.Amount)
		assert.GreaterOrEqual(t, result.TotalForecast.VarianceRange.Max, result.TotalForecast.Amount)
	}
}

func TestEngine_DecliningSeriesNeverGoesNegative(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	result := e.Generate(context.Background(), Request{
		History: history("2024-01-01", linearValues(30, 300, -10)...),
		Horizon: 60,
	})
	require.Len(t, result.Predictions, 60)
	for _, p := range result.Predictions {
		assert.GreaterOrEqual(t, p.PredictedCost, 0.0)
		assert.GreaterOrEqual(t, p.ConfidenceInterval.Lower, 0.0)
	}
	assert.Contains(t, result.Assumptions, AssumptionDownwardTrend)
}

func TestEngine_LinearSeries(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	result := e.Generate(context.Background(), Request{
		History: history("2024-01-01", linearValues(30, 100, 10)...),
		Horizon: 7,
	})

	require.Len(t, result.Predictions, 7)
	day7 := result.Predictions[6].PredictedCost
	assert.Greater(t, day7, 410.0)
	assert.Less(t, day7, 500.0)

	assert.Equal(t, "Ensemble forecast combining ARIMA, Prophet-style seasonal decomposition and Holt-Winters exponential smoothing", result.Methodology)
	assert.Contains(t, result.Assumptions, AssumptionUpwardTrend)
	assert.Contains(t, result.Assumptions, AssumptionHistoricalPatterns)
	assert.Contains(t, result.Assumptions, AssumptionNoInfraChanges)
	assert.Contains(t, result.Assumptions, AssumptionStableUsage)
	assert.NotContains(t, result.Assumptions, AssumptionLimitedData)
	assert.Equal(t, "2024-01-31 to 2024-02-06", result.ForecastPeriod)
}

func TestEngine_Deterministic(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	req := Request{
		History: history("2024-01-01", []float64{40, 42, 39, 55, 61, 20, 18, 44, 47, 41, 58, 66, 22, 19, 45, 48}...),
		Horizon: 21,
	}

	first := e.Generate(context.Background(), req)
	second := e.Generate(context.Background(), req)
	assert.Equal(t, first, second)
	assert.Equal(t, fixedNow, first.Metadata.GeneratedAt)
	assert.Equal(t, e.Fingerprint(req), e.Fingerprint(req))
	assert.Equal(t, forecastID(e.Fingerprint(req)), first.Metadata.ForecastID)
}

func TestEngine_FingerprintIgnoresInputOrder(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	points := history("2024-01-01", 1, 2, 3)
	reversed := []models.HistoricalPoint{points[2], points[1], points[0]}

	assert.Equal(t, e.Fingerprint(Request{History: points}), e.Fingerprint(Request{History: reversed}))
	assert.NotEqual(t,
		e.Fingerprint(Request{History: points, Horizon: 5}),
		e.Fingerprint(Request{History: points, Horizon: 6}))
}

func TestScopedForecastID(t *testing.T) {
	id := forecastID("fingerprint")

	assert.Equal(t, id, ScopedForecastID(id, ""))
	assert.Equal(t, ScopedForecastID(id, "acme"), ScopedForecastID(id, "acme"))
	assert.NotEqual(t, id, ScopedForecastID(id, "acme"))
	assert.NotEqual(t, ScopedForecastID(id, "acme"), ScopedForecastID(id, "globex"))
}

func TestEngine_MethodSelection(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	result := e.Generate(context.Background(), Request{
		History: history("2024-01-01", constantValues(20, 10)...),
		Horizon: 3,
		Methods: []models.ForecastMethod{models.MethodARIMA, "NEURAL"},
	})

	assert.Equal(t, []models.ForecastMethod{models.MethodARIMA}, result.Metadata.MethodsUsed)
	assert.Equal(t, "Forecast generated with ARIMA", result.Methodology)
	assert.Equal(t, string(ReasonInvalidInput), result.Metadata.FailedMethods["NEURAL"])
	assert.Contains(t, result.Metadata.Notes, "unknown method NEURAL ignored")
}

func TestEngine_FailingMethodIsExcluded(t *testing.T) {
	recorder := newCountingRecorder()
	e := newTestEngine(DefaultConfig(),
		WithForecaster(panickingForecaster{method: models.MethodAI}),
		WithRecorder(recorder),
	)
	result := e.Generate(context.Background(), Request{
		History: history("2024-01-01", constantValues(20, 10)...),
		Horizon: 5,
	})

	require.Len(t, result.Predictions, 5)
	assert.NotContains(t, result.Metadata.MethodsUsed, models.MethodAI)
	assert.Equal(t, string(ReasonComputation), result.Metadata.FailedMethods[models.MethodAI])
	assert.Equal(t, ReasonComputation, recorder.failures[models.MethodAI])
	assert.Equal(t, 4, len(recorder.methods))
	assert.Equal(t, 1, recorder.results)
}

func TestEngine_AIFailureTolerated(t *testing.T) {
	ai := NewAIForecaster(&stubAIClient{respond: func(ctx context.Context, _ models.AIForecastRequest) ([]models.AIPrediction, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}, AIConfig{Timeout: 10 * time.Millisecond}, quietLogger())

	e := newTestEngine(DefaultConfig(), WithForecaster(ai))
	result := e.Generate(context.Background(), Request{
		History: history("2024-01-01", constantValues(20, 10)...),
		Horizon: 5,
	})
	require.Len(t, result.Predictions, 5)
	assert.Len(t, result.Metadata.MethodsUsed, 3)
	assert.Equal(t, string(ReasonExternalService), result.Metadata.FailedMethods[models.MethodAI])
}

func TestEngine_AIJoinsEnsemble(t *testing.T) {
	ai := NewAIForecaster(&stubAIClient{respond: echoPredictions(10)}, DefaultAIConfig(), quietLogger())
	e := newTestEngine(DefaultConfig(), WithForecaster(ai))
	result := e.Generate(context.Background(), Request{
		History: history("2024-01-01", constantValues(20, 10)...),
		Horizon: 5,
	})
	assert.Contains(t, result.Metadata.MethodsUsed, models.MethodAI)
	assert.Contains(t, result.Predictions[0].KeyDrivers, "llm_trend")
	assert.Contains(t, result.Methodology, "AI-assisted analysis")
}

func TestEngine_AllMethodsFailed(t *testing.T) {
	e := newTestEngine(DefaultConfig(), WithForecaster(panickingForecaster{method: models.MethodAI}))
	result := e.Generate(context.Background(), Request{
		History: history("2024-01-01", constantValues(10, 42)...),
		Horizon: 3,
		Methods: []models.ForecastMethod{models.MethodAI},
	})

	require.Len(t, result.Predictions, 3)
	assert.InDelta(t, 42, result.Predictions[0].PredictedCost, 1e-9)
	assert.Equal(t, []string{AssumptionAllMethodsFailed}, result.Assumptions)
	assert.Equal(t, models.AccuracyVeryLow, result.AccuracyAssessment)
}

func TestEngine_GapPolicy(t *testing.T) {
	gapped := append(history("2024-01-01", constantValues(10, 5)...), history("2024-01-13", constantValues(10, 5)...)...)

	t.Run("interpolate", func(t *testing.T) {
		result := newTestEngine(DefaultConfig()).Generate(context.Background(), Request{History: gapped, Horizon: 3})
		assert.Len(t, result.Predictions, 3)
		assert.Equal(t, 22, result.Metadata.DataPointsUsed)
		assert.Contains(t, result.Metadata.Notes, "interpolated 2 missing day(s)")
	})

	t.Run("reject", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.GapPolicy = GapReject
		result := newTestEngine(cfg).Generate(context.Background(), Request{History: gapped, Horizon: 3})
		assert.Empty(t, result.Predictions)
		assert.Equal(t, models.AccuracyVeryLow, result.AccuracyAssessment)
	})
}

func TestEngine_HorizonDefaultsAndCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultHorizon = 10
	cfg.MaxHorizon = 20
	e := newTestEngine(cfg)
	points := history("2024-01-01", constantValues(14, 1)...)

	assert.Len(t, e.Generate(context.Background(), Request{History: points}).Predictions, 10)

	capped := e.Generate(context.Background(), Request{History: points, Horizon: 50})
	assert.Len(t, capped.Predictions, 20)
	assert.Contains(t, capped.Metadata.Notes, "horizon capped at 20 days")
}

func TestEngine_ConcurrentUse(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	req := Request{History: history("2024-01-01", linearValues(40, 50, 2)...), Horizon: 14}
	expected := e.Generate(context.Background(), req)

	var wg sync.WaitGroup
	results := make([]*models.ForecastResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Generate(context.Background(), req)
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, expected, r)
	}
}
