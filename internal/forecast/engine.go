package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/costcast/internal/models"
)

// minEnsemblePoints is the shortest history that runs the forecasters
const minEnsemblePoints = 7

// Stage is a step of a single forecast run
type Stage string

const (
	StageInit       Stage = "INIT"
	StageCollecting Stage = "COLLECTING"
	StageEnsembling Stage = "ENSEMBLING"
	StageDone       Stage = "DONE"
)

// Config holds the engine settings
type Config struct {
	DefaultHorizon int
	MaxHorizon     int
	GapPolicy      GapPolicy
	Methods        []models.ForecastMethod // default selection; empty means every registered forecaster
	ARIMA          ARIMAConfig
	Smoothing      SmoothingConfig
}

// DefaultConfig returns a 30-day horizon capped at 365 days with linear gap filling
func DefaultConfig() Config {
	return Config{
		DefaultHorizon: 30,
		MaxHorizon:     365,
		GapPolicy:      GapInterpolate,
		ARIMA:          DefaultARIMAConfig(),
		Smoothing:      DefaultSmoothingConfig(),
	}
}

// Request is the input of one forecast
type Request struct {
	History []models.HistoricalPoint
	Horizon int
	Methods []models.ForecastMethod
}

// Recorder receives per-method timings and final results
type Recorder interface {
	ObserveMethod(method models.ForecastMethod, elapsed time.Duration, failure *Failure)
	ObserveResult(result *models.ForecastResult)
}

type nopRecorder struct{}

func (nopRecorder) ObserveMethod(models.ForecastMethod, time.Duration, *Failure) {}
func (nopRecorder) ObserveResult(*models.ForecastResult)                         {}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the generation timestamp source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithForecaster registers an additional forecaster, such as the AI collaborator,
// after the built-in ones. A forecaster for an existing method replaces it.
func WithForecaster(f Forecaster) Option {
	return func(e *Engine) {
		e.registry.Register(f)
	}
}

// Engine runs the forecasters and builds the ensemble. It holds only
// configuration and is safe for concurrent use.
type Engine struct {
	cfg      Config
	registry *Registry
	logger   *logrus.Logger
	recorder Recorder
	tracer   trace.Tracer
	now      func() time.Time
}

// NewEngine creates an engine with the ARIMA, seasonal and smoothing forecasters registered
func NewEngine(cfg Config, logger *logrus.Logger, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.DefaultHorizon <= 0 {
		cfg.DefaultHorizon = def.DefaultHorizon
	}
	if cfg.MaxHorizon <= 0 {
		cfg.MaxHorizon = def.MaxHorizon
	}
	if cfg.DefaultHorizon > cfg.MaxHorizon {
		cfg.DefaultHorizon = cfg.MaxHorizon
	}
	if !cfg.GapPolicy.Valid() {
		cfg.GapPolicy = def.GapPolicy
	}
	if cfg.ARIMA == (ARIMAConfig{}) {
		cfg.ARIMA = def.ARIMA
	}
	if logger == nil {
		logger = logrus.New()
	}

	e := &Engine{
		cfg: cfg,
		registry: NewRegistry(
			NewARIMAForecaster(cfg.ARIMA),
			NewSeasonalForecaster(),
			NewSmoothingForecaster(cfg.Smoothing),
		),
		logger:   logger,
		recorder: nopRecorder{},
		tracer:   otel.Tracer("github.com/irfndi/costcast/internal/forecast"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Methods lists the registered forecasting methods
func (e *Engine) Methods() []models.ForecastMethod {
	return e.registry.Methods()
}

// run carries the state of one Generate call
type run struct {
	req         Request
	fingerprint string
	horizon     int
	series      Series
	stage       Stage
	outcomes    []Outcome
	failed      map[models.ForecastMethod]string
	notes       []string
	log         *logrus.Entry
}

func (r *run) enter(stage Stage) {
	r.stage = stage
	r.log.WithField("stage", stage).Debug("Forecast stage")
}

func (e *Engine) resolveHorizon(h int) (int, bool) {
	if h <= 0 {
		return e.cfg.DefaultHorizon, false
	}
	if h > e.cfg.MaxHorizon {
		return e.cfg.MaxHorizon, true
	}
	return h, false
}

func (e *Engine) requestedMethods(req Request) []models.ForecastMethod {
	if len(req.Methods) > 0 {
		return req.Methods
	}
	return e.cfg.Methods
}

// Generate produces a forecast. It never fails: invalid input yields an
// empty result and forecaster failures degrade to lower-confidence output.
func (e *Engine) Generate(ctx context.Context, req Request) *models.ForecastResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := e.tracer.Start(ctx, "forecast.generate")
	defer span.End()

	fingerprint := e.Fingerprint(req)
	r := &run{
		req:         req,
		fingerprint: fingerprint,
		failed:      make(map[models.ForecastMethod]string),
		log: e.logger.WithFields(logrus.Fields{
			"forecast_id": forecastID(fingerprint),
			"points":      len(req.History),
		}),
	}

	result := e.execute(ctx, r)

	span.SetAttributes(
		attribute.String("forecast.id", result.Metadata.ForecastID),
		attribute.Int("forecast.horizon", result.Metadata.Horizon),
		attribute.Int("forecast.predictions", len(result.Predictions)),
		attribute.String("forecast.accuracy", string(result.AccuracyAssessment)),
	)
	e.recorder.ObserveResult(result)
	r.enter(StageDone)
	return result
}

func (e *Engine) execute(ctx context.Context, r *run) *models.ForecastResult {
	r.enter(StageInit)

	horizon, capped := e.resolveHorizon(r.req.Horizon)
	r.horizon = horizon
	if capped {
		r.notes = append(r.notes, fmt.Sprintf("horizon capped at %d days", horizon))
	}

	series, err := NewSeries(r.req.History, e.cfg.GapPolicy)
	if err != nil {
		r.log.WithError(err).Warn("Rejected forecast input")
		r.notes = append(r.notes, "invalid input: "+err.Error())
		return e.emptyResult(r)
	}
	r.series = series
	if series.Interpolated > 0 {
		r.notes = append(r.notes, fmt.Sprintf("interpolated %d missing day(s)", series.Interpolated))
	}

	if series.Len() < minEnsemblePoints {
		return e.minimalResult(r, AssumptionInsufficientData, AssumptionLastKnownValue)
	}

	r.enter(StageCollecting)
	selected, unknown := e.registry.Select(e.requestedMethods(r.req))
	for _, m := range unknown {
		r.failed[m] = string(ReasonInvalidInput)
		r.notes = append(r.notes, fmt.Sprintf("unknown method %s ignored", m))
	}
	for _, f := range selected {
		out := e.collect(ctx, r, f)
		if out.OK() {
			r.outcomes = append(r.outcomes, out)
			continue
		}
		r.failed[f.Method()] = string(out.Failure.Reason)
	}

	if len(r.outcomes) == 0 {
		r.log.Warn("No forecasting method produced a result")
		return e.minimalResult(r, AssumptionAllMethodsFailed)
	}

	r.enter(StageEnsembling)
	predictions := combine(r.outcomes)
	scores := scoreOutcomes(r.outcomes, series.Values)

	methods := make([]models.ForecastMethod, len(r.outcomes))
	strategies := make(map[models.ForecastMethod]string, len(r.outcomes))
	for i, o := range r.outcomes {
		methods[i] = o.Method
		strategies[o.Method] = o.Strategy
	}

	result := e.baseResult(r)
	result.ForecastPeriod = forecastPeriod(predictions)
	result.Predictions = predictions
	result.TotalForecast = total(predictions)
	result.ModelPerformance = scores
	result.Assumptions = assumptions(series.Values)
	result.Methodology = methodology(methods)
	result.AccuracyAssessment = assessAccuracy(series.Len(), scores)
	result.Metadata.MethodsUsed = methods
	result.Metadata.Strategies = strategies
	return result
}

// collect runs one forecaster with panic protection, tracing and timing
func (e *Engine) collect(ctx context.Context, r *run, f Forecaster) Outcome {
	method := f.Method()
	ctx, span := e.tracer.Start(ctx, "forecast.method",
		trace.WithAttributes(attribute.String("forecast.method", string(method))))
	defer span.End()

	start := time.Now()
	out := Guard(method, func() Outcome {
		return f.Forecast(ctx, r.series, r.horizon)
	})()
	elapsed := time.Since(start)

	if err := out.Err(); err != nil {
		failure := out.Failure
		if failure == nil {
			failure, _ = err.(*Failure)
			out.Failure = failure
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.WithFields(logrus.Fields{
			"method": method,
			"reason": failure.Reason,
		}).WithError(failure.Err).Warn("Forecast method failed")
		e.recorder.ObserveMethod(method, elapsed, failure)
		return out
	}

	span.SetAttributes(attribute.String("forecast.strategy", out.Strategy))
	r.log.WithFields(logrus.Fields{
		"method":   method,
		"strategy": out.Strategy,
		"elapsed":  elapsed,
	}).Debug("Forecast method completed")
	e.recorder.ObserveMethod(method, elapsed, nil)
	return out
}

func (e *Engine) baseResult(r *run) *models.ForecastResult {
	return &models.ForecastResult{
		Predictions:        []models.ForecastPoint{},
		ModelPerformance:   map[models.ForecastMethod]float64{},
		Assumptions:        []string{},
		AccuracyAssessment: models.AccuracyVeryLow,
		Metadata: models.ForecastMetadata{
			ForecastID:     forecastID(r.fingerprint),
			GeneratedAt:    e.now(),
			DataPointsUsed: r.series.Len(),
			MethodsUsed:    []models.ForecastMethod{},
			Horizon:        r.horizon,
			FailedMethods:  nonEmpty(r.failed),
			Notes:          r.notes,
		},
	}
}

func (e *Engine) emptyResult(r *run) *models.ForecastResult {
	result := e.baseResult(r)
	result.Assumptions = []string{AssumptionNoData}
	result.Methodology = methodology(nil)
	return result
}

func (e *Engine) minimalResult(r *run, reasons ...string) *models.ForecastResult {
	predictions := minimalForecast(r.series, r.horizon)
	result := e.baseResult(r)
	result.ForecastPeriod = forecastPeriod(predictions)
	result.Predictions = predictions
	result.TotalForecast = total(predictions)
	result.Assumptions = append([]string(nil), reasons...)
	result.Methodology = methodology(nil)
	result.Metadata.Strategies = map[models.ForecastMethod]string{models.MethodEnsemble: StrategyMinimal}
	return result
}

func forecastPeriod(points []models.ForecastPoint) string {
	if len(points) == 0 {
		return ""
	}
	return points[0].Date + " to " + points[len(points)-1].Date
}

func nonEmpty(m map[models.ForecastMethod]string) map[models.ForecastMethod]string {
	if len(m) == 0 {
		return nil
	}
	return m
}
