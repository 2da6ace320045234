package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/costcast/internal/forecast"
	"github.com/irfndi/costcast/internal/logging"
	"github.com/irfndi/costcast/internal/models"
	"github.com/irfndi/costcast/internal/telemetry"
	"github.com/irfndi/costcast/internal/utils"
)

// maxLookbackDays bounds how much stored history one request may load
const maxLookbackDays = 3650

// ErrStorageUnavailable is returned by operations that need stored history when no store is configured
var ErrStorageUnavailable = errors.New("cost storage is not configured")

// ForecastEngine produces forecasts; *forecast.Engine implements it
type ForecastEngine interface {
	Generate(ctx context.Context, req forecast.Request) *models.ForecastResult
	Fingerprint(req forecast.Request) string
}

// CostStore persists daily costs and forecasts; *database.CostRepository implements it
type CostStore interface {
	GetDailyCosts(ctx context.Context, clientID string, from, to time.Time) ([]models.HistoricalPoint, error)
	UpsertDailyCosts(ctx context.Context, clientID string, points []models.HistoricalPoint) (int64, error)
	SaveForecast(ctx context.Context, clientID string, result *models.ForecastResult) error
	LatestForecast(ctx context.Context, clientID string) (*models.ForecastResult, error)
}

// ResultCache stores forecasts by request fingerprint; *cache.ForecastCache implements it
type ResultCache interface {
	Get(ctx context.Context, key string) (*models.ForecastResult, bool)
	Set(ctx context.Context, key string, result *models.ForecastResult) error
}

// ServiceMetrics receives service-level measurements; *metrics.Collector implements it
type ServiceMetrics interface {
	ObserveForecastDuration(d time.Duration)
	ObserveBudget(status models.BudgetStatus)
	ObserveIngest(points int64)
}

// EventLogger writes the forecast audit log; *logging.StandardLogger implements it
type EventLogger interface {
	LogForecast(event logging.ForecastEvent)
}

// ForecastRequest is an ad-hoc forecast over an inline history
type ForecastRequest struct {
	History         []models.HistoricalPoint `json:"historical_data"`
	Horizon         int                      `json:"forecast_horizon"`
	Methods         []string                 `json:"methods,omitempty"`
	BudgetThreshold float64                  `json:"budget_threshold,omitempty"`
}

// ClientForecastRequest forecasts from a client's stored history
type ClientForecastRequest struct {
	ClientID        string
	LookbackDays    int
	Horizon         int
	Methods         []string
	BudgetThreshold float64
}

// ForecastResponse wraps a forecast with its optional budget evaluation
type ForecastResponse struct {
	Forecast *models.ForecastResult   `json:"forecast"`
	Budget   *models.BudgetEvaluation `json:"budget,omitempty"`
	Cached   bool                     `json:"cached"`
}

// ServiceOption configures a ForecastService
type ServiceOption func(*ForecastService)

// WithCache enables result caching
func WithCache(c ResultCache) ServiceOption {
	return func(s *ForecastService) { s.cache = c }
}

// WithMetrics records service-level metrics
func WithMetrics(m ServiceMetrics) ServiceOption {
	return func(s *ForecastService) { s.metrics = m }
}

// WithEventLogger writes one audit event per forecast
func WithEventLogger(l EventLogger) ServiceOption {
	return func(s *ForecastService) { s.events = l }
}

// WithBusinessTracer replaces the global business tracer
func WithBusinessTracer(t *telemetry.BusinessTracer) ServiceOption {
	return func(s *ForecastService) { s.tracer = t }
}

// WithServiceClock replaces the clock used to compute lookback windows
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *ForecastService) { s.now = now }
}

// ForecastService wires the engine to storage, caching and budget evaluation
type ForecastService struct {
	engine          ForecastEngine
	store           CostStore
	budget          *BudgetEvaluator
	cache           ResultCache
	metrics         ServiceMetrics
	events          EventLogger
	tracer          *telemetry.BusinessTracer
	logger          *logrus.Logger
	defaultLookback int
	now             func() time.Time
}

// NewForecastService creates the service. store may be nil, in which case
// only ad-hoc forecasts are available.
func NewForecastService(engine ForecastEngine, store CostStore, budget *BudgetEvaluator, defaultLookback int, logger *logrus.Logger, opts ...ServiceOption) *ForecastService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if defaultLookback <= 0 {
		defaultLookback = 90
	}
	s := &ForecastService{
		engine:          engine,
		store:           store,
		budget:          budget,
		logger:          logger,
		defaultLookback: defaultLookback,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = telemetry.NewBusinessTracer(nil)
	}
	return s
}

// parseMethods keeps unrecognised names so the engine can report them
func parseMethods(names []string) []models.ForecastMethod {
	if len(names) == 0 {
		return nil
	}
	methods := make([]models.ForecastMethod, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if m, ok := models.ParseForecastMethod(name); ok {
			methods = append(methods, m)
			continue
		}
		methods = append(methods, models.ForecastMethod(name))
	}
	return methods
}

// Forecast runs an ad-hoc forecast over req.History
func (s *ForecastService) Forecast(ctx context.Context, req ForecastRequest) (*ForecastResponse, error) {
	return s.run(ctx, "", req)
}

func (s *ForecastService) run(ctx context.Context, clientID string, req ForecastRequest) (*ForecastResponse, error) {
	if req.BudgetThreshold < 0 {
		return nil, utils.NewFieldError("budget_threshold", "must not be negative, got %v", req.BudgetThreshold)
	}

	started := time.Now()
	ctx, span := s.tracer.TraceForecast(ctx, clientID, len(req.History), req.Horizon)
	defer span.End()

	engineReq := forecast.Request{
		History: req.History,
		Horizon: req.Horizon,
		Methods: parseMethods(req.Methods),
	}
	key := s.engine.Fingerprint(engineReq)

	var result *models.ForecastResult
	cached := false
	if s.cache != nil {
		result, cached = s.cache.Get(ctx, key)
	}
	if !cached {
		result = s.engine.Generate(ctx, engineReq)
		if s.cache != nil && len(result.Predictions) > 0 {
			if err := s.cache.Set(ctx, key, result); err != nil {
				s.logger.WithError(err).WithField("forecast_id", result.Metadata.ForecastID).Warn("Failed to cache forecast")
			}
		}
	}
	if clientID != "" {
		scoped := *result
		scoped.Metadata.ForecastID = forecast.ScopedForecastID(result.Metadata.ForecastID, clientID)
		result = &scoped
	}
	s.tracer.RecordForecastResult(span, result, cached)

	response := &ForecastResponse{Forecast: result, Cached: cached}
	if s.budget != nil {
		eval, err := s.budget.Evaluate(result, s.budget.Threshold(req.BudgetThreshold))
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if eval != nil {
			response.Budget = eval
			s.tracer.RecordBudget(span, eval)
			if s.metrics != nil {
				s.metrics.ObserveBudget(eval.Status)
			}
		}
	}

	elapsed := time.Since(started)
	if s.metrics != nil {
		s.metrics.ObserveForecastDuration(elapsed)
	}
	s.logEvent(clientID, result, cached, elapsed)
	return response, nil
}

func (s *ForecastService) logEvent(clientID string, result *models.ForecastResult, cached bool, elapsed time.Duration) {
	if s.events == nil {
		return
	}
	methods := make([]string, len(result.Metadata.MethodsUsed))
	for i, m := range result.Metadata.MethodsUsed {
		methods[i] = string(m)
	}
	failed := make([]string, 0, len(result.Metadata.FailedMethods))
	for m := range result.Metadata.FailedMethods {
		failed = append(failed, string(m))
	}
	s.events.LogForecast(logging.ForecastEvent{
		ClientID:   clientID,
		ForecastID: result.Metadata.ForecastID,
		Horizon:    result.Metadata.Horizon,
		DataPoints: result.Metadata.DataPointsUsed,
		Methods:    methods,
		Failed:     failed,
		Accuracy:   string(result.AccuracyAssessment),
		Cached:     cached,
		DurationMs: elapsed.Milliseconds(),
	})
}

// ForecastClient forecasts from the client's stored history and persists the result.
// A persistence failure is logged and does not fail the request.
func (s *ForecastService) ForecastClient(ctx context.Context, req ClientForecastRequest) (*ForecastResponse, error) {
	if strings.TrimSpace(req.ClientID) == "" {
		return nil, utils.NewFieldError("client_id", "is required")
	}
	if s.store == nil {
		return nil, ErrStorageUnavailable
	}
	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = s.defaultLookback
	}
	if lookback > maxLookbackDays {
		return nil, utils.NewFieldError("lookback_days", "must be at most %d, got %d", maxLookbackDays, lookback)
	}

	to := s.now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -(lookback - 1))
	history, err := s.store.GetDailyCosts(ctx, req.ClientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load cost history: %w", err)
	}
	if len(history) == 0 {
		return nil, utils.NewNotFoundError("cost history for client", req.ClientID)
	}

	response, err := s.run(ctx, req.ClientID, ForecastRequest{
		History:         history,
		Horizon:         req.Horizon,
		Methods:         req.Methods,
		BudgetThreshold: req.BudgetThreshold,
	})
	if err != nil {
		return nil, err
	}

	if len(response.Forecast.Predictions) > 0 && !s.alreadyStored(ctx, req.ClientID, response) {
		if err := s.store.SaveForecast(ctx, req.ClientID, response.Forecast); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"client_id":   req.ClientID,
				"forecast_id": response.Forecast.Metadata.ForecastID,
			}).Warn("Failed to persist forecast")
		}
	}
	return response, nil
}

// alreadyStored reports whether a cached response is the client's latest stored forecast.
// Fresh results are always stored.
func (s *ForecastService) alreadyStored(ctx context.Context, clientID string, response *ForecastResponse) bool {
	if !response.Cached {
		return false
	}
	latest, err := s.store.LatestForecast(ctx, clientID)
	if err != nil || latest == nil {
		return false
	}
	return latest.Metadata.ForecastID == response.Forecast.Metadata.ForecastID
}

// LatestForecast returns the most recently stored forecast for the client
func (s *ForecastService) LatestForecast(ctx context.Context, clientID string) (*models.ForecastResult, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, utils.NewFieldError("client_id", "is required")
	}
	if s.store == nil {
		return nil, ErrStorageUnavailable
	}
	return s.store.LatestForecast(ctx, clientID)
}

// IngestCosts validates and stores daily costs for the client
func (s *ForecastService) IngestCosts(ctx context.Context, clientID string, points []models.HistoricalPoint) (int64, error) {
	if strings.TrimSpace(clientID) == "" {
		return 0, utils.NewFieldError("client_id", "is required")
	}
	if len(points) == 0 {
		return 0, utils.NewFieldError("costs", "at least one daily cost is required")
	}
	if s.store == nil {
		return 0, ErrStorageUnavailable
	}

	ctx, span := s.tracer.TraceIngest(ctx, clientID, len(points))
	defer span.End()

	affected, err := s.store.UpsertDailyCosts(ctx, clientID, points)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.ObserveIngest(int64(len(points)))
	}
	s.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"points":    len(points),
	}).Info("Daily costs ingested")
	return affected, nil
}
