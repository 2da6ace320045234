package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/costcast/internal/cache"
	"github.com/irfndi/costcast/internal/config"
	"github.com/irfndi/costcast/internal/forecast"
	"github.com/irfndi/costcast/internal/logging"
	"github.com/irfndi/costcast/internal/metrics"
	"github.com/irfndi/costcast/internal/models"
	"github.com/irfndi/costcast/internal/utils"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func dailyHistory(start string, values ...float64) []models.HistoricalPoint {
	day, _ := time.Parse(models.DateLayout, start)
	points := make([]models.HistoricalPoint, len(values))
	for i, v := range values {
		points[i] = models.HistoricalPoint{
			Date: day.AddDate(0, 0, i).Format(models.DateLayout),
			Cost: decimal.NewFromFloat(v),
		}
	}
	return points
}

func steadyCosts(n int, base float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = base + float64(i%7)
	}
	return values
}

type fakeStore struct {
	mu         sync.Mutex
	history    []models.HistoricalPoint
	historyErr error
	from, to   time.Time
	saved      []*models.ForecastResult
	savedFor   []string
	saveErr    error
	upserted   []models.HistoricalPoint
	upsertErr  error
	latest     *models.ForecastResult
	latestErr  error
}

func (s *fakeStore) GetDailyCosts(_ context.Context, _ string, from, to time.Time) ([]models.HistoricalPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.from, s.to = from, to
	return s.history, s.historyErr
}

func (s *fakeStore) UpsertDailyCosts(_ context.Context, _ string, points []models.HistoricalPoint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	s.upserted = append(s.upserted, points...)
	return int64(len(points)), nil
}

func (s *fakeStore) SaveForecast(_ context.Context, clientID string, result *models.ForecastResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, result)
	s.savedFor = append(s.savedFor, clientID)
	return nil
}

// LatestForecast returns the configured result, or else the last one saved for clientID
func (s *fakeStore) LatestForecast(_ context.Context, clientID string) (*models.ForecastResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest != nil || s.latestErr != nil {
		return s.latest, s.latestErr
	}
	for i := len(s.saved) - 1; i >= 0; i-- {
		if s.savedFor[i] == clientID {
			return s.saved[i], nil
		}
	}
	return nil, utils.NewNotFoundError("forecast for client", clientID)
}

type recordingEvents struct {
	events []logging.ForecastEvent
}

func (r *recordingEvents) LogForecast(event logging.ForecastEvent) {
	r.events = append(r.events, event)
}

type serviceFixture struct {
	service *ForecastService
	store   *fakeStore
	events  *recordingEvents
	metrics *metrics.Collector
	cache   *cache.ForecastCache
}

func newServiceFixture(t *testing.T, store *fakeStore) serviceFixture {
	t.Helper()
	engine := forecast.NewEngine(forecast.DefaultConfig(), quietLogger(),
		forecast.WithClock(func() time.Time { return fixedNow }))
	collector := metrics.NewCollector()
	events := &recordingEvents{}
	forecastCache := cache.NewForecastCache(nil, cache.Options{LocalSize: 16, TTL: time.Hour}, quietLogger())

	var costStore CostStore
	if store != nil {
		costStore = store
	}
	service := NewForecastService(engine, costStore,
		NewBudgetEvaluator(config.BudgetConfig{WarningRatio: 0.8, Currency: "USD"}),
		30, quietLogger(),
		WithCache(forecastCache),
		WithMetrics(collector),
		WithEventLogger(events),
		WithServiceClock(func() time.Time { return fixedNow }),
	)
	return serviceFixture{service: service, store: store, events: events, metrics: collector, cache: forecastCache}
}

func TestForecastService_Forecast(t *testing.T) {
	f := newServiceFixture(t, nil)

	resp, err := f.service.Forecast(context.Background(), ForecastRequest{
		History: dailyHistory("2024-01-01", steadyCosts(28, 100)...),
		Horizon: 14,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Forecast)
	assert.False(t, resp.Cached)
	assert.Nil(t, resp.Budget)
	assert.Len(t, resp.Forecast.Predictions, 14)

	require.Len(t, f.events.events, 1)
	event := f.events.events[0]
	assert.Equal(t, resp.Forecast.Metadata.ForecastID, event.ForecastID)
	assert.Equal(t, 14, event.Horizon)
	assert.Equal(t, 28, event.DataPoints)
	assert.Empty(t, event.ClientID)
	assert.False(t, event.Cached)
}

func TestForecastService_CachesByFingerprint(t *testing.T) {
	f := newServiceFixture(t, nil)
	req := ForecastRequest{History: dailyHistory("2024-01-01", steadyCosts(21, 50)...), Horizon: 7}

	first, err := f.service.Forecast(context.Background(), req)
	require.NoError(t, err)
	second, err := f.service.Forecast(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Forecast.Metadata.ForecastID, second.Forecast.Metadata.ForecastID)
	assert.Equal(t, first.Forecast.TotalForecast, second.Forecast.TotalForecast)
	assert.Equal(t, int64(1), f.cache.GetStats().LocalHits)
	assert.True(t, f.events.events[1].Cached)

	req.Methods = []string{"arima"}
	third, err := f.service.Forecast(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, []models.ForecastMethod{models.MethodARIMA}, third.Forecast.Metadata.MethodsUsed)
}

func TestForecastService_EmptyResultIsNotCached(t *testing.T) {
	f := newServiceFixture(t, nil)

	resp, err := f.service.Forecast(context.Background(), ForecastRequest{Horizon: 5})
	require.NoError(t, err)
	assert.Empty(t, resp.Forecast.Predictions)
	assert.Equal(t, 0, f.cache.LocalLen())
}

func TestForecastService_Budget(t *testing.T) {
	f := newServiceFixture(t, nil)

	resp, err := f.service.Forecast(context.Background(), ForecastRequest{
		History:         dailyHistory("2024-01-01", steadyCosts(28, 100)...),
		Horizon:         30,
		BudgetThreshold: 1000,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Budget)
	assert.Equal(t, models.BudgetExceeded, resp.Budget.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BudgetStatus.WithLabelValues("EXCEEDED")))

	_, err = f.service.Forecast(context.Background(), ForecastRequest{BudgetThreshold: -1})
	assert.True(t, utils.IsValidationError(err))
}

func TestForecastService_UnknownMethodIsReported(t *testing.T) {
	f := newServiceFixture(t, nil)

	resp, err := f.service.Forecast(context.Background(), ForecastRequest{
		History: dailyHistory("2024-01-01", steadyCosts(21, 80)...),
		Horizon: 7,
		Methods: []string{"smoothing", "NEURAL", " "},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.ForecastMethod{models.MethodExponentialSmoothing}, resp.Forecast.Metadata.MethodsUsed)
	assert.Contains(t, resp.Forecast.Metadata.Notes, "unknown method NEURAL ignored")
}

func TestParseMethods(t *testing.T) {
	assert.Nil(t, parseMethods(nil))
	assert.Equal(t, []models.ForecastMethod{models.MethodProphet, models.MethodAI, "custom"},
		parseMethods([]string{"seasonal", " llm ", "custom"}))
}

func TestForecastService_ForecastClient(t *testing.T) {
	store := &fakeStore{history: dailyHistory("2024-03-01", steadyCosts(30, 200)...)}
	f := newServiceFixture(t, store)

	resp, err := f.service.ForecastClient(context.Background(), ClientForecastRequest{
		ClientID: "acme",
		Horizon:  10,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Forecast.Predictions, 10)

	assert.Equal(t, "2024-03-02", store.from.Format(models.DateLayout))
	assert.Equal(t, "2024-03-31", store.to.Format(models.DateLayout))
	require.Len(t, store.saved, 1)
	assert.Equal(t, resp.Forecast.Metadata.ForecastID, store.saved[0].Metadata.ForecastID)
	assert.Equal(t, "acme", f.events.events[0].ClientID)

	// a cached answer is not stored twice
	_, err = f.service.ForecastClient(context.Background(), ClientForecastRequest{ClientID: "acme", Horizon: 10})
	require.NoError(t, err)
	assert.Len(t, store.saved, 1)
}

func TestForecastService_ClientsWithSameHistoryAreStoredSeparately(t *testing.T) {
	store := &fakeStore{history: dailyHistory("2024-03-01", steadyCosts(30, 200)...)}
	f := newServiceFixture(t, store)
	ctx := context.Background()

	acme, err := f.service.ForecastClient(ctx, ClientForecastRequest{ClientID: "acme", Horizon: 7})
	require.NoError(t, err)
	globex, err := f.service.ForecastClient(ctx, ClientForecastRequest{ClientID: "globex", Horizon: 7})
	require.NoError(t, err)

	assert.False(t, acme.Cached)
	assert.True(t, globex.Cached)
	assert.NotEqual(t, acme.Forecast.Metadata.ForecastID, globex.Forecast.Metadata.ForecastID)
	assert.Equal(t, acme.Forecast.Predictions, globex.Forecast.Predictions)

	require.Len(t, store.saved, 2)
	assert.Equal(t, []string{"acme", "globex"}, store.savedFor)

	latest, err := f.service.LatestForecast(ctx, "globex")
	require.NoError(t, err)
	assert.Equal(t, globex.Forecast.Metadata.ForecastID, latest.Metadata.ForecastID)

	// the shared cache entry keeps the unscoped id
	adhoc, err := f.service.Forecast(ctx, ForecastRequest{History: store.history, Horizon: 7})
	require.NoError(t, err)
	assert.True(t, adhoc.Cached)
	assert.Equal(t, forecast.ScopedForecastID(adhoc.Forecast.Metadata.ForecastID, "acme"), acme.Forecast.Metadata.ForecastID)
}

func TestForecastService_ForecastClientErrors(t *testing.T) {
	t.Run("missing client", func(t *testing.T) {
		f := newServiceFixture(t, &fakeStore{})
		_, err := f.service.ForecastClient(context.Background(), ClientForecastRequest{})
		assert.True(t, utils.IsValidationError(err))
	})

	t.Run("lookback too long", func(t *testing.T) {
		f := newServiceFixture(t, &fakeStore{})
		_, err := f.service.ForecastClient(context.Background(), ClientForecastRequest{ClientID: "a", LookbackDays: 5000})
		assert.True(t, utils.IsValidationError(err))
	})

	t.Run("no history", func(t *testing.T) {
		f := newServiceFixture(t, &fakeStore{})
		_, err := f.service.ForecastClient(context.Background(), ClientForecastRequest{ClientID: "a"})
		assert.True(t, utils.IsNotFound(err))
	})

	t.Run("store failure", func(t *testing.T) {
		f := newServiceFixture(t, &fakeStore{historyErr: errors.New("db down")})
		_, err := f.service.ForecastClient(context.Background(), ClientForecastRequest{ClientID: "a"})
		assert.ErrorContains(t, err, "db down")
	})

	t.Run("no store", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		_, err := f.service.ForecastClient(context.Background(), ClientForecastRequest{ClientID: "a"})
		assert.ErrorIs(t, err, ErrStorageUnavailable)
	})
}

func TestForecastService_PersistenceFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{
		history: dailyHistory("2024-03-01", steadyCosts(30, 10)...),
		saveErr: errors.New("disk full"),
	}
	f := newServiceFixture(t, store)

	resp, err := f.service.ForecastClient(context.Background(), ClientForecastRequest{ClientID: "acme", Horizon: 5})
	require.NoError(t, err)
	assert.Len(t, resp.Forecast.Predictions, 5)
}

func TestForecastService_LatestForecast(t *testing.T) {
	stored := &models.ForecastResult{Metadata: models.ForecastMetadata{ForecastID: "abc"}}
	f := newServiceFixture(t, &fakeStore{latest: stored})

	got, err := f.service.LatestForecast(context.Background(), "acme")
	require.NoError(t, err)
	assert.Same(t, stored, got)

	_, err = f.service.LatestForecast(context.Background(), "")
	assert.True(t, utils.IsValidationError(err))

	_, err = newServiceFixture(t, nil).service.LatestForecast(context.Background(), "acme")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestForecastService_IngestCosts(t *testing.T) {
	store := &fakeStore{}
	f := newServiceFixture(t, store)
	points := dailyHistory("2024-03-01", 10, 11, 12)

	affected, err := f.service.IngestCosts(context.Background(), "acme", points)
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)
	assert.Equal(t, points, store.upserted)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.IngestedPoints))

	_, err = f.service.IngestCosts(context.Background(), "acme", nil)
	assert.True(t, utils.IsValidationError(err))

	_, err = f.service.IngestCosts(context.Background(), "", points)
	assert.True(t, utils.IsValidationError(err))

	store.upsertErr = utils.NewValidationError("point 0: negative cost -1")
	_, err = f.service.IngestCosts(context.Background(), "acme", points)
	assert.True(t, utils.IsValidationError(err))
}
