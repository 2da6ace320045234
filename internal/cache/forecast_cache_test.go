package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/costcast/internal/models"
)

type lookup struct {
	tier string
	hit  bool
}

type recordingObserver struct {
	mu      sync.Mutex
	lookups []lookup
}

func (r *recordingObserver) ObserveCache(tier string, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups = append(r.lookups, lookup{tier, hit})
}

type cacheOp struct {
	operation string
	key       string
	hit       bool
}

type recordingOps struct {
	mu  sync.Mutex
	ops []cacheOp
}

func (r *recordingOps) LogCacheOperation(operation string, key string, hit bool, duration int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, cacheOp{operation, key, hit})
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleResult(id string) *models.ForecastResult {
	return &models.ForecastResult{
		ForecastPeriod: "2024-04-01 to 2024-04-02",
		Predictions: []models.ForecastPoint{
			{Date: "2024-04-01", PredictedCost: 10, MethodUsed: models.MethodEnsemble, KeyDrivers: []string{"trend_component"}},
			{Date: "2024-04-02", PredictedCost: 11, MethodUsed: models.MethodEnsemble, KeyDrivers: []string{"trend_component"}},
		},
		AccuracyAssessment: models.AccuracyLow,
		Metadata:           models.ForecastMetadata{ForecastID: id, Horizon: 2},
	}
}

func TestForecastCache_RoundTripBothTiers(t *testing.T) {
	_, client := setupRedis(t)
	observer := &recordingObserver{}
	c := NewForecastCache(client, Options{TTL: time.Minute, LocalSize: 8, Observer: observer}, quietLogger())
	ctx := context.Background()

	_, ok := c.Get(ctx, "fp-1")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "fp-1", sampleResult("id-1")))
	got, ok := c.Get(ctx, "fp-1")
	require.True(t, ok)
	assert.Equal(t, "id-1", got.Metadata.ForecastID)
	assert.Equal(t, sampleResult("id-1").Predictions, got.Predictions)

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.LocalHits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)

	assert.Equal(t, []lookup{{TierLocal, false}, {TierRedis, false}, {TierLocal, true}}, observer.lookups)
}

func TestForecastCache_HitsAreIndependentCopies(t *testing.T) {
	c := NewForecastCache(nil, Options{LocalSize: 4}, quietLogger())
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "fp", sampleResult("id")))

	first, ok := c.Get(ctx, "fp")
	require.True(t, ok)
	first.Predictions[0].PredictedCost = 999

	second, ok := c.Get(ctx, "fp")
	require.True(t, ok)
	assert.Equal(t, 10.0, second.Predictions[0].PredictedCost)
}

func TestForecastCache_RedisHitPromotesToLocal(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	writer := NewForecastCache(client, Options{TTL: time.Minute}, quietLogger())
	require.NoError(t, writer.Set(ctx, "fp", sampleResult("shared")))

	reader := NewForecastCache(client, Options{TTL: time.Minute, LocalSize: 4}, quietLogger())
	got, ok := reader.Get(ctx, "fp")
	require.True(t, ok)
	assert.Equal(t, "shared", got.Metadata.ForecastID)
	assert.Equal(t, 1, reader.LocalLen())
	assert.Equal(t, int64(1), reader.GetStats().RedisHits)

	_, ok = reader.Get(ctx, "fp")
	require.True(t, ok)
	assert.Equal(t, int64(1), reader.GetStats().LocalHits)
}

func TestForecastCache_RedisTTL(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewForecastCache(client, Options{TTL: 30 * time.Second}, quietLogger())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fp", sampleResult("id")))
	assert.Equal(t, 30*time.Second, mr.TTL(defaultPrefix+"fp"))

	mr.FastForward(31 * time.Second)
	_, ok := c.Get(ctx, "fp")
	assert.False(t, ok)
}

func TestForecastCache_CorruptEntryIsAMiss(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewForecastCache(client, Options{}, quietLogger())
	require.NoError(t, mr.Set(defaultPrefix+"fp", "{not json"))

	_, ok := c.Get(context.Background(), "fp")
	assert.False(t, ok)
	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Errors)
}

func TestForecastCache_RedisDown(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewForecastCache(client, Options{LocalSize: 2}, quietLogger())
	mr.Close()
	ctx := context.Background()

	err := c.Set(ctx, "fp", sampleResult("id"))
	assert.Error(t, err)

	// local tier still serves
	got, ok := c.Get(ctx, "fp")
	require.True(t, ok)
	assert.Equal(t, "id", got.Metadata.ForecastID)

	_, ok = c.Get(ctx, "other")
	assert.False(t, ok)
	assert.Equal(t, int64(2), c.GetStats().Errors)
}

func TestForecastCache_LocalEviction(t *testing.T) {
	c := NewForecastCache(nil, Options{LocalSize: 2}, quietLogger())
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, sampleResult(k)))
	}
	assert.Equal(t, 2, c.LocalLen())
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestForecastCache_Clear(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewForecastCache(client, Options{LocalSize: 4}, quietLogger())
	ctx := context.Background()

	require.NoError(t, mr.Set("unrelated", "keep"))
	require.NoError(t, c.Set(ctx, "a", sampleResult("a")))
	require.NoError(t, c.Set(ctx, "b", sampleResult("b")))

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.LocalLen())
	assert.False(t, mr.Exists(defaultPrefix+"a"))
	assert.True(t, mr.Exists("unrelated"))

	// clearing an empty cache is fine
	require.NoError(t, c.Clear(ctx))
}

func TestForecastCache_NoTiers(t *testing.T) {
	c := NewForecastCache(nil, Options{}, nil)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "fp", sampleResult("id")))
	require.NoError(t, c.Set(ctx, "fp", nil))
	_, ok := c.Get(ctx, "fp")
	assert.False(t, ok)
	assert.NoError(t, c.Clear(ctx))
}

func TestForecastCache_LogsLookups(t *testing.T) {
	_, client := setupRedis(t)
	ops := &recordingOps{}
	c := NewForecastCache(client, Options{TTL: time.Minute, LocalSize: 8, Operations: ops}, quietLogger())
	ctx := context.Background()

	_, _ = c.Get(ctx, "fp-1")
	require.NoError(t, c.Set(ctx, "fp-1", sampleResult("id-1")))
	_, _ = c.Get(ctx, "fp-1")

	assert.Equal(t, []cacheOp{
		{operation: "get", key: "fp-1", hit: false},
		{operation: "get", key: "fp-1", hit: true},
	}, ops.ops)
}
