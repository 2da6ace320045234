package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/irfndi/costcast/internal/forecast"
	"github.com/irfndi/costcast/internal/models"
)

const namespace = "costcast"

// Collector holds the service's Prometheus metrics on a private registry.
// It implements forecast.Recorder.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	ForecastTotal   *prometheus.CounterVec
	ForecastSeconds prometheus.Histogram
	MethodSeconds   *prometheus.HistogramVec
	MethodFailures  *prometheus.CounterVec
	DataPoints      prometheus.Histogram
	CacheLookups    *prometheus.CounterVec
	BudgetStatus    *prometheus.CounterVec
	IngestedPoints  prometheus.Counter
}

var _ forecast.Recorder = (*Collector)(nil)

// NewCollector creates the metrics and registers them together with the Go and process collectors
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served, by route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ForecastTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecasts_total",
				Help:      "Forecast results produced, by accuracy assessment",
			},
			[]string{"accuracy"},
		),
		ForecastSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_duration_seconds",
			Help:      "End-to-end forecast generation time",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		MethodSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "forecast_method_duration_seconds",
				Help:      "Time spent in each forecasting method",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"method", "result"},
		),
		MethodFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecast_method_failures_total",
				Help:      "Forecasting method failures excluded from the ensemble",
			},
			[]string{"method", "reason"},
		),
		DataPoints: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_history_points",
			Help:      "Historical data points used per forecast",
			Buckets:   []float64{0, 7, 14, 30, 60, 90, 180, 365},
		}),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecast_cache_lookups_total",
				Help:      "Forecast cache lookups, by tier and result",
			},
			[]string{"tier", "result"},
		),
		BudgetStatus: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_evaluations_total",
				Help:      "Budget evaluations, by status",
			},
			[]string{"status"},
		),
		IngestedPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_cost_points_total",
			Help:      "Daily cost points written to storage",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.HTTPRequests,
		c.HTTPDuration,
		c.ForecastTotal,
		c.ForecastSeconds,
		c.MethodSeconds,
		c.MethodFailures,
		c.DataPoints,
		c.CacheLookups,
		c.BudgetStatus,
		c.IngestedPoints,
	)
	return c
}

// Registry exposes the underlying registry for custom collectors
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the exposition format for this collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveMethod records one forecasting method run
func (c *Collector) ObserveMethod(method models.ForecastMethod, elapsed time.Duration, failure *forecast.Failure) {
	result := "ok"
	if failure != nil {
		result = "failed"
		c.MethodFailures.WithLabelValues(string(method), string(failure.Reason)).Inc()
	}
	c.MethodSeconds.WithLabelValues(string(method), result).Observe(elapsed.Seconds())
}

// ObserveResult records a completed forecast
func (c *Collector) ObserveResult(result *models.ForecastResult) {
	if result == nil {
		return
	}
	c.ForecastTotal.WithLabelValues(string(result.AccuracyAssessment)).Inc()
	c.DataPoints.Observe(float64(result.Metadata.DataPointsUsed))
}

// ObserveForecastDuration records end-to-end latency including cache and storage
func (c *Collector) ObserveForecastDuration(d time.Duration) {
	c.ForecastSeconds.Observe(d.Seconds())
}

// ObserveHTTP records a served request; route is the gin route template
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveCache records a lookup against tier "local" or "redis"
func (c *Collector) ObserveCache(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheLookups.WithLabelValues(tier, result).Inc()
}

func (c *Collector) ObserveBudget(status models.BudgetStatus) {
	c.BudgetStatus.WithLabelValues(string(status)).Inc()
}

func (c *Collector) ObserveIngest(points int64) {
	c.IngestedPoints.Add(float64(points))
}
