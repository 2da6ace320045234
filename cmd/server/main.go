package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/costcast/internal/api"
	"github.com/irfndi/costcast/internal/api/handlers"
	"github.com/irfndi/costcast/internal/cache"
	"github.com/irfndi/costcast/internal/config"
	"github.com/irfndi/costcast/internal/database"
	"github.com/irfndi/costcast/internal/forecast"
	"github.com/irfndi/costcast/internal/logging"
	"github.com/irfndi/costcast/internal/metrics"
	"github.com/irfndi/costcast/internal/middleware"
	"github.com/irfndi/costcast/internal/services"
	"github.com/irfndi/costcast/internal/telemetry"
	"github.com/irfndi/costcast/pkg/aiforecast"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	version := serviceVersion(cfg)

	logger := logging.NewLogrus(cfg.LogLevel, cfg.Environment)
	appLogger := logging.NewStandardOTLPLogger(logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})

	ctx := context.Background()
	tracing, err := telemetry.Init(ctx, telemetryConfig(cfg, version))
	if err != nil {
		logger.WithError(err).Warn("Tracing disabled")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to shutdown tracing")
		}
		if err := appLogger.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to shutdown log exporter")
		}
	}()

	db, err := database.NewPostgresConnection(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to prepare schema: %w", err)
	}

	var redisClient *database.RedisClient
	if cfg.Cache.Enabled {
		redisClient, err = database.NewRedisConnection(ctx, cfg.Redis, logger)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, caching in process only")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	collector := metrics.NewCollector()
	engine, aiClient := buildEngine(cfg, logger, collector)
	pool := database.NewTracedDB(db.Pool, appLogger)
	repo := database.NewCostRepository(pool, cfg.Budget.Currency, logger)

	opts := []services.ServiceOption{
		services.WithMetrics(collector),
		services.WithEventLogger(appLogger),
	}
	deps := api.Dependencies{
		DB:      db,
		Metrics: collector.Handler(),
		APIKey:  cfg.Server.IngestAPIKey,
		Version: version,
	}
	if cfg.Cache.Enabled {
		var rc *redis.Client
		if redisClient != nil {
			rc = redisClient.Client
			deps.Redis = redisClient
		}
		forecastCache := cache.NewForecastCache(rc, cache.Options{
			TTL:        cfg.Cache.TTL,
			LocalSize:  cfg.Cache.LocalSize,
			Observer:   collector,
			Operations: appLogger,
		}, logger)
		opts = append(opts, services.WithCache(forecastCache))
		deps.Cache = forecastCache
	}
	if aiClient != nil {
		deps.AI = handlers.HealthCheckFunc(aiClient.Ping)
	}

	deps.Forecasts = services.NewForecastService(engine, repo,
		services.NewBudgetEvaluator(cfg.Budget),
		cfg.Forecast.DefaultLookbackDays, logger, opts...)

	if cfg.Retention.Enabled {
		cleanup := services.NewCleanupService(pool, cfg.Retention, logger)
		cleanup.Start(ctx)
		defer cleanup.Stop()
		appLogger.WithComponent("retention").Info("Retention cleanup scheduled",
			"interval", cfg.Retention.Interval.String(),
			"forecast_days", cfg.Retention.ForecastDays,
			"cost_days", cfg.Retention.CostDays,
		)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := setupRouter(cfg, deps, appLogger, collector)
	srv := newHTTPServer(cfg.Server, router)

	serverErr := make(chan error, 1)
	go func() {
		appLogger.LogStartup(cfg.Telemetry.ServiceName, version, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		appLogger.LogShutdown(cfg.Telemetry.ServiceName, "signal received: "+sig.String())
	case err := <-serverErr:
		appLogger.WithComponent("http").Error("HTTP server stopped unexpectedly", "error", err.Error())
		return fmt.Errorf("server failed: %w", err)
	}

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

func serviceVersion(cfg *config.Config) string {
	if cfg.Telemetry.ServiceVersion != "" {
		return cfg.Telemetry.ServiceVersion
	}
	return telemetry.ServiceVersion
}

func telemetryConfig(cfg *config.Config, version string) telemetry.Config {
	return telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}
}

// buildEngine registers the AI forecaster only when the AI section is enabled
func buildEngine(cfg *config.Config, logger *logrus.Logger, recorder forecast.Recorder) (*forecast.Engine, *aiforecast.Client) {
	opts := []forecast.Option{
		forecast.WithRecorder(recorder),
		forecast.WithTracer(telemetry.GetBusinessTracer()),
	}

	var client *aiforecast.Client
	if cfg.AI.Enabled {
		client = aiforecast.NewClient(cfg.AI)
		opts = append(opts, forecast.WithForecaster(
			forecast.NewAIForecaster(client, cfg.AI.ForecasterConfig(), logger),
		))
	}
	return forecast.NewEngine(cfg.Forecast.EngineConfig(), logger, opts...), client
}

func setupRouter(cfg *config.Config, deps api.Dependencies, appLogger logging.Logger, observer middleware.HTTPObserver) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(middleware.RequestID())
	router.Use(middleware.SpanEnricher())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RequestLogger(appLogger, observer))

	api.SetupRoutes(router, deps)
	return router
}

// newHTTPServer applies the configured read/write timeouts; zero values fall back to 10s
func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}
}
