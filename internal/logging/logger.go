package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the structured application logger used by the HTTP layer and process lifecycle.
// Domain packages receive a *logrus.Logger instead; see NewLogrus.
type Logger interface {
	WithComponent(componentName string) *slog.Logger
	WithOperation(operationName string) *slog.Logger
	WithRequestID(requestID string) *slog.Logger
	WithClient(clientID string) *slog.Logger
	WithForecast(forecastID string) *slog.Logger
	WithMethod(method string) *slog.Logger
	WithError(err error) *slog.Logger
	LogStartup(serviceName string, version string, port int)
	LogShutdown(serviceName string, reason string)
	LogCacheOperation(operation string, key string, hit bool, duration int64)
	LogDatabaseOperation(operation string, table string, duration int64, rowsAffected int64)
	LogAPIRequest(method string, path string, statusCode int, duration int64, clientID string)
	LogForecast(event ForecastEvent)
	Logger() *slog.Logger
}

// ForecastEvent summarises one completed forecast for the audit log
type ForecastEvent struct {
	ClientID   string
	ForecastID string
	Horizon    int
	DataPoints int
	Methods    []string
	Failed     []string
	Accuracy   string
	Cached     bool
	DurationMs int64
}

// StandardLogger writes JSON to stdout or, when configured, OTLP log records
type StandardLogger struct {
	logger   *slog.Logger
	shutdown func(context.Context) error
}

var _ Logger = (*StandardLogger)(nil)

// NewStandardLogger creates a JSON logger on stdout
func NewStandardLogger(logLevel string, environment string) *StandardLogger {
	return NewStandardLoggerWithWriter(os.Stdout, logLevel, environment)
}

// NewStandardLoggerWithWriter is NewStandardLogger with an explicit destination
func NewStandardLoggerWithWriter(w io.Writer, logLevel string, environment string) *StandardLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: getSlogLevel(logLevel)})
	logger := slog.New(handler)
	if environment != "" {
		logger = logger.With("environment", environment)
	}
	return &StandardLogger{logger: logger, shutdown: noopShutdown}
}

// NewStandardOTLPLogger exports through OTLP and falls back to stdout JSON
// when the exporter cannot be created or is disabled.
func NewStandardOTLPLogger(config OTLPConfig) *StandardLogger {
	if !config.Enabled {
		return NewStandardLogger(config.LogLevel, config.Environment)
	}
	otlp, err := NewOTLPLogger(config)
	if err != nil {
		fallback := NewStandardLogger(config.LogLevel, config.Environment)
		fallback.logger.Warn("OTLP log exporter unavailable, using stdout", "error", err.Error())
		return fallback
	}
	return &StandardLogger{logger: otlp.Logger(), shutdown: otlp.Shutdown}
}

// NewLogrus builds the logrus logger injected into the engine, services and repositories
func NewLogrus(logLevel string, environment string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(ParseLogrusLevel(logLevel))
	if environment != "" {
		logger.AddHook(environmentHook(environment))
	}
	return logger
}

// Shutdown flushes pending OTLP records
func (l *StandardLogger) Shutdown(ctx context.Context) error {
	return l.shutdown(ctx)
}

func (l *StandardLogger) WithComponent(componentName string) *slog.Logger {
	return l.logger.With("component", componentName)
}

func (l *StandardLogger) WithOperation(operationName string) *slog.Logger {
	return l.logger.With("operation", operationName)
}

func (l *StandardLogger) WithRequestID(requestID string) *slog.Logger {
	return l.logger.With("request_id", requestID)
}

func (l *StandardLogger) WithClient(clientID string) *slog.Logger {
	return l.logger.With("client_id", clientID)
}

func (l *StandardLogger) WithForecast(forecastID string) *slog.Logger {
	return l.logger.With("forecast_id", forecastID)
}

func (l *StandardLogger) WithMethod(method string) *slog.Logger {
	return l.logger.With("forecast_method", method)
}

// WithError tolerates a nil error so callers can pass results through unchecked
func (l *StandardLogger) WithError(err error) *slog.Logger {
	if err == nil {
		return l.logger
	}
	return l.logger.With("error", err.Error())
}

// LogStartup logs application startup information
func (l *StandardLogger) LogStartup(serviceName string, version string, port int) {
	l.logger.Info("Service starting",
		"event", "startup",
		"service", serviceName,
		"version", version,
		"port", port,
	)
}

// LogShutdown logs application shutdown information
func (l *StandardLogger) LogShutdown(serviceName string, reason string) {
	l.logger.Info("Service shutting down",
		"event", "shutdown",
		"service", serviceName,
		"reason", reason,
	)
}

func (l *StandardLogger) LogCacheOperation(operation string, key string, hit bool, duration int64) {
	l.logger.Debug("Cache operation",
		"event", "cache_operation",
		"operation", operation,
		"key", key,
		"hit", hit,
		"duration_ms", duration,
	)
}

func (l *StandardLogger) LogDatabaseOperation(operation string, table string, duration int64, rowsAffected int64) {
	l.logger.Debug("Database operation",
		"event", "database_operation",
		"operation", operation,
		"table", table,
		"duration_ms", duration,
		"rows_affected", rowsAffected,
	)
}

// LogAPIRequest logs one served request; server errors are raised to warn
func (l *StandardLogger) LogAPIRequest(method string, path string, statusCode int, duration int64, clientID string) {
	level := slog.LevelInfo
	if statusCode >= 500 {
		level = slog.LevelWarn
	}
	l.logger.Log(context.Background(), level, "API request",
		"event", "api_request",
		"method", method,
		"path", path,
		"status_code", statusCode,
		"duration_ms", duration,
		"client_id", clientID,
	)
}

// LogForecast writes the audit entry and one warning per excluded method
func (l *StandardLogger) LogForecast(event ForecastEvent) {
	l.WithForecast(event.ForecastID).Info("Forecast generated",
		"event", "forecast",
		"client_id", event.ClientID,
		"horizon", event.Horizon,
		"data_points", event.DataPoints,
		"methods", event.Methods,
		"failed_methods", event.Failed,
		"accuracy", event.Accuracy,
		"cached", event.Cached,
		"duration_ms", event.DurationMs,
	)
	for _, method := range event.Failed {
		l.WithMethod(method).Warn("Forecast method excluded",
			"event", "forecast_method_failed",
			"forecast_id", event.ForecastID,
			"client_id", event.ClientID,
		)
	}
}

// Logger returns the underlying *slog.Logger
func (l *StandardLogger) Logger() *slog.Logger {
	return l.logger
}

func noopShutdown(context.Context) error { return nil }

// environmentHook stamps every logrus entry with the deployment environment
type environmentHook string

func (h environmentHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h environmentHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["environment"]; !ok {
		entry.Data["environment"] = string(h)
	}
	return nil
}

func getSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}
