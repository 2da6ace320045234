package logging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OTLPLogger ships slog records to an OpenTelemetry collector
type OTLPLogger struct {
	logger   *slog.Logger
	provider *log.LoggerProvider
}

// OTLPConfig holds configuration for OpenTelemetry logging
type OTLPConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Environment    string
	LogLevel       string
}

// NewOTLPLogger creates a batching OTLP/HTTP log pipeline
func NewOTLPLogger(config OTLPConfig) (*OTLPLogger, error) {
	if !config.Enabled {
		return nil, fmt.Errorf("OTLP logging is disabled")
	}
	ctx := context.Background()

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(endpoint),
		otlploghttp.WithURLPath("/v1/logs"),
		otlploghttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(exporter)),
		log.WithResource(res),
	)

	handler := NewOTLPHandler(provider.Logger(config.ServiceName), getSlogLevel(config.LogLevel))
	return &OTLPLogger{
		logger:   slog.New(handler),
		provider: provider,
	}, nil
}

// Shutdown flushes and stops the provider
func (l *OTLPLogger) Shutdown(ctx context.Context) error {
	if l.provider == nil {
		return nil
	}
	return l.provider.Shutdown(ctx)
}

func (l *OTLPLogger) Logger() *slog.Logger {
	return l.logger
}

// OTLPHandler adapts slog to an OpenTelemetry logger. Attributes bound with
// With and groups opened with WithGroup are carried into every record, group
// names joined to keys with a dot.
type OTLPHandler struct {
	logger otellog.Logger
	level  slog.Leveler
	attrs  []otellog.KeyValue
	prefix string
}

func NewOTLPHandler(logger otellog.Logger, level slog.Leveler) *OTLPHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &OTLPHandler{logger: logger, level: level}
}

func (h *OTLPHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *OTLPHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := make([]otellog.KeyValue, 0, len(h.attrs)+record.NumAttrs())
	attrs = append(attrs, h.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		attrs = appendAttr(attrs, h.prefix, a)
		return true
	})

	var out otellog.Record
	out.SetTimestamp(record.Time)
	out.SetObservedTimestamp(time.Now())
	out.SetSeverity(convertSlogLevelToSeverity(record.Level))
	out.SetSeverityText(record.Level.String())
	out.SetBody(otellog.StringValue(record.Message))
	out.AddAttributes(attrs...)

	h.logger.Emit(ctx, out)
	return nil
}

func (h *OTLPHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := h.clone()
	for _, a := range attrs {
		next.attrs = appendAttr(next.attrs, h.prefix, a)
	}
	return next
}

func (h *OTLPHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.prefix = h.prefix + name + "."
	return next
}

func (h *OTLPHandler) clone() *OTLPHandler {
	attrs := make([]otellog.KeyValue, len(h.attrs))
	copy(attrs, h.attrs)
	return &OTLPHandler{logger: h.logger, level: h.level, attrs: attrs, prefix: h.prefix}
}

func appendAttr(dst []otellog.KeyValue, prefix string, a slog.Attr) []otellog.KeyValue {
	v := a.Value.Resolve()
	if a.Key == "" && v.Kind() != slog.KindGroup {
		return dst
	}
	key := prefix + a.Key

	switch v.Kind() {
	case slog.KindGroup:
		inner := prefix
		if a.Key != "" {
			inner = key + "."
		}
		for _, ga := range v.Group() {
			dst = appendAttr(dst, inner, ga)
		}
		return dst
	case slog.KindString:
		return append(dst, otellog.String(key, v.String()))
	case slog.KindInt64:
		return append(dst, otellog.Int64(key, v.Int64()))
	case slog.KindUint64:
		return append(dst, otellog.Int64(key, int64(v.Uint64())))
	case slog.KindFloat64:
		return append(dst, otellog.Float64(key, v.Float64()))
	case slog.KindBool:
		return append(dst, otellog.Bool(key, v.Bool()))
	case slog.KindDuration:
		return append(dst, otellog.Int64(key, v.Duration().Milliseconds()))
	default:
		return append(dst, otellog.String(key, v.String()))
	}
}

func convertSlogLevelToSeverity(level slog.Level) otellog.Severity {
	switch {
	case level >= slog.LevelError:
		return otellog.SeverityError
	case level >= slog.LevelWarn:
		return otellog.SeverityWarn
	case level >= slog.LevelInfo:
		return otellog.SeverityInfo
	default:
		return otellog.SeverityDebug
	}
}
