package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/costcast/internal/models"
)

// BusinessTracer opens spans around service-level forecasting operations.
type BusinessTracer struct {
	tracer trace.Tracer
}

// NewBusinessTracer uses the global business tracer unless one is supplied.
func NewBusinessTracer(tracer trace.Tracer) *BusinessTracer {
	if tracer == nil {
		tracer = GetBusinessTracer()
	}
	return &BusinessTracer{tracer: tracer}
}

// TraceForecast starts a span for one forecast request. clientID is empty for ad-hoc requests.
func (bt *BusinessTracer) TraceForecast(ctx context.Context, clientID string, points, horizon int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.Int("forecast.data_points", points),
		attribute.Int("forecast.horizon_requested", horizon),
	}
	if clientID != "" {
		attrs = append(attrs, attribute.String("client.id", clientID))
	}
	return bt.tracer.Start(ctx, "forecast.request", trace.WithAttributes(attrs...))
}

// RecordForecastResult annotates span with the outcome of a forecast
func (bt *BusinessTracer) RecordForecastResult(span trace.Span, result *models.ForecastResult, cached bool) {
	if result == nil {
		return
	}
	methods := make([]string, len(result.Metadata.MethodsUsed))
	for i, m := range result.Metadata.MethodsUsed {
		methods[i] = string(m)
	}
	span.SetAttributes(
		attribute.String("forecast.id", result.Metadata.ForecastID),
		attribute.Int("forecast.horizon", result.Metadata.Horizon),
		attribute.StringSlice("forecast.methods", methods),
		attribute.Int("forecast.failed_methods", len(result.Metadata.FailedMethods)),
		attribute.String("forecast.accuracy", string(result.AccuracyAssessment)),
		attribute.Float64("forecast.total", result.TotalForecast.Amount),
		attribute.Bool("forecast.cached", cached),
	)
}

// TraceIngest starts a span for storing a batch of daily costs
func (bt *BusinessTracer) TraceIngest(ctx context.Context, clientID string, points int) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "costs.ingest", trace.WithAttributes(
		attribute.String("client.id", clientID),
		attribute.Int("costs.points", points),
	))
}

// RecordBudget annotates span with a budget evaluation
func (bt *BusinessTracer) RecordBudget(span trace.Span, eval *models.BudgetEvaluation) {
	if eval == nil {
		return
	}
	utilization, _ := eval.Utilization.Float64()
	span.SetAttributes(
		attribute.String("budget.status", string(eval.Status)),
		attribute.Float64("budget.utilization", utilization),
	)
}

// RecordError marks span as failed
func RecordError(span trace.Span, err error) {
	if err == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
