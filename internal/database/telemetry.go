package database

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/costcast/internal/logging"
)

const tracerName = "github.com/irfndi/costcast/internal/database"

// TracedDB wraps a DatabasePool with a client span and a database log line per statement
type TracedDB struct {
	pool   DatabasePool
	tracer trace.Tracer
	logger logging.Logger
}

var _ DatabasePool = (*TracedDB)(nil)

// NewTracedDB wraps pool; logger may be nil
func NewTracedDB(pool DatabasePool, logger logging.Logger) *TracedDB {
	return &TracedDB{pool: pool, tracer: otel.Tracer(tracerName), logger: logger}
}

// statementInfo returns the leading SQL verb and, when recognisable, the target table
func statementInfo(sql string) (op, table string) {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN", ""
	}
	op = strings.ToUpper(fields[0])
	marker := map[string]string{"SELECT": "FROM", "INSERT": "INTO", "UPDATE": "UPDATE", "DELETE": "FROM"}[op]
	for i, f := range fields[:len(fields)-1] {
		if strings.EqualFold(f, marker) {
			return op, strings.Trim(fields[i+1], `"(;`)
		}
	}
	return op, ""
}

func (db *TracedDB) start(ctx context.Context, sql string) (context.Context, trace.Span, string, string) {
	op, table := statementInfo(sql)
	ctx, span := db.tracer.Start(ctx, "db."+strings.ToLower(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", op),
			attribute.String("db.sql.table", table),
		),
	)
	return ctx, span, op, table
}

func (db *TracedDB) finish(span trace.Span, op, table string, started time.Time, rows int64, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	if db.logger == nil {
		return
	}
	db.logger.LogDatabaseOperation(op, table, time.Since(started).Milliseconds(), rows)
	if err != nil {
		db.logger.WithOperation(op).Warn("Database statement failed", "table", table, "error", err.Error())
	}
}

func (db *TracedDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	started := time.Now()
	ctx, span, op, table := db.start(ctx, sql)
	rows, err := db.pool.Query(ctx, sql, args...)
	db.finish(span, op, table, started, -1, err)
	return rows, err
}

func (db *TracedDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	started := time.Now()
	ctx, span, op, table := db.start(ctx, sql)
	row := db.pool.QueryRow(ctx, sql, args...)
	db.finish(span, op, table, started, -1, nil)
	return row
}

func (db *TracedDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	started := time.Now()
	ctx, span, op, table := db.start(ctx, sql)
	tag, err := db.pool.Exec(ctx, sql, args...)
	db.finish(span, op, table, started, tag.RowsAffected(), err)
	return tag, err
}

// Begin is traced as a single span; statements inside the transaction are not
func (db *TracedDB) Begin(ctx context.Context) (pgx.Tx, error) {
	started := time.Now()
	ctx, span := db.tracer.Start(ctx, "db.begin", trace.WithSpanKind(trace.SpanKindClient))
	tx, err := db.pool.Begin(ctx)
	db.finish(span, "BEGIN", "", started, 0, err)
	return tx, err
}
