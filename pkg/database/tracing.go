package database

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/storefront/orderreview/pkg/database"

// QueryObserver is a pgx.QueryTracer that opens an OpenTelemetry span per
// query and logs statements slower than SlowThreshold.
type QueryObserver struct {
	tracer        trace.Tracer
	slowThreshold time.Duration
	logger        *slog.Logger
}

var _ pgx.QueryTracer = (*QueryObserver)(nil)

// NewQueryObserver returns an observer using the global tracer provider.
// A zero slowThreshold or nil logger disables slow-query logging.
func NewQueryObserver(slowThreshold time.Duration, logger *slog.Logger) *QueryObserver {
	return &QueryObserver{
		tracer:        otel.Tracer(tracerName),
		slowThreshold: slowThreshold,
		logger:        logger,
	}
}

type queryStartKey struct{}

type queryStart struct {
	at        time.Time
	operation string
	sql       string
	span      trace.Span
}

// TraceQueryStart implements pgx.QueryTracer.
func (o *QueryObserver) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := operationName(data.SQL)
	ctx, span := o.tracer.Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", op),
			attribute.String("db.statement", data.SQL),
		),
	)
	return context.WithValue(ctx, queryStartKey{}, &queryStart{
		at:        time.Now(),
		operation: op,
		sql:       data.SQL,
		span:      span,
	})
}

// TraceQueryEnd implements pgx.QueryTracer.
func (o *QueryObserver) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qs, ok := ctx.Value(queryStartKey{}).(*queryStart)
	if !ok {
		return
	}
	if data.Err != nil {
		qs.span.RecordError(data.Err)
		qs.span.SetStatus(codes.Error, data.Err.Error())
	} else {
		qs.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	}
	qs.span.End()

	if o.slowThreshold <= 0 || o.logger == nil {
		return
	}
	if elapsed := time.Since(qs.at); elapsed >= o.slowThreshold {
		attrs := []any{
			slog.String("operation", qs.operation),
			slog.String("statement", qs.sql),
			slog.Duration("duration", elapsed),
		}
		if data.Err != nil {
			attrs = append(attrs, slog.String("error", data.Err.Error()))
		}
		o.logger.WarnContext(ctx, "slow query detected", attrs...)
	}
}

// operationName returns the leading SQL keyword, upper-cased.
func operationName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "QUERY"
	}
	return strings.ToUpper(fields[0])
}
