package obs

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 300

// PGXTracer is a pgx.QueryTracer emitting one client span per statement. Spans
// are named after the sqlc-style "-- name:" header when the query has one.
// A nil Tracer falls back to the global provider.
type PGXTracer struct {
	Tracer trace.Tracer
}

var _ pgx.QueryTracer = PGXTracer{}

// TraceQueryStart implements pgx.QueryTracer.
func (t PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	name, op := queryIdentity(data.SQL)
	spanName := "db.query"
	switch {
	case name != "":
		spanName = "db " + name
	case op != "":
		spanName = "db " + op
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", truncateSQL(data.SQL)),
	}
	if op != "" {
		attrs = append(attrs, attribute.String("db.operation", op))
	}
	if name != "" {
		attrs = append(attrs, attribute.String("db.query_name", name))
	}
	ctx, _ = t.tracer().Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
	return ctx
}

// TraceQueryEnd implements pgx.QueryTracer. pgx.ErrNoRows is an expected
// outcome and does not mark the span as failed.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
	} else {
		span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	}
	span.End()
}

func (t PGXTracer) tracer() trace.Tracer {
	if t.Tracer != nil {
		return t.Tracer
	}
	return otel.Tracer("toko-commerce/db")
}

// queryIdentity returns the "-- name: X :kind" label when present and the
// first SQL keyword after it.
func queryIdentity(sql string) (name, op string) {
	body := strings.TrimSpace(sql)
	if rest, ok := strings.CutPrefix(body, "-- name:"); ok {
		header, tail, _ := strings.Cut(rest, "\n")
		if fields := strings.Fields(header); len(fields) > 0 {
			name = fields[0]
		}
		body = strings.TrimSpace(tail)
	}
	if fields := strings.Fields(body); len(fields) > 0 {
		op = strings.ToUpper(fields[0])
	}
	return name, op
}

func truncateSQL(sql string) string {
	trimmed := strings.Join(strings.Fields(sql), " ")
	if len(trimmed) > maxStatementLen {
		return trimmed[:maxStatementLen] + "..."
	}
	return trimmed
}
