package database

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"chatcore-backend/pkg/metrics"
)

type queryStartKey struct{}

type queryStart struct {
	at        time.Time
	operation string
}

// QueryTracer records every pgx query in the db_query_* metrics
type QueryTracer struct {
	metrics *metrics.Metrics
}

// NewQueryTracer creates a tracer reporting to m
func NewQueryTracer(m *metrics.Metrics) *QueryTracer {
	return &QueryTracer{metrics: m}
}

// TraceQueryStart implements pgx.QueryTracer
func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{
		at:        time.Now(),
		operation: sqlVerb(data.SQL),
	})
}

// TraceQueryEnd implements pgx.QueryTracer
func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	t.metrics.RecordDBQuery(start.operation, time.Since(start.at), data.Err)
}

// sqlVerb returns the first keyword of a statement in lower case, e.g. "select"
func sqlVerb(sql string) string {
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return strings.ToLower(strings.Fields(line)[0])
	}
	return "unknown"
}
