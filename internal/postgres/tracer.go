// Package postgres builds pgx connection pools instrumented with OpenTelemetry
// spans, a structured log line per query and an optional per-query metrics
// observer.
package postgres

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

const modulePrefix = "github.com/linnemanlabs/lifeline/internal/postgres."

var queryObserver atomic.Pointer[observerBox]

type observerBox struct{ QueryObserver }

type (
	queryMetaKey  struct{}
	httpMethodKey struct{}
	dbStatsKey    struct{}
)

// queryMeta is carried from TraceQueryStart to TraceQueryEnd.
type queryMeta struct {
	sql     string
	args    []any
	start   time.Time
	caller  string
	handler string
}

// QueryObserver receives per-query timings (wired by main for Prometheus).
type QueryObserver interface {
	ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, method, route, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration) {
	f(ctx, method, route, outcome, dur)
}

// SetQueryObserver installs the process-wide query observer. nil removes it.
func SetQueryObserver(o QueryObserver) {
	if o == nil {
		queryObserver.Store(nil)
		return
	}
	queryObserver.Store(&observerBox{QueryObserver: o})
}

func currentObserver() QueryObserver {
	if b := queryObserver.Load(); b != nil {
		return b.QueryObserver
	}
	return nil
}

// ReqDBStats accumulates database statistics for one request.
type ReqDBStats struct {
	mu            sync.Mutex
	QueryCount    int
	TotalDuration time.Duration
	ErrorCount    int
}

// AddQuery records a single query execution.
func (s *ReqDBStats) AddQuery(dur time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueryCount++
	s.TotalDuration += dur
	if err != nil {
		s.ErrorCount++
	}
}

// NewReqDBStatsContext returns ctx carrying an empty ReqDBStats.
func NewReqDBStatsContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, dbStatsKey{}, &ReqDBStats{})
}

// ReqDBStatsFromContext returns the ReqDBStats attached to ctx, if any.
func ReqDBStatsFromContext(ctx context.Context) (*ReqDBStats, bool) {
	s, ok := ctx.Value(dbStatsKey{}).(*ReqDBStats)
	return s, ok
}

// WithHTTPMethod stores the HTTP method in ctx for query metrics labelling.
func WithHTTPMethod(ctx context.Context, method string) context.Context {
	if method == "" {
		return ctx
	}
	return context.WithValue(ctx, httpMethodKey{}, method)
}

func httpMethodFromContext(ctx context.Context) string {
	m, _ := ctx.Value(httpMethodKey{}).(string)
	return m
}

func routeFromContext(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// queryTracer decorates another pgx.QueryTracer (otelpgx in production) with
// stats, metrics and a log line per query.
type queryTracer struct {
	inner pgx.QueryTracer
}

func newQueryTracer(inner pgx.QueryTracer) pgx.QueryTracer {
	return queryTracer{inner: inner}
}

func (t queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	meta := &queryMeta{sql: data.SQL, args: data.Args, start: time.Now()}
	meta.caller, meta.handler = callerAndHandler()

	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		if meta.caller != "" {
			span.SetAttributes(attribute.String("db.caller", meta.caller))
		}
		if meta.handler != "" {
			span.SetAttributes(attribute.String("db.handler", meta.handler))
		}
	}

	return context.WithValue(ctx, queryMetaKey{}, meta)
}

func (t queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	meta, _ := ctx.Value(queryMetaKey{}).(*queryMeta)
	if meta == nil {
		meta = &queryMeta{}
	}
	var dur time.Duration
	if !meta.start.IsZero() {
		dur = time.Since(meta.start)
	}

	if s, ok := ReqDBStatsFromContext(ctx); ok {
		s.AddQuery(dur, data.Err)
	}
	observe(ctx, dur, data.Err)

	fields := []any{
		"db.statement", meta.sql,
		"db.args", meta.args,
		"db.duration", dur.Seconds(),
	}
	if tag := strings.TrimSpace(data.CommandTag.String()); tag != "" {
		if op, _, _ := strings.Cut(tag, " "); op != "" {
			fields = append(fields, "db.operation.name", strings.ToUpper(op))
		}
		fields = append(fields, "pg.command_tag", tag, "db.rows", data.CommandTag.RowsAffected())
	}
	if meta.caller != "" {
		fields = append(fields, "db.caller", meta.caller)
	}
	if meta.handler != "" {
		fields = append(fields, "db.handler", meta.handler)
	}

	L := log.FromContext(ctx)
	if data.Err == nil {
		L.Info(ctx, "db query", fields...)
		return
	}
	var pgErr *pgconn.PgError
	if errors.As(data.Err, &pgErr) {
		fields = append(fields, "db.error_code", pgErr.Code, "db.error_constraint", pgErr.ConstraintName)
	}
	L.Error(ctx, data.Err, "db query failed", fields...)
}

func observe(ctx context.Context, dur time.Duration, err error) {
	obs := currentObserver()
	if obs == nil || dur <= 0 {
		return
	}
	method := httpMethodFromContext(ctx)
	if method == "" {
		method = "UNKNOWN"
	}
	route := routeFromContext(ctx)
	if route == "" {
		route = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	obs.ObserveQuery(ctx, method, route, outcome, dur)
}

// callerAndHandler walks the stack for the function issuing the query and
// the first frame above it outside this package.
func callerAndHandler() (caller, handler string) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		fr, more := frames.Next()
		fn := fr.Function
		skip := strings.HasPrefix(fn, "runtime.") ||
			strings.Contains(fn, "github.com/jackc/pgx/v5") ||
			strings.Contains(fn, "github.com/exaring/otelpgx") ||
			strings.Contains(fn, "queryTracer.TraceQuery")
		switch {
		case skip:
		case caller == "":
			caller = shortFuncName(fn)
		case !strings.HasPrefix(fn, modulePrefix):
			return caller, shortFuncName(fn)
		}
		if !more {
			return caller, handler
		}
	}
}

// shortFuncName trims the import path and package name, keeping receiver and method.
func shortFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 && i+1 < len(fn) {
		fn = fn[i+1:]
	}
	if dot := strings.Index(fn, "."); dot >= 0 && dot+1 < len(fn) {
		fn = fn[dot+1:]
	}
	return fn
}
