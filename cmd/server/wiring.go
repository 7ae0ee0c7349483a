package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/lifeline/internal/alertapi"
	vc "github.com/linnemanlabs/lifeline/internal/cfg"
	"github.com/linnemanlabs/lifeline/internal/lexicon"
	"github.com/linnemanlabs/lifeline/internal/ner/claude"
	"github.com/linnemanlabs/lifeline/internal/ner/hf"
	"github.com/linnemanlabs/lifeline/internal/notify/kafka"
	"github.com/linnemanlabs/lifeline/internal/notify/redis"
	"github.com/linnemanlabs/lifeline/internal/notify/slack"
	"github.com/linnemanlabs/lifeline/internal/notify/sns"
	"github.com/linnemanlabs/lifeline/internal/postgres"
	"github.com/linnemanlabs/lifeline/internal/registry/csvfile"
	"github.com/linnemanlabs/lifeline/internal/registry/pgregistry"
	"github.com/linnemanlabs/lifeline/internal/triage"
)

func loadLexicon(c *vc.Config) (*lexicon.Lexicon, error) {
	if c.LexiconFile == "" {
		return lexicon.Default(), nil
	}
	lex, err := lexicon.Load(c.LexiconFile)
	if err != nil {
		return nil, fmt.Errorf("lexicon: %w", err)
	}
	return lex, nil
}

func buildRecognizer(c *vc.Config) triage.Recognizer {
	switch c.NERBackend {
	case vc.NERHuggingFace:
		return hf.New(c.HFEndpoint, c.HFModel, c.HFAPIToken)
	case vc.NERClaude:
		return claude.New(c.ClaudeAPIKey, c.ClaudeModel, "")
	default:
		return triage.NopRecognizer{}
	}
}

// buildRegistry returns the configured registry. With the postgres backend
// the resources file, when set, is imported before serving.
func buildRegistry(ctx context.Context, c *vc.Config, pool *pgxpool.Pool, L log.Logger) (triage.Registry, error) {
	if c.RegistryBackend != vc.RegistryPostgres {
		return csvfile.New(c.ResourcesFile, L), nil
	}
	if pool == nil {
		return nil, fmt.Errorf("postgres registry needs a database connection")
	}
	reg, err := pgregistry.New(ctx, pool, L)
	if err != nil {
		return nil, fmt.Errorf("pgregistry init: %w", err)
	}
	if c.ResourcesFile != "" {
		rs, err := csvfile.Load(c.ResourcesFile)
		if err != nil {
			return nil, fmt.Errorf("load resources file: %w", err)
		}
		if err := reg.Import(ctx, rs); err != nil {
			return nil, err
		}
		L.Info(ctx, "imported resources", "count", len(rs), "path", c.ResourcesFile)
	}
	return reg, nil
}

// buildNotifiers returns every configured notifier and the closers of the
// ones holding connections.
func buildNotifiers(ctx context.Context, c *vc.Config, L log.Logger) ([]triage.Notifier, []io.Closer, error) {
	var (
		ns      []triage.Notifier
		closers []io.Closer
	)
	if c.SlackWebhookURL != "" {
		ns = append(ns, slack.New(c.SlackWebhookURL, L))
	}
	if brokers := c.Brokers(); len(brokers) > 0 {
		k := kafka.New(brokers, c.KafkaTopic, L)
		ns = append(ns, k)
		closers = append(closers, k)
	}
	if c.RedisAddr != "" {
		r := redis.New(c.RedisAddr, c.RedisChannel, L)
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := r.Ping(pctx)
		cancel()
		if err != nil {
			// pub/sub is best effort; the client reconnects on its own
			L.Warn(ctx, "redis not reachable at startup", "addr", c.RedisAddr, "error", err)
		}
		ns = append(ns, r)
		closers = append(closers, r)
	}
	if c.SNSTopicARN != "" {
		s, err := sns.New(ctx, c.AWSRegion, c.SNSTopicARN, L)
		if err != nil {
			return nil, closers, err
		}
		ns = append(ns, s)
	}
	for _, n := range ns {
		L.Info(ctx, "notifier enabled", "type", n.Name())
	}
	return ns, closers, nil
}

// newAPIHandler builds the main listener: chi router with the api routes and
// health checks, wrapped in the request middleware chain.
func newAPIHandler(L log.Logger, api *alertapi.API, m *metrics.ServerMetrics, liveness, readiness health.Probe, trustedHops int) http.Handler {
	r := chi.NewRouter()

	// Compress JSON responses; websocket upgrades pass through untouched
	r.Use(middleware.Compress(5, "application/json"))

	// Annotate logger (and tracer if trace is recording) with http.route from chi route pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	// Stash HTTP method and a per-request query tally in context; report the tally once served.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := postgres.NewReqDBStatsContext(postgres.WithHTTPMethod(req.Context(), req.Method))
			next.ServeHTTP(w, req.WithContext(ctx))
			if s, ok := postgres.ReqDBStatsFromContext(ctx); ok && s.QueryCount > 0 {
				L.Info(ctx, "request db stats",
					"queries", s.QueryCount,
					"db_ms", s.TotalDuration.Milliseconds(),
					"db_errors", s.ErrorCount,
				)
			}
		})
	})

	// Access log middleware
	r.Use(httpmw.AccessLog())

	// Limit request body size, this is a wrapper around http.MaxBytesHandler which returns 413 if limit is exceeded
	r.Use(httpmw.MaxBody(1024 * 64)) // messages are SMS-sized, 64KB is generous

	r.Get("/-/healthy", health.HealthzHandler(liveness))
	r.Get("/-/ready", health.ReadyzHandler(readiness))

	api.RegisterRoutes(r)

	// middleware stack for main listener, order matters these are wrappers, outermost sees raw request
	// first and is last to see response, innermost is last to see request and first to see response
	var h http.Handler = r

	// Request-scoped logging (inner so it sees trace_id, chi route, etc)
	h = httpmw.WithLogger(L)(h)

	// add trace-id and span-id headers to any requests with a recording trace
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	// otel instrumentation for automatic spans and trace context propagation
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		// AnnotateHTTPRoute will rename the span later to the final route pattern
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)

	// Prometheus request metrics, skipped for websocket upgrades
	h = instrument(m, h)

	// Client IP resolution, outer so downstream middleware and handlers see the resolved ip
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{TrustedHops: trustedHops})(h)

	// Request ID (outer so everything downstream sees it)
	h = httpmw.RequestID("X-Request-Id")(h)

	// Recover panics from anything downstream and serve 500
	h = httpmw.Recover(L, m.IncHttpPanic)(h)

	// Security headers outermost to ensure they are served on every response
	return httpmw.SecurityHeaders(h)
}

// instrument wraps next in the request metrics middleware. Its response
// writer cannot be hijacked, so websocket upgrades bypass it.
func instrument(m *metrics.ServerMetrics, next http.Handler) http.Handler {
	measured := m.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		measured.ServeHTTP(w, r)
	})
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		headerHasToken(r.Header, "Connection", "upgrade")
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}
	return false
}
