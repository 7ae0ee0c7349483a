// Lifeline triages emergency messages into needs, urgency and resource
// matches, and pushes alerts to dispatchers.
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/prof"

	"github.com/linnemanlabs/go-core/health"

	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/otelx"
	v "github.com/linnemanlabs/go-core/version"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/linnemanlabs/lifeline/internal/alertapi"
	vc "github.com/linnemanlabs/lifeline/internal/cfg"
	"github.com/linnemanlabs/lifeline/internal/fanout"
	"github.com/linnemanlabs/lifeline/internal/postgres"
	"github.com/linnemanlabs/lifeline/internal/replay"
	"github.com/linnemanlabs/lifeline/internal/triage"
	"github.com/linnemanlabs/lifeline/internal/triage/memstore"
	"github.com/linnemanlabs/lifeline/internal/triage/pgstore"
)

const appName = "lifeline"
const component = "server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set app name and component
	v.AppName = appName
	v.Component = component

	// Get build/version info
	vi := v.Get()

	// each package registers its own flags and options struct
	var (
		appCfg    vc.Config
		httpCfg   httpserver.Config
		httpmwCfg httpmw.Config
		logCfg    log.Config
		opsCfg    opshttp.Config
		profCfg   prof.Config
		traceCfg  otelx.Config
	)

	// register flags for each package, which will be parsed into the shared config struct
	appCfg.RegisterFlags(flag.CommandLine)
	httpCfg.RegisterFlags(flag.CommandLine)
	httpmwCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	opsCfg.RegisterFlags(flag.CommandLine)
	profCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	// parse flags to get config values from cmdline, we check env vars next which do not override cmdline flags
	flag.Parse()
	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	// Fill in config values from environment variables with prefix LIFELINE_,
	// these do not override cmdline flags
	cfg.FillFromEnv(flag.CommandLine, "LIFELINE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		httpCfg.Validate(),
		httpmwCfg.Validate(),
		logCfg.Validate(),
		opsCfg.Validate(),
		profCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// cross-cutting checks that only main can validate
	if appCfg.APIPort == opsCfg.Port {
		return fmt.Errorf("http and admin ports must differ (both %d)", appCfg.APIPort)
	}

	// initialize logger early
	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer func() { _ = lg.Sync() }()

	// create a logger with component field pre-filled for structured logging in this package
	L := lg.With("component", vi.Component)

	// add logger to context
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", appCfg.APIPort,
		"admin_port", opsCfg.Port,
		"enable_pprof", opsCfg.EnablePprof,
		"enable_pyroscope", profCfg.EnablePyroscope,
		"enable_tracing", traceCfg.EnableTracing,
		"trace_sample", traceCfg.TraceSample,
		"trace_insecure", traceCfg.Insecure,
		"otlp_endpoint", traceCfg.OTLPEndpoint,
		"pyro_server", profCfg.PyroServer,
		"pyro_tenant", profCfg.PyroTenantID,
		"include_error_links", logCfg.IncludeErrorLinks,
		"max_error_links", logCfg.MaxErrorLinks,
		"trusted_proxy_hops", httpmwCfg.TrustedProxyHops,
		"registry_backend", appCfg.RegistryBackend,
		"ner_backend", appCfg.NERBackend,
		"replay_file", appCfg.ReplayFile,
	)

	// Setup pyroscope profiling early so we get profiles from the entire app lifetime
	profOpts := profCfg.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
		"source":    "lmlabs-go-agent",
	}
	// Start profiling, returns a stop function to call for clean shutdown (flush buffers, etc)
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", profCfg.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	// Setup otel for tracing
	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version

	// Start otel, returns a shutdown function to call for clean shutdown (flush buffers, etc)
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx != nil {
		defer func() { _ = shutdownOtelx(context.Background()) }()
	}

	// Setup metrics, we use our own metrics package for internal instrumentation
	var m = metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)
	m.SetProfilingActive(profErr == nil && profCfg.EnablePyroscope)

	// Wrap the tracer provider so spans carry pyroscope profile IDs
	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(otel.GetTracerProvider()))

	lex, err := loadLexicon(&appCfg)
	if err != nil {
		return err
	}
	L.Info(ctx, "lexicon loaded",
		"source", cmp.Or(appCfg.LexiconFile, "built-in"),
		"needs", len(lex.Needs()),
		"urgency_rules", len(lex.Urgency()),
		"alert_threshold", lex.AlertThreshold(),
	)

	// Postgres backs the verdict store and optionally the resource registry
	var pool *pgxpool.Pool
	if appCfg.DatabaseURL != "" {
		pool, err = postgres.NewPool(ctx, appCfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		defer pool.Close()
	}

	var verdictStore triage.Store
	if pool != nil {
		pgStore, err := pgstore.New(ctx, pool)
		if err != nil {
			return fmt.Errorf("pgstore init: %w", err)
		}
		verdictStore = pgStore
		L.Info(ctx, "using postgres verdict store")
	} else {
		verdictStore = memstore.New(appCfg.MemstoreCapacity)
		L.Info(ctx, "using in-memory verdict store (no database-url configured)", "capacity", appCfg.MemstoreCapacity)
	}

	registry, err := buildRegistry(ctx, &appCfg, pool, L)
	if err != nil {
		return err
	}
	L.Info(ctx, "resource registry ready", "backend", appCfg.RegistryBackend)

	recognizer := buildRecognizer(&appCfg)
	L.Info(ctx, "entity recognition configured", "backend", appCfg.NERBackend, "timeout_ms", appCfg.NERTimeoutMS)

	triageMetrics := triage.NewMetrics(m.Registry())

	// Register per-query DB duration histogram and wire the observer.
	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lifeline_db_query_duration_seconds",
		Help:    "Duration of individual database queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "outcome"})
	m.Registry().MustRegister(dbQueryDuration)

	postgres.SetQueryObserver(postgres.QueryObserverFunc(
		func(_ context.Context, method, route, outcome string, dur time.Duration) {
			dbQueryDuration.WithLabelValues(method, route, outcome).Observe(dur.Seconds())
		},
	))

	engine := triage.NewEngine(lex, recognizer, registry, L, triageMetrics.Hooks(),
		triage.WithNERTimeout(time.Duration(appCfg.NERTimeoutMS)*time.Millisecond),
	)

	// Live alert listeners; the hub is shared by the stream route and the broadcaster
	hub := fanout.NewHub()
	fanoutMetrics := fanout.NewMetrics(m.Registry(), hub)
	broadcaster := fanout.NewBroadcaster(hub,
		time.Duration(appCfg.FanoutPushTimeoutMS)*time.Millisecond, L, fanoutMetrics.Hooks())

	notifiers, closers, err := buildNotifiers(ctx, &appCfg, L)
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	if err != nil {
		return fmt.Errorf("notifier init: %w", err)
	}

	triageSvc := triage.NewService(verdictStore, engine, registry, L, triageMetrics, broadcaster, notifiers...)

	if appCfg.ReplayFile != "" {
		msgs, err := replay.LoadMessages(appCfg.ReplayFile)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		runner := replay.NewRunner(triageSvc, msgs,
			time.Duration(appCfg.ReplayIntervalSeconds)*time.Second, nil, L.With("component", "replay"))
		go func() { _ = runner.Run(ctx) }()
	}

	// setup toggle for server shutdown. this is used to fail readiness checks
	// during shutdown to drain connections from load balancer before killing the process.
	var shutdownGate health.ShutdownGate

	// setup readiness checks, currently just the shutdown gate
	readiness := health.All(
		shutdownGate.Probe(),
	)
	// liveness is always true if the app is able to respond
	liveness := health.Fixed(true, "")

	// Configure ops http server for metrics, health checks, pprof, etc
	opsOpts := opsCfg.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	// start admin/ops listener. sg restricts inbound to internal monitoring infrastructure.
	// we reject connections from public ips and requests with x-forwarded set in middleware
	// to prevent accidental exposure if sg is misconfigured or load balancer ever sends traffic here
	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() {
		err := opsHTTPStop(context.Background())
		if err != nil {
			L.Error(ctx, err, "failed to stop ops http listener")
		}
	}()

	// main api router and middleware chain
	h := newAPIHandler(L, alertapi.New(L, triageSvc, hub), m, liveness, readiness, httpmwCfg.TrustedProxyHops)

	// Configure http server options from config
	alertapiOpts, err := httpCfg.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}

	// Start alertapi HTTP server with middleware and handlers
	alertapiHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", appCfg.APIPort), h, L, alertapiOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start alertapi http listener")
		return err
	}
	defer func() {
		err := alertapiHTTPStop(context.Background())
		if err != nil {
			L.Error(ctx, err, "failed to stop alertapi http listener")
		}
	}()

	// Notify systemd that we started successfully if started under systemd
	if err := sdNotify(ctx, "READY=1"); err != nil && !errors.Is(err, errNoNotifySocket) {
		// keep serving; systemd kills the unit if readiness never arrives
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// Wait for ctrl+c / sigterm
	<-ctx.Done()

	L.Info(context.Background(), "shutdown signal received")
	_ = sdNotify(context.Background(), "STOPPING=1")

	// fail health checks to drain connections
	shutdownGate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	// Wait for in-flight requests to finish and for load balancer
	// to detect unhealthy and stop sending new requests.
	drainDuration := time.Duration(appCfg.DrainSeconds) * time.Second
	L.Info(context.Background(), "sleeping for drain period", "drain_seconds", appCfg.DrainSeconds)
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainDuration):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	// Shutdown components with per-component budget sliced from total.
	// stopProf is synchronous and needs no context, so it's excluded.
	type stopFn struct {
		name string
		fn   func(context.Context) error
	}
	stopFns := []stopFn{
		{"alertapi http server", alertapiHTTPStop},
		{"triage service", triageSvc.Close},
		{"ops http server", opsHTTPStop},
		{"otel", shutdownOtelx},
	}

	budget := time.Duration(appCfg.ShutdownBudgetSeconds) * time.Second
	perComponent := budget / time.Duration(len(stopFns))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	for _, s := range stopFns {
		cctx, ccancel := context.WithTimeout(shutdownCtx, perComponent)
		if err := s.fn(cctx); err != nil {
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	return nil
}

// errNoNotifySocket means the process was not started by systemd with Type=notify.
var errNoNotifySocket = errors.New("NOTIFY_SOCKET not set")

// sdNotify sends a state line such as READY=1 to the systemd notify socket.
func sdNotify(ctx context.Context, state string) error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return errNoNotifySocket
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unixgram", addr)
	if err != nil {
		return fmt.Errorf("dial notify socket: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte(state)); err != nil {
		return fmt.Errorf("write notify socket: %w", err)
	}
	return nil
}
