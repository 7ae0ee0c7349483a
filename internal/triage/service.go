package triage

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

const notifyTimeout = 10 * time.Second

// Service is the business boundary for triage operations.
type Service struct {
	store       Store
	engine      *Engine
	registry    Registry
	logger      log.Logger
	metrics     *Metrics
	broadcaster Broadcaster
	notifiers   []Notifier
	inflight    sync.WaitGroup
}

// NewService creates a new triage service. metrics and broadcaster may be
// nil; nil notifiers are ignored.
func NewService(store Store, engine *Engine, registry Registry, logger log.Logger, metrics *Metrics, broadcaster Broadcaster, notifiers ...Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	var ns []Notifier
	for _, n := range notifiers {
		if n != nil {
			ns = append(ns, n)
		}
	}
	return &Service{
		store:       store,
		engine:      engine,
		registry:    registry,
		logger:      logger,
		metrics:     metrics,
		broadcaster: broadcaster,
		notifiers:   ns,
	}
}

// Submit triages a message, persists the verdict and, if it is an alert,
// pushes it to live listeners and durable notifiers. Persistence and
// delivery failures are logged; only triage failures are returned.
func (s *Service) Submit(ctx context.Context, text string) (*Verdict, error) {
	v, err := s.engine.Process(ctx, text)
	if err != nil {
		s.countSubmit("error")
		return nil, err
	}
	v.ID = ulid.Make().String()

	L := s.logger.With("verdict_id", v.ID)

	if err := s.store.Put(ctx, v); err != nil {
		L.Error(ctx, err, "failed to persist verdict")
		if s.metrics != nil {
			s.metrics.StoreErrorsTotal.Inc()
		}
	}

	if !v.Alert {
		s.countSubmit("no_alert")
		return v, nil
	}
	s.countSubmit("alert")

	L.Info(ctx, "alert raised",
		"urgency_score", v.UrgencyScore,
		"location_confidence", v.LocationConfidence,
		"needs", v.Needs,
		"matches", len(v.MatchedResources),
	)

	// detached from the request; the broadcaster bounds each push
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(context.WithoutCancel(ctx), v)
	}

	// notifiers outlive the request; pass only the immutable verdict.
	for _, n := range s.notifiers {
		s.inflight.Add(1)
		go s.notify(context.WithoutCancel(ctx), n, v)
	}

	return v, nil
}

// Get retrieves a verdict by ID.
func (s *Service) Get(ctx context.Context, id string) (*Verdict, bool, error) {
	return s.store.Get(ctx, id)
}

// RecentAlerts returns up to limit alert verdicts, newest first.
func (s *Service) RecentAlerts(ctx context.Context, limit int) ([]*Verdict, error) {
	return s.store.ListAlerts(ctx, limit)
}

// Resources returns the current registry snapshot.
func (s *Service) Resources(ctx context.Context) []Resource {
	if s.registry == nil {
		return []Resource{}
	}
	res := s.registry.CurrentResources(ctx)
	if res == nil {
		return []Resource{}
	}
	return res
}

// Close waits for in-flight notifications until ctx is done.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) notify(ctx context.Context, n Notifier, v *Verdict) {
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	start := time.Now()
	err := n.Send(ctx, v)
	dur := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error(ctx, err, "alert notification failed", "notifier", n.Name(), "verdict_id", v.ID)
	}
	if s.metrics != nil {
		s.metrics.NotifyTotal.WithLabelValues(n.Name(), status).Inc()
		s.metrics.NotifyDuration.WithLabelValues(n.Name()).Observe(dur.Seconds())
	}
}

func (s *Service) countSubmit(result string) {
	if s.metrics != nil {
		s.metrics.SubmitsTotal.WithLabelValues(result).Inc()
	}
}
