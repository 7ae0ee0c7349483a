// Package alertapi is the HTTP boundary for message triage.
package alertapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/lifeline/internal/fanout"
	"github.com/linnemanlabs/lifeline/internal/triage"
)

const (
	maxBodyBytes = 64 << 10

	defaultAlertLimit = 20
	maxAlertLimit     = 200
)

// TriageService defines the business operations alertapi needs.
type TriageService interface {
	Submit(ctx context.Context, text string) (*triage.Verdict, error)
	Get(ctx context.Context, id string) (*triage.Verdict, bool, error)
	RecentAlerts(ctx context.Context, limit int) ([]*triage.Verdict, error)
	Resources(ctx context.Context) []triage.Resource
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
	hub    *fanout.Hub
}

// New creates a new API handler. hub may be nil, in which case the alert
// stream route is not registered.
func New(logger log.Logger, svc TriageService, hub *fanout.Hub) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		hub:    hub,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", a.handleAnalyze)
		r.Get("/resources", a.handleResources)
		r.Get("/verdicts/{id}", a.handleGetVerdict)
		r.Get("/alerts", a.handleRecentAlerts)
		if a.hub != nil {
			r.Method(http.MethodGet, "/alerts/stream", fanout.WSHandler(a.hub, a.logger, nil))
		}
	})
}

type analyzeRequest struct {
	Text string `json:"text"`
}

func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	v, err := a.svc.Submit(r.Context(), req.Text)
	switch {
	case errors.Is(err, triage.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "text is required")
		return
	case err != nil:
		a.logger.Error(r.Context(), err, "triage failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("lifeline.verdict.id", v.ID),
		attribute.Bool("lifeline.verdict.alert", v.Alert),
	)
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleGetVerdict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("lifeline.verdict.id", id))

	v, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get verdict", "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	span.SetAttributes(attribute.Bool("lifeline.verdict.alert", v.Alert))
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAlertLimit)
	}

	alerts, err := a.svc.RecentAlerts(r.Context(), limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list alerts", "limit", limit)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if alerts == nil {
		alerts = []*triage.Verdict{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleResources(w http.ResponseWriter, r *http.Request) {
	res := a.svc.Resources(r.Context())
	if res == nil {
		res = []triage.Resource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": res})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
