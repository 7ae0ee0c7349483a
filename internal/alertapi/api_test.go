package alertapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lifeline/internal/fanout"
	"github.com/linnemanlabs/lifeline/internal/lexicon"
	"github.com/linnemanlabs/lifeline/internal/triage"
	"github.com/linnemanlabs/lifeline/internal/triage/memstore"
)

type staticRegistry []triage.Resource

func (s staticRegistry) CurrentResources(context.Context) []triage.Resource { return s }

var testResources = staticRegistry{
	{ID: "R1", Name: "Water Tanker 1", Type: lexicon.Water, Status: triage.StatusAvailable, ETA: "10 min"},
	{ID: "R2", Name: "Rescue Boat", Type: lexicon.Rescue, Status: "busy", ETA: "25 min"},
}

func newTestService(t *testing.T, bc triage.Broadcaster) *triage.Service {
	t.Helper()
	engine := triage.NewEngine(lexicon.Default(), triage.NopRecognizer{}, testResources, log.Nop(), triage.EngineHooks{})
	return triage.NewService(memstore.New(0), engine, testResources, log.Nop(), nil, bc)
}

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	New(nil, newTestService(t, nil), nil).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// fakeService fails every call.
type fakeService struct{ err error }

func (f fakeService) Submit(context.Context, string) (*triage.Verdict, error) { return nil, f.err }
func (f fakeService) Get(context.Context, string) (*triage.Verdict, bool, error) {
	return nil, false, f.err
}
func (f fakeService) RecentAlerts(context.Context, int) ([]*triage.Verdict, error) {
	return nil, f.err
}
func (f fakeService) Resources(context.Context) []triage.Resource { return nil }

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, newTestService(t, nil), nil)
	if api.logger == nil {
		t.Fatal("New(nil, svc, nil) left logger nil; expected Nop logger")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(nil, nil, nil)
}

// Routing

func TestRegisterRoutes_Methods(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{"POST analyze", http.MethodPost, "/api/v1/analyze", `{"text":"need water"}`, http.StatusOK},
		{"GET analyze not allowed", http.MethodGet, "/api/v1/analyze", "", http.StatusMethodNotAllowed},
		{"GET resources", http.MethodGet, "/api/v1/resources", "", http.StatusOK},
		{"POST resources not allowed", http.MethodPost, "/api/v1/resources", "", http.StatusMethodNotAllowed},
		{"GET alerts", http.MethodGet, "/api/v1/alerts", "", http.StatusOK},
		{"DELETE alerts not allowed", http.MethodDelete, "/api/v1/alerts", "", http.StatusMethodNotAllowed},
		{"GET unknown verdict", http.MethodGet, "/api/v1/verdicts/nope", "", http.StatusNotFound},
		{"stream not registered without hub", http.MethodGet, "/api/v1/alerts/stream", "", http.StatusNotFound},
		{"unknown route", http.MethodGet, "/api/v2/analyze", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if rec := do(t, r, tt.method, tt.target, tt.body); rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.target, rec.Code, tt.wantStatus)
			}
		})
	}
}

// Analyze

func TestHandleAnalyze_Verdict(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	rec := do(t, r, http.MethodPost, "/api/v1/analyze",
		`{"text":"No drinking water, 12 people including children trapped"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{
		"id", "message", "needs", "people_affected", "location", "location_confidence",
		"urgency_score", "urgency_reasons", "urgency_explanation", "matched_resources",
		"resource_log", "alert", "timestamp",
	} {
		if _, ok := got[key]; !ok {
			t.Errorf("response missing key %q", key)
		}
	}
	if got["urgency_score"] != float64(45) {
		t.Errorf("urgency_score = %v, want 45", got["urgency_score"])
	}
	if got["people_affected"] != float64(12) {
		t.Errorf("people_affected = %v, want 12", got["people_affected"])
	}
	if got["location_confidence"] != "unknown" || got["alert"] != true {
		t.Errorf("confidence = %v, alert = %v", got["location_confidence"], got["alert"])
	}

	matched := got["matched_resources"].([]any)
	if len(matched) != 2 {
		t.Fatalf("matched_resources = %v, want water tanker and rescue boat", matched)
	}
	m := matched[0].(map[string]any)
	if m["id"] != "R1" {
		t.Errorf("first match = %v, want R1", m["id"])
	}
	for _, key := range []string{"id", "name", "type", "status", "eta", "priority_score", "reason"} {
		if _, ok := m[key]; !ok {
			t.Errorf("matched resource missing key %q", key)
		}
	}

	id := got["id"].(string)
	rec = do(t, r, http.MethodGet, "/api/v1/verdicts/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET verdict = %d", rec.Code)
	}
	var stored triage.Verdict
	if err := json.Unmarshal(rec.Body.Bytes(), &stored); err != nil {
		t.Fatalf("decode stored: %v", err)
	}
	if stored.ID != id || stored.UrgencyScore != 45 {
		t.Errorf("stored = %+v", stored)
	}
}

func TestHandleAnalyze_BadRequests(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{bad`},
		{"empty body", ``},
		{"missing text", `{}`},
		{"blank text", `{"text":"   "}`},
		{"wrong type", `{"text":42}`},
		{"oversized", `{"text":"` + strings.Repeat("a", maxBodyBytes) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, r, http.MethodPost, "/api/v1/analyze", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Errorf("body = %q, want JSON error", rec.Body.String())
			}
		})
	}
}

func TestHandlers_ServiceErrors(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	New(log.Nop(), fakeService{err: errors.New("db down")}, nil).RegisterRoutes(r)

	tests := []struct {
		method, target, body string
	}{
		{http.MethodPost, "/api/v1/analyze", `{"text":"help"}`},
		{http.MethodGet, "/api/v1/verdicts/x", ""},
		{http.MethodGet, "/api/v1/alerts", ""},
	}
	for _, tt := range tests {
		if rec := do(t, r, tt.method, tt.target, tt.body); rec.Code != http.StatusInternalServerError {
			t.Errorf("%s %s = %d, want 500", tt.method, tt.target, rec.Code)
		}
	}
}

// Resources

func TestHandleResources(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestRouter(t), http.MethodGet, "/api/v1/resources", "")
	var body struct {
		Resources []triage.Resource `json:"resources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Resources) != 2 || body.Resources[1].Name != "Rescue Boat" {
		t.Errorf("resources = %+v", body.Resources)
	}
}

func TestHandleResources_EmptyRegistryIsArray(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	New(nil, fakeService{}, nil).RegisterRoutes(r)
	rec := do(t, r, http.MethodGet, "/api/v1/resources", "")
	if !strings.Contains(rec.Body.String(), `"resources":[]`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// Alerts

func TestHandleRecentAlerts(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	for _, text := range []string{"first: need food", "second: need shelter", "third: need water"} {
		if rec := do(t, r, http.MethodPost, "/api/v1/analyze", `{"text":"`+text+`"}`); rec.Code != http.StatusOK {
			t.Fatalf("analyze %q = %d", text, rec.Code)
		}
	}

	rec := do(t, r, http.MethodGet, "/api/v1/alerts?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Alerts []triage.Verdict `json:"alerts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(body.Alerts))
	}
	if body.Alerts[0].Message != "third: need water" || body.Alerts[1].Message != "second: need shelter" {
		t.Errorf("order = [%q %q], want newest first", body.Alerts[0].Message, body.Alerts[1].Message)
	}
}

func TestHandleRecentAlerts_Limit(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	for _, q := range []string{"0", "-1", "abc", "1.5"} {
		if rec := do(t, r, http.MethodGet, "/api/v1/alerts?limit="+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", q, rec.Code)
		}
	}
	if rec := do(t, r, http.MethodGet, "/api/v1/alerts?limit=100000", ""); rec.Code != http.StatusOK {
		t.Errorf("large limit: status = %d, want 200 (clamped)", rec.Code)
	}
	rec := do(t, r, http.MethodGet, "/api/v1/alerts", "")
	if !strings.Contains(rec.Body.String(), `"alerts":[]`) {
		t.Errorf("empty alerts body = %s", rec.Body.String())
	}
}

type capturingService struct {
	fakeService
	limit int
}

func (c *capturingService) RecentAlerts(_ context.Context, limit int) ([]*triage.Verdict, error) {
	c.limit = limit
	return nil, nil
}

func TestHandleRecentAlerts_DefaultAndMax(t *testing.T) {
	t.Parallel()

	svc := &capturingService{}
	r := chi.NewRouter()
	New(nil, svc, nil).RegisterRoutes(r)

	do(t, r, http.MethodGet, "/api/v1/alerts", "")
	if svc.limit != defaultAlertLimit {
		t.Errorf("default limit = %d, want %d", svc.limit, defaultAlertLimit)
	}
	do(t, r, http.MethodGet, "/api/v1/alerts?limit=999", "")
	if svc.limit != maxAlertLimit {
		t.Errorf("clamped limit = %d, want %d", svc.limit, maxAlertLimit)
	}
}

// Stream

func TestAlertStream(t *testing.T) {
	t.Parallel()

	hub := fanout.NewHub()
	svc := newTestService(t, fanout.NewBroadcaster(hub, time.Second, nil, fanout.Hooks{}))
	r := chi.NewRouter()
	New(nil, svc, hub).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/api/v1/alerts/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Len() != 1 {
		t.Fatalf("hub.Len = %d, want 1", hub.Len())
	}

	resp, err := http.Post(srv.URL+"/api/v1/analyze", "application/json", strings.NewReader(`{"text":"Trapped on roof"}`))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	_ = resp.Body.Close()

	var got triage.Verdict
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Message != "Trapped on roof" || !got.Alert || got.UrgencyScore != 25 {
		t.Errorf("streamed verdict = %+v", got)
	}
}
