package pgstore_test

import (
	"context"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/lifeline/internal/lexicon"
	"github.com/linnemanlabs/lifeline/internal/postgres"
	"github.com/linnemanlabs/lifeline/internal/triage"
	"github.com/linnemanlabs/lifeline/internal/triage/pgstore"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("LIFELINE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LIFELINE_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

func TestPutAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	people := 12
	v := &triage.Verdict{
		ID:                 ulid.Make().String(),
		Message:            "No water near railway bridge, 12 people including children",
		Needs:              []lexicon.Category{lexicon.Water},
		PeopleAffected:     &people,
		Locations:          []string{"bridge"},
		LocationConfidence: triage.ConfidenceLow,
		UrgencyScore:       20,
		UrgencyReasons:     []string{"children"},
		UrgencyExplanation: []string{"Detected 'children'"},
		MatchedResources: []triage.MatchedResource{{
			ID: "W1", Name: "Tanker 1", Type: lexicon.Water, Status: triage.StatusAvailable,
			ETA: "10 min", PriorityScore: 5, Reasons: []string{"Resource available", "ETA penalty 10 min", "Ambiguous location"},
		}},
		ResourceLog: []string{"Matched 'Tanker 1' for 'water' (score=5)"},
		Alert:       true,
		Timestamp:   time.Now().Truncate(time.Microsecond).UTC(),
	}

	if err := s.Put(ctx, v); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get(ctx, v.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get returned ok=false, want true")
	}

	if got.Message != v.Message {
		t.Errorf("Message = %q, want %q", got.Message, v.Message)
	}
	if !slices.Equal(got.Needs, v.Needs) {
		t.Errorf("Needs = %v, want %v", got.Needs, v.Needs)
	}
	if got.PeopleAffected == nil || *got.PeopleAffected != 12 {
		t.Errorf("PeopleAffected = %v, want 12", got.PeopleAffected)
	}
	if !slices.Equal(got.Locations, v.Locations) {
		t.Errorf("Locations = %v, want %v", got.Locations, v.Locations)
	}
	if got.LocationConfidence != triage.ConfidenceLow {
		t.Errorf("LocationConfidence = %q, want low", got.LocationConfidence)
	}
	if len(got.MatchedResources) != 1 || got.MatchedResources[0].PriorityScore != 5 {
		t.Errorf("MatchedResources = %+v", got.MatchedResources)
	}
	if !got.Timestamp.Equal(v.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, v.Timestamp)
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Get(context.Background(), "nonexistent-id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get returned ok=true for nonexistent ID")
	}
}

func TestNilOptionalFields(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	v := &triage.Verdict{
		ID:                 ulid.Make().String(),
		Message:            "All residents safe",
		Needs:              []lexicon.Category{},
		LocationConfidence: triage.ConfidenceUnknown,
		Alert:              true,
		Timestamp:          time.Now().UTC(),
	}
	if err := s.Put(ctx, v); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := s.Get(ctx, v.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.PeopleAffected != nil {
		t.Errorf("PeopleAffected = %d, want nil", *got.PeopleAffected)
	}
	if got.Locations != nil {
		t.Errorf("Locations = %v, want nil", got.Locations)
	}
}

func TestLargeHeadcountRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	people := 3_000_000_000
	v := &triage.Verdict{
		ID:                 ulid.Make().String(),
		Message:            "3000000000 people displaced",
		PeopleAffected:     &people,
		LocationConfidence: triage.ConfidenceUnknown,
		Alert:              true,
		Timestamp:          time.Now().UTC(),
	}
	if err := s.Put(ctx, v); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := s.Get(ctx, v.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.PeopleAffected == nil || *got.PeopleAffected != people {
		t.Errorf("PeopleAffected = %v, want %d", got.PeopleAffected, people)
	}
}

func TestListAlertsNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	base := time.Now().Add(time.Hour).Truncate(time.Microsecond).UTC()
	older := &triage.Verdict{ID: ulid.Make().String(), Message: "older", LocationConfidence: triage.ConfidenceLow, Alert: true, Timestamp: base}
	quiet := &triage.Verdict{ID: ulid.Make().String(), Message: "quiet", LocationConfidence: triage.ConfidenceHigh, Alert: false, Timestamp: base.Add(time.Second)}
	newer := &triage.Verdict{ID: ulid.Make().String(), Message: "newer", LocationConfidence: triage.ConfidenceLow, Alert: true, Timestamp: base.Add(2 * time.Second)}
	for _, v := range []*triage.Verdict{older, quiet, newer} {
		if err := s.Put(ctx, v); err != nil {
			t.Fatalf("Put %s: %v", v.Message, err)
		}
	}

	got, err := s.ListAlerts(ctx, 2)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Errorf("order = [%s %s], want [newer older]", got[0].Message, got[1].Message)
	}
}
