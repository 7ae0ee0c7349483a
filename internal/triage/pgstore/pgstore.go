// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/lifeline/internal/lexicon"
	"github.com/linnemanlabs/lifeline/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/lifeline/internal/triage/pgstore")

//go:embed schema.sql
var schema string

const verdictColumns = `id, message, needs, people_affected, locations, location_confidence,
	urgency_score, urgency_reasons, urgency_explanation, matched_resources, resource_log,
	alert, created_at`

// Store persists verdicts in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Get retrieves a verdict by ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.Verdict, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	v, err := scanVerdict(s.pool.QueryRow(ctx, `SELECT `+verdictColumns+` FROM verdicts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, err)
	}
	return v, true, nil
}

// Put inserts or replaces a verdict.
func (s *Store) Put(ctx context.Context, v *triage.Verdict) error {
	ctx, span := startSpan(ctx, "pgstore.Put", "UPSERT")
	defer span.End()

	matchesJSON, err := json.Marshal(v.MatchedResources)
	if err != nil {
		return fail(span, fmt.Errorf("marshal matched resources: %w", err))
	}

	needs := make([]string, len(v.Needs))
	for i, n := range v.Needs {
		needs[i] = string(n)
	}

	var people *int64
	if v.PeopleAffected != nil {
		p := int64(*v.PeopleAffected)
		people = &p
	}

	_, err = s.pool.Exec(ctx, `INSERT INTO verdicts (`+verdictColumns+`)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	ON CONFLICT (id) DO UPDATE SET
		message             = EXCLUDED.message,
		needs               = EXCLUDED.needs,
		people_affected     = EXCLUDED.people_affected,
		locations           = EXCLUDED.locations,
		location_confidence = EXCLUDED.location_confidence,
		urgency_score       = EXCLUDED.urgency_score,
		urgency_reasons     = EXCLUDED.urgency_reasons,
		urgency_explanation = EXCLUDED.urgency_explanation,
		matched_resources   = EXCLUDED.matched_resources,
		resource_log        = EXCLUDED.resource_log,
		alert               = EXCLUDED.alert,
		created_at          = EXCLUDED.created_at`,
		v.ID, v.Message, needs, people, v.Locations, string(v.LocationConfidence),
		v.UrgencyScore, nonNil(v.UrgencyReasons), nonNil(v.UrgencyExplanation), matchesJSON,
		nonNil(v.ResourceLog), v.Alert, v.Timestamp,
	)
	if err != nil {
		return fail(span, fmt.Errorf("upsert verdict: %w", err))
	}
	return nil
}

// ListAlerts returns up to limit alert verdicts, newest first.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]*triage.Verdict, error) {
	ctx, span := startSpan(ctx, "pgstore.ListAlerts", "SELECT")
	defer span.End()

	if limit <= 0 {
		return []*triage.Verdict{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+verdictColumns+` FROM verdicts WHERE alert ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query alerts: %w", err))
	}
	defer rows.Close()

	out := []*triage.Verdict{}
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate alerts: %w", err))
	}
	return out, nil
}

func scanVerdict(row pgx.Row) (*triage.Verdict, error) {
	var (
		v           triage.Verdict
		needs       []string
		people      *int64
		confidence  string
		matchesJSON []byte
	)
	err := row.Scan(
		&v.ID, &v.Message, &needs, &people, &v.Locations, &confidence,
		&v.UrgencyScore, &v.UrgencyReasons, &v.UrgencyExplanation, &matchesJSON, &v.ResourceLog,
		&v.Alert, &v.Timestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan verdict: %w", err)
	}

	v.Needs = make([]lexicon.Category, len(needs))
	for i, n := range needs {
		v.Needs[i] = lexicon.Category(n)
	}
	if people != nil {
		p := int(*people)
		v.PeopleAffected = &p
	}
	v.LocationConfidence = triage.Confidence(confidence)
	if err := json.Unmarshal(matchesJSON, &v.MatchedResources); err != nil {
		return nil, fmt.Errorf("unmarshal matched resources: %w", err)
	}
	return &v, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
