// Package pgregistry serves the resource registry from a PostgreSQL table.
// Every call queries the table; rows come back in (position, id) order, which
// is the order the matcher uses to break ties.
package pgregistry

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lifeline/internal/lexicon"
	"github.com/linnemanlabs/lifeline/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/lifeline/internal/registry/pgregistry")

//go:embed schema.sql
var schema string

// Registry reads resources from the resources table.
type Registry struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New applies the schema on pool and returns a Registry. The caller owns the pool.
func New(ctx context.Context, pool *pgxpool.Pool, logger log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Registry{pool: pool, logger: logger}, nil
}

// CurrentResources implements triage.Registry. Query failures are logged and
// reported as an empty registry.
func (r *Registry) CurrentResources(ctx context.Context) []triage.Resource {
	ctx, span := tracer.Start(ctx, "pgregistry.CurrentResources", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	res, err := r.load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn(ctx, "resource registry query failed", "error", err)
		return nil
	}
	span.SetAttributes(attribute.Int("lifeline.resources", len(res)))
	return res
}

func (r *Registry) load(ctx context.Context) ([]triage.Resource, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, type, status, eta FROM resources ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	res, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (triage.Resource, error) {
		var (
			rs          triage.Resource
			typ, status string
		)
		if err := row.Scan(&rs.ID, &rs.Name, &typ, &status, &rs.ETA); err != nil {
			return rs, err
		}
		rs.Type = lexicon.Category(strings.ToLower(typ))
		rs.Status = triage.ResourceStatus(strings.ToLower(status))
		return rs, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan resources: %w", err)
	}
	return res, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// upsert inserts or replaces a resource at the given position.
func upsert(ctx context.Context, db execer, position int, rs triage.Resource) error {
	_, err := db.Exec(ctx, `INSERT INTO resources (id, name, type, status, eta, position)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		name     = EXCLUDED.name,
		type     = EXCLUDED.type,
		status   = EXCLUDED.status,
		eta      = EXCLUDED.eta,
		position = EXCLUDED.position`,
		rs.ID, rs.Name, string(rs.Type), string(rs.Status), rs.ETA, position,
	)
	if err != nil {
		return fmt.Errorf("upsert resource %s: %w", rs.ID, err)
	}
	return nil
}

// Import upserts rs in one transaction, using slice order as position.
func (r *Registry) Import(ctx context.Context, rs []triage.Resource) error {
	ctx, span := tracer.Start(ctx, "pgregistry.Import", trace.WithAttributes(
		attribute.Int("lifeline.resources", len(rs)),
	))
	defer span.End()

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for i, res := range rs {
			if err := upsert(ctx, tx, i, res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("import resources: %w", err)
	}
	return nil
}
