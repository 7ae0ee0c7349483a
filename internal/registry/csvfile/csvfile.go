// Package csvfile serves the resource registry from a CSV file with the
// header id,name,type,status,eta. The file is re-read on every call so edits
// are visible immediately; there is no caching.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lifeline/internal/lexicon"
	"github.com/linnemanlabs/lifeline/internal/triage"
)

var requiredColumns = []string{"id", "name", "type", "status", "eta"}

// Registry reads resources from a CSV file.
type Registry struct {
	path   string
	logger log.Logger
}

// New returns a Registry for the file at path.
func New(path string, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.Nop()
	}
	return &Registry{path: path, logger: logger}
}

// CurrentResources implements triage.Registry. Read or parse failures are
// logged and reported as an empty registry.
func (r *Registry) CurrentResources(ctx context.Context) []triage.Resource {
	res, err := Load(r.path)
	if err != nil {
		r.logger.Warn(ctx, "resource registry unreadable", "path", r.path, "error", err)
		return nil
	}
	return res
}

// Load reads and parses the registry file at path.
func Load(path string) ([]triage.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse decodes registry CSV. Column order is free; names are matched
// case-insensitively. Type and status are lower-cased.
func Parse(rd io.Reader) ([]triage.Resource, error) {
	cr := csv.NewReader(rd)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var out []triage.Resource
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		field := func(name string) string { return strings.TrimSpace(rec[idx[name]]) }
		out = append(out, triage.Resource{
			ID:     field("id"),
			Name:   field("name"),
			Type:   lexicon.Category(strings.ToLower(field("type"))),
			Status: triage.ResourceStatus(strings.ToLower(field("status"))),
			ETA:    field("eta"),
		})
	}
}
