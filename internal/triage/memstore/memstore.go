// Package memstore provides an in-memory implementation of triage.Store.
// It holds a bounded number of verdicts and evicts the oldest first.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/linnemanlabs/lifeline/internal/triage"
)

// DefaultCapacity is the number of verdicts kept when New is given no capacity.
const DefaultCapacity = 10000

// Store holds verdicts in memory. Suitable for dev/testing.
type Store struct {
	mu       sync.RWMutex
	capacity int
	verdicts map[string]*triage.Verdict // verdict ID -> verdict
	order    []string                   // all verdict IDs, oldest first
	alerts   []string                   // alert verdict IDs in insertion order
}

// New initializes a Store keeping at most capacity verdicts. A capacity
// below one means DefaultCapacity.
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		verdicts: make(map[string]*triage.Verdict),
	}
}

// Get retrieves a verdict by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*triage.Verdict, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verdicts[id]
	if !ok {
		return nil, false, nil
	}
	cp := *v
	return &cp, true, nil
}

// Put stores a copy of the verdict. Re-putting an ID replaces it without
// changing its position in the alert list or its age.
func (s *Store) Put(_ context.Context, v *triage.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.verdicts[v.ID]
	cp := *v
	s.verdicts[v.ID] = &cp
	if !existed {
		s.order = append(s.order, v.ID)
	}
	wasAlert := existed && prev.Alert
	switch {
	case v.Alert && !wasAlert:
		s.alerts = append(s.alerts, v.ID)
	case !v.Alert && wasAlert:
		s.alerts = slices.DeleteFunc(s.alerts, func(id string) bool { return id == v.ID })
	}
	for len(s.order) > s.capacity {
		s.evictOldest()
	}
	return nil
}

func (s *Store) evictOldest() {
	id := s.order[0]
	s.order[0] = ""
	s.order = s.order[1:]
	v := s.verdicts[id]
	delete(s.verdicts, id)
	if !v.Alert {
		return
	}
	if len(s.alerts) > 0 && s.alerts[0] == id {
		s.alerts[0] = ""
		s.alerts = s.alerts[1:]
		return
	}
	s.alerts = slices.DeleteFunc(s.alerts, func(a string) bool { return a == id })
}

// Len reports the number of verdicts held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.verdicts)
}

// ListAlerts returns copies of up to limit alert verdicts, newest first.
func (s *Store) ListAlerts(_ context.Context, limit int) ([]*triage.Verdict, error) {
	if limit <= 0 {
		return []*triage.Verdict{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*triage.Verdict, 0, min(limit, len(s.alerts)))
	for i := len(s.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.verdicts[s.alerts[i]]
		out = append(out, &cp)
	}
	return out, nil
}
