// Package fanout pushes alert verdicts to connected listeners.
//
// The Hub is created by the process and handed to both the transport, which
// adds and removes listeners as clients come and go, and the Broadcaster,
// which delivers to a snapshot of them. Delivery is best effort: a listener
// that fails a push is dropped and never retried.
package fanout

import (
	"context"
	"slices"
	"sync"

	"github.com/linnemanlabs/lifeline/internal/triage"
)

// Listener receives alert verdicts.
type Listener interface {
	ID() string
	Push(ctx context.Context, v *triage.Verdict) error
}

// Hub is the set of live listeners, in registration order.
type Hub struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{}
}

// Add registers l. A listener already registered under the same ID is replaced.
func (h *Hub) Add(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, cur := range h.listeners {
		if cur.ID() == l.ID() {
			h.listeners[i] = l
			return
		}
	}
	h.listeners = append(h.listeners, l)
}

// Remove drops the listener with the given ID. Unknown IDs are ignored.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = slices.DeleteFunc(h.listeners, func(l Listener) bool { return l.ID() == id })
}

// Snapshot returns a copy of the current listeners.
func (h *Hub) Snapshot() []Listener {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.listeners)
}

// Len returns the number of registered listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
