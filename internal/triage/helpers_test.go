package triage

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/linnemanlabs/lifeline/internal/lexicon"
)

// fakeRecognizer returns fixed spans or an error. If block is set it waits
// for ctx to be done and returns its error.
type fakeRecognizer struct {
	spans []EntitySpan
	err   error
	block bool
	calls atomic.Int32
}

func (f *fakeRecognizer) Recognize(ctx context.Context, _ string) ([]EntitySpan, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.spans, f.err
}

func loc(text string) EntitySpan { return EntitySpan{Text: text, Category: "LOC"} }

// staticRegistry serves a fixed snapshot and counts reads.
type staticRegistry struct {
	resources []Resource
	reads     atomic.Int32
}

func (r *staticRegistry) CurrentResources(context.Context) []Resource {
	r.reads.Add(1)
	return append([]Resource(nil), r.resources...)
}

func res(id string, typ lexicon.Category, status ResourceStatus, eta string) Resource {
	return Resource{ID: id, Name: "Unit " + id, Type: typ, Status: status, ETA: eta}
}

// mockStore implements Store for testing.
type mockStore struct {
	mu     sync.Mutex
	byID   map[string]*Verdict
	putErr error
	getErr error
}

func newMockStore() *mockStore {
	return &mockStore{byID: make(map[string]*Verdict)}
}

func (m *mockStore) Get(_ context.Context, id string) (*Verdict, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.byID[id]
	if !ok {
		return nil, false, nil
	}
	cp := *v
	return &cp, true, nil
}

func (m *mockStore) Put(_ context.Context, v *Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	cp := *v
	m.byID[v.ID] = &cp
	return nil
}

func (m *mockStore) ListAlerts(_ context.Context, limit int) ([]*Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Verdict
	for _, v := range m.byID {
		if v.Alert {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	got    []*Verdict
	ctxErr []error
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, v *Verdict) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, v)
	b.ctxErr = append(b.ctxErr, ctx.Err())
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.got)
}

type fakeNotifier struct {
	name string
	err  error
	mu   sync.Mutex
	got  []*Verdict
}

func (n *fakeNotifier) Name() string { return n.name }

func (n *fakeNotifier) Send(_ context.Context, v *Verdict) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, v)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.got)
}
