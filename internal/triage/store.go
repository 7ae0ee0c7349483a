package triage

import "context"

// Store is the persistence interface for verdicts.
type Store interface {
	Get(ctx context.Context, id string) (*Verdict, bool, error)
	Put(ctx context.Context, v *Verdict) error
	// ListAlerts returns up to limit alert verdicts, newest first.
	ListAlerts(ctx context.Context, limit int) ([]*Verdict, error)
}

// Recognizer is the named-entity recognition collaborator. Implementations may
// fail or time out; the Extractor degrades rather than propagating.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]EntitySpan, error)
}

// Registry is the resource registry collaborator. It never fails: an
// unreachable backend is reported as an empty snapshot and logged by the
// implementation.
type Registry interface {
	CurrentResources(ctx context.Context) []Resource
}

// Broadcaster pushes alert verdicts to connected listeners, best effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, v *Verdict)
}

// Notifier delivers alert verdicts to a durable sink.
type Notifier interface {
	Name() string
	Send(ctx context.Context, v *Verdict) error
}

// NopRecognizer recognises nothing. It is used when no NER backend is configured.
type NopRecognizer struct{}

// Recognize implements Recognizer.
func (NopRecognizer) Recognize(context.Context, string) ([]EntitySpan, error) { return nil, nil }
