package fanout

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/lifeline/internal/triage"
)

// DefaultPushTimeout bounds a single push when none is configured.
const DefaultPushTimeout = 2 * time.Second

// Hooks receives delivery outcomes. Nil fields are skipped.
type Hooks struct {
	OnDelivered func()
	OnDropped   func()
}

// Broadcaster delivers verdicts to every listener in a Hub.
type Broadcaster struct {
	hub     *Hub
	timeout time.Duration
	logger  log.Logger
	hooks   Hooks
}

var _ triage.Broadcaster = (*Broadcaster)(nil)

// NewBroadcaster returns a Broadcaster over hub. A non-positive pushTimeout
// uses DefaultPushTimeout.
func NewBroadcaster(hub *Hub, pushTimeout time.Duration, logger log.Logger, hooks Hooks) *Broadcaster {
	if hub == nil {
		panic(xerrors.New("fanout.NewBroadcaster: hub is nil"))
	}
	if pushTimeout <= 0 {
		pushTimeout = DefaultPushTimeout
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Broadcaster{hub: hub, timeout: pushTimeout, logger: logger, hooks: hooks}
}

// Broadcast pushes v to a snapshot of the hub's listeners, one at a time.
// Listeners that fail are removed from the hub; the rest still receive v.
func (b *Broadcaster) Broadcast(ctx context.Context, v *triage.Verdict) {
	for _, l := range b.hub.Snapshot() {
		if err := b.push(ctx, l, v); err != nil {
			b.hub.Remove(l.ID())
			b.logger.Warn(ctx, "dropping alert listener", "listener", l.ID(), "verdict_id", v.ID, "error", err)
			if b.hooks.OnDropped != nil {
				b.hooks.OnDropped()
			}
			continue
		}
		if b.hooks.OnDelivered != nil {
			b.hooks.OnDelivered()
		}
	}
}

func (b *Broadcaster) push(ctx context.Context, l Listener, v *triage.Verdict) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return l.Push(ctx, v)
}
