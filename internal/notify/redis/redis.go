// Package redis publishes alert verdicts on a Redis pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lifeline/internal/triage"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "lifeline:alerts"

// Notifier publishes verdict JSON with PUBLISH.
type Notifier struct {
	client  goredis.UniversalClient
	channel string
	logger  log.Logger
}

// New connects to addr. The connection is established lazily.
func New(addr, channel string, logger log.Logger) *Notifier {
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return NewWithClient(client, channel, logger)
}

// NewWithClient wraps an existing client.
func NewWithClient(client goredis.UniversalClient, channel string, logger log.Logger) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// Name implements triage.Notifier.
func (n *Notifier) Name() string { return "redis" }

// Send implements triage.Notifier.
func (n *Notifier) Send(ctx context.Context, v *triage.Verdict) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: serialize verdict: %w", err)
	}
	receivers, err := n.client.Publish(ctx, n.channel, data).Result()
	if err != nil {
		return fmt.Errorf("redis: publish: %w", err)
	}
	n.logger.Info(ctx, "redis notification published", "channel", n.channel, "receivers", receivers, "verdict_id", v.ID)
	return nil
}

// Ping checks the connection.
func (n *Notifier) Ping(ctx context.Context) error {
	if err := n.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the client.
func (n *Notifier) Close() error {
	return n.client.Close()
}
