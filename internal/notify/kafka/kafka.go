// Package kafka publishes alert verdicts to a Kafka topic, keyed by verdict ID.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lifeline/internal/triage"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Notifier produces one message per alert verdict.
type Notifier struct {
	writer messageWriter
	logger log.Logger
}

// New creates a producer for topic on brokers.
func New(brokers []string, topic string, logger log.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newNotifier(w, logger)
}

func newNotifier(w messageWriter, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{writer: w, logger: logger}
}

// Name implements triage.Notifier.
func (n *Notifier) Name() string { return "kafka" }

// Send implements triage.Notifier.
func (n *Notifier) Send(ctx context.Context, v *triage.Verdict) error {
	msg, err := toMessage(v)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the producer.
func (n *Notifier) Close() error {
	return n.writer.Close()
}

func toMessage(v *triage.Verdict) (kafkago.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("kafka: serialize verdict: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(v.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "urgency_score", Value: []byte(strconv.Itoa(v.UrgencyScore))},
			{Key: "location_confidence", Value: []byte(v.LocationConfidence)},
			{Key: "timestamp", Value: []byte(v.Timestamp.UTC().Format(time.RFC3339))},
		},
	}, nil
}
