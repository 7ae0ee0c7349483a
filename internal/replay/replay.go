// Package replay feeds recorded emergency messages through triage at a fixed
// pace, for demos and load rehearsal.
package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/lifeline/internal/triage"
)

// Submitter is the part of the triage service the runner drives.
type Submitter interface {
	Submit(ctx context.Context, text string) (*triage.Verdict, error)
}

// LoadMessages reads the text column of a CSV file. Blank rows are skipped.
func LoadMessages(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadMessages(f)
}

// ReadMessages is LoadMessages over a reader.
func ReadMessages(rd io.Reader) ([]string, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("replay file is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "text") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, errors.New(`replay file has no "text" column`)
	}

	var msgs []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if col >= len(rec) {
			continue
		}
		if s := strings.TrimSpace(rec[col]); s != "" {
			msgs = append(msgs, s)
		}
	}
	if len(msgs) == 0 {
		return nil, errors.New("replay file has no messages")
	}
	return msgs, nil
}

// Runner submits one message per interval, cycling through its messages.
type Runner struct {
	svc      Submitter
	msgs     []string
	interval time.Duration
	clock    clockwork.Clock
	logger   log.Logger
}

// NewRunner builds a Runner. A nil clock uses the real clock.
func NewRunner(svc Submitter, msgs []string, interval time.Duration, clock clockwork.Clock, logger log.Logger) *Runner {
	if svc == nil {
		panic(xerrors.New("replay.NewRunner: submitter is nil"))
	}
	if len(msgs) == 0 {
		panic(xerrors.New("replay.NewRunner: no messages"))
	}
	if interval <= 0 {
		panic(xerrors.New("replay.NewRunner: interval must be positive"))
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Runner{svc: svc, msgs: msgs, interval: interval, clock: clock, logger: logger}
}

// Run blocks until ctx is done. Submit errors are logged and the next
// message is tried on the following tick.
func (r *Runner) Run(ctx context.Context) error {
	t := r.clock.NewTicker(r.interval)
	defer t.Stop()

	r.logger.Info(ctx, "replay started", "messages", len(r.msgs), "interval", r.interval.String())
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			r.logger.Info(ctx, "replay stopped", "submitted", i)
			return nil
		case <-t.Chan():
		}

		text := r.msgs[i%len(r.msgs)]
		v, err := r.svc.Submit(ctx, text)
		if err != nil {
			r.logger.Warn(ctx, "replay submit failed", "index", i%len(r.msgs), "error", err)
			continue
		}
		r.logger.Info(ctx, "replayed message",
			"verdict_id", v.ID,
			"urgency_score", v.UrgencyScore,
			"alert", v.Alert,
		)
	}
}
