// Package slack posts alert verdicts to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lifeline/internal/triage"
)

const (
	maxMessageLen = 2000
	httpTimeout   = 10 * time.Second
)

// Notifier sends alert verdicts to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Name implements triage.Notifier.
func (n *Notifier) Name() string { return "slack" }

// Send posts v to the configured webhook.
func (n *Notifier) Send(ctx context.Context, v *triage.Verdict) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(v))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	n.logger.Info(ctx, "slack notification sent", "verdict_id", v.ID)
	return nil
}

// buildMessage lays out header, fields, divider, message, resources and
// context blocks.
func buildMessage(v *triage.Verdict) map[string]any {
	return map[string]any{
		"text": fallbackText(v),
		"blocks": []map[string]any{
			headerBlock(v),
			fieldsBlock(v),
			{"type": "divider"},
			messageBlock(v),
			resourcesBlock(v),
			contextBlock(v),
		},
	}
}

func fallbackText(v *triage.Verdict) string {
	return fmt.Sprintf("Emergency alert (urgency %d): %s", v.UrgencyScore, truncate(v.Message, 140))
}

func headerBlock(v *triage.Verdict) map[string]any {
	title := "Emergency Alert"
	if v.LocationConfidence != triage.ConfidenceHigh {
		title = "Emergency Alert - location needs confirmation"
	}
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s", urgencyEmoji(v.UrgencyScore), title),
		},
	}
}

func fieldsBlock(v *triage.Verdict) map[string]any {
	people := "unknown"
	if v.PeopleAffected != nil {
		people = fmt.Sprintf("%d", *v.PeopleAffected)
	}
	location := "unknown"
	if len(v.Locations) > 0 {
		location = strings.Join(v.Locations, ", ")
	}
	needs := make([]string, len(v.Needs))
	for i, c := range v.Needs {
		needs[i] = string(c)
	}
	needText := "none detected"
	if len(needs) > 0 {
		needText = strings.Join(needs, ", ")
	}
	reasons := "none"
	if len(v.UrgencyReasons) > 0 {
		reasons = strings.Join(v.UrgencyReasons, ", ")
	}

	return map[string]any{
		"type": "section",
		"fields": []map[string]any{
			{"type": "mrkdwn", "text": fmt.Sprintf("*Urgency:* %d", v.UrgencyScore)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Reasons:* %s", reasons)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Needs:* %s", needText)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*People:* %s", people)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Location:* %s (%s)", location, v.LocationConfidence)},
		},
	}
}

func messageBlock(v *triage.Verdict) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Message*\n>%s", truncate(v.Message, maxMessageLen)),
		},
	}
}

func resourcesBlock(v *triage.Verdict) map[string]any {
	var b strings.Builder
	b.WriteString("*Resources*\n")
	if len(v.MatchedResources) == 0 {
		b.WriteString("_No resource matched._")
	}
	for _, m := range v.MatchedResources {
		fmt.Fprintf(&b, "- %s (%s, %s, ETA %s) score %d\n", m.Name, m.Type, m.Status, m.ETA, m.PriorityScore)
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": strings.TrimRight(b.String(), "\n"),
		},
	}
}

func contextBlock(v *triage.Verdict) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("lifeline • verdict %s • %s", v.ID, v.Timestamp.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func urgencyEmoji(score int) string {
	switch {
	case score >= 60:
		return "\U0001f534" // red circle
	case score >= 30:
		return "\U0001f7e0" // orange circle
	default:
		return "\U0001f7e1" // yellow circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
