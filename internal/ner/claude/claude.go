// Package claude recognises location entities by asking a Claude model to
// return them as JSON.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/lifeline/internal/triage"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5"

const maxTokens = 512

const systemPrompt = `You extract place names from emergency messages.
Reply with a JSON array only, no prose. Each element is an object:
{"text": "<place exactly as written>", "category": "LOC", "confidence": <0..1>}
Use category LOC for villages, towns, districts, landmarks and geographic
features, GPE for countries and states. Reply [] when there are none.`

// ErrNoText is returned when the model reply has no text content.
var ErrNoText = errors.New("claude: reply has no text content")

type messageSender interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Recognizer implements triage.Recognizer with the Anthropic Messages API.
type Recognizer struct {
	msgs  messageSender
	model string
}

// New returns a Recognizer. baseURL may be empty for the public API. The
// SDK's own retries are disabled: the caller's deadline is the only budget.
func New(apiKey, model, baseURL string) *Recognizer {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	if model == "" {
		model = DefaultModel
	}
	return &Recognizer{msgs: &client.Messages, model: model}
}

// Recognize implements triage.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, text string) ([]triage.EntitySpan, error) {
	msg, err := r.msgs.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude: messages: %w", err)
	}
	return parseSpans(replyText(msg))
}

func replyText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// parseSpans decodes the JSON array in a reply. Models sometimes wrap it in a
// code fence or a sentence, so decoding starts at the first '[' and ends at
// the last ']'.
func parseSpans(reply string) ([]triage.EntitySpan, error) {
	if strings.TrimSpace(reply) == "" {
		return nil, ErrNoText
	}
	start := strings.IndexByte(reply, '[')
	end := strings.LastIndexByte(reply, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("claude: no JSON array in reply %q", truncate(reply, 80))
	}

	var raw []triage.EntitySpan
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("claude: decode spans: %w", err)
	}
	spans := raw[:0]
	for _, s := range raw {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		if s.Category == "" {
			s.Category = "LOC"
		}
		spans = append(spans, s)
	}
	return spans, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
