// Package hf recognises named entities through the Hugging Face inference
// API using a token-classification model.
package hf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/lifeline/internal/triage"
)

const (
	// DefaultEndpoint is the inference API base; the model name is appended.
	DefaultEndpoint = "https://api-inference.huggingface.co/models/"

	// DefaultModel is a CoNLL-03 NER model emitting PER, ORG, LOC and MISC.
	DefaultModel = "dslim/bert-base-NER"

	maxErrBody = 512
)

// Client calls a token-classification model hosted behind the inference API.
type Client struct {
	url    string
	token  string
	client *http.Client
}

// New returns a Client for model at endpoint. Empty values fall back to the
// defaults; token may be empty for unauthenticated endpoints.
func New(endpoint, model, token string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		url:   strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(model, "/"),
		token: token,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type request struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

type parameters struct {
	AggregationStrategy string `json:"aggregation_strategy"`
}

type entity struct {
	EntityGroup string   `json:"entity_group"`
	Entity      string   `json:"entity"`
	Word        string   `json:"word"`
	Score       *float64 `json:"score"`
}

// Recognize implements triage.Recognizer. Deadlines come from ctx.
func (c *Client) Recognize(ctx context.Context, text string) ([]triage.EntitySpan, error) {
	body, err := json.Marshal(request{
		Inputs:     text,
		Parameters: parameters{AggregationStrategy: "simple"},
	})
	if err != nil {
		return nil, fmt.Errorf("hf: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("hf: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req) //nolint:gosec // G704: endpoint is from trusted config
	if err != nil {
		return nil, fmt.Errorf("hf: post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return nil, fmt.Errorf("hf: inference returned %d: %s", resp.StatusCode, string(respBody))
	}

	var ents []entity
	if err := json.NewDecoder(resp.Body).Decode(&ents); err != nil {
		return nil, fmt.Errorf("hf: decode response: %w", err)
	}
	return toSpans(ents), nil
}

// toSpans maps API entities to spans. Without aggregation the label carries
// a B-/I- prefix, which is stripped.
func toSpans(ents []entity) []triage.EntitySpan {
	spans := make([]triage.EntitySpan, 0, len(ents))
	for _, e := range ents {
		cat := e.EntityGroup
		if cat == "" {
			cat = e.Entity
			if i := strings.IndexByte(cat, '-'); i == 1 {
				cat = cat[2:]
			}
		}
		spans = append(spans, triage.EntitySpan{
			Text:       strings.TrimSpace(e.Word),
			Category:   cat,
			Confidence: e.Score,
		})
	}
	return spans
}
