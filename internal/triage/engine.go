package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lifeline/internal/lexicon"
)

const tracerName = "github.com/linnemanlabs/lifeline/internal/triage"

// ErrEmptyMessage is returned when a message has no text to analyse.
var ErrEmptyMessage = errors.New("message text is empty")

// EngineHooks receives instrumentation callbacks. Nil fields are skipped.
type EngineHooks struct {
	OnStage      func(stage string, seconds float64)
	OnNERFailure func()
	OnComplete   func(v *Verdict, seconds float64)
}

// Engine composes the Extractor, Scorer and Matcher into a Verdict.
// It holds no per-message state and is safe for concurrent use.
type Engine struct {
	threshold int
	extractor *Extractor
	scorer    *Scorer
	matcher   *Matcher
	clock     clockwork.Clock
	logger    log.Logger
	hooks     EngineHooks
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	clock      clockwork.Clock
	nerTimeout time.Duration
}

// WithClock sets the clock used for verdict and registry timestamps.
func WithClock(c clockwork.Clock) EngineOption {
	return func(o *engineOptions) { o.clock = c }
}

// WithNERTimeout bounds each NER call. Zero disables the bound.
func WithNERTimeout(d time.Duration) EngineOption {
	return func(o *engineOptions) { o.nerTimeout = d }
}

// NewEngine creates a triage engine over the given lexicon and collaborators.
func NewEngine(lex *lexicon.Lexicon, ner Recognizer, registry Registry, logger log.Logger, hooks EngineHooks, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	o := engineOptions{clock: clockwork.NewRealClock()}
	for _, fn := range opts {
		fn(&o)
	}
	return &Engine{
		threshold: lex.AlertThreshold(),
		extractor: NewExtractor(lex, ner, o.nerTimeout, logger),
		scorer:    NewScorer(lex),
		matcher:   NewMatcher(registry, o.clock, logger),
		clock:     o.clock,
		logger:    logger,
		hooks:     hooks,
	}
}

// Process triages one message. Collaborator failures degrade the verdict
// rather than failing it; an error is returned only for empty input or a
// cancelled context.
func (e *Engine) Process(ctx context.Context, text string) (*Verdict, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "triage.process")
	defer span.End()

	start := e.clock.Now()

	var ext Extraction
	e.stage(ctx, tracer, "extract", func(ctx context.Context) {
		ext = e.extractor.Extract(ctx, text)
	})
	if ext.NERFailed && e.hooks.OnNERFailure != nil {
		e.hooks.OnNERFailure()
	}

	var urg Urgency
	e.stage(ctx, tracer, "score", func(context.Context) {
		urg = e.scorer.Score(text)
	})

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("triage cancelled: %w", err)
	}

	var (
		matches []MatchedResource
		rlog    []string
	)
	e.stage(ctx, tracer, "match", func(ctx context.Context) {
		matches, rlog = e.matcher.Match(ctx, ext.Needs, urg.Score, ext.Confidence)
	})

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("triage cancelled: %w", err)
	}

	v := &Verdict{
		Message:            text,
		Needs:              ext.Needs,
		PeopleAffected:     ext.People,
		Locations:          ext.Locations,
		LocationConfidence: ext.Confidence,
		UrgencyScore:       urg.Score,
		UrgencyReasons:     urg.Reasons,
		UrgencyExplanation: urg.Explanations,
		MatchedResources:   matches,
		ResourceLog:        rlog,
		Alert:              urg.Score >= e.threshold || ext.Confidence != ConfidenceHigh,
		Timestamp:          e.clock.Now(),
	}

	span.SetAttributes(
		attribute.Int("lifeline.urgency_score", v.UrgencyScore),
		attribute.String("lifeline.location_confidence", string(v.LocationConfidence)),
		attribute.Int("lifeline.needs", len(v.Needs)),
		attribute.Int("lifeline.matches", len(v.MatchedResources)),
		attribute.Bool("lifeline.alert", v.Alert),
	)

	if e.hooks.OnComplete != nil {
		e.hooks.OnComplete(v, e.clock.Since(start).Seconds())
	}
	return v, nil
}

func (e *Engine) stage(ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context)) {
	ctx, span := tracer.Start(ctx, "triage."+name)
	defer span.End()
	start := e.clock.Now()
	fn(ctx)
	if e.hooks.OnStage != nil {
		e.hooks.OnStage(name, e.clock.Since(start).Seconds())
	}
}
