package triage

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lifeline/internal/lexicon"
)

// locationCategories are the NER categories treated as locations. Models
// disagree on naming: CoNLL-trained models emit LOC, others LOCATION or GPE.
var locationCategories = map[string]bool{
	"LOC":      true,
	"LOCATION": true,
	"GPE":      true,
}

// Extractor derives needs, a headcount and locations from message text.
type Extractor struct {
	lex      *lexicon.Lexicon
	ner      Recognizer
	timeout  time.Duration
	logger   log.Logger
	peopleRe *regexp.Regexp
}

// NewExtractor builds an Extractor. A nil Recognizer recognises nothing; a
// zero timeout leaves NER calls bounded only by the caller's context.
func NewExtractor(lex *lexicon.Lexicon, ner Recognizer, timeout time.Duration, logger log.Logger) *Extractor {
	if ner == nil {
		ner = NopRecognizer{}
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Extractor{
		lex:      lex,
		ner:      ner,
		timeout:  timeout,
		logger:   logger,
		peopleRe: peoplePattern(lex.PeopleNouns()),
	}
}

func peoplePattern(nouns []string) *regexp.Regexp {
	quoted := make([]string, len(nouns))
	for i, n := range nouns {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return regexp.MustCompile(`(?i)(\d+)\s+(?:` + strings.Join(quoted, "|") + `)`)
}

// Extract analyses text. NER failures never fail extraction: they yield no
// locations and ConfidenceUnknown, and NERFailed is set on the result.
func (x *Extractor) Extract(ctx context.Context, text string) Extraction {
	ext := Extraction{
		Needs:      x.Needs(text),
		People:     x.People(text),
		Confidence: ConfidenceUnknown,
	}

	spans, err := x.recognize(ctx, text)
	if err != nil {
		ext.NERFailed = true
		x.logger.Warn(ctx, "entity recognition failed, continuing without location",
			"error", err,
			"timeout", errors.Is(err, context.DeadlineExceeded),
		)
		return ext
	}

	ext.Locations = Locations(spans)
	ext.Confidence = x.Confidence(ext.Locations)
	return ext
}

func (x *Extractor) recognize(ctx context.Context, text string) ([]EntitySpan, error) {
	if x.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}
	return x.ner.Recognize(ctx, text)
}

// Needs returns every category with a trigger occurring in text, in lexicon order.
func (x *Extractor) Needs(text string) []lexicon.Category {
	t := strings.ToLower(text)
	needs := []lexicon.Category{}
	for _, n := range x.lex.Needs() {
		for _, trig := range n.Triggers {
			if strings.Contains(t, trig) {
				needs = append(needs, n.Category)
				break
			}
		}
	}
	return needs
}

// People returns the first "<n> people|persons|families" count in text, or
// nil when there is none or the count is zero or out of range.
func (x *Extractor) People(text string) *int {
	m := x.peopleRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

// Confidence classifies a set of extracted locations.
func (x *Extractor) Confidence(locations []string) Confidence {
	if len(locations) == 0 {
		return ConfidenceUnknown
	}
	for _, loc := range locations {
		if x.lex.IsAmbiguous(loc) {
			return ConfidenceLow
		}
	}
	return ConfidenceHigh
}

// Locations keeps the surface text of location spans, first occurrence only.
func Locations(spans []EntitySpan) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range spans {
		if !locationCategories[strings.ToUpper(strings.TrimSpace(s.Category))] {
			continue
		}
		txt := strings.TrimSpace(s.Text)
		if txt == "" || seen[txt] {
			continue
		}
		seen[txt] = true
		out = append(out, txt)
	}
	return out
}
