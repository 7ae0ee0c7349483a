// Package lexicon holds the static keyword tables that drive triage: need
// categories and their trigger phrases, weighted urgency rules, and the set
// of location names considered too ambiguous to dispatch on without
// confirmation.
//
// A Lexicon is loaded once at startup and never mutated afterwards. Any
// problem loading or validating it is a configuration error and the process
// must not serve requests with a partial table.
package lexicon

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Category is a need classification.
type Category string

// Need categories.
const (
	Water   Category = "water"
	Food    Category = "food"
	Medical Category = "medical"
	Rescue  Category = "rescue"
	Shelter Category = "shelter"
)

// Categories lists every known need category.
var Categories = []Category{Water, Food, Medical, Rescue, Shelter}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

const (
	defaultScoreCeiling   = 100
	defaultAlertThreshold = 30
)

var defaultPeopleNouns = []string{"people", "persons", "families"}

// ErrInvalid is returned for every lexicon that fails validation.
var ErrInvalid = errors.New("invalid lexicon")

//go:embed default.yaml
var defaultYAML []byte

//go:embed schema.json
var schemaJSON string

// NeedEntry maps a category to its trigger phrases.
type NeedEntry struct {
	Category Category `yaml:"category"`
	Triggers []string `yaml:"triggers"`
}

// UrgencyRule adds Weight to the urgency score when Keyword occurs in a message.
type UrgencyRule struct {
	Keyword string `yaml:"keyword"`
	Weight  int    `yaml:"weight"`
}

type document struct {
	Needs              []NeedEntry   `yaml:"needs"`
	Urgency            []UrgencyRule `yaml:"urgency"`
	AmbiguousLocations []string      `yaml:"ambiguous_locations"`
	PeopleNouns        []string      `yaml:"people_nouns"`
	ScoreCeiling       *int          `yaml:"score_ceiling"`
	AlertThreshold     *int          `yaml:"alert_threshold"`
}

// Lexicon is the immutable set of keyword tables used by the triage engine.
// Triggers, keywords and location names are stored lower-cased; the original
// spelling of urgency keywords is kept for reporting.
type Lexicon struct {
	needs          []NeedEntry
	urgency        []UrgencyRule
	ambiguous      map[string]struct{}
	peopleNouns    []string
	scoreCeiling   int
	alertThreshold int
}

// Default returns the built-in lexicon.
func Default() *Lexicon {
	lx, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("lexicon: built-in table is invalid: %v", err))
	}
	return lx
}

// Load reads and validates a YAML lexicon file.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	lx, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return lx, nil
}

// Parse decodes and validates a YAML lexicon document.
func Parse(data []byte) (*Lexicon, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalid)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %w", ErrInvalid, err)
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %w", ErrInvalid, err)
	}
	return build(&doc)
}

func validateSchema(raw any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("%w: schema check: %w", ErrInvalid, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func build(doc *document) (*Lexicon, error) {
	var errs []error

	lx := &Lexicon{
		ambiguous:      make(map[string]struct{}, len(doc.AmbiguousLocations)),
		scoreCeiling:   defaultScoreCeiling,
		alertThreshold: defaultAlertThreshold,
	}

	seenCat := make(map[Category]bool, len(doc.Needs))
	for _, n := range doc.Needs {
		if !n.Category.Valid() {
			errs = append(errs, fmt.Errorf("unknown category %q", n.Category))
			continue
		}
		if seenCat[n.Category] {
			errs = append(errs, fmt.Errorf("duplicate category %q", n.Category))
			continue
		}
		seenCat[n.Category] = true

		entry := NeedEntry{Category: n.Category, Triggers: make([]string, 0, len(n.Triggers))}
		for _, t := range n.Triggers {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" {
				errs = append(errs, fmt.Errorf("category %q has a blank trigger", n.Category))
				continue
			}
			entry.Triggers = append(entry.Triggers, t)
		}
		lx.needs = append(lx.needs, entry)
	}

	seenKw := make(map[string]bool, len(doc.Urgency))
	for _, r := range doc.Urgency {
		kw := strings.TrimSpace(r.Keyword)
		key := strings.ToLower(kw)
		switch {
		case kw == "":
			errs = append(errs, errors.New("urgency rule has a blank keyword"))
			continue
		case r.Weight <= 0:
			errs = append(errs, fmt.Errorf("urgency rule %q has non-positive weight %d", kw, r.Weight))
			continue
		case seenKw[key]:
			errs = append(errs, fmt.Errorf("duplicate urgency keyword %q", kw))
			continue
		}
		seenKw[key] = true
		lx.urgency = append(lx.urgency, UrgencyRule{Keyword: kw, Weight: r.Weight})
	}

	for _, loc := range doc.AmbiguousLocations {
		if key := strings.ToLower(strings.TrimSpace(loc)); key != "" {
			lx.ambiguous[key] = struct{}{}
		}
	}

	lx.peopleNouns = defaultPeopleNouns
	if len(doc.PeopleNouns) > 0 {
		lx.peopleNouns = make([]string, 0, len(doc.PeopleNouns))
		for _, n := range doc.PeopleNouns {
			lx.peopleNouns = append(lx.peopleNouns, strings.ToLower(strings.TrimSpace(n)))
		}
	}

	if doc.ScoreCeiling != nil {
		lx.scoreCeiling = *doc.ScoreCeiling
	}
	if doc.AlertThreshold != nil {
		lx.alertThreshold = *doc.AlertThreshold
	}
	if lx.scoreCeiling > 0 && lx.alertThreshold > lx.scoreCeiling {
		errs = append(errs, fmt.Errorf("alert_threshold %d exceeds score_ceiling %d", lx.alertThreshold, lx.scoreCeiling))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return lx, nil
}

// Needs returns the need table in configuration order.
func (l *Lexicon) Needs() []NeedEntry {
	out := make([]NeedEntry, len(l.needs))
	for i, n := range l.needs {
		out[i] = NeedEntry{Category: n.Category, Triggers: append([]string(nil), n.Triggers...)}
	}
	return out
}

// Urgency returns the urgency rules in configuration order.
func (l *Lexicon) Urgency() []UrgencyRule {
	return append([]UrgencyRule(nil), l.urgency...)
}

// IsAmbiguous reports whether loc names an ambiguous location, ignoring case
// and surrounding whitespace.
func (l *Lexicon) IsAmbiguous(loc string) bool {
	_, ok := l.ambiguous[strings.ToLower(strings.TrimSpace(loc))]
	return ok
}

// PeopleNouns returns the nouns that may follow a headcount ("12 families").
func (l *Lexicon) PeopleNouns() []string {
	return append([]string(nil), l.peopleNouns...)
}

// ScoreCeiling is the maximum urgency score. Zero means unbounded.
func (l *Lexicon) ScoreCeiling() int { return l.scoreCeiling }

// AlertThreshold is the urgency score at or above which a verdict alerts.
func (l *Lexicon) AlertThreshold() int { return l.alertThreshold }
