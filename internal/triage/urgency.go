package triage

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/lifeline/internal/lexicon"
)

// Scorer sums weighted keyword hits into an urgency score.
type Scorer struct {
	rules   []lexicon.UrgencyRule
	lowered []string
	ceiling int
}

// NewScorer builds a Scorer from the lexicon's urgency rules.
func NewScorer(lex *lexicon.Lexicon) *Scorer {
	rules := lex.Urgency()
	lowered := make([]string, len(rules))
	for i, r := range rules {
		lowered[i] = strings.ToLower(r.Keyword)
	}
	return &Scorer{rules: rules, lowered: lowered, ceiling: lex.ScoreCeiling()}
}

// Score applies every rule whose keyword occurs in text. Each matching rule
// contributes once, related keywords are not deduplicated, and the total is
// clamped to the lexicon's ceiling when one is set.
func (s *Scorer) Score(text string) Urgency {
	t := strings.ToLower(text)
	u := Urgency{Reasons: []string{}, Explanations: []string{}}
	for i, r := range s.rules {
		if !strings.Contains(t, s.lowered[i]) {
			continue
		}
		u.Score += r.Weight
		u.Reasons = append(u.Reasons, r.Keyword)
		u.Explanations = append(u.Explanations, fmt.Sprintf("Detected '%s'", r.Keyword))
	}
	if s.ceiling > 0 && u.Score > s.ceiling {
		u.Score = s.ceiling
	}
	return u
}
