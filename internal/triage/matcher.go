package triage

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/jonboulle/clockwork"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lifeline/internal/lexicon"
)

// Priority adjustments applied to each candidate on top of the urgency score.
const (
	busyPenalty      = 40
	availableBonus   = 10
	ambiguousPenalty = 15
)

var etaRe = regexp.MustCompile(`\d+`)

// Matcher picks the best registry resource for each need.
type Matcher struct {
	registry Registry
	clock    clockwork.Clock
	logger   log.Logger
}

// NewMatcher builds a Matcher reading from registry.
func NewMatcher(registry Registry, clock clockwork.Clock, logger log.Logger) *Matcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Matcher{registry: registry, clock: clock, logger: logger}
}

// Match selects at most one resource per need and returns the matches with a
// human-readable log of how they were chosen. The registry is read once per
// call so results always reflect current availability.
func (m *Matcher) Match(ctx context.Context, needs []lexicon.Category, urgency int, conf Confidence) ([]MatchedResource, []string) {
	matches := []MatchedResource{}
	var resources []Resource
	if m.registry != nil {
		resources = m.registry.CurrentResources(ctx)
	}
	if len(resources) == 0 {
		m.logger.Warn(ctx, "resource registry unavailable")
		return matches, []string{"Resource registry unavailable"}
	}

	var lines []string
	for _, need := range needs {
		var (
			best  *MatchedResource
			found bool
		)
		for _, r := range resources {
			if r.Type != need {
				continue
			}
			mr, err := score(r, urgency, conf)
			if err != nil {
				m.logger.Warn(ctx, "skipping resource with unparseable eta",
					"resource_id", r.ID,
					"resource", r.Name,
					"eta", r.ETA,
				)
				lines = append(lines, fmt.Sprintf("Skipped resource '%s': unparseable ETA '%s'", r.Name, r.ETA))
				continue
			}
			found = true
			// strict comparison keeps the first of equal scores
			if best == nil || mr.PriorityScore > best.PriorityScore {
				best = &mr
			}
		}
		if !found {
			lines = append(lines, fmt.Sprintf("No available resource for '%s'", need))
			continue
		}
		matches = append(matches, *best)
		lines = append(lines, fmt.Sprintf("Matched '%s' for '%s' (score=%d)", best.Name, need, best.PriorityScore))
	}

	if conf == ConfidenceLow {
		lines = append(lines, "Ambiguous location - dispatcher confirmation required")
	}
	lines = append(lines, "Registry checked at "+m.clock.Now().Format("15:04:05"))
	return matches, lines
}

func score(r Resource, urgency int, conf Confidence) (MatchedResource, error) {
	eta, err := ParseETA(r.ETA)
	if err != nil {
		return MatchedResource{}, err
	}

	mr := MatchedResource{
		ID:            r.ID,
		Name:          r.Name,
		Type:          r.Type,
		Status:        r.Status,
		ETA:           r.ETA,
		PriorityScore: urgency,
	}
	if r.Status == StatusAvailable {
		mr.PriorityScore += availableBonus
		mr.Reasons = append(mr.Reasons, "Resource available")
	} else {
		mr.PriorityScore -= busyPenalty
		mr.Reasons = append(mr.Reasons, "Resource busy")
	}

	mr.PriorityScore -= eta
	mr.Reasons = append(mr.Reasons, fmt.Sprintf("ETA penalty %d min", eta))

	if conf == ConfidenceLow {
		mr.PriorityScore -= ambiguousPenalty
		mr.Reasons = append(mr.Reasons, "Ambiguous location")
	}
	return mr, nil
}

// ParseETA returns the first integer in a free-text ETA such as "10 min".
func ParseETA(eta string) (int, error) {
	digits := etaRe.FindString(eta)
	if digits == "" {
		return 0, fmt.Errorf("no minutes in eta %q", eta)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("eta %q: %w", eta, err)
	}
	return n, nil
}
