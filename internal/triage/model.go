package triage

import (
	"time"

	"github.com/linnemanlabs/lifeline/internal/lexicon"
)

// Confidence classifies how trustworthy an extracted location is.
type Confidence string

const (
	// ConfidenceUnknown means no location was recognised
	ConfidenceUnknown Confidence = "unknown"

	// ConfidenceLow means at least one location is on the ambiguous list
	ConfidenceLow Confidence = "low"

	// ConfidenceHigh means every location is specific
	ConfidenceHigh Confidence = "high"
)

// ResourceStatus is the dispatch state of a registry resource.
type ResourceStatus string

// StatusAvailable is the only status that earns the availability bonus;
// every other value is treated as busy.
const StatusAvailable ResourceStatus = "available"

// EntitySpan is one entity recognised in a message by the NER collaborator.
type EntitySpan struct {
	Text       string   `json:"text"`
	Category   string   `json:"category"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Resource is a dispatchable asset from the resource registry.
type Resource struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Type   lexicon.Category `json:"type"`
	Status ResourceStatus   `json:"status"`
	ETA    string           `json:"eta"`
}

// MatchedResource is a resource chosen for one need, with its priority score
// and the reasons that produced it.
type MatchedResource struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Type          lexicon.Category `json:"type"`
	Status        ResourceStatus   `json:"status"`
	ETA           string           `json:"eta"`
	PriorityScore int              `json:"priority_score"`
	Reasons       []string         `json:"reason"`
}

// Extraction is the Extractor's view of a message.
type Extraction struct {
	Needs      []lexicon.Category
	People     *int
	Locations  []string
	Confidence Confidence
	NERFailed  bool
}

// Urgency is the Urgency Scorer's result.
type Urgency struct {
	Score        int
	Reasons      []string
	Explanations []string
}

// Verdict is the complete analysis of one message. It is built once by the
// Engine and not modified afterwards, apart from the ID the Service assigns.
type Verdict struct {
	ID                 string             `json:"id,omitempty"`
	Message            string             `json:"message"`
	Needs              []lexicon.Category `json:"needs"`
	PeopleAffected     *int               `json:"people_affected"`
	Locations          []string           `json:"location"`
	LocationConfidence Confidence         `json:"location_confidence"`
	UrgencyScore       int                `json:"urgency_score"`
	UrgencyReasons     []string           `json:"urgency_reasons"`
	UrgencyExplanation []string           `json:"urgency_explanation"`
	MatchedResources   []MatchedResource  `json:"matched_resources"`
	ResourceLog        []string           `json:"resource_log"`
	Alert              bool               `json:"alert"`
	Timestamp          time.Time          `json:"timestamp"`
}
