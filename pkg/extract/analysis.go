package extract

import "time"

// Analysis is the validated result of one oracle call. Every field is
// present; anything the oracle omitted or got wrong is left at its zero
// value or dropped.
type Analysis struct {
	Categories              []Category
	CoreThemes              []string
	MainConcepts            []Concept
	Entities                []Entity
	Event                   *EventInfo
	RelatedConcepts         []Concept
	ConceptRelationships    []ConceptRelation
	Summary                 string
	RelatedToExistingEvents []string

	// Raw is the repaired JSON the analysis was parsed from.
	Raw string
}

// Category is a domain mention. Parent is set when the oracle used the
// "parent > child" notation.
type Category struct {
	Name   string
	Parent string
}

type Concept struct {
	Name        string
	Description string
	Confidence  float64
}

type Entity struct {
	Name         string
	EntityType   string
	Description  string
	MentionCount int
}

// EventInfo is only present when the oracle named an event. Date is nil
// unless the oracle returned a valid YYYY-MM-DD date.
type EventInfo struct {
	Name        string
	Date        *time.Time
	EventType   string
	Description string
}

type ConceptRelation struct {
	Source           string
	Target           string
	RelationshipType string
	Weight           float64
}

// responseSchema mirrors the wire contract and is only used to derive the
// JSON schema sent with the request.
type responseSchema struct {
	Category                []string                `json:"category"`
	CoreThemes              []string                `json:"core_themes"`
	MainConcepts            []schemaConcept         `json:"main_concepts"`
	Entities                []schemaEntity          `json:"entities"`
	EventInfo               schemaEvent             `json:"event_info"`
	RelatedConcepts         []schemaRelatedConcept  `json:"related_concepts"`
	ConceptRelationships    []schemaConceptRelation `json:"concept_relationships"`
	Summary                 string                  `json:"summary"`
	RelatedToExistingEvents []string                `json:"related_to_existing_events"`
}

type schemaConcept struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type schemaRelatedConcept struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type schemaEntity struct {
	Name         string `json:"name"`
	EntityType   string `json:"entity_type"`
	MentionCount int    `json:"mention_count"`
}

type schemaEvent struct {
	EventName   string `json:"event_name"`
	EventDate   string `json:"event_date"`
	EventType   string `json:"event_type"`
	Description string `json:"description"`
}

type schemaConceptRelation struct {
	Source           string  `json:"source"`
	Target           string  `json:"target"`
	RelationshipType string  `json:"relationship_type"`
	Weight           float64 `json:"weight"`
}
