package common

import "time"

// ProcessingStatus is the lifecycle state of an ingested article.
//
// Articles move from pending to processing when a worker picks them up and
// end in either completed or failed. A failed article carries an error
// message describing the first fatal step.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Relationship type labels shared by the relational store and the mirror.
const (
	RelatedTo        = "RELATED_TO"
	RelatedByConcept = "RELATED_BY_CONCEPT"
	PartOf           = "PART_OF"
	Mentions         = "MENTIONS"
	SimilarTo        = "SIMILAR_TO"
	BelongsTo        = "BELONGS_TO"
)

// DefaultEntityType is used when the extraction does not name a type.
const DefaultEntityType = "기타"

// Domain is a hierarchical topic category. The parent relation forms a
// forest; domains without children are leaves.
type Domain struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// DomainNode is a domain together with its direct children.
type DomainNode struct {
	Domain
	Children []DomainNode `json:"children"`
}

// Concept is a canonical named idea. (Name, DomainID) is unique; a nil
// DomainID is its own scope.
type Concept struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
	DomainID    *int64    `json:"domain_id,omitempty"`
	Embedding   []float32 `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasEmbedding reports whether the concept takes part in similarity linking.
func (c Concept) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// Entity is a named real-world referent. (Name, EntityType) is unique.
type Entity struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	EntityType  string    `json:"entity_type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Event is a real-world occurrence with a unique name.
type Event struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	EventDate   *time.Time `json:"event_date,omitempty"`
	EventType   string     `json:"event_type"`
	DomainID    *int64     `json:"domain_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EventSummary is an event with the number of articles referencing it.
type EventSummary struct {
	Event
	ArticleCount int `json:"article_count"`
}

// EntitySummary is an entity with its accumulated mention count.
type EntitySummary struct {
	Entity
	MentionCount int `json:"mention_count"`
}

// Article is the unit of ingestion.
type Article struct {
	ID            int64            `json:"id"`
	Title         string           `json:"title"`
	URL           string           `json:"url"`
	Content       string           `json:"content,omitempty"`
	Summary       string           `json:"summary"`
	Source        string           `json:"source"`
	PublishedDate *time.Time       `json:"published_date,omitempty"`
	Status        ProcessingStatus `json:"processing_status"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type ArticleConcept struct {
	ArticleID    int64   `json:"article_id"`
	ConceptID    int64   `json:"concept_id"`
	Confidence   float64 `json:"confidence"`
	IsKeyConcept bool    `json:"is_key_concept"`
}

type ArticleEntity struct {
	ArticleID    int64   `json:"article_id"`
	EntityID     int64   `json:"entity_id"`
	Confidence   float64 `json:"confidence"`
	MentionCount int     `json:"mention_count"`
}

type ArticleEvent struct {
	ArticleID        int64   `json:"article_id"`
	EventID          int64   `json:"event_id"`
	RelationshipType string  `json:"relationship_type"`
	Confidence       float64 `json:"confidence"`
}

// ArticleRelationship is a directed, typed edge between two articles.
// (SourceArticleID, TargetArticleID, RelationshipType) is unique.
type ArticleRelationship struct {
	ID               int64     `json:"id"`
	SourceArticleID  int64     `json:"source_article_id"`
	TargetArticleID  int64     `json:"target_article_id"`
	RelationshipType string    `json:"relationship_type"`
	SimilarityScore  float64   `json:"similarity_score"`
	CreatedAt        time.Time `json:"created_at"`
}

// ConceptRelationship is a typed edge between two concepts stated by the
// extraction of ArticleID.
type ConceptRelationship struct {
	ID               int64   `json:"id"`
	SourceConceptID  int64   `json:"source_concept_id"`
	TargetConceptID  int64   `json:"target_concept_id"`
	RelationshipType string  `json:"relationship_type"`
	Weight           float64 `json:"weight"`
	ArticleID        *int64  `json:"article_id,omitempty"`
}

// Connection is an embedding similarity edge between two concepts. It is
// unique per unordered pair.
type Connection struct {
	ID       int64   `json:"id"`
	SourceID int64   `json:"source_id"`
	TargetID int64   `json:"target_id"`
	Strength float64 `json:"strength"`
}

// RelatedArticle is an outgoing article edge joined with the target title.
type RelatedArticle struct {
	ArticleID        int64   `json:"article_id"`
	Title            string  `json:"title"`
	URL              string  `json:"url"`
	RelationshipType string  `json:"relationship_type"`
	SimilarityScore  float64 `json:"similarity_score"`
	Origin           string  `json:"origin"`
}

// RelatedConcept is a concept reachable from another one, either through
// a similarity connection or a relationship stated by an extraction.
type RelatedConcept struct {
	ConceptID    int64   `json:"concept_id"`
	Name         string  `json:"name"`
	Relationship string  `json:"relationship"`
	Weight       float64 `json:"weight"`
}

// SharedConcepts counts key concepts another article has in common with
// the article being linked.
type SharedConcepts struct {
	ArticleID int64
	Count     int
}

// GraphNode and GraphEdge describe an article neighbourhood for display.
type GraphNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

type GraphEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight,omitempty"`
}

type Subgraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// ExtractionHints gives the extraction prompt context about what already
// exists in the store.
type ExtractionHints struct {
	LeafDomains   []string
	Domains       []string
	RecentEvents  []string
	KnownConcepts []string
}
