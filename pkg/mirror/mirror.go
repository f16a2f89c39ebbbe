package mirror

import (
	"context"
	"regexp"
	"strings"
	"unicode"
)

// NodeKind is the label of a mirrored node.
type NodeKind string

const (
	NodeArticle NodeKind = "Article"
	NodeConcept NodeKind = "Concept"
	NodeEntity  NodeKind = "Entity"
	NodeEvent   NodeKind = "Event"
	NodeDomain  NodeKind = "Domain"
)

func (k NodeKind) Valid() bool {
	switch k {
	case NodeArticle, NodeConcept, NodeEntity, NodeEvent, NodeDomain:
		return true
	}
	return false
}

// EdgeKind names the endpoint labels of an edge.
type EdgeKind struct {
	Source NodeKind
	Target NodeKind
}

var typeLabelPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{0,63}$`)

// ValidTypeLabel reports whether s can be used as a relationship type.
// Types cannot be query parameters, so only upper snake case is accepted.
func ValidTypeLabel(s string) bool {
	return typeLabelPattern.MatchString(s)
}

// SanitizeTypeLabel maps a free-form relationship type such as
// "part of" to PART_OF. It returns fallback when nothing usable is left.
func SanitizeTypeLabel(s, fallback string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		switch {
		case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.TrimRight(b.String(), "_")
	if !ValidTypeLabel(out) {
		return fallback
	}
	return out
}

// Sink is a secondary graph store kept eventually consistent with the
// relational store. Upserts match on (kind, id) and overwrite properties.
type Sink interface {
	UpsertNode(ctx context.Context, kind NodeKind, id int64, props map[string]any) error
	UpsertEdge(ctx context.Context, kind EdgeKind, sourceID, targetID int64, typeLabel string, props map[string]any) error
}

// BatchSink is implemented by sinks that can write a whole Batch in one
// round trip.
type BatchSink interface {
	Sink
	WriteBatch(ctx context.Context, batch Batch) error
}

type Node struct {
	Kind  NodeKind
	ID    int64
	Props map[string]any
}

type Edge struct {
	Kind     EdgeKind
	SourceID int64
	TargetID int64
	Type     string
	Props    map[string]any
}

// Batch is everything mirrored for one article. Nodes are written before
// edges.
type Batch struct {
	Nodes []Node
	Edges []Edge
}

func (b Batch) Empty() bool {
	return len(b.Nodes) == 0 && len(b.Edges) == 0
}

// SimilarArticle is an article found through the mirror.
type SimilarArticle struct {
	ArticleID    int64
	Title        string
	SharedEvents int
}

type RelatedConcept struct {
	ConceptID    int64
	Name         string
	Relationship string
	Weight       float64
}

// Querier reads from the mirror. Callers treat it as optional and fall
// back to the relational store.
type Querier interface {
	SimilarArticles(ctx context.Context, articleID int64, limit int) ([]SimilarArticle, error)
	RelatedConcepts(ctx context.Context, name string, limit int) ([]RelatedConcept, error)
}

// Noop discards everything. It is used when no mirror is configured.
type Noop struct{}

func (Noop) UpsertNode(context.Context, NodeKind, int64, map[string]any) error { return nil }

func (Noop) UpsertEdge(context.Context, EdgeKind, int64, int64, string, map[string]any) error {
	return nil
}
