package relate

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/logger"
	"github.com/knowledgesnode/backend/pkg/metrics"
)

const (
	// EventScore is the fixed score of a shared-event edge.
	EventScore = 0.8

	conceptScoreBase = 0.5
	conceptScoreStep = 0.1
	conceptScoreCap  = 0.9
)

// Store is what the builder needs from persistence.
//
// CreateArticleRelationship inserts a new edge and reports created=false
// without error when (source, target, type) already exists.
// UpsertArticleRelationship inserts or overwrites the score.
type Store interface {
	ArticlesSharingEvents(ctx context.Context, articleID int64) ([]int64, error)
	ArticlesSharingKeyConcepts(ctx context.Context, articleID int64) ([]common.SharedConcepts, error)
	ArticleRelationshipExists(ctx context.Context, sourceID, targetID int64, types ...string) (bool, error)
	CreateArticleRelationship(ctx context.Context, rel common.ArticleRelationship) (common.ArticleRelationship, bool, error)
	UpsertArticleRelationship(ctx context.Context, rel common.ArticleRelationship) (common.ArticleRelationship, error)
}

// EventEdgePolicy controls how shared-event edges treat an existing edge
// of the same type.
type EventEdgePolicy int

const (
	// EventEdgeSkipExisting leaves an existing RELATED_TO edge alone.
	EventEdgeSkipExisting EventEdgePolicy = iota
	// EventEdgeRecompute rewrites the edge on every run.
	EventEdgeRecompute
)

func ParseEventEdgePolicy(s string) (EventEdgePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip", "skip_existing", "dedupe":
		return EventEdgeSkipExisting, nil
	case "recompute", "upsert":
		return EventEdgeRecompute, nil
	default:
		return EventEdgeSkipExisting, fmt.Errorf("unknown event edge policy %q", s)
	}
}

// ConceptScore is the score of a shared-concept edge for n shared key
// concepts: 0.5 + n/10, capped at 0.9.
func ConceptScore(n int) float64 {
	if n < 0 {
		n = 0
	}
	return math.Min(conceptScoreCap, conceptScoreBase+float64(n)*conceptScoreStep)
}

// PairFailure records an article pair that could not be linked.
type PairFailure struct {
	SourceID int64
	TargetID int64
	Rule     string
	Err      error
}

func (f PairFailure) Error() string {
	return fmt.Sprintf("%s %d->%d: %v", f.Rule, f.SourceID, f.TargetID, f.Err)
}

type Result struct {
	Edges    []common.ArticleRelationship
	Failures []PairFailure
}

// Builder derives article to article edges from shared events and shared
// key concepts. Edges are directed from the article being linked to the
// other article; the reverse edge is created when the other article is
// linked.
type Builder struct {
	store   Store
	policy  EventEdgePolicy
	metrics *metrics.Collector
}

type Option func(*Builder)

func WithEventEdgePolicy(p EventEdgePolicy) Option {
	return func(b *Builder) {
		b.policy = p
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

func NewBuilder(store Store, opts ...Option) *Builder {
	b := &Builder{store: store, policy: EventEdgeSkipExisting}
	for _, o := range opts {
		o(b)
	}
	return b
}

// WithStore returns a builder with the same options over store.
func (b *Builder) WithStore(store Store) *Builder {
	return &Builder{store: store, policy: b.policy, metrics: b.metrics}
}

// LinkArticle applies the shared-event rule and then the shared-concept
// rule. A failing pair is recorded and the remaining pairs are still
// linked; only failing to list candidates is returned as an error.
func (b *Builder) LinkArticle(ctx context.Context, articleID int64) (Result, error) {
	var res Result

	byEvent, err := b.store.ArticlesSharingEvents(ctx, articleID)
	if err != nil {
		return res, fmt.Errorf("failed to find articles sharing events: %w", err)
	}
	for _, other := range byEvent {
		if other == articleID {
			continue
		}
		rel, created, err := b.linkByEvent(ctx, articleID, other)
		if err != nil {
			res.Failures = append(res.Failures, PairFailure{SourceID: articleID, TargetID: other, Rule: common.RelatedTo, Err: err})
			continue
		}
		if created {
			res.Edges = append(res.Edges, rel)
		}
	}

	byConcept, err := b.store.ArticlesSharingKeyConcepts(ctx, articleID)
	if err != nil {
		b.report(articleID, res)
		return res, fmt.Errorf("failed to find articles sharing concepts: %w", err)
	}
	for _, shared := range byConcept {
		if shared.ArticleID == articleID || shared.Count <= 0 {
			continue
		}
		rel, created, err := b.linkByConcept(ctx, articleID, shared)
		if err != nil {
			res.Failures = append(res.Failures, PairFailure{SourceID: articleID, TargetID: shared.ArticleID, Rule: common.RelatedByConcept, Err: err})
			continue
		}
		if created {
			res.Edges = append(res.Edges, rel)
		}
	}

	b.report(articleID, res)
	return res, nil
}

func (b *Builder) linkByEvent(ctx context.Context, source, target int64) (common.ArticleRelationship, bool, error) {
	rel := common.ArticleRelationship{
		SourceArticleID:  source,
		TargetArticleID:  target,
		RelationshipType: common.RelatedTo,
		SimilarityScore:  EventScore,
	}
	if b.policy == EventEdgeRecompute {
		out, err := b.store.UpsertArticleRelationship(ctx, rel)
		return out, err == nil, err
	}
	return b.store.CreateArticleRelationship(ctx, rel)
}

func (b *Builder) linkByConcept(ctx context.Context, source int64, shared common.SharedConcepts) (common.ArticleRelationship, bool, error) {
	exists, err := b.store.ArticleRelationshipExists(ctx, source, shared.ArticleID, common.RelatedTo, common.RelatedByConcept)
	if err != nil {
		return common.ArticleRelationship{}, false, err
	}
	if exists {
		return common.ArticleRelationship{}, false, nil
	}
	return b.store.CreateArticleRelationship(ctx, common.ArticleRelationship{
		SourceArticleID:  source,
		TargetArticleID:  shared.ArticleID,
		RelationshipType: common.RelatedByConcept,
		SimilarityScore:  ConceptScore(shared.Count),
	})
}

func (b *Builder) report(articleID int64, res Result) {
	for _, e := range res.Edges {
		b.metrics.ArticleRelationship(e.RelationshipType)
	}
	for _, f := range res.Failures {
		logger.Warn("[Relate] Pair skipped", "source", f.SourceID, "target", f.TargetID, "rule", f.Rule, "err", f.Err)
	}
	b.metrics.PairFailures("relate", len(res.Failures))
	logger.Debug("[Relate] Article linked", "article_id", articleID, "edges", len(res.Edges), "failures", len(res.Failures))
}
