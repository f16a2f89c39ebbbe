package graph

import (
	"context"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/logger"
	"github.com/knowledgesnode/backend/pkg/mirror"
)

type nodeKey struct {
	kind mirror.NodeKind
	id   int64
}

// batchBuilder collects the mirror writes of one article while it is
// persisted. Nodes are deduplicated; the last properties win.
type batchBuilder struct {
	articleID int64
	index     map[nodeKey]int
	batch     mirror.Batch
}

func newBatchBuilder(a common.Article, summary string) *batchBuilder {
	b := &batchBuilder{articleID: a.ID, index: make(map[nodeKey]int)}
	props := map[string]any{
		"title":   a.Title,
		"url":     a.URL,
		"source":  a.Source,
		"summary": summary,
	}
	if a.PublishedDate != nil {
		props["published_date"] = a.PublishedDate.Format("2006-01-02")
	}
	b.node(mirror.NodeArticle, a.ID, props)
	return b
}

func (b *batchBuilder) node(kind mirror.NodeKind, id int64, props map[string]any) {
	key := nodeKey{kind, id}
	if i, ok := b.index[key]; ok {
		b.batch.Nodes[i].Props = props
		return
	}
	b.index[key] = len(b.batch.Nodes)
	b.batch.Nodes = append(b.batch.Nodes, mirror.Node{Kind: kind, ID: id, Props: props})
}

func (b *batchBuilder) edge(src, dst mirror.NodeKind, srcID, dstID int64, relType string, props map[string]any) {
	b.batch.Edges = append(b.batch.Edges, mirror.Edge{
		Kind:     mirror.EdgeKind{Source: src, Target: dst},
		SourceID: srcID,
		TargetID: dstID,
		Type:     mirror.SanitizeTypeLabel(relType, common.RelatedTo),
		Props:    props,
	})
}

func (b *batchBuilder) domain(d common.Domain) {
	b.node(mirror.NodeDomain, d.ID, map[string]any{"name": d.Name, "description": d.Description})
	b.edge(mirror.NodeArticle, mirror.NodeDomain, b.articleID, d.ID, common.BelongsTo, nil)
	if d.ParentID != nil {
		b.edge(mirror.NodeDomain, mirror.NodeDomain, d.ID, *d.ParentID, common.PartOf, nil)
	}
}

func (b *batchBuilder) concept(c common.Concept) {
	b.node(mirror.NodeConcept, c.ID, map[string]any{
		"name":        c.Name,
		"description": c.Description,
		"confidence":  c.Confidence,
	})
}

func (b *batchBuilder) articleConcept(c common.Concept, link common.ArticleConcept) {
	b.concept(c)
	b.edge(mirror.NodeArticle, mirror.NodeConcept, b.articleID, c.ID, common.Mentions, map[string]any{
		"confidence":     link.Confidence,
		"is_key_concept": link.IsKeyConcept,
	})
}

func (b *batchBuilder) articleEntity(e common.Entity, link common.ArticleEntity) {
	b.node(mirror.NodeEntity, e.ID, map[string]any{
		"name":        e.Name,
		"entity_type": e.EntityType,
		"description": e.Description,
	})
	b.edge(mirror.NodeArticle, mirror.NodeEntity, b.articleID, e.ID, common.Mentions, map[string]any{
		"confidence":    link.Confidence,
		"mention_count": link.MentionCount,
	})
}

func (b *batchBuilder) articleEvent(ev common.Event, link common.ArticleEvent) {
	props := map[string]any{
		"name":        ev.Name,
		"description": ev.Description,
		"event_type":  ev.EventType,
	}
	if ev.EventDate != nil {
		props["event_date"] = ev.EventDate.Format("2006-01-02")
	}
	b.node(mirror.NodeEvent, ev.ID, props)
	b.edge(mirror.NodeArticle, mirror.NodeEvent, b.articleID, ev.ID, link.RelationshipType, map[string]any{
		"confidence": link.Confidence,
	})
}

func (b *batchBuilder) conceptRelation(source, target common.Concept, rel common.ConceptRelationship) {
	b.concept(source)
	b.concept(target)
	b.edge(mirror.NodeConcept, mirror.NodeConcept, source.ID, target.ID, rel.RelationshipType, map[string]any{
		"weight": rel.Weight,
		"type":   rel.RelationshipType,
	})
}

func (b *batchBuilder) connection(c common.Connection) {
	b.edge(mirror.NodeConcept, mirror.NodeConcept, c.SourceID, c.TargetID, common.SimilarTo, map[string]any{
		"strength": c.Strength,
	})
}

func (b *batchBuilder) articleRelation(r common.ArticleRelationship) {
	b.edge(mirror.NodeArticle, mirror.NodeArticle, r.SourceArticleID, r.TargetArticleID, r.RelationshipType, map[string]any{
		"similarity_score": r.SimilarityScore,
	})
}

// mirror hands the article's batch to the publisher. Failures never reach
// the caller.
func (g *GraphClient) mirror(ctx context.Context, articleID int64, res *ProcessResult) {
	if g.publisher == nil || res.batch == nil {
		return
	}
	for _, c := range res.Connections {
		res.batch.connection(c)
	}
	for _, r := range res.Relations.Edges {
		res.batch.articleRelation(r)
	}
	logger.Debug("[Graph] Publishing mirror batch",
		"article_id", articleID,
		"nodes", len(res.batch.batch.Nodes),
		"edges", len(res.batch.batch.Edges),
	)
	g.publisher.Publish(res.batch.batch)
}
