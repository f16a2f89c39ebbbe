package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/store"
)

func (s *Store) GetConcept(ctx context.Context, id int64) (common.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.concepts[id]
	if !ok {
		return common.Concept{}, common.ErrNotFound
	}
	return cloneConcept(c), nil
}

func (s *Store) GetConcepts(ctx context.Context, ids []int64) ([]common.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Concept, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.concepts[id]; ok {
			out = append(out, cloneConcept(c))
		}
	}
	return out, nil
}

func (s *Store) ExtractionHints(ctx context.Context, maxEvents, maxConcepts int) (common.ExtractionHints, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hints common.ExtractionHints
	hasChild := make(map[int64]bool)
	for _, d := range s.domains {
		if d.ParentID != nil {
			hasChild[*d.ParentID] = true
		}
	}
	for _, id := range sortedKeys(s.domains) {
		d := s.domains[id]
		hints.Domains = append(hints.Domains, d.Name)
		if !hasChild[id] {
			hints.LeafDomains = append(hints.LeafDomains, d.Name)
		}
	}
	for _, id := range sortedKeys(s.events) {
		if len(hints.RecentEvents) >= maxEvents {
			break
		}
		hints.RecentEvents = append(hints.RecentEvents, s.events[id].Name)
	}
	names := make([]string, 0, len(s.concepts))
	for _, id := range sortedKeys(s.concepts) {
		names = append(names, s.concepts[id].Name)
	}
	// The same name may exist once per domain scope.
	hints.KnownConcepts = store.DedupeStrings(names)
	if len(hints.KnownConcepts) > maxConcepts {
		hints.KnownConcepts = hints.KnownConcepts[:maxConcepts]
	}
	return hints, nil
}

func (s *Store) ListArticleRelationships(ctx context.Context, articleID int64) ([]common.ArticleRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outgoing(articleID), nil
}

func (s *Store) outgoing(articleID int64) []common.ArticleRelationship {
	var out []common.ArticleRelationship
	for _, r := range s.articleRels {
		if r.SourceArticleID == articleID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SimilarityScore != out[j].SimilarityScore {
			return out[i].SimilarityScore > out[j].SimilarityScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) ListRelatedArticles(ctx context.Context, articleID int64) ([]common.RelatedArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.articles[articleID]; !ok {
		return nil, common.ErrNotFound
	}
	rels := s.outgoing(articleID)
	out := make([]common.RelatedArticle, 0, len(rels))
	for _, r := range rels {
		target := s.articles[r.TargetArticleID]
		out = append(out, common.RelatedArticle{
			ArticleID:        target.ID,
			Title:            target.Title,
			URL:              target.URL,
			RelationshipType: r.RelationshipType,
			SimilarityScore:  r.SimilarityScore,
			Origin:           "relational",
		})
	}
	return out, nil
}

func (s *Store) ArticleSubgraph(ctx context.Context, articleID int64) (common.Subgraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[articleID]
	if !ok {
		return common.Subgraph{}, common.ErrNotFound
	}

	root := fmt.Sprintf("a_%d", a.ID)
	g := common.Subgraph{
		Nodes: []common.GraphNode{{ID: root, Label: a.Title, Type: "article"}},
	}

	var links []*common.ArticleConcept
	for k, v := range s.articleConcs {
		if k.article == articleID {
			links = append(links, v)
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].ConceptID < links[j].ConceptID })
	for _, l := range links {
		c := s.concepts[l.ConceptID]
		id := fmt.Sprintf("c_%d", c.ID)
		g.Nodes = append(g.Nodes, common.GraphNode{
			ID: id, Label: c.Name, Type: "concept",
			Properties: map[string]any{"is_key_concept": l.IsKeyConcept},
		})
		g.Edges = append(g.Edges, common.GraphEdge{Source: root, Target: id, Type: common.Mentions, Weight: l.Confidence})
	}

	var ents []*common.ArticleEntity
	for k, v := range s.articleEnts {
		if k.article == articleID {
			ents = append(ents, v)
		}
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].EntityID < ents[j].EntityID })
	for _, l := range ents {
		e := s.entities[l.EntityID]
		id := fmt.Sprintf("e_%d", e.ID)
		g.Nodes = append(g.Nodes, common.GraphNode{
			ID: id, Label: e.Name, Type: "entity",
			Properties: map[string]any{"entity_type": e.EntityType, "mention_count": l.MentionCount},
		})
		g.Edges = append(g.Edges, common.GraphEdge{Source: root, Target: id, Type: common.Mentions, Weight: l.Confidence})
	}

	var evs []*common.ArticleEvent
	for k, v := range s.articleEvents {
		if k.article == articleID {
			evs = append(evs, v)
		}
	}
	sort.Slice(evs, func(i, j int) bool { return evs[i].EventID < evs[j].EventID })
	for _, l := range evs {
		e := s.events[l.EventID]
		id := fmt.Sprintf("ev_%d", e.ID)
		g.Nodes = append(g.Nodes, common.GraphNode{ID: id, Label: e.Name, Type: "event"})
		g.Edges = append(g.Edges, common.GraphEdge{Source: root, Target: id, Type: l.RelationshipType, Weight: l.Confidence})
	}

	for _, r := range s.outgoing(articleID) {
		t := s.articles[r.TargetArticleID]
		id := fmt.Sprintf("a_%d", t.ID)
		g.Nodes = append(g.Nodes, common.GraphNode{ID: id, Label: t.Title, Type: "article"})
		g.Edges = append(g.Edges, common.GraphEdge{Source: root, Target: id, Type: r.RelationshipType, Weight: r.SimilarityScore})
	}
	return g, nil
}

func (s *Store) ListRelatedConcepts(ctx context.Context, conceptID int64, limit int) ([]common.RelatedConcept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.concepts[conceptID]; !ok {
		return nil, common.ErrNotFound
	}

	var out []common.RelatedConcept
	for _, c := range s.connections {
		other := c.TargetID
		if c.TargetID == conceptID {
			other = c.SourceID
		} else if c.SourceID != conceptID {
			continue
		}
		out = append(out, common.RelatedConcept{
			ConceptID: other, Name: s.concepts[other].Name,
			Relationship: common.SimilarTo, Weight: c.Strength,
		})
	}
	for _, r := range s.conceptRels {
		other := r.TargetConceptID
		if r.TargetConceptID == conceptID {
			other = r.SourceConceptID
		} else if r.SourceConceptID != conceptID {
			continue
		}
		out = append(out, common.RelatedConcept{
			ConceptID: other, Name: s.concepts[other].Name,
			Relationship: r.RelationshipType, Weight: r.Weight,
		})
	}
	sortRelatedConcepts(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortRelatedConcepts(out []common.RelatedConcept) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		if out[i].ConceptID != out[j].ConceptID {
			return out[i].ConceptID < out[j].ConceptID
		}
		return out[i].Relationship < out[j].Relationship
	})
}

func (s *Store) ListDomainTree(ctx context.Context) ([]common.DomainNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	children := make(map[int64][]common.Domain)
	var roots []common.Domain
	for _, id := range sortedKeys(s.domains) {
		d := *s.domains[id]
		if d.ParentID == nil {
			roots = append(roots, d)
			continue
		}
		children[*d.ParentID] = append(children[*d.ParentID], d)
	}
	return buildTree(roots, children), nil
}

func buildTree(level []common.Domain, children map[int64][]common.Domain) []common.DomainNode {
	sort.Slice(level, func(i, j int) bool { return level[i].Name < level[j].Name })
	out := make([]common.DomainNode, 0, len(level))
	for _, d := range level {
		out = append(out, common.DomainNode{Domain: d, Children: buildTree(children[d.ID], children)})
	}
	return out
}

func (s *Store) ListEvents(ctx context.Context, limit int) ([]common.EventSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[int64]int)
	for k := range s.articleEvents {
		counts[k.concept]++
	}
	out := make([]common.EventSummary, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, common.EventSummary{Event: *e, ArticleCount: counts[e.ID]})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].EventDate, out[j].EventDate
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListEntities(ctx context.Context, entityType string, limit int) ([]common.EntitySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mentions := make(map[int64]int)
	for k, v := range s.articleEnts {
		mentions[k.concept] += v.MentionCount
	}
	var out []common.EntitySummary
	for _, e := range s.entities {
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		out = append(out, common.EntitySummary{Entity: *e, MentionCount: mentions[e.ID]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MentionCount != out[j].MentionCount {
			return out[i].MentionCount > out[j].MentionCount
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ArticleConceptIndex(ctx context.Context) (map[int64][]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64][]int64)
	for k := range s.articleConcs {
		out[k.concept] = append(out[k.concept], k.article)
	}
	for id := range out {
		ids := out[id]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return out, nil
}

func (s *Store) ArticleTitles(ctx context.Context, ids []int64) (map[int64]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if a, ok := s.articles[id]; ok {
			out[id] = a.Title
		}
	}
	return out, nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
