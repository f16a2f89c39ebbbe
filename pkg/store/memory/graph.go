package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/knowledgesnode/backend/pkg/common"
)

// ---- similarity ----

func (s *Store) ListEmbeddedConcepts(ctx context.Context) ([]common.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Concept, 0, len(s.concepts))
	for _, c := range s.concepts {
		if c.HasEmbedding() {
			out = append(out, cloneConcept(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListConceptsWithoutEmbedding(ctx context.Context) ([]common.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []common.Concept
	for _, c := range s.concepts {
		if !c.HasEmbedding() {
			out = append(out, cloneConcept(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateConceptEmbeddings(ctx context.Context, embeddings map[int64][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range embeddings {
		if _, ok := s.concepts[id]; !ok {
			return fmt.Errorf("concept %d: %w", id, common.ErrNotFound)
		}
	}
	for id, v := range embeddings {
		s.concepts[id].Embedding = append([]float32(nil), v...)
	}
	return nil
}

func (s *Store) ListConceptConnections(ctx context.Context, conceptID int64) ([]common.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []common.Connection
	for _, c := range s.connections {
		if c.SourceID == conceptID || c.TargetID == conceptID {
			out = append(out, *c)
		}
	}
	sortConnections(out)
	return out, nil
}

func (s *Store) ListConnections(ctx context.Context, minStrength float64) ([]common.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Connection, 0, len(s.connections))
	for _, c := range s.connections {
		if c.Strength >= minStrength {
			out = append(out, *c)
		}
	}
	sortConnections(out)
	return out, nil
}

func (s *Store) SaveConnections(ctx context.Context, conns []common.Connection) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, c := range conns {
		if c.SourceID == c.TargetID {
			continue
		}
		key := pairOf(c.SourceID, c.TargetID)
		if _, ok := s.connections[key]; ok {
			continue
		}
		c.ID = s.id()
		s.connections[key] = &c
		inserted++
	}
	return inserted, nil
}

func sortConnections(conns []common.Connection) {
	sort.Slice(conns, func(i, j int) bool {
		if conns[i].SourceID != conns[j].SourceID {
			return conns[i].SourceID < conns[j].SourceID
		}
		return conns[i].TargetID < conns[j].TargetID
	})
}

// ---- relationship builder ----

func (s *Store) ArticlesSharingEvents(ctx context.Context, articleID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make(map[int64]struct{})
	for k := range s.articleEvents {
		if k.article == articleID {
			events[k.concept] = struct{}{}
		}
	}
	seen := make(map[int64]struct{})
	for k := range s.articleEvents {
		if k.article == articleID {
			continue
		}
		if _, ok := events[k.concept]; ok {
			seen[k.article] = struct{}{}
		}
	}
	return sortedIDs(seen), nil
}

func (s *Store) ArticlesSharingKeyConcepts(ctx context.Context, articleID int64) ([]common.SharedConcepts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make(map[int64]struct{})
	for k, v := range s.articleConcs {
		if k.article == articleID && v.IsKeyConcept {
			keys[k.concept] = struct{}{}
		}
	}
	counts := make(map[int64]int)
	for k, v := range s.articleConcs {
		if k.article == articleID || !v.IsKeyConcept {
			continue
		}
		if _, ok := keys[k.concept]; ok {
			counts[k.article]++
		}
	}
	out := make([]common.SharedConcepts, 0, len(counts))
	for id, n := range counts {
		out = append(out, common.SharedConcepts{ArticleID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArticleID < out[j].ArticleID })
	return out, nil
}

func (s *Store) ArticleRelationshipExists(ctx context.Context, sourceID, targetID int64, types ...string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range types {
		if _, ok := s.articleRels[relKey{sourceID, targetID, t}]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateArticleRelationship(ctx context.Context, rel common.ArticleRelationship) (common.ArticleRelationship, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkArticleEdge(rel); err != nil {
		return common.ArticleRelationship{}, false, err
	}
	key := relKey{rel.SourceArticleID, rel.TargetArticleID, rel.RelationshipType}
	if cur, ok := s.articleRels[key]; ok {
		return *cur, false, nil
	}
	rel.ID = s.id()
	rel.CreatedAt = s.now()
	s.articleRels[key] = &rel
	return rel, true, nil
}

func (s *Store) UpsertArticleRelationship(ctx context.Context, rel common.ArticleRelationship) (common.ArticleRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkArticleEdge(rel); err != nil {
		return common.ArticleRelationship{}, err
	}
	key := relKey{rel.SourceArticleID, rel.TargetArticleID, rel.RelationshipType}
	if cur, ok := s.articleRels[key]; ok {
		cur.SimilarityScore = rel.SimilarityScore
		return *cur, nil
	}
	rel.ID = s.id()
	rel.CreatedAt = s.now()
	s.articleRels[key] = &rel
	return rel, nil
}

func (s *Store) checkArticleEdge(rel common.ArticleRelationship) error {
	if rel.SourceArticleID == rel.TargetArticleID {
		return fmt.Errorf("article relationship to itself: %w", common.ErrInvalidInput)
	}
	if _, ok := s.articles[rel.SourceArticleID]; !ok {
		return fmt.Errorf("article %d: %w", rel.SourceArticleID, common.ErrNotFound)
	}
	if _, ok := s.articles[rel.TargetArticleID]; !ok {
		return fmt.Errorf("article %d: %w", rel.TargetArticleID, common.ErrNotFound)
	}
	return nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
