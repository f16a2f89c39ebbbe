package pgx

import (
	"context"
	"fmt"
	"sort"

	"github.com/knowledgesnode/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
)

func (s *Store) GetConcept(ctx context.Context, id int64) (common.Concept, error) {
	c, err := scanConcept(s.conn.QueryRow(ctx, `SELECT `+conceptColumns+` FROM concepts WHERE id = $1`, id))
	if err != nil {
		return common.Concept{}, mapErr(err, fmt.Sprintf("concept %d", id))
	}
	return c, nil
}

func (s *Store) GetConcepts(ctx context.Context, ids []int64) ([]common.Concept, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.listConcepts(ctx, `WHERE id = ANY($1) ORDER BY id`, ids)
}

// ExtractionHints lists every domain, the leaf domains, and the oldest
// events and concepts up to the given limits.
func (s *Store) ExtractionHints(ctx context.Context, maxEvents, maxConcepts int) (common.ExtractionHints, error) {
	var hints common.ExtractionHints

	rows, err := s.conn.Query(ctx, `
		SELECT d.name, NOT EXISTS (SELECT 1 FROM domains c WHERE c.parent_id = d.id)
		FROM domains d
		ORDER BY d.id`)
	if err != nil {
		return hints, mapErr(err, "domain hints")
	}
	var (
		name string
		leaf bool
	)
	_, err = pgxv5.ForEachRow(rows, []any{&name, &leaf}, func() error {
		hints.Domains = append(hints.Domains, name)
		if leaf {
			hints.LeafDomains = append(hints.LeafDomains, name)
		}
		return nil
	})
	if err != nil {
		return hints, mapErr(err, "domain hints")
	}

	if hints.RecentEvents, err = s.names(ctx, `SELECT name FROM events ORDER BY id LIMIT $1`, maxEvents); err != nil {
		return hints, mapErr(err, "event hints")
	}
	if hints.KnownConcepts, err = s.names(ctx, `SELECT name FROM concepts GROUP BY name ORDER BY MIN(id) LIMIT $1`, maxConcepts); err != nil {
		return hints, mapErr(err, "concept hints")
	}
	return hints, nil
}

func (s *Store) names(ctx context.Context, sql string, limit int) ([]string, error) {
	rows, err := s.conn.Query(ctx, sql, limitArg(limit))
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, pgxv5.RowTo[string])
}

func (s *Store) articleExists(ctx context.Context, id int64) error {
	var exists bool
	if err := s.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM articles WHERE id = $1)`, id).Scan(&exists); err != nil {
		return mapErr(err, fmt.Sprintf("article %d", id))
	}
	if !exists {
		return fmt.Errorf("article %d: %w", id, common.ErrNotFound)
	}
	return nil
}

func (s *Store) ListArticleRelationships(ctx context.Context, articleID int64) ([]common.ArticleRelationship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+articleRelColumns+` FROM article_relationships
		WHERE source_article_id = $1
		ORDER BY similarity_score DESC, id`,
		articleID,
	)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("relationships of article %d", articleID))
	}
	rels, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.ArticleRelationship, error) {
		return scanArticleRel(row)
	})
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("relationships of article %d", articleID))
	}
	return rels, nil
}

func (s *Store) ListRelatedArticles(ctx context.Context, articleID int64) ([]common.RelatedArticle, error) {
	if err := s.articleExists(ctx, articleID); err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, `
		SELECT a.id, a.title, COALESCE(a.url, ''), r.relationship_type, r.similarity_score
		FROM article_relationships r
		JOIN articles a ON a.id = r.target_article_id
		WHERE r.source_article_id = $1
		ORDER BY r.similarity_score DESC, r.id`,
		articleID,
	)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("related articles of %d", articleID))
	}
	related, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.RelatedArticle, error) {
		ra := common.RelatedArticle{Origin: "relational"}
		err := row.Scan(&ra.ArticleID, &ra.Title, &ra.URL, &ra.RelationshipType, &ra.SimilarityScore)
		return ra, err
	})
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("related articles of %d", articleID))
	}
	return related, nil
}

// ArticleSubgraph returns the article, what it mentions, its events and
// its outgoing article edges. Node ids carry a kind prefix so ids of
// different tables never collide.
func (s *Store) ArticleSubgraph(ctx context.Context, articleID int64) (common.Subgraph, error) {
	a, err := s.GetArticle(ctx, articleID)
	if err != nil {
		return common.Subgraph{}, err
	}
	root := fmt.Sprintf("a_%d", a.ID)
	g := common.Subgraph{Nodes: []common.GraphNode{{ID: root, Label: a.Title, Type: "article"}}}

	type part struct {
		sql  string
		scan func(row pgxv5.CollectableRow) error
	}
	parts := []part{
		{
			sql: `SELECT c.id, c.name, ac.is_key_concept, ac.confidence
				FROM article_concepts ac JOIN concepts c ON c.id = ac.concept_id
				WHERE ac.article_id = $1 ORDER BY c.id`,
			scan: func(row pgxv5.CollectableRow) error {
				var (
					id         int64
					name       string
					key        bool
					confidence float64
				)
				if err := row.Scan(&id, &name, &key, &confidence); err != nil {
					return err
				}
				node := fmt.Sprintf("c_%d", id)
				g.Nodes = append(g.Nodes, common.GraphNode{
					ID: node, Label: name, Type: "concept",
					Properties: map[string]any{"is_key_concept": key},
				})
				g.Edges = append(g.Edges, common.GraphEdge{Source: root, Target: node, Type: common.Mentions, Weight: confidence})
				return nil
			},
		},
		{
			sql: `SELECT e.id, e.name, e.entity_type, ae.mention_count, ae.confidence
				FROM article_entities ae JOIN entities e ON e.id = ae.entity_id
				WHERE ae.article_id = $1 ORDER BY e.id`,
			scan: func(row pgxv5.CollectableRow) error {
				var (
					id, mentions     int64
					name, entityType string
					confidence       float64
				)
				if err := row.Scan(&id, &name, &entityType, &mentions, &confidence); err != nil {
					return err
				}
				node := fmt.Sprintf("e_%d", id)
				g.Nodes = append(g.Nodes, common.GraphNode{
					ID: node, Label: name, Type: "entity",
					Properties: map[string]any{"entity_type": entityType, "mention_count": int(mentions)},
				})
				g.Edges = append(g.Edges, common.GraphEdge{Source: root, Target: node, Type: common.Mentions, Weight: confidence})
				return nil
			},
		},
		{
			sql: `SELECT ev.id, ev.name, ae.relationship_type, ae.confidence
				FROM article_events ae JOIN events ev ON ev.id = ae.event_id
				WHERE ae.article_id = $1 ORDER BY ev.id`,
			scan: func(row pgxv5.CollectableRow) error {
				var (
					id            int64
					name, relType string
					confidence    float64
				)
				if err := row.Scan(&id, &name, &relType, &confidence); err != nil {
					return err
				}
				node := fmt.Sprintf("ev_%d", id)
				g.Nodes = append(g.Nodes, common.GraphNode{ID: node, Label: name, Type: "event"})
				g.Edges = append(g.Edges, common.GraphEdge{Source: root, Target: node, Type: relType, Weight: confidence})
				return nil
			},
		},
		{
			sql: `SELECT a.id, a.title, r.relationship_type, r.similarity_score
				FROM article_relationships r JOIN articles a ON a.id = r.target_article_id
				WHERE r.source_article_id = $1 ORDER BY r.similarity_score DESC, r.id`,
			scan: func(row pgxv5.CollectableRow) error {
				var (
					id             int64
					title, relType string
					score          float64
				)
				if err := row.Scan(&id, &title, &relType, &score); err != nil {
					return err
				}
				node := fmt.Sprintf("a_%d", id)
				g.Nodes = append(g.Nodes, common.GraphNode{ID: node, Label: title, Type: "article"})
				g.Edges = append(g.Edges, common.GraphEdge{Source: root, Target: node, Type: relType, Weight: score})
				return nil
			},
		},
	}
	for _, p := range parts {
		rows, err := s.conn.Query(ctx, p.sql, articleID)
		if err != nil {
			return common.Subgraph{}, mapErr(err, fmt.Sprintf("subgraph of article %d", articleID))
		}
		_, err = pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (struct{}, error) {
			return struct{}{}, p.scan(row)
		})
		if err != nil {
			return common.Subgraph{}, mapErr(err, fmt.Sprintf("subgraph of article %d", articleID))
		}
	}
	return g, nil
}

// ListRelatedConcepts merges similarity connections and extracted
// relationships in either direction, strongest first.
func (s *Store) ListRelatedConcepts(ctx context.Context, conceptID int64, limit int) ([]common.RelatedConcept, error) {
	if _, err := s.GetConcept(ctx, conceptID); err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, `
		SELECT c.id, c.name, $3::text, cc.strength
		FROM concept_connections cc
		JOIN concepts c ON c.id = CASE WHEN cc.source_id = $1 THEN cc.target_id ELSE cc.source_id END
		WHERE cc.source_id = $1 OR cc.target_id = $1
		UNION ALL
		SELECT c.id, c.name, cr.relationship_type, cr.weight
		FROM concept_relationships cr
		JOIN concepts c ON c.id = CASE WHEN cr.source_concept_id = $1 THEN cr.target_concept_id ELSE cr.source_concept_id END
		WHERE cr.source_concept_id = $1 OR cr.target_concept_id = $1
		ORDER BY 4 DESC, 1, 3
		LIMIT $2`,
		conceptID, limitArg(limit), common.SimilarTo,
	)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("related concepts of %d", conceptID))
	}
	related, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.RelatedConcept, error) {
		var rc common.RelatedConcept
		err := row.Scan(&rc.ConceptID, &rc.Name, &rc.Relationship, &rc.Weight)
		return rc, err
	})
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("related concepts of %d", conceptID))
	}
	return related, nil
}

func (s *Store) ListDomainTree(ctx context.Context) ([]common.DomainNode, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+domainColumns+` FROM domains ORDER BY id`)
	if err != nil {
		return nil, mapErr(err, "domains")
	}
	domains, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Domain, error) {
		return scanDomain(row)
	})
	if err != nil {
		return nil, mapErr(err, "domains")
	}
	return domainTree(domains), nil
}

// domainTree nests domains under their parents. Siblings are ordered by
// name; a domain whose parent is missing is treated as a root.
func domainTree(domains []common.Domain) []common.DomainNode {
	known := make(map[int64]bool, len(domains))
	for _, d := range domains {
		known[d.ID] = true
	}
	children := make(map[int64][]common.Domain)
	var roots []common.Domain
	for _, d := range domains {
		if d.ParentID == nil || !known[*d.ParentID] {
			roots = append(roots, d)
			continue
		}
		children[*d.ParentID] = append(children[*d.ParentID], d)
	}
	var build func(level []common.Domain) []common.DomainNode
	build = func(level []common.Domain) []common.DomainNode {
		sort.Slice(level, func(i, j int) bool { return level[i].Name < level[j].Name })
		out := make([]common.DomainNode, 0, len(level))
		for _, d := range level {
			out = append(out, common.DomainNode{Domain: d, Children: build(children[d.ID])})
		}
		return out
	}
	return build(roots)
}

func (s *Store) ListEvents(ctx context.Context, limit int) ([]common.EventSummary, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT e.id, e.name, e.description, e.event_date, e.event_type, e.domain_id, e.created_at,
		       COUNT(ae.article_id)
		FROM events e
		LEFT JOIN article_events ae ON ae.event_id = e.id
		GROUP BY e.id
		ORDER BY e.event_date DESC NULLS LAST, e.id DESC
		LIMIT $1`,
		limitArg(limit),
	)
	if err != nil {
		return nil, mapErr(err, "events")
	}
	events, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.EventSummary, error) {
		var es common.EventSummary
		err := row.Scan(&es.ID, &es.Name, &es.Description, &es.EventDate, &es.EventType, &es.DomainID, &es.CreatedAt, &es.ArticleCount)
		return es, err
	})
	if err != nil {
		return nil, mapErr(err, "events")
	}
	return events, nil
}

func (s *Store) ListEntities(ctx context.Context, entityType string, limit int) ([]common.EntitySummary, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT e.id, e.name, e.entity_type, e.description, e.created_at,
		       COALESCE(SUM(ae.mention_count), 0)
		FROM entities e
		LEFT JOIN article_entities ae ON ae.entity_id = e.id
		WHERE $1 = '' OR e.entity_type = $1
		GROUP BY e.id
		ORDER BY 6 DESC, e.id
		LIMIT $2`,
		entityType, limitArg(limit),
	)
	if err != nil {
		return nil, mapErr(err, "entities")
	}
	entities, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.EntitySummary, error) {
		var es common.EntitySummary
		err := row.Scan(&es.ID, &es.Name, &es.EntityType, &es.Description, &es.CreatedAt, &es.MentionCount)
		return es, err
	})
	if err != nil {
		return nil, mapErr(err, "entities")
	}
	return entities, nil
}

func (s *Store) ArticleConceptIndex(ctx context.Context) (map[int64][]int64, error) {
	rows, err := s.conn.Query(ctx, `SELECT concept_id, article_id FROM article_concepts ORDER BY concept_id, article_id`)
	if err != nil {
		return nil, mapErr(err, "article concept index")
	}
	index := make(map[int64][]int64)
	var conceptID, articleID int64
	_, err = pgxv5.ForEachRow(rows, []any{&conceptID, &articleID}, func() error {
		index[conceptID] = append(index[conceptID], articleID)
		return nil
	})
	if err != nil {
		return nil, mapErr(err, "article concept index")
	}
	return index, nil
}

func (s *Store) ArticleTitles(ctx context.Context, ids []int64) (map[int64]string, error) {
	titles := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return titles, nil
	}
	rows, err := s.conn.Query(ctx, `SELECT id, title FROM articles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, mapErr(err, "article titles")
	}
	var (
		id    int64
		title string
	)
	_, err = pgxv5.ForEachRow(rows, []any{&id, &title}, func() error {
		titles[id] = title
		return nil
	})
	if err != nil {
		return nil, mapErr(err, "article titles")
	}
	return titles, nil
}
