package pgx

import (
	"context"
	"fmt"

	"github.com/knowledgesnode/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
)

const articleColumns = `id, title, url, content, summary, source, published_date,
	processing_status, error_message, created_at, updated_at`

func scanArticle(row pgxv5.Row) (common.Article, error) {
	var (
		a      common.Article
		url    *string
		status string
	)
	err := row.Scan(
		&a.ID, &a.Title, &url, &a.Content, &a.Summary, &a.Source, &a.PublishedDate,
		&status, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return common.Article{}, err
	}
	if url != nil {
		a.URL = *url
	}
	a.Status = common.ProcessingStatus(status)
	return a, nil
}

// CreateArticle stores a new article in status pending unless another
// status is given. A URL that is already stored is a persistence conflict.
func (s *Store) CreateArticle(ctx context.Context, a common.Article) (common.Article, error) {
	status := a.Status
	if status == "" {
		status = common.StatusPending
	}
	row := s.conn.QueryRow(ctx, `
		INSERT INTO articles (title, url, content, summary, source, published_date, processing_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+articleColumns,
		a.Title, nullableText(a.URL), a.Content, a.Summary, a.Source, a.PublishedDate, string(status),
	)
	created, err := scanArticle(row)
	if err != nil {
		return common.Article{}, mapErr(err, fmt.Sprintf("article %q", a.URL))
	}
	return created, nil
}

func (s *Store) GetArticle(ctx context.Context, id int64) (common.Article, error) {
	a, err := scanArticle(s.conn.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id))
	if err != nil {
		return common.Article{}, mapErr(err, fmt.Sprintf("article %d", id))
	}
	return a, nil
}

func (s *Store) UpdateArticleStatus(ctx context.Context, id int64, status common.ProcessingStatus, errMsg string) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE articles
		SET processing_status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`,
		id, string(status), errMsg,
	)
	if err != nil {
		return mapErr(err, fmt.Sprintf("article %d", id))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article %d: %w", id, common.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateArticleSummary(ctx context.Context, id int64, summary string) error {
	tag, err := s.conn.Exec(ctx, `UPDATE articles SET summary = $2, updated_at = now() WHERE id = $1`, id, summary)
	if err != nil {
		return mapErr(err, fmt.Sprintf("article %d", id))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article %d: %w", id, common.ErrNotFound)
	}
	return nil
}

func (s *Store) ListArticleIDsByStatus(ctx context.Context, status common.ProcessingStatus, limit int) ([]int64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id FROM articles
		WHERE processing_status = $1
		ORDER BY created_at, id
		LIMIT $2`,
		string(status), limitArg(limit),
	)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("%s articles", status))
	}
	ids, err := pgxv5.CollectRows(rows, pgxv5.RowTo[int64])
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("%s articles", status))
	}
	return ids, nil
}

func (s *Store) AddArticleDomain(ctx context.Context, articleID, domainID int64) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO article_domains (article_id, domain_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		articleID, domainID,
	)
	return mapErr(err, fmt.Sprintf("article %d domain %d", articleID, domainID))
}

func (s *Store) UpsertArticleConcept(ctx context.Context, ac common.ArticleConcept) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO article_concepts (article_id, concept_id, confidence, is_key_concept)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (article_id, concept_id) DO UPDATE
		SET confidence     = GREATEST(article_concepts.confidence, EXCLUDED.confidence),
		    is_key_concept = article_concepts.is_key_concept OR EXCLUDED.is_key_concept`,
		ac.ArticleID, ac.ConceptID, ac.Confidence, ac.IsKeyConcept,
	)
	return mapErr(err, fmt.Sprintf("article %d concept %d", ac.ArticleID, ac.ConceptID))
}

func (s *Store) UpsertArticleEntity(ctx context.Context, ae common.ArticleEntity) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO article_entities (article_id, entity_id, confidence, mention_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (article_id, entity_id) DO UPDATE
		SET confidence    = GREATEST(article_entities.confidence, EXCLUDED.confidence),
		    mention_count = article_entities.mention_count + EXCLUDED.mention_count`,
		ae.ArticleID, ae.EntityID, ae.Confidence, ae.MentionCount,
	)
	return mapErr(err, fmt.Sprintf("article %d entity %d", ae.ArticleID, ae.EntityID))
}

func (s *Store) UpsertArticleEvent(ctx context.Context, ae common.ArticleEvent) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO article_events (article_id, event_id, relationship_type, confidence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (article_id, event_id) DO NOTHING`,
		ae.ArticleID, ae.EventID, ae.RelationshipType, ae.Confidence,
	)
	return mapErr(err, fmt.Sprintf("article %d event %d", ae.ArticleID, ae.EventID))
}

// UpsertConceptRelationship reports whether the edge was created. An
// existing edge of the same type takes the new weight.
func (s *Store) UpsertConceptRelationship(ctx context.Context, rel common.ConceptRelationship) (bool, error) {
	if rel.SourceConceptID == rel.TargetConceptID {
		return false, fmt.Errorf("concept relationship to itself: %w", common.ErrInvalidInput)
	}
	var inserted bool
	err := s.conn.QueryRow(ctx, `
		INSERT INTO concept_relationships (source_concept_id, target_concept_id, relationship_type, weight, article_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_concept_id, target_concept_id, relationship_type) DO UPDATE
		SET weight = EXCLUDED.weight
		RETURNING (xmax = 0)`,
		rel.SourceConceptID, rel.TargetConceptID, rel.RelationshipType, rel.Weight, rel.ArticleID,
	).Scan(&inserted)
	if err != nil {
		return false, mapErr(err, fmt.Sprintf("concept relationship %d->%d", rel.SourceConceptID, rel.TargetConceptID))
	}
	return inserted, nil
}

func (s *Store) AssignEventDomain(ctx context.Context, eventID, domainID int64) error {
	tag, err := s.conn.Exec(ctx, `UPDATE events SET domain_id = $2 WHERE id = $1 AND domain_id IS NULL`, eventID, domainID)
	if err != nil {
		return mapErr(err, fmt.Sprintf("event %d", eventID))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID).Scan(&exists); err != nil {
		return mapErr(err, fmt.Sprintf("event %d", eventID))
	}
	if !exists {
		return fmt.Errorf("event %d: %w", eventID, common.ErrNotFound)
	}
	return nil
}
