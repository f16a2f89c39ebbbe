package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/knowledgesnode/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
)

func (s *Store) ArticlesSharingEvents(ctx context.Context, articleID int64) ([]int64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT other.article_id
		FROM article_events mine
		JOIN article_events other
		  ON other.event_id = mine.event_id
		 AND other.article_id <> mine.article_id
		WHERE mine.article_id = $1
		ORDER BY other.article_id`,
		articleID,
	)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("articles sharing events with %d", articleID))
	}
	ids, err := pgxv5.CollectRows(rows, pgxv5.RowTo[int64])
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("articles sharing events with %d", articleID))
	}
	return ids, nil
}

// ArticlesSharingKeyConcepts counts concepts that are key on both sides.
func (s *Store) ArticlesSharingKeyConcepts(ctx context.Context, articleID int64) ([]common.SharedConcepts, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT other.article_id, COUNT(*)
		FROM article_concepts mine
		JOIN article_concepts other
		  ON other.concept_id = mine.concept_id
		 AND other.article_id <> mine.article_id
		 AND other.is_key_concept
		WHERE mine.article_id = $1 AND mine.is_key_concept
		GROUP BY other.article_id
		ORDER BY other.article_id`,
		articleID,
	)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("articles sharing concepts with %d", articleID))
	}
	shared, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.SharedConcepts, error) {
		var sc common.SharedConcepts
		err := row.Scan(&sc.ArticleID, &sc.Count)
		return sc, err
	})
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("articles sharing concepts with %d", articleID))
	}
	return shared, nil
}

func (s *Store) ArticleRelationshipExists(ctx context.Context, sourceID, targetID int64, types ...string) (bool, error) {
	if len(types) == 0 {
		return false, nil
	}
	var exists bool
	err := s.conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM article_relationships
			WHERE source_article_id = $1 AND target_article_id = $2 AND relationship_type = ANY($3)
		)`,
		sourceID, targetID, types,
	).Scan(&exists)
	if err != nil {
		return false, mapErr(err, fmt.Sprintf("article relationship %d->%d", sourceID, targetID))
	}
	return exists, nil
}

const articleRelColumns = `id, source_article_id, target_article_id, relationship_type, similarity_score, created_at`

func scanArticleRel(row pgxv5.Row) (common.ArticleRelationship, error) {
	var r common.ArticleRelationship
	err := row.Scan(&r.ID, &r.SourceArticleID, &r.TargetArticleID, &r.RelationshipType, &r.SimilarityScore, &r.CreatedAt)
	return r, err
}

// CreateArticleRelationship inserts the edge unless one of the same type
// already exists, in which case the stored edge is returned unchanged.
func (s *Store) CreateArticleRelationship(ctx context.Context, rel common.ArticleRelationship) (common.ArticleRelationship, bool, error) {
	if rel.SourceArticleID == rel.TargetArticleID {
		return common.ArticleRelationship{}, false, fmt.Errorf("article relationship to itself: %w", common.ErrInvalidInput)
	}
	what := fmt.Sprintf("article relationship %d->%d", rel.SourceArticleID, rel.TargetArticleID)
	created, err := scanArticleRel(s.conn.QueryRow(ctx, `
		INSERT INTO article_relationships (source_article_id, target_article_id, relationship_type, similarity_score)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_article_id, target_article_id, relationship_type) DO NOTHING
		RETURNING `+articleRelColumns,
		rel.SourceArticleID, rel.TargetArticleID, rel.RelationshipType, rel.SimilarityScore,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return common.ArticleRelationship{}, false, mapErr(err, what)
	}
	existing, err := scanArticleRel(s.conn.QueryRow(ctx, `
		SELECT `+articleRelColumns+` FROM article_relationships
		WHERE source_article_id = $1 AND target_article_id = $2 AND relationship_type = $3`,
		rel.SourceArticleID, rel.TargetArticleID, rel.RelationshipType,
	))
	if err != nil {
		return common.ArticleRelationship{}, false, survivor(mapErr(err, what))
	}
	return existing, false, nil
}

func (s *Store) UpsertArticleRelationship(ctx context.Context, rel common.ArticleRelationship) (common.ArticleRelationship, error) {
	if rel.SourceArticleID == rel.TargetArticleID {
		return common.ArticleRelationship{}, fmt.Errorf("article relationship to itself: %w", common.ErrInvalidInput)
	}
	out, err := scanArticleRel(s.conn.QueryRow(ctx, `
		INSERT INTO article_relationships (source_article_id, target_article_id, relationship_type, similarity_score)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_article_id, target_article_id, relationship_type) DO UPDATE
		SET similarity_score = EXCLUDED.similarity_score
		RETURNING `+articleRelColumns,
		rel.SourceArticleID, rel.TargetArticleID, rel.RelationshipType, rel.SimilarityScore,
	))
	if err != nil {
		return common.ArticleRelationship{}, mapErr(err, fmt.Sprintf("article relationship %d->%d", rel.SourceArticleID, rel.TargetArticleID))
	}
	return out, nil
}
