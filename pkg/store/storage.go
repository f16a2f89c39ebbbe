package store

import (
	"context"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/relate"
	"github.com/knowledgesnode/backend/pkg/resolve"
	"github.com/knowledgesnode/backend/pkg/similarity"
)

// KnowledgeStore is the relational system of record for articles and the
// knowledge graph derived from them. It satisfies the persistence contracts
// of the resolver, the similarity linker and the relationship builder.
//
// Writes keyed on a natural key are idempotent: a second write of the same
// key is a no-op or a documented merge, never a duplicate row.
type KnowledgeStore interface {
	resolve.Repository
	similarity.Store
	similarity.EmbeddingStore
	relate.Store

	CreateArticle(ctx context.Context, a common.Article) (common.Article, error)
	GetArticle(ctx context.Context, id int64) (common.Article, error)
	UpdateArticleStatus(ctx context.Context, id int64, status common.ProcessingStatus, errMsg string) error
	UpdateArticleSummary(ctx context.Context, id int64, summary string) error
	AddArticleDomain(ctx context.Context, articleID, domainID int64) error
	// ListArticleIDsByStatus returns the oldest articles in status first.
	ListArticleIDsByStatus(ctx context.Context, status common.ProcessingStatus, limit int) ([]int64, error)

	// UpsertArticleConcept keeps the higher confidence and ORs the key flag.
	UpsertArticleConcept(ctx context.Context, ac common.ArticleConcept) error
	// UpsertArticleEntity accumulates mention counts.
	UpsertArticleEntity(ctx context.Context, ae common.ArticleEntity) error
	// UpsertArticleEvent does nothing when the pair is already linked.
	UpsertArticleEvent(ctx context.Context, ae common.ArticleEvent) error
	UpsertConceptRelationship(ctx context.Context, rel common.ConceptRelationship) (bool, error)
	// AssignEventDomain sets the domain of an event that has none.
	AssignEventDomain(ctx context.Context, eventID, domainID int64) error

	GetConcept(ctx context.Context, id int64) (common.Concept, error)
	GetConcepts(ctx context.Context, ids []int64) ([]common.Concept, error)
	ExtractionHints(ctx context.Context, maxEvents, maxConcepts int) (common.ExtractionHints, error)

	ListRelatedArticles(ctx context.Context, articleID int64) ([]common.RelatedArticle, error)
	ListArticleRelationships(ctx context.Context, articleID int64) ([]common.ArticleRelationship, error)
	ArticleSubgraph(ctx context.Context, articleID int64) (common.Subgraph, error)
	ListRelatedConcepts(ctx context.Context, conceptID int64, limit int) ([]common.RelatedConcept, error)
	ListDomainTree(ctx context.Context) ([]common.DomainNode, error)
	ListEvents(ctx context.Context, limit int) ([]common.EventSummary, error)
	ListEntities(ctx context.Context, entityType string, limit int) ([]common.EntitySummary, error)

	// ArticleConceptIndex maps every concept to the articles that reference
	// it. ArticleTitles resolves article ids to titles.
	ArticleConceptIndex(ctx context.Context) (map[int64][]int64, error)
	ArticleTitles(ctx context.Context, ids []int64) (map[int64]string, error)

	// WithTx runs fn against a transactional view of the store. The view is
	// committed when fn returns nil and rolled back otherwise.
	WithTx(ctx context.Context, fn func(tx KnowledgeStore) error) error
}
