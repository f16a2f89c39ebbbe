package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/extract"
	"github.com/knowledgesnode/backend/pkg/logger"
	"github.com/knowledgesnode/backend/pkg/relate"
	"github.com/knowledgesnode/backend/pkg/resolve"
	"github.com/knowledgesnode/backend/pkg/similarity"
	"github.com/knowledgesnode/backend/pkg/store"
)

const (
	entityConfidence       = 1.0
	primaryEventConfidence = 1.0
	relatedEventConfidence = 0.8
	defaultRelationWeight  = 0.5
)

// ProcessResult describes what one article contributed to the graph.
type ProcessResult struct {
	ArticleID  int64
	DomainIDs  []int64
	ConceptIDs []int64
	EntityIDs  []int64
	EventIDs   []int64
	// NewConcepts are the concepts this article created.
	NewConcepts []int64

	ConceptRelationships int
	Connections          []common.Connection
	LinkFailures         []similarity.PairFailure
	Relations            relate.Result
	ArchiveKey           string

	batch *batchBuilder
}

// ProcessArticle extracts knowledge from a stored article and links it
// into the graph. The article ends in status completed, or failed with
// the error message when extraction or persistence fails; in that case
// nothing extracted from it is kept. Linking failures are reported in the
// result and do not fail the article. Mirroring happens in the background.
func (g *GraphClient) ProcessArticle(ctx context.Context, articleID int64) (*ProcessResult, error) {
	article, err := g.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load article %d: %w", articleID, err)
	}
	if err := g.store.UpdateArticleStatus(ctx, articleID, common.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("failed to mark article %d processing: %w", articleID, err)
	}
	logger.Info("[Graph] Processing article", "article_id", articleID, "title", article.Title)

	hints, err := g.store.ExtractionHints(ctx, g.hintEvents, g.hintConcepts)
	if err != nil {
		return nil, g.fail(ctx, articleID, fmt.Errorf("failed to load extraction hints: %w", err))
	}

	start := time.Now()
	analysis, err := g.extractor.Extract(ctx, article.Content, hints)
	g.metrics.ObserveOracle(time.Since(start))
	if err != nil {
		return nil, g.fail(ctx, articleID, err)
	}

	res := &ProcessResult{ArticleID: articleID, batch: newBatchBuilder(article, analysis.Summary)}
	res.ArchiveKey = g.archiveRaw(ctx, articleID, analysis.Raw)

	err = g.store.WithTx(ctx, func(tx store.KnowledgeStore) error {
		return g.persist(ctx, tx, article, analysis, res)
	})
	if err != nil {
		return nil, g.fail(ctx, articleID, fmt.Errorf("failed to persist analysis: %w", err))
	}

	g.linkConcepts(ctx, res)

	rels, err := g.builder.LinkArticle(ctx, articleID)
	if err != nil {
		logger.Warn("[Graph] Article linking incomplete", "article_id", articleID, "err", err)
	}
	res.Relations = rels

	if err := g.store.UpdateArticleStatus(ctx, articleID, common.StatusCompleted, ""); err != nil {
		return nil, fmt.Errorf("failed to mark article %d completed: %w", articleID, err)
	}
	g.metrics.ArticleProcessed(string(common.StatusCompleted))

	g.mirror(ctx, articleID, res)

	logger.Info("[Graph] Article processed",
		"article_id", articleID,
		"concepts", len(res.ConceptIDs),
		"new_concepts", len(res.NewConcepts),
		"entities", len(res.EntityIDs),
		"events", len(res.EventIDs),
		"connections", len(res.Connections),
		"article_edges", len(res.Relations.Edges),
	)
	return res, nil
}

func (g *GraphClient) fail(ctx context.Context, articleID int64, cause error) error {
	logger.Error("[Graph] Article processing failed", "article_id", articleID, "err", cause)
	g.metrics.ArticleProcessed(string(common.StatusFailed))
	if err := g.store.UpdateArticleStatus(context.WithoutCancel(ctx), articleID, common.StatusFailed, cause.Error()); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to mark article %d failed: %w", articleID, err))
	}
	return cause
}

func (g *GraphClient) archiveRaw(ctx context.Context, articleID int64, raw string) string {
	if g.archive == nil || raw == "" {
		return ""
	}
	key, err := g.archive.PutAnalysis(ctx, articleID, []byte(raw))
	if err != nil {
		logger.Warn("[Graph] Raw analysis not archived", "article_id", articleID, "err", err)
		return ""
	}
	return key
}

// persist writes everything extracted from one article. Names the resolver
// rejects as invalid are skipped; any other error aborts the transaction.
func (g *GraphClient) persist(
	ctx context.Context,
	tx store.KnowledgeStore,
	article common.Article,
	a extract.Analysis,
	res *ProcessResult,
) error {
	r := g.resolver.WithRepository(tx)

	if a.Summary != "" {
		if err := tx.UpdateArticleSummary(ctx, article.ID, a.Summary); err != nil {
			return err
		}
	}

	for _, cat := range a.Categories {
		d, created, err := r.ResolveDomain(ctx, cat.Name, cat.Parent)
		if skip(err, "domain", cat.Name) {
			continue
		}
		if err != nil {
			return err
		}
		g.metrics.RecordResolved(string(resolve.KindDomain), created)
		if err := tx.AddArticleDomain(ctx, article.ID, d.ID); err != nil {
			return err
		}
		res.batch.domain(d)
		res.DomainIDs = appendUnique(res.DomainIDs, d.ID)
	}

	addConcept := func(c extract.Concept, key bool) error {
		concept, created, err := r.ResolveConcept(ctx, c.Name, c.Description, c.Confidence, nil)
		if skip(err, "concept", c.Name) {
			return nil
		}
		if err != nil {
			return err
		}
		g.metrics.RecordResolved(string(resolve.KindConcept), created)
		if created {
			res.NewConcepts = appendUnique(res.NewConcepts, concept.ID)
		}
		res.ConceptIDs = appendUnique(res.ConceptIDs, concept.ID)
		link := common.ArticleConcept{
			ArticleID:    article.ID,
			ConceptID:    concept.ID,
			Confidence:   c.Confidence,
			IsKeyConcept: key,
		}
		if err := tx.UpsertArticleConcept(ctx, link); err != nil {
			return err
		}
		res.batch.articleConcept(concept, link)
		return nil
	}
	for _, c := range a.MainConcepts {
		if err := addConcept(c, true); err != nil {
			return err
		}
	}
	for _, c := range a.RelatedConcepts {
		if err := addConcept(c, false); err != nil {
			return err
		}
	}

	for _, e := range a.Entities {
		entity, created, err := r.ResolveEntity(ctx, e.Name, e.EntityType, e.Description)
		if skip(err, "entity", e.Name) {
			continue
		}
		if err != nil {
			return err
		}
		g.metrics.RecordResolved(string(resolve.KindEntity), created)
		link := common.ArticleEntity{
			ArticleID:    article.ID,
			EntityID:     entity.ID,
			Confidence:   entityConfidence,
			MentionCount: e.MentionCount,
		}
		if err := tx.UpsertArticleEntity(ctx, link); err != nil {
			return err
		}
		res.batch.articleEntity(entity, link)
		res.EntityIDs = appendUnique(res.EntityIDs, entity.ID)
	}

	if a.Event != nil {
		ev, created, err := r.ResolveEvent(ctx, common.Event{
			Name:        a.Event.Name,
			Description: a.Event.Description,
			EventDate:   a.Event.Date,
			EventType:   a.Event.EventType,
		})
		switch {
		case skip(err, "event", a.Event.Name):
		case err != nil:
			return err
		default:
			g.metrics.RecordResolved(string(resolve.KindEvent), created)
			link := common.ArticleEvent{
				ArticleID:        article.ID,
				EventID:          ev.ID,
				RelationshipType: common.PartOf,
				Confidence:       primaryEventConfidence,
			}
			if err := tx.UpsertArticleEvent(ctx, link); err != nil {
				return err
			}
			res.batch.articleEvent(ev, link)
			if len(res.DomainIDs) > 0 {
				if err := tx.AssignEventDomain(ctx, ev.ID, res.DomainIDs[0]); err != nil {
					return err
				}
			}
			res.EventIDs = appendUnique(res.EventIDs, ev.ID)
		}
	}

	for _, name := range a.RelatedToExistingEvents {
		ev, err := tx.FindEvent(ctx, name)
		if errors.Is(err, common.ErrNotFound) {
			logger.Debug("[Graph] Related event does not exist, skipping", "name", name)
			continue
		}
		if err != nil {
			return err
		}
		link := common.ArticleEvent{
			ArticleID:        article.ID,
			EventID:          ev.ID,
			RelationshipType: common.RelatedTo,
			Confidence:       relatedEventConfidence,
		}
		if err := tx.UpsertArticleEvent(ctx, link); err != nil {
			return err
		}
		res.batch.articleEvent(ev, link)
		res.EventIDs = appendUnique(res.EventIDs, ev.ID)
	}

	// Each relationship runs in its own savepoint so a failing one does not
	// poison the enclosing transaction.
	for _, rel := range a.ConceptRelationships {
		var created bool
		err := tx.WithTx(ctx, func(inner store.KnowledgeStore) error {
			var err error
			created, err = g.persistRelation(ctx, r.WithRepository(inner), inner, article.ID, rel, res)
			return err
		})
		if err != nil {
			logger.Warn("[Graph] Concept relationship skipped",
				"source", rel.Source, "target", rel.Target, "type", rel.RelationshipType, "err", err)
			continue
		}
		if created {
			res.ConceptRelationships++
		}
	}
	return nil
}

func (g *GraphClient) persistRelation(
	ctx context.Context,
	r *resolve.Resolver,
	tx store.KnowledgeStore,
	articleID int64,
	rel extract.ConceptRelation,
	res *ProcessResult,
) (bool, error) {
	source, sourceCreated, err := r.EnsureConcept(ctx, rel.Source, nil)
	if err != nil {
		return false, err
	}
	target, targetCreated, err := r.EnsureConcept(ctx, rel.Target, nil)
	if err != nil {
		return false, err
	}
	relType := rel.RelationshipType
	if relType == "" {
		relType = common.RelatedTo
	}
	weight := rel.Weight
	if weight <= 0 {
		weight = defaultRelationWeight
	}
	cr := common.ConceptRelationship{
		SourceConceptID:  source.ID,
		TargetConceptID:  target.ID,
		RelationshipType: relType,
		Weight:           weight,
		ArticleID:        &articleID,
	}
	created, err := tx.UpsertConceptRelationship(ctx, cr)
	if err != nil {
		return false, err
	}
	if sourceCreated {
		res.NewConcepts = appendUnique(res.NewConcepts, source.ID)
	}
	if targetCreated {
		res.NewConcepts = appendUnique(res.NewConcepts, target.ID)
	}
	res.batch.conceptRelation(source, target, cr)
	return created, nil
}

// linkConcepts embeds the concepts this article created and links each
// of them. Concepts left without embedding are picked up by the next
// backfill.
func (g *GraphClient) linkConcepts(ctx context.Context, res *ProcessResult) {
	if len(res.NewConcepts) == 0 {
		return
	}
	concepts, err := g.store.GetConcepts(ctx, res.NewConcepts)
	if err != nil {
		logger.Warn("[Graph] Failed to load new concepts", "article_id", res.ArticleID, "err", err)
		return
	}
	vectors, err := similarity.EmbedConcepts(ctx, g.embedder, concepts)
	if err != nil {
		logger.Warn("[Graph] Concept embedding failed, deferring to backfill", "article_id", res.ArticleID, "err", err)
		return
	}
	if err := g.store.UpdateConceptEmbeddings(ctx, vectors); err != nil {
		logger.Warn("[Graph] Failed to store concept embeddings", "article_id", res.ArticleID, "err", err)
		return
	}

	for _, c := range concepts {
		c.Embedding = vectors[c.ID]
		out, err := g.linker.Link(ctx, c)
		if err != nil {
			logger.Warn("[Graph] Concept linking failed", "concept_id", c.ID, "err", err)
			continue
		}
		res.Connections = append(res.Connections, out.Edges...)
		res.LinkFailures = append(res.LinkFailures, out.Failures...)
	}
}

func skip(err error, kind, name string) bool {
	if err != nil && errors.Is(err, common.ErrInvalidInput) {
		logger.Debug("[Graph] Skipping invalid extraction item", "kind", kind, "name", name, "err", err)
		return true
	}
	return false
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}
