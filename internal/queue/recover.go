package queue

import (
	"context"
	"fmt"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/logger"
)

// ArticleLister finds articles by processing status.
type ArticleLister interface {
	ListArticleIDsByStatus(ctx context.Context, status common.ProcessingStatus, limit int) ([]int64, error)
}

// RecoverStaleArticles re-enqueues articles left pending or processing by a
// worker that stopped before finishing them. Processing an article twice
// converges on the same graph, so duplicates are harmless.
func RecoverStaleArticles(ctx context.Context, sender Sender, articles ArticleLister, limit int) (int, error) {
	recovered := 0
	for _, status := range []common.ProcessingStatus{common.StatusProcessing, common.StatusPending} {
		ids, err := articles.ListArticleIDsByStatus(ctx, status, limit)
		if err != nil {
			return recovered, fmt.Errorf("failed to list %s articles: %w", status, err)
		}
		for _, id := range ids {
			if err := EnqueueArticle(sender, id, "recovered"); err != nil {
				logger.Error("[Queue] Failed to republish article", "article_id", id, "err", err)
				continue
			}
			recovered++
		}
	}
	if recovered == 0 {
		logger.Debug("[Queue] No stale articles found")
		return 0, nil
	}
	logger.Info("[Queue] Recovered stale articles", "count", recovered)
	return recovered, nil
}
