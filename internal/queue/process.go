package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/graph"
	"github.com/knowledgesnode/backend/pkg/logger"
)

// ArticleProcessor is the part of *graph.GraphClient the article handler
// uses.
type ArticleProcessor interface {
	ProcessArticle(ctx context.Context, articleID int64) (*graph.ProcessResult, error)
}

// ProcessArticleMessage runs one article through the pipeline. Malformed
// messages, unknown articles, invalid input and extraction failures are
// final: the article already records the failure, so they are
// acknowledged. Any other error is returned for a retry.
func ProcessArticleMessage(
	ctx context.Context,
	processor ArticleProcessor,
	sender Sender,
	msg string,
) error {
	data, err := decode[ArticleMsg](msg)
	if err != nil {
		logger.Error("[Queue] Dropping malformed article message", "err", err)
		return nil
	}
	if data.ArticleID <= 0 {
		logger.Error("[Queue] Dropping article message without id", "correlation_id", data.CorrelationID)
		return nil
	}

	res, err := processor.ProcessArticle(ctx, data.ArticleID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		logger.Warn("[Queue] Article does not exist", "article_id", data.ArticleID)
		return nil
	case errors.Is(err, common.ErrInvalidInput):
		logger.Warn("[Queue] Article rejected as invalid", "article_id", data.ArticleID, "err", err)
		return nil
	case errors.Is(err, common.ErrExtractionFailure):
		logger.Warn("[Queue] Article extraction failed", "article_id", data.ArticleID, "err", err)
		return nil
	case err != nil:
		return fmt.Errorf("failed to process article %d: %w", data.ArticleID, err)
	}

	if sender == nil {
		return nil
	}
	event, _ := json.Marshal(ArticleProcessedEvent{
		ArticleID:    res.ArticleID,
		Concepts:     len(res.ConceptIDs),
		NewConcepts:  len(res.NewConcepts),
		Entities:     len(res.EntityIDs),
		Events:       len(res.EventIDs),
		Connections:  len(res.Connections),
		ArticleEdges: len(res.Relations.Edges),
	})
	if err := sender.SendTopic(ArticleProcessedTopic, event); err != nil {
		logger.Warn("[Queue] Failed to publish processed event", "article_id", data.ArticleID, "err", err)
	}
	return nil
}
