package routes

import (
	"net/http"

	"github.com/knowledgesnode/backend/internal/server/middleware"
	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

const originMirror = "mirror"

type articleParams struct {
	ArticleID int64 `param:"id" validate:"required,min=1"`
	Limit     int   `query:"limit"`
}

func bindArticle(c echo.Context) (*articleParams, error) {
	data := new(articleParams)
	if err := c.Bind(data); err != nil {
		return nil, err
	}
	if err := c.Validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// GetArticleHandler returns an article with its processing status.
func GetArticleHandler(c echo.Context) error {
	data, err := bindArticle(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	article, err := app.Store.GetArticle(c.Request().Context(), data.ArticleID)
	if err != nil {
		status := statusFor(err)
		return c.JSON(status, messageResponse{Message: messageFor(status)})
	}
	return c.JSON(http.StatusOK, article)
}

// GetRelatedArticlesHandler lists the outgoing article relationships of an
// article. When a graph mirror is configured, articles it finds through
// shared events are appended unless the relational store already lists
// them.
func GetRelatedArticlesHandler(c echo.Context) error {
	data, err := bindArticle(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	related, err := app.Store.ListRelatedArticles(ctx, data.ArticleID)
	if err != nil {
		status := statusFor(err)
		return c.JSON(status, messageResponse{Message: messageFor(status)})
	}
	if related == nil {
		related = []common.RelatedArticle{}
	}

	if app.Mirror != nil {
		seen := make(map[int64]struct{}, len(related))
		for _, r := range related {
			seen[r.ArticleID] = struct{}{}
		}
		similar, err := app.Mirror.SimilarArticles(ctx, data.ArticleID, clampLimit(data.Limit))
		if err != nil {
			logger.Warn("[API] Mirror lookup failed", "article_id", data.ArticleID, "err", err)
		}
		for _, s := range similar {
			if _, ok := seen[s.ArticleID]; ok || s.ArticleID == data.ArticleID {
				continue
			}
			seen[s.ArticleID] = struct{}{}
			related = append(related, common.RelatedArticle{
				ArticleID:        s.ArticleID,
				Title:            s.Title,
				RelationshipType: common.RelatedTo,
				SimilarityScore:  float64(s.SharedEvents),
				Origin:           originMirror,
			})
		}
	}

	return c.JSON(http.StatusOK, related)
}

// GetArticleGraphHandler returns the knowledge graph around an article.
func GetArticleGraphHandler(c echo.Context) error {
	data, err := bindArticle(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	graph, err := app.Store.ArticleSubgraph(c.Request().Context(), data.ArticleID)
	if err != nil {
		status := statusFor(err)
		return c.JSON(status, messageResponse{Message: messageFor(status)})
	}
	if graph.Nodes == nil {
		graph.Nodes = []common.GraphNode{}
	}
	if graph.Edges == nil {
		graph.Edges = []common.GraphEdge{}
	}
	return c.JSON(http.StatusOK, graph)
}
