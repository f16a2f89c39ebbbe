package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/knowledgesnode/backend/internal/queue"
	"github.com/knowledgesnode/backend/internal/server/middleware"
	"github.com/knowledgesnode/backend/internal/util"
	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CreateArticleHandler stores an article and queues it for processing.
func CreateArticleHandler(c echo.Context) error {
	type createArticleData struct {
		Title         string     `json:"title" validate:"required,max=500"`
		URL           string     `json:"url" validate:"omitempty,url,max=2000"`
		Content       string     `json:"content" validate:"required"`
		Source        string     `json:"source" validate:"max=200"`
		PublishedDate *time.Time `json:"published_date"`
	}

	type createArticleResponse struct {
		Message string          `json:"message"`
		Article *common.Article `json:"article,omitempty"`
	}

	data := new(createArticleData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createArticleResponse{
			Message: "Invalid request params",
		})
	}
	data.Title = util.NormalizeName(data.Title)
	data.Content = strings.TrimSpace(util.SanitizePostgresText(data.Content))
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createArticleResponse{
			Message: "Invalid request params",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	article, err := app.Store.CreateArticle(ctx, common.Article{
		Title:         data.Title,
		URL:           util.NormalizeName(data.URL),
		Content:       data.Content,
		Source:        util.NormalizeName(data.Source),
		PublishedDate: data.PublishedDate,
		Status:        common.StatusPending,
	})
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.Error("[API] Failed to create article", "err", err)
		}
		return c.JSON(status, createArticleResponse{Message: messageFor(status)})
	}

	correlationID := c.Response().Header().Get(echo.HeaderXRequestID)
	if err := queue.EnqueueArticle(app.Queue, article.ID, correlationID); err != nil {
		// The article stays pending; stale recovery picks it up on the next
		// worker start.
		logger.Error("[API] Failed to enqueue article", "article_id", article.ID, "err", err)
	}

	article.Content = ""
	return c.JSON(http.StatusAccepted, createArticleResponse{
		Message: "Article accepted",
		Article: &article,
	})
}
