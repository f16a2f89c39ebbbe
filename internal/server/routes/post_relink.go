package routes

import (
	"net/http"

	"github.com/knowledgesnode/backend/internal/queue"
	"github.com/knowledgesnode/backend/internal/server/middleware"
	"github.com/knowledgesnode/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RelinkConceptsHandler queues a full similarity relink pass.
func RelinkConceptsHandler(c echo.Context) error {
	type relinkData struct {
		Threshold     float64 `json:"threshold" validate:"min=0,max=1"`
		Backfill      bool    `json:"backfill"`
		TopPairs      int     `json:"top_pairs" validate:"min=0,max=100"`
		ReportMinimum float64 `json:"report_minimum" validate:"min=0,max=1"`
	}

	data := new(relinkData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	err := queue.EnqueueRelink(app.Queue, queue.RelinkMsg{
		Threshold:     data.Threshold,
		Backfill:      data.Backfill,
		TopPairs:      data.TopPairs,
		ReportMinimum: data.ReportMinimum,
	})
	if err != nil {
		logger.Error("[API] Failed to enqueue relink", "err", err)
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
	}
	return c.JSON(http.StatusAccepted, messageResponse{Message: "Relink queued"})
}
