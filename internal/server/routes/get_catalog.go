package routes

import (
	"net/http"

	"github.com/knowledgesnode/backend/internal/server/middleware"
	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetDomainsHandler returns the domain forest.
func GetDomainsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	tree, err := app.Store.ListDomainTree(c.Request().Context())
	if err != nil {
		logger.Error("[API] Failed to list domains", "err", err)
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
	}
	if tree == nil {
		tree = []common.DomainNode{}
	}
	return c.JSON(http.StatusOK, tree)
}

// GetEventsHandler lists events, most recent first, with the number of
// articles referencing each.
func GetEventsHandler(c echo.Context) error {
	type eventsData struct {
		Limit int `query:"limit" validate:"min=0"`
	}

	data := new(eventsData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	events, err := app.Store.ListEvents(c.Request().Context(), clampLimit(data.Limit))
	if err != nil {
		logger.Error("[API] Failed to list events", "err", err)
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
	}
	if events == nil {
		events = []common.EventSummary{}
	}
	return c.JSON(http.StatusOK, events)
}

// GetEntitiesHandler lists entities by accumulated mention count,
// optionally filtered by type.
func GetEntitiesHandler(c echo.Context) error {
	type entitiesData struct {
		EntityType string `query:"type" validate:"max=100"`
		Limit      int    `query:"limit" validate:"min=0"`
	}

	data := new(entitiesData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	entities, err := app.Store.ListEntities(c.Request().Context(), data.EntityType, clampLimit(data.Limit))
	if err != nil {
		logger.Error("[API] Failed to list entities", "err", err)
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
	}
	if entities == nil {
		entities = []common.EntitySummary{}
	}
	return c.JSON(http.StatusOK, entities)
}
