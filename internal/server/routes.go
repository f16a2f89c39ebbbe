package server

import (
	"net/http"

	"github.com/knowledgesnode/backend/internal/server/middleware"
	"github.com/knowledgesnode/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, metricsHandler http.Handler) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	if metricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(metricsHandler))
	}

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Article routes
	apiRoutes.POST("/articles", routes.CreateArticleHandler, middleware.RequirePermission(middleware.PermArticleCreate))
	apiRoutes.GET("/articles/:id", routes.GetArticleHandler, middleware.RequirePermission(middleware.PermArticleView))
	apiRoutes.GET("/articles/:id/related", routes.GetRelatedArticlesHandler, middleware.RequirePermission(middleware.PermArticleView))
	apiRoutes.GET("/articles/:id/graph", routes.GetArticleGraphHandler, middleware.RequireAnyPermission(middleware.PermArticleView, middleware.PermGraphView))

	// Graph routes
	apiRoutes.GET("/concepts/:id/related", routes.GetRelatedConceptsHandler, middleware.RequirePermission(middleware.PermGraphView))
	apiRoutes.POST("/concepts/relink", routes.RelinkConceptsHandler, middleware.RequirePermission(middleware.PermConceptRelink))
	apiRoutes.GET("/domains", routes.GetDomainsHandler, middleware.RequirePermission(middleware.PermGraphView))
	apiRoutes.GET("/events", routes.GetEventsHandler, middleware.RequirePermission(middleware.PermGraphView))
	apiRoutes.GET("/entities", routes.GetEntitiesHandler, middleware.RequirePermission(middleware.PermGraphView))
}
