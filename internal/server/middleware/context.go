package middleware

import (
	"github.com/knowledgesnode/backend/internal/queue"
	"github.com/knowledgesnode/backend/pkg/metrics"
	"github.com/knowledgesnode/backend/pkg/mirror"
	"github.com/knowledgesnode/backend/pkg/store"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      int64
	Role        string
	Permissions []string
}

// App carries the process-wide dependencies of the HTTP handlers.
//
// Key and Mirror are optional. Without Key only the master API key is
// accepted; without Mirror related-article lookups use the relational
// store alone.
type App struct {
	Store          store.KnowledgeStore
	Queue          queue.Sender
	Key            keyfunc.Keyfunc
	Mirror         mirror.Querier
	Metrics        *metrics.Collector
	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
