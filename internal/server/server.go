package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/knowledgesnode/backend/internal/db"
	"github.com/knowledgesnode/backend/internal/queue"
	mid "github.com/knowledgesnode/backend/internal/server/middleware"
	"github.com/knowledgesnode/backend/internal/util"
	"github.com/knowledgesnode/backend/pkg/logger"
	"github.com/knowledgesnode/backend/pkg/metrics"
	neo4jsink "github.com/knowledgesnode/backend/pkg/mirror/neo4j"
	pgxstore "github.com/knowledgesnode/backend/pkg/store/pgx"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// NewEcho returns an echo instance with the validator and the shared
// middleware installed, serving app.
func NewEcho(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(middleware.RequestID())
	e.Use(mid.AppContextMiddleware(app))
	e.Use(mid.MetricsMiddleware)
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("16M"))

	var metricsHandler http.Handler
	if app.Metrics != nil {
		metricsHandler = app.Metrics.Handler()
	}
	RegisterRoutes(e, metricsHandler)
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var key keyfunc.Keyfunc
	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("[Server] Failed to load jwks keys", "err", err)
		}
		key = k
	}

	databaseURL := util.GetEnv("DATABASE_URL")
	if util.GetEnvBool("MIGRATE_ON_START", true) {
		if err := db.Migrate(databaseURL, util.GetEnvString("MIGRATIONS_PATH", db.DefaultMigrationsPath)); err != nil {
			logger.Fatal("[Server] Failed to migrate database", "err", err)
		}
	}

	conn, err := db.Connect(ctx, databaseURL)
	if err != nil {
		logger.Fatal("[Server] Failed to connect to database", "err", err)
	}
	defer conn.Close()

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("[Server] Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("[Server] Failed to set up queues", "err", err)
	}

	masterUserID, _ := strconv.ParseInt(util.GetEnv("MASTER_USER_ID"), 10, 64)
	app := &mid.App{
		Store:          pgxstore.New(conn),
		Queue:          queue.NewChannelSender(ch),
		Key:            key,
		Metrics:        metrics.NewCollector("knowledgesnode"),
		MasterAPIKey:   util.GetEnv("MASTER_API_KEY"),
		MasterUserID:   masterUserID,
		MasterUserRole: util.GetEnv("MASTER_USER_ROLE"),
	}

	sink, err := neo4jsink.NewFromEnv(ctx)
	if err != nil {
		logger.Warn("[Server] Graph mirror unavailable, serving relational results only", "err", err)
	} else if sink != nil {
		defer sink.Close(context.Background())
		app.Mirror = sink
	}

	e := NewEcho(app)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("[Server] Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("[Server] Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("[Server] Failed to shutdown server", "err", err)
	}
}
