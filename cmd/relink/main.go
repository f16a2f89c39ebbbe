// Command relink backfills missing concept embeddings, recomputes the
// similarity connections of every embedded concept and prints the
// strength distribution, optionally followed by the strong connection
// report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/knowledgesnode/backend/internal/db"
	"github.com/knowledgesnode/backend/internal/queue"
	"github.com/knowledgesnode/backend/internal/setup"
	"github.com/knowledgesnode/backend/internal/util"
	"github.com/knowledgesnode/backend/pkg/graph"
	"github.com/knowledgesnode/backend/pkg/leaselock"
	"github.com/knowledgesnode/backend/pkg/logger"
	"github.com/knowledgesnode/backend/pkg/logger/console"
	pgxstore "github.com/knowledgesnode/backend/pkg/store/pgx"
)

func main() {
	threshold := flag.Float64("threshold", 0, "minimum cosine similarity; defaults to SIMILARITY_THRESHOLD")
	backfill := flag.Bool("backfill", true, "embed concepts that have no embedding first")
	batchSize := flag.Int("batch", 0, "concepts per embedding request")
	reportMin := flag.Float64("report-min", 0, "strength a connection needs to appear in the report")
	topPairs := flag.Int("top-pairs", 0, "print the strong connection report with this many article pairs")
	asJSON := flag.Bool("json", false, "write the summary to stdout as JSON")
	flag.Parse()

	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
	})
	logger.Init(consoleLogger)

	pgConn, err := db.Connect(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("[Relink] Unable to connect to database", "err", err)
	}
	defer pgConn.Close()
	st := pgxstore.New(pgConn)

	rdb, err := setup.NewRedis(ctx)
	if err != nil {
		logger.Warn("[Relink] Redis unavailable, embedding cache disabled", "err", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	aiClient, err := setup.NewAIClient()
	if err != nil {
		logger.Fatal("[Relink] Could not create AI client", "err", err)
	}
	opts, err := setup.OptionsFromEnv()
	if err != nil {
		logger.Fatal("[Relink] Invalid pipeline configuration", "err", err)
	}

	pipeline, err := setup.NewPipeline(ctx, setup.NewPipelineParams{
		Store:    st,
		AI:       aiClient,
		Embedder: setup.NewEmbedder(aiClient, rdb),
		Options:  opts,
	})
	if err != nil {
		logger.Fatal("[Relink] Failed to build pipeline", "err", err)
	}
	defer pipeline.Close(context.Background())

	sum, err := queue.RunRelink(ctx, pipeline.Graph, setup.NewLocks(pgConn, rdb), graph.RelinkOptions{
		Backfill:        *backfill,
		BatchSize:       *batchSize,
		Threshold:       *threshold,
		ReportThreshold: *reportMin,
		ReportTopPairs:  *topPairs,
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Fatal("[Relink] Another relink pass is running")
	}
	if err != nil {
		logger.Fatal("[Relink] Relink failed", "err", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			logger.Fatal("[Relink] Failed to write summary", "err", err)
		}
		return
	}

	for _, b := range sum.Distribution {
		logger.Info("[Relink] Connection strength", "min", b.Min, "max", b.Max, "count", b.Count)
	}
	if sum.Report == nil {
		return
	}
	for _, a := range sum.Report.Articles {
		logger.Info("[Relink] Article connections",
			"article_id", a.ArticleID,
			"title", a.Title,
			"internal", len(a.Internal),
			"external", len(a.External),
		)
	}
	for _, p := range sum.Report.TopPairs {
		logger.Info("[Relink] Article pair",
			"source", p.SourceTitle,
			"target", p.TargetTitle,
			"connections", p.Connections,
		)
	}
}
