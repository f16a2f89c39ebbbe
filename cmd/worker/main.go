package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knowledgesnode/backend/internal/db"
	"github.com/knowledgesnode/backend/internal/queue"
	"github.com/knowledgesnode/backend/internal/setup"
	"github.com/knowledgesnode/backend/internal/util"
	"github.com/knowledgesnode/backend/pkg/logger"
	"github.com/knowledgesnode/backend/pkg/logger/console"
	"github.com/knowledgesnode/backend/pkg/metrics"
	"github.com/knowledgesnode/backend/pkg/resolve"
	pgxstore "github.com/knowledgesnode/backend/pkg/store/pgx"

	"github.com/labstack/echo/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
		JSON:  util.GetEnv("LOG_FORMAT") == "json",
	})
	logger.Init(consoleLogger)

	// Init pgx client
	pgConn, err := db.Connect(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("[Worker] Unable to connect to database", "err", err)
	}
	defer pgConn.Close()
	st := pgxstore.New(pgConn)

	if err := resolve.SeedDomains(ctx, st); err != nil {
		logger.Fatal("[Worker] Failed to seed domains", "err", err)
	}

	rdb, err := setup.NewRedis(ctx)
	if err != nil {
		logger.Warn("[Worker] Redis unavailable, embedding cache disabled", "err", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	aiClient, err := setup.NewAIClient()
	if err != nil {
		logger.Fatal("[Worker] Could not create AI client", "err", err)
	}
	opts, err := setup.OptionsFromEnv()
	if err != nil {
		logger.Fatal("[Worker] Invalid pipeline configuration", "err", err)
	}

	collector := metrics.NewCollector("knowledgesnode")
	pipeline, err := setup.NewPipeline(ctx, setup.NewPipelineParams{
		Store:    st,
		AI:       aiClient,
		Embedder: setup.NewEmbedder(aiClient, rdb),
		Metrics:  collector,
		Options:  opts,
	})
	if err != nil {
		logger.Fatal("[Worker] Failed to build pipeline", "err", err)
	}
	defer pipeline.Close(context.Background())
	locks := setup.NewLocks(pgConn, rdb)

	metricsServer := echo.New()
	metricsServer.HideBanner = true
	metricsServer.GET("/metrics", echo.WrapHandler(collector.Handler()))
	go func() {
		port := util.GetEnvString("METRICS_PORT", "9090")
		if err := metricsServer.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Error("[Worker] Metrics server stopped", "err", err)
		}
	}()
	defer metricsServer.Close()

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("[Worker] Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("[Worker] Failed to set up queues", "err", err)
	}
	sender := queue.NewChannelSender(ch)

	if _, err := queue.RecoverStaleArticles(ctx, sender, st, util.GetEnvInt("RECOVER_LIMIT", 1000)); err != nil {
		logger.Error("[Worker] Failed to recover stale articles", "err", err)
	}

	logger.Info("[Worker] Listening for messages")

	// Create a single consumer channel with prefetch=1
	// This ensures only ONE message is delivered at a time across all queues
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("[Worker] Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("[Worker] Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.Queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("[Worker] Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("[Worker] Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("[Worker] Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		for {
			select {
			case <-ctx.Done():
				logger.Info("[Worker] Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("[Worker] Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.ArticleQueue:
					processingErr = queue.ProcessArticleMessage(ctx, pipeline.Graph, sender, string(qm.msg.Body))
				case queue.RelinkQueue:
					processingErr = queue.ProcessRelinkMessage(ctx, pipeline.Graph, locks, string(qm.msg.Body))
				}

				// If there was an error send to retry or dead-letter, otherwise ack the message
				if processingErr != nil {
					logger.Error("[Worker] Error processing message", "queue", qm.queueName, "err", processingErr)
					queue.HandleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("[Worker] Failed to ack message", "err", err)
					}
					logger.Info("[Worker] Message processed successfully", "queue", qm.queueName)
				}

				usage := aiClient.GetMetrics()
				logger.Info(
					"[Worker] AI metrics",
					"input_tokens", usage.InputTokens,
					"output_tokens", usage.OutputTokens,
					"total_tokens", usage.TotalTokens,
					"duration", formatDuration(time.Duration(usage.DurationMs)*time.Millisecond),
				)
				logger.Info("[Worker] Processing time", "duration", formatDuration(time.Since(startTime)))
				aiClient.ResetMetrics()
			}
		}
	}()

	<-ctx.Done()
	logger.Info("[Worker] Shutdown signal received, waiting for current message...")
	<-processorDone
	logger.Info("[Worker] Exiting")
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
