// Package setup builds the processing pipeline from the environment. The
// worker and the relink command share it.
package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/knowledgesnode/backend/internal/storage"
	"github.com/knowledgesnode/backend/internal/util"
	"github.com/knowledgesnode/backend/pkg/ai"
	"github.com/knowledgesnode/backend/pkg/ai/cache"
	oai "github.com/knowledgesnode/backend/pkg/ai/ollama"
	gai "github.com/knowledgesnode/backend/pkg/ai/openai"
	"github.com/knowledgesnode/backend/pkg/extract"
	"github.com/knowledgesnode/backend/pkg/graph"
	"github.com/knowledgesnode/backend/pkg/leaselock"
	"github.com/knowledgesnode/backend/pkg/logger"
	"github.com/knowledgesnode/backend/pkg/metrics"
	"github.com/knowledgesnode/backend/pkg/mirror"
	neo4jsink "github.com/knowledgesnode/backend/pkg/mirror/neo4j"
	"github.com/knowledgesnode/backend/pkg/relate"
	"github.com/knowledgesnode/backend/pkg/resolve"
	"github.com/knowledgesnode/backend/pkg/similarity"
	"github.com/knowledgesnode/backend/pkg/store"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const defaultEmbeddingDim = 1536

// NewAIClient selects the model backend named by AI_ADAPTER.
func NewAIClient() (ai.GraphAIClient, error) {
	timeout := time.Duration(util.GetEnvInt("AI_TIMEOUT_MIN", 5)) * time.Minute
	dim := util.GetEnvInt("AI_EMBED_DIM", defaultEmbeddingDim)
	parallel := int64(util.GetEnvInt("AI_PARALLEL_REQ", 4))

	switch adapter := util.GetEnvString("AI_ADAPTER", "openai"); adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			EmbeddingDim:    dim,

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: parallel,
			Timeout:               timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return client, nil
	case "openai":
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			EmbeddingDim:    dim,

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: parallel,
			Timeout:               timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown AI_ADAPTER %q", adapter)
	}
}

// NewRedis connects to REDIS_URL. It returns nil without error when the
// variable is unset.
func NewRedis(ctx context.Context) (*redis.Client, error) {
	raw := util.GetEnv("REDIS_URL")
	if raw == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewEmbedder puts the Redis embedding cache in front of client when rdb
// is set.
func NewEmbedder(client ai.Embedder, rdb *redis.Client) ai.Embedder {
	if rdb == nil {
		return client
	}
	embedder, err := cache.NewEmbeddingCache(cache.NewEmbeddingCacheParams{
		Next:   client,
		Client: rdb,
		Model:  util.GetEnv("AI_EMBED_MODEL"),
		TTL:    time.Duration(util.GetEnvInt("EMBED_CACHE_TTL_HOURS", 24*30)) * time.Hour,
	})
	if err != nil {
		logger.Warn("[Setup] Embedding cache disabled", "err", err)
		return client
	}
	return embedder
}

// NewLocks prefers Redis for relink leases and falls back to the
// job_leases table.
func NewLocks(pool *pgxpool.Pool, rdb *redis.Client) *leaselock.Client {
	if rdb != nil {
		return leaselock.New(leaselock.NewRedis(rdb))
	}
	return leaselock.New(leaselock.NewPostgres(pool))
}

// Options are the pipeline knobs read from the environment.
type Options struct {
	Threshold      float64
	ResightPolicy  resolve.Policy
	EventEdges     relate.EventEdgePolicy
	OracleTimeout  time.Duration
	OracleMaxToken int
}

// OptionsFromEnv reads SIMILARITY_THRESHOLD, RESIGHT_POLICY,
// EVENT_EDGE_POLICY, ORACLE_TIMEOUT_SECONDS and ORACLE_MAX_TOKENS.
func OptionsFromEnv() (Options, error) {
	policy, err := resolve.ParsePolicy(util.GetEnv("RESIGHT_POLICY"))
	if err != nil {
		return Options{}, err
	}
	edges, err := relate.ParseEventEdgePolicy(util.GetEnv("EVENT_EDGE_POLICY"))
	if err != nil {
		return Options{}, err
	}
	threshold := util.GetEnvFloat("SIMILARITY_THRESHOLD", similarity.DefaultThreshold)
	if threshold < 0 || threshold > 1 {
		return Options{}, fmt.Errorf("SIMILARITY_THRESHOLD must be within [0, 1], got %v", threshold)
	}
	return Options{
		Threshold:      threshold,
		ResightPolicy:  policy,
		EventEdges:     edges,
		OracleTimeout:  util.GetEnvSeconds("ORACLE_TIMEOUT_SECONDS", extract.DefaultTimeout),
		OracleMaxToken: util.GetEnvInt("ORACLE_MAX_TOKENS", 6000),
	}, nil
}

// Pipeline is a GraphClient together with the resources it owns.
type Pipeline struct {
	Graph     *graph.GraphClient
	AI        ai.GraphAIClient
	Publisher *mirror.Publisher
	Metrics   *metrics.Collector

	sink *neo4jsink.Sink
}

// NewPipelineParams configures NewPipeline. AI and Embedder are built
// from the environment when nil.
type NewPipelineParams struct {
	Store    store.KnowledgeStore
	AI       ai.GraphAIClient
	Embedder ai.Embedder
	Metrics  *metrics.Collector
	Options  Options
}

// NewPipeline wires the oracle, resolver, linker, builder, raw archive and
// graph mirror around params.Store. The mirror runs in the background
// until Close.
func NewPipeline(ctx context.Context, params NewPipelineParams) (*Pipeline, error) {
	aiClient := params.AI
	if aiClient == nil {
		client, err := NewAIClient()
		if err != nil {
			return nil, err
		}
		aiClient = client
	}
	embedder := params.Embedder
	if embedder == nil {
		embedder = aiClient
	}
	opts := params.Options

	oracle, err := extract.NewOracle(extract.NewOracleParams{
		Client:           aiClient,
		Timeout:          opts.OracleTimeout,
		MaxContentTokens: opts.OracleMaxToken,
	})
	if err != nil {
		return nil, err
	}

	p := &Pipeline{AI: aiClient, Metrics: params.Metrics}

	var sink mirror.Sink = mirror.Noop{}
	neo, err := neo4jsink.NewFromEnv(ctx)
	switch {
	case err != nil:
		logger.Warn("[Setup] Graph mirror disabled", "err", err)
	case neo != nil:
		neo.EnsureSchema(ctx)
		p.sink = neo
		sink = neo
	}
	p.Publisher = mirror.NewPublisher(mirror.PublisherParams{
		Sink:    sink,
		Metrics: params.Metrics,
	})
	p.Publisher.Start(ctx)

	var archive graph.RawArchive
	if a := storage.NewAnalysisArchiveFromEnv(ctx); a != nil {
		archive = a
	}

	g, err := graph.NewGraphClient(graph.NewGraphClientParams{
		Store:     params.Store,
		Extractor: oracle,
		Embedder:  embedder,
		Resolver:  resolve.NewResolver(params.Store, resolve.WithPolicy(opts.ResightPolicy)),
		Linker: similarity.NewLinker(params.Store,
			similarity.WithThreshold(opts.Threshold),
			similarity.WithMetrics(params.Metrics),
		),
		Builder: relate.NewBuilder(params.Store,
			relate.WithEventEdgePolicy(opts.EventEdges),
			relate.WithMetrics(params.Metrics),
		),
		Publisher: p.Publisher,
		Archive:   archive,
		Metrics:   params.Metrics,
	})
	if err != nil {
		p.Close(ctx)
		return nil, err
	}
	p.Graph = g
	return p, nil
}

// Close drains the mirror queue and closes the Neo4j driver.
func (p *Pipeline) Close(ctx context.Context) {
	p.Publisher.Close()
	if p.sink != nil {
		if err := p.sink.Close(ctx); err != nil {
			logger.Warn("[Setup] Failed to close graph mirror", "err", err)
		}
	}
}
