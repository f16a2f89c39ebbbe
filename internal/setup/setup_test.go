package setup

import (
	"context"
	"testing"

	"github.com/knowledgesnode/backend/pkg/ai"
	"github.com/knowledgesnode/backend/pkg/ai/cache"
	oai "github.com/knowledgesnode/backend/pkg/ai/ollama"
	gai "github.com/knowledgesnode/backend/pkg/ai/openai"
	"github.com/knowledgesnode/backend/pkg/relate"
	"github.com/knowledgesnode/backend/pkg/resolve"
	"github.com/knowledgesnode/backend/pkg/similarity"
	"github.com/knowledgesnode/backend/pkg/store/memory"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAI struct{}

func (stubAI) GenerateEmbedding(context.Context, []byte) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (stubAI) GenerateEmbeddings(_ context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (stubAI) GenerateJSON(context.Context, string, string, string, any, ...ai.GenerateOption) (string, error) {
	return `{}`, nil
}

func (stubAI) ResetMetrics()               {}
func (stubAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func clearPipelineEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SIMILARITY_THRESHOLD", "RESIGHT_POLICY", "EVENT_EDGE_POLICY",
		"ORACLE_TIMEOUT_SECONDS", "ORACLE_MAX_TOKENS",
		"NEO4J_URI", "AWS_ENDPOINT", "AWS_BUCKET", "REDIS_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestOptionsFromEnv_Defaults(t *testing.T) {
	clearPipelineEnv(t)

	opts, err := OptionsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, similarity.DefaultThreshold, opts.Threshold)
	assert.Equal(t, resolve.KeepFirst, opts.ResightPolicy)
	assert.Equal(t, relate.EventEdgeSkipExisting, opts.EventEdges)
	assert.Positive(t, opts.OracleTimeout)
}

func TestOptionsFromEnv_Overrides(t *testing.T) {
	clearPipelineEnv(t)
	t.Setenv("SIMILARITY_THRESHOLD", "0.8")
	t.Setenv("RESIGHT_POLICY", "keep_latest")
	t.Setenv("EVENT_EDGE_POLICY", "recompute")

	opts, err := OptionsFromEnv()
	require.NoError(t, err)
	assert.InDelta(t, 0.8, opts.Threshold, 1e-9)
	assert.Equal(t, resolve.KeepLatest, opts.ResightPolicy)
	assert.Equal(t, relate.EventEdgeRecompute, opts.EventEdges)
}

func TestOptionsFromEnv_Rejects(t *testing.T) {
	cases := map[string][2]string{
		"threshold": {"SIMILARITY_THRESHOLD", "1.5"},
		"policy":    {"RESIGHT_POLICY", "newest-wins"},
		"edges":     {"EVENT_EDGE_POLICY", "sometimes"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearPipelineEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := OptionsFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestNewAIClient_SelectsAdapter(t *testing.T) {
	t.Setenv("AI_ADAPTER", "ollama")
	t.Setenv("AI_CHAT_URL", "http://localhost:11434")
	client, err := NewAIClient()
	require.NoError(t, err)
	assert.IsType(t, &oai.GraphOllamaClient{}, client)

	t.Setenv("AI_ADAPTER", "openai")
	client, err = NewAIClient()
	require.NoError(t, err)
	assert.IsType(t, &gai.GraphOpenAIClient{}, client)

	t.Setenv("AI_ADAPTER", "mystery")
	_, err = NewAIClient()
	assert.Error(t, err)
}

func TestNewEmbedder_WrapsWithCache(t *testing.T) {
	assert.Equal(t, ai.Embedder(stubAI{}), NewEmbedder(stubAI{}, nil))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	embedder := NewEmbedder(stubAI{}, rdb)
	assert.IsType(t, &cache.EmbeddingCache{}, embedder)
	vec, err := embedder.GenerateEmbedding(context.Background(), []byte("반도체"))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
}

func TestNewPipeline_WithoutOptionalBackends(t *testing.T) {
	clearPipelineEnv(t)
	opts, err := OptionsFromEnv()
	require.NoError(t, err)

	ctx := context.Background()
	p, err := NewPipeline(ctx, NewPipelineParams{
		Store:   memory.New(),
		AI:      stubAI{},
		Options: opts,
	})
	require.NoError(t, err)
	require.NotNil(t, p.Graph)
	assert.Nil(t, p.sink)
	p.Close(ctx)
}
