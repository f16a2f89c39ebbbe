package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	seen  []string
	fail  bool
}

func (e *countingEmbedder) vector(in []byte) []float32 {
	return []float32{float32(len(in)), 1, 0.5}
}

func (e *countingEmbedder) GenerateEmbedding(_ context.Context, in []byte) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.seen = append(e.seen, string(in))
	if e.fail {
		return nil, errors.New("upstream down")
	}
	return e.vector(in), nil
}

func (e *countingEmbedder) GenerateEmbeddings(_ context.Context, ins [][]byte) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	out := make([][]float32, len(ins))
	for i, in := range ins {
		e.seen = append(e.seen, string(in))
		out[i] = e.vector(in)
	}
	return out, nil
}

func setupCache(t *testing.T) (*EmbeddingCache, *countingEmbedder, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	next := &countingEmbedder{}
	c, err := NewEmbeddingCache(NewEmbeddingCacheParams{
		Next:   next,
		Client: client,
		Model:  "test-model",
		TTL:    time.Hour,
	})
	require.NoError(t, err)
	return c, next, mr
}

func TestGenerateEmbedding_CachesResult(t *testing.T) {
	c, next, _ := setupCache(t)
	ctx := context.Background()

	first, err := c.GenerateEmbedding(ctx, []byte("인공지능"))
	require.NoError(t, err)
	second, err := c.GenerateEmbedding(ctx, []byte("인공지능"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)
}

func TestGenerateEmbedding_PropagatesUpstreamError(t *testing.T) {
	c, next, _ := setupCache(t)
	next.fail = true

	_, err := c.GenerateEmbedding(context.Background(), []byte("로봇"))
	assert.Error(t, err)
}

func TestGenerateEmbeddings_OnlyMissesGoUpstream(t *testing.T) {
	c, next, _ := setupCache(t)
	ctx := context.Background()

	_, err := c.GenerateEmbedding(ctx, []byte("a"))
	require.NoError(t, err)
	next.seen = nil

	out, err := c.GenerateEmbeddings(ctx, [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []float32{1, 1, 0.5}, out[0])
	assert.Equal(t, []float32{2, 1, 0.5}, out[1])
	assert.Equal(t, []float32{3, 1, 0.5}, out[2])
	assert.Equal(t, []string{"bb", "ccc"}, next.seen)
}

func TestGenerateEmbeddings_FallsBackWhenRedisIsDown(t *testing.T) {
	c, next, mr := setupCache(t)
	mr.Close()

	out, err := c.GenerateEmbeddings(context.Background(), [][]byte{[]byte("x")})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 0.5}, out[0])
	assert.Equal(t, 1, next.calls)
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0.25, -1, 3.5}
	out, ok := decodeVector(encodeVector(in))
	require.True(t, ok)
	assert.Equal(t, in, out)

	_, ok = decodeVector([]byte{1, 2, 3})
	assert.False(t, ok)
}
