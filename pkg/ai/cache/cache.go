package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/knowledgesnode/backend/pkg/ai"
	"github.com/knowledgesnode/backend/pkg/logger"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "knowledgesnode:embedding:"

// Verify interface compliance
var _ ai.Embedder = (*EmbeddingCache)(nil)

// EmbeddingCache is a read-through Redis cache in front of an ai.Embedder.
// Vectors are keyed by model and a hash of the input text, so re-embedding
// the same concept name across backfill runs costs one Redis round trip.
//
// Redis errors never fail a request; the cache falls back to the wrapped
// embedder and logs at WARN.
type EmbeddingCache struct {
	next   ai.Embedder
	client *redis.Client
	model  string
	ttl    time.Duration
	group  singleflight.Group
}

type NewEmbeddingCacheParams struct {
	Next   ai.Embedder
	Client *redis.Client
	Model  string
	TTL    time.Duration
}

func NewEmbeddingCache(params NewEmbeddingCacheParams) (*EmbeddingCache, error) {
	if params.Next == nil {
		return nil, fmt.Errorf("embedding cache requires an embedder")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("embedding cache requires a redis client")
	}
	return &EmbeddingCache{
		next:   params.Next,
		client: params.Client,
		model:  params.Model,
		ttl:    params.TTL,
	}, nil
}

func (c *EmbeddingCache) key(input []byte) string {
	sum := sha256.Sum256(input)
	return keyPrefix + c.model + ":" + hex.EncodeToString(sum[:])
}

// GenerateEmbedding returns the cached vector for input or computes it.
// Concurrent calls for the same input share one upstream request.
func (c *EmbeddingCache) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	key := c.key(input)
	v, err, _ := c.group.Do(key, func() (any, error) {
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			if vec, ok := decodeVector(raw); ok {
				return vec, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			logger.Warn("[EmbedCache] Redis read failed", "err", err)
		}

		vec, err := c.next.GenerateEmbedding(ctx, input)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, encodeVector(vec), c.ttl).Err(); err != nil {
			logger.Warn("[EmbedCache] Redis write failed", "err", err)
		}
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// GenerateEmbeddings resolves cache hits with one MGET and sends only the
// misses upstream, in a single batch.
func (c *EmbeddingCache) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(inputs))
	for i, in := range inputs {
		keys[i] = c.key(in)
	}

	out := make([][]float32, len(inputs))
	cached, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Warn("[EmbedCache] Redis batch read failed", "err", err)
		cached = nil
	}
	for i, v := range cached {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if vec, ok := decodeVector([]byte(s)); ok {
			out[i] = vec
		}
	}

	var missIdx []int
	var missIn [][]byte
	for i := range inputs {
		if out[i] == nil {
			missIdx = append(missIdx, i)
			missIn = append(missIn, inputs[i])
		}
	}
	if len(missIn) == 0 {
		return out, nil
	}

	fresh, err := c.next.GenerateEmbeddings(ctx, missIn)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missIn) {
		return nil, fmt.Errorf("embedding result size mismatch: got %d want %d", len(fresh), len(missIn))
	}

	pipe := c.client.Pipeline()
	for j, i := range missIdx {
		out[i] = fresh[j]
		pipe.Set(ctx, keys[i], encodeVector(fresh[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("[EmbedCache] Redis batch write failed", "err", err)
	}

	logger.Debug("[EmbedCache] Batch resolved", "hits", len(inputs)-len(missIn), "misses", len(missIn))
	return out, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, bool) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, true
}
