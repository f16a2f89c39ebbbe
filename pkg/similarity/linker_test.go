package similarity_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/similarity"
	"github.com/knowledgesnode/backend/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *memory.Store, vectors map[string][]float32, names ...string) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	ids := make(map[string]int64)
	embeddings := make(map[int64][]float32)
	for _, name := range names {
		c, _, err := s.CreateConceptIfAbsent(ctx, common.Concept{Name: name})
		require.NoError(t, err)
		ids[name] = c.ID
		if v, ok := vectors[name]; ok {
			embeddings[c.ID] = v
		}
	}
	require.NoError(t, s.UpdateConceptEmbeddings(ctx, embeddings))
	return ids
}

func TestLink_ThresholdIsInclusive(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ids := seed(t, s, map[string][]float32{
		"a": {1, 0},
		"b": {1, 0},
		"c": {1, 1},
	}, "a", "b", "c")

	l := similarity.NewLinker(s, similarity.WithThreshold(1.0))
	a, _ := s.GetConcept(ctx, ids["a"])
	res, err := l.Link(ctx, a)
	require.NoError(t, err)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, ids["b"], res.Edges[0].TargetID)
	assert.Equal(t, 1, res.Persisted)
	assert.Equal(t, 2, res.Compared)
}

func TestLink_SkipsConceptWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ids := seed(t, s, map[string][]float32{"a": {1, 0}}, "a", "bare")

	l := similarity.NewLinker(s)
	bare, _ := s.GetConcept(ctx, ids["bare"])
	res, err := l.Link(ctx, bare)
	require.NoError(t, err)
	assert.Empty(t, res.Edges)

	a, _ := s.GetConcept(ctx, ids["a"])
	res, err = l.Link(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Compared)
}

func TestLink_ExistingPairInEitherOrientation(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ids := seed(t, s, map[string][]float32{"a": {1, 0}, "b": {1, 0}}, "a", "b")
	_, err := s.SaveConnections(ctx, []common.Connection{{SourceID: ids["b"], TargetID: ids["a"], Strength: 1}})
	require.NoError(t, err)

	a, _ := s.GetConcept(ctx, ids["a"])
	res, err := similarity.NewLinker(s).Link(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, res.Edges)

	conns, _ := s.ListConnections(ctx, 0)
	assert.Len(t, conns, 1)
}

func TestLink_DimensionMismatchIsolated(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ids := seed(t, s, map[string][]float32{
		"a":   {1, 0},
		"odd": {1, 0, 0},
		"b":   {0.9, 0.1},
	}, "a", "odd", "b")

	a, _ := s.GetConcept(ctx, ids["a"])
	res, err := similarity.NewLinker(s).Link(ctx, a)
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.True(t, errors.Is(res.Failures[0].Err, similarity.ErrDimensionMismatch))
	assert.Equal(t, ids["odd"], res.Failures[0].TargetID)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, ids["b"], res.Edges[0].TargetID)
}

func TestRelinkAll_NonFiniteEmbeddingIsPairFailure(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ids := seed(t, s, map[string][]float32{
		"a":   {1, 0},
		"bad": {float32(math.NaN()), 1},
		"c":   {0, 1},
	}, "a", "bad", "c")

	res, err := similarity.NewLinker(s).RelinkAll(ctx, 0.7)
	require.NoError(t, err)
	assert.Empty(t, res.Edges)
	require.Len(t, res.Failures, 2)
	for _, f := range res.Failures {
		assert.ErrorIs(t, f.Err, similarity.ErrNonFinite)
		assert.True(t, f.SourceID == ids["bad"] || f.TargetID == ids["bad"])
	}

	conns, _ := s.ListConnections(ctx, 0)
	assert.Empty(t, conns)
}

func TestRelinkAll_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, map[string][]float32{
		"a": {1, 0, 0},
		"b": {0.9, 0.1, 0},
		"c": {0, 1, 0},
		"d": {0, 0.95, 0.05},
		"e": {0, 0, 1},
	}, "a", "b", "c", "d", "e", "bare")

	l := similarity.NewLinker(s, similarity.WithWorkers(3))
	first, err := l.RelinkAll(ctx, 0.7)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Concepts)
	assert.Equal(t, 10, first.Compared)
	assert.Equal(t, 2, first.Persisted)

	second, err := l.RelinkAll(ctx, 0.7)
	require.NoError(t, err)
	assert.Empty(t, second.Edges)
	assert.Equal(t, 0, second.Persisted)

	conns, _ := s.ListConnections(ctx, 0)
	assert.Len(t, conns, 2)
	for _, c := range conns {
		assert.GreaterOrEqual(t, c.Strength, 0.7)
		assert.Less(t, c.SourceID, c.TargetID)
	}
}

func TestRelinkAll_ZeroThresholdUsesLinkerThreshold(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, map[string][]float32{
		"a": {1, 0},
		"b": {1, 1},
		"c": {0, 1},
	}, "a", "b", "c")

	res, err := similarity.NewLinker(s, similarity.WithThreshold(0.75)).RelinkAll(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Edges, "cos 0.707 stays below the configured 0.75")

	res, err = similarity.NewLinker(s, similarity.WithThreshold(0.7)).RelinkAll(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, res.Edges, 2)
}

func TestRelinkAll_DeterministicAcrossWorkers(t *testing.T) {
	vectors := map[string][]float32{
		"a": {1, 0.1}, "b": {1, 0.2}, "c": {1, 0.3}, "d": {0.2, 1}, "e": {0.1, 1},
	}
	names := []string{"a", "b", "c", "d", "e"}

	run := func(workers int) []common.Connection {
		s := memory.New()
		seed(t, s, vectors, names...)
		res, err := similarity.NewLinker(s, similarity.WithWorkers(workers)).RelinkAll(context.Background(), 0.9)
		require.NoError(t, err)
		return res.Edges
	}
	assert.Equal(t, run(1), run(4))
}

type fakeEmbedder struct {
	calls int
	fail  bool
	nanOn string
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return []float32{float32(len(input)), 1}, nil
}

func (f *fakeEmbedder) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i], _ = f.GenerateEmbedding(ctx, in)
		if f.nanOn != "" && string(in) == f.nanOn {
			out[i][0] = float32(math.NaN())
		}
	}
	return out, nil
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, map[string][]float32{"done": {1, 1}}, "done", "x", "yy", "zzz")

	emb := &fakeEmbedder{}
	n, err := similarity.Backfill(ctx, s, emb, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, emb.calls)

	pending, _ := s.ListConceptsWithoutEmbedding(ctx)
	assert.Empty(t, pending)

	n, err = similarity.Backfill(ctx, s, emb, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBackfill_FailureKeepsNothingPartial(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, nil, "x", "y")

	_, err := similarity.Backfill(ctx, s, &fakeEmbedder{fail: true}, 10)
	require.Error(t, err)
	pending, _ := s.ListConceptsWithoutEmbedding(ctx)
	assert.Len(t, pending, 2)
}

func TestBackfill_DropsNonFiniteVectors(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ids := seed(t, s, nil, "ok", "broken")

	n, err := similarity.Backfill(ctx, s, &fakeEmbedder{nanOn: "broken"}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, _ := s.ListConceptsWithoutEmbedding(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, ids["broken"], pending[0].ID)
}
