package similarity

import (
	"context"
	"fmt"

	"github.com/knowledgesnode/backend/pkg/ai"
	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/logger"
)

const defaultBackfillBatch = 64

// Backfill embeds every concept that has no embedding yet, using the
// concept name as input, and stores the vectors batch by batch. It returns
// the number of concepts updated. A failed batch stops the run; batches
// stored before it are kept.
func Backfill(ctx context.Context, store EmbeddingStore, embedder ai.Embedder, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultBackfillBatch
	}
	pending, err := store.ListConceptsWithoutEmbedding(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list concepts without embedding: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	logger.Info("[Linker] Backfilling embeddings", "concepts", len(pending))

	updated := 0
	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		batch := pending[start:end]

		vectors, err := EmbedConcepts(ctx, embedder, batch)
		if err != nil {
			return updated, err
		}
		if len(vectors) == 0 {
			continue
		}
		if err := store.UpdateConceptEmbeddings(ctx, vectors); err != nil {
			return updated, fmt.Errorf("failed to store embeddings: %w", err)
		}
		updated += len(vectors)
		logger.Debug("[Linker] Embedding batch stored", "done", updated, "total", len(pending))
	}
	return updated, nil
}

// EmbedConcepts embeds the names of concepts in one request and returns
// the vectors keyed by concept id. Vectors with NaN or Inf components are
// left out, so those concepts stay without embedding.
func EmbedConcepts(ctx context.Context, embedder ai.Embedder, concepts []common.Concept) (map[int64][]float32, error) {
	inputs := make([][]byte, len(concepts))
	for i, c := range concepts {
		inputs[i] = []byte(c.Name)
	}
	vectors, err := embedder.GenerateEmbeddings(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(concepts) {
		return nil, fmt.Errorf("embedding result size mismatch: got %d want %d", len(vectors), len(concepts))
	}
	out := make(map[int64][]float32, len(concepts))
	for i, c := range concepts {
		if !Finite(vectors[i]) {
			logger.Warn("[Linker] Dropping non-finite embedding", "concept_id", c.ID)
			continue
		}
		out[c.ID] = vectors[i]
	}
	return out, nil
}
