package similarity

import (
	"context"

	"github.com/knowledgesnode/backend/pkg/common"
)

// Store is what the linker needs from persistence.
//
// SaveConnections inserts in one batch and skips any pair that is already
// connected in either orientation, returning the number of rows inserted.
type Store interface {
	ListEmbeddedConcepts(ctx context.Context) ([]common.Concept, error)
	ListConceptConnections(ctx context.Context, conceptID int64) ([]common.Connection, error)
	ListConnections(ctx context.Context, minStrength float64) ([]common.Connection, error)
	SaveConnections(ctx context.Context, conns []common.Connection) (int, error)
}

// EmbeddingStore is what Backfill needs from persistence.
type EmbeddingStore interface {
	ListConceptsWithoutEmbedding(ctx context.Context) ([]common.Concept, error)
	UpdateConceptEmbeddings(ctx context.Context, embeddings map[int64][]float32) error
}

type pair struct {
	lo, hi int64
}

func pairOf(a, b int64) pair {
	if a > b {
		a, b = b, a
	}
	return pair{lo: a, hi: b}
}

func pairSet(conns []common.Connection) map[pair]struct{} {
	set := make(map[pair]struct{}, len(conns))
	for _, c := range conns {
		set[pairOf(c.SourceID, c.TargetID)] = struct{}{}
	}
	return set
}
