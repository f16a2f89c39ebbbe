package pgx

import (
	"context"
	"fmt"
	"sort"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

func (s *Store) listConcepts(ctx context.Context, where string, args ...any) ([]common.Concept, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+conceptColumns+` FROM concepts `+where, args...)
	if err != nil {
		return nil, mapErr(err, "concepts")
	}
	concepts, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Concept, error) {
		return scanConcept(row)
	})
	if err != nil {
		return nil, mapErr(err, "concepts")
	}
	return concepts, nil
}

func (s *Store) ListEmbeddedConcepts(ctx context.Context) ([]common.Concept, error) {
	return s.listConcepts(ctx, `WHERE embedding IS NOT NULL ORDER BY id`)
}

func (s *Store) ListConceptsWithoutEmbedding(ctx context.Context) ([]common.Concept, error) {
	return s.listConcepts(ctx, `WHERE embedding IS NULL ORDER BY id`)
}

// UpdateConceptEmbeddings writes all vectors in one batch round trip.
func (s *Store) UpdateConceptEmbeddings(ctx context.Context, embeddings map[int64][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(embeddings))
	for id := range embeddings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	batch := &pgxv5.Batch{}
	for _, id := range ids {
		batch.Queue(`UPDATE concepts SET embedding = $2 WHERE id = $1`, id, pgvector.NewVector(embeddings[id]))
	}
	results := s.conn.SendBatch(ctx, batch)
	defer results.Close()
	for _, id := range ids {
		if _, err := results.Exec(); err != nil {
			return mapErr(err, fmt.Sprintf("concept %d embedding", id))
		}
	}
	return nil
}

const connectionColumns = `id, source_id, target_id, strength`

// connectionBatchSize bounds the statements sent in one pgx batch.
const connectionBatchSize = 1000

func (s *Store) listConnections(ctx context.Context, where string, args ...any) ([]common.Connection, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+connectionColumns+` FROM concept_connections `+where+` ORDER BY source_id, target_id`, args...)
	if err != nil {
		return nil, mapErr(err, "concept connections")
	}
	conns, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Connection, error) {
		var c common.Connection
		err := row.Scan(&c.ID, &c.SourceID, &c.TargetID, &c.Strength)
		return c, err
	})
	if err != nil {
		return nil, mapErr(err, "concept connections")
	}
	return conns, nil
}

func (s *Store) ListConceptConnections(ctx context.Context, conceptID int64) ([]common.Connection, error) {
	return s.listConnections(ctx, `WHERE source_id = $1 OR target_id = $1`, conceptID)
}

func (s *Store) ListConnections(ctx context.Context, minStrength float64) ([]common.Connection, error) {
	return s.listConnections(ctx, `WHERE strength >= $1`, minStrength)
}

// SaveConnections inserts conns in one batch. The unordered pair index
// turns an already connected pair into a no-op.
func (s *Store) SaveConnections(ctx context.Context, conns []common.Connection) (int, error) {
	inserted := 0
	err := store.ChunkRange(len(conns), connectionBatchSize, func(start, end int) error {
		batch := &pgxv5.Batch{}
		for _, c := range conns[start:end] {
			if c.SourceID == c.TargetID {
				continue
			}
			batch.Queue(`
				INSERT INTO concept_connections (source_id, target_id, strength)
				VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING`,
				c.SourceID, c.TargetID, c.Strength,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		results := s.conn.SendBatch(ctx, batch)
		defer results.Close()

		for range batch.Len() {
			tag, err := results.Exec()
			if err != nil {
				return mapErr(err, "concept connection")
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	return inserted, err
}
