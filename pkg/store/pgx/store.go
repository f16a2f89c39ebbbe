// Package pgx is the PostgreSQL KnowledgeStore. Concept embeddings live in
// a pgvector column; every natural key is backed by a unique constraint
// so concurrent writers converge on one row.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Verify interface compliance
var _ store.KnowledgeStore = (*Store)(nil)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	SendBatch(ctx context.Context, b *pgxv5.Batch) pgxv5.BatchResults
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Store implements store.KnowledgeStore on a pgx pool or transaction.
type Store struct {
	conn pgxIConn
}

// New wraps conn, usually a *pgxpool.Pool with the pgvector types
// registered.
func New(conn pgxIConn) *Store {
	return &Store{conn: conn}
}

// WithTx runs fn in a transaction. Called on a transactional view it opens
// a savepoint, so a failing fn only undoes its own writes.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.KnowledgeStore) error) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Store{conn: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Postgres error codes the store translates into common errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// mapErr translates driver errors into the sentinel errors callers match
// on. what names the row for the message.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgxv5.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %s: %w", what, pgErr.ConstraintName, common.ErrPersistenceConflict)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", what, pgErr.ConstraintName, common.ErrNotFound)
		case codeCheckViolation:
			return fmt.Errorf("%s: %s: %w", what, pgErr.ConstraintName, common.ErrInvalidInput)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func limitArg(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
