package pgx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/knowledgesnode/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

func TestMapErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgxv5.ErrNoRows, common.ErrNotFound},
		{"unique", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "articles_url_key"}, common.ErrPersistenceConflict},
		{"foreign key", &pgconn.PgError{Code: codeForeignKeyViolation}, common.ErrNotFound},
		{"check", &pgconn.PgError{Code: codeCheckViolation}, common.ErrInvalidInput},
		{"wrapped unique", fmt.Errorf("exec: %w", &pgconn.PgError{Code: codeUniqueViolation}), common.ErrPersistenceConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapErr(tc.err, "row")
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	if mapErr(nil, "row") != nil {
		t.Fatalf("expected nil for nil error")
	}
	other := errors.New("connection reset")
	if got := mapErr(other, "row"); !errors.Is(got, other) {
		t.Fatalf("expected unknown errors to be wrapped, got %v", got)
	}
}

func TestSurvivor(t *testing.T) {
	if err := survivor(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	err := survivor(fmt.Errorf("concept: %w", common.ErrNotFound))
	if !errors.Is(err, common.ErrPersistenceConflict) {
		t.Fatalf("expected persistence conflict, got %v", err)
	}
}

func TestDomainTree(t *testing.T) {
	id := func(v int64) *int64 { return &v }
	tree := domainTree([]common.Domain{
		{ID: 1, Name: "기술"},
		{ID: 2, Name: "경제"},
		{ID: 3, Name: "반도체", ParentID: id(1)},
		{ID: 4, Name: "AI", ParentID: id(1)},
		{ID: 5, Name: "고아", ParentID: id(99)},
	})

	if len(tree) != 3 {
		t.Fatalf("expected 3 roots, got %d", len(tree))
	}
	names := []string{tree[0].Name, tree[1].Name, tree[2].Name}
	want := []string{"경제", "고아", "기술"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected roots %v, got %v", want, names)
		}
	}
	tech := tree[2]
	if len(tech.Children) != 2 || tech.Children[0].Name != "AI" || tech.Children[1].Name != "반도체" {
		t.Fatalf("unexpected children of %s: %+v", tech.Name, tech.Children)
	}
	if tech.Children[0].Children == nil {
		t.Fatalf("expected empty, non-nil children for leaves")
	}
}

func TestArgs(t *testing.T) {
	if vectorArg(nil) != nil {
		t.Fatalf("expected nil vector for empty embedding")
	}
	v, ok := vectorArg([]float32{1, 2}).(pgvector.Vector)
	if !ok || len(v.Slice()) != 2 {
		t.Fatalf("expected pgvector.Vector with 2 dims, got %#v", v)
	}
	if limitArg(0) != nil || limitArg(-1) != nil {
		t.Fatalf("expected no limit for non-positive values")
	}
	if limitArg(5) != 5 {
		t.Fatalf("expected limit 5")
	}
	if nullableText("") != nil || nullableText("x") != "x" {
		t.Fatalf("unexpected nullableText result")
	}
}
