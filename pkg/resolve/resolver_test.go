package resolve_test

import (
	"context"
	"errors"
	"testing"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/resolve"
	"github.com/knowledgesnode/backend/pkg/store/memory"
)

func ptr[T any](v T) *T { return &v }

func TestResolveConcept_Idempotent(t *testing.T) {
	ctx := context.Background()
	r := resolve.NewResolver(memory.New())

	first, created, err := r.ResolveConcept(ctx, "  인공지능 ", "AI", 0.9, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatalf("expected concept to be created")
	}
	if first.Name != "인공지능" {
		t.Fatalf("expected trimmed name, got %q", first.Name)
	}

	second, created, err := r.ResolveConcept(ctx, "인공지능", "다른 설명", 0.2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected same record %d, got %d (created=%v)", first.ID, second.ID, created)
	}
	if second.Description != "AI" || second.Confidence != 0.9 {
		t.Fatalf("expected attributes kept, got %q %.2f", second.Description, second.Confidence)
	}
}

func TestResolveConcept_CaseSensitive(t *testing.T) {
	ctx := context.Background()
	r := resolve.NewResolver(memory.New())
	a, _, _ := r.ResolveConcept(ctx, "AI", "", 0.5, nil)
	b, created, err := r.ResolveConcept(ctx, "ai", "", 0.5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || a.ID == b.ID {
		t.Fatalf("expected distinct concepts for different case")
	}
}

func TestResolveConcept_DomainScope(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := resolve.NewResolver(s)
	d, _, err := r.ResolveDomain(ctx, "기술", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	global, _, _ := r.ResolveConcept(ctx, "로봇", "", 0.5, nil)
	scoped, created, _ := r.ResolveConcept(ctx, "로봇", "", 0.5, ptr(d.ID))
	if !created || global.ID == scoped.ID {
		t.Fatalf("expected a separate concept per domain scope")
	}
}

func TestResolve_EmptyNameRejected(t *testing.T) {
	ctx := context.Background()
	r := resolve.NewResolver(memory.New())
	for _, kind := range []resolve.Kind{resolve.KindConcept, resolve.KindEntity, resolve.KindEvent, resolve.KindDomain} {
		_, err := r.Resolve(ctx, resolve.Request{Kind: kind, Name: "   "})
		if !errors.Is(err, common.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", kind, err)
		}
	}
	_, err := r.Resolve(ctx, resolve.Request{Kind: "topic", Name: "x"})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown kind, got %v", err)
	}
}

func TestResolveEntity_DefaultType(t *testing.T) {
	ctx := context.Background()
	r := resolve.NewResolver(memory.New())
	e, created, err := r.ResolveEntity(ctx, "홍길동", "", "")
	if err != nil || !created {
		t.Fatalf("expected created entity, got err=%v created=%v", err, created)
	}
	if e.EntityType != common.DefaultEntityType {
		t.Fatalf("expected default type, got %q", e.EntityType)
	}
	other, created, _ := r.ResolveEntity(ctx, "홍길동", "인물", "")
	if !created || other.ID == e.ID {
		t.Fatalf("expected a separate entity per type")
	}
	again, created, _ := r.ResolveEntity(ctx, "홍길동", "인물", "설명")
	if created || again.ID != other.ID {
		t.Fatalf("expected existing entity %d, got %d", other.ID, again.ID)
	}
}

func TestResolveDomain_WithNewParent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := resolve.NewResolver(s)

	child, created, err := r.ResolveDomain(ctx, "반도체", "기술")
	if err != nil || !created {
		t.Fatalf("expected created child, got err=%v created=%v", err, created)
	}
	parent, err := s.FindDomain(ctx, "기술")
	if err != nil {
		t.Fatalf("expected parent to exist: %v", err)
	}
	if child.ParentID == nil || *child.ParentID != parent.ID {
		t.Fatalf("expected child under parent %d", parent.ID)
	}

	tree, _ := s.ListDomainTree(ctx)
	if len(tree) != 1 || len(tree[0].Children) != 1 {
		t.Fatalf("expected exactly one parent with one child, got %+v", tree)
	}

	again, created, err := r.ResolveDomain(ctx, "반도체", "")
	if err != nil || created || again.ID != child.ID {
		t.Fatalf("expected same domain, got %d created=%v err=%v", again.ID, created, err)
	}
}

func TestResolveDomain_SelfParentRejected(t *testing.T) {
	r := resolve.NewResolver(memory.New())
	_, _, err := r.ResolveDomain(context.Background(), "기술", "기술")
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestResolveEvent_AttributesOnlyOnCreate(t *testing.T) {
	ctx := context.Background()
	r := resolve.NewResolver(memory.New())
	first, created, err := r.ResolveEvent(ctx, common.Event{Name: "총선", EventType: "선거"})
	if err != nil || !created {
		t.Fatalf("expected created event, got err=%v", err)
	}
	second, created, _ := r.ResolveEvent(ctx, common.Event{Name: "총선", EventType: "정치"})
	if created || second.ID != first.ID || second.EventType != "선거" {
		t.Fatalf("expected original event kept, got %+v", second)
	}
}

func TestResightPolicies(t *testing.T) {
	tests := []struct {
		policy   resolve.Policy
		wantDesc string
		wantConf float64
	}{
		{resolve.KeepFirst, "old", 0.5},
		{resolve.KeepLatest, "new", 0.3},
		{resolve.KeepMaxConfidence, "old", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			ctx := context.Background()
			r := resolve.NewResolver(memory.New(), resolve.WithPolicy(tt.policy))
			_, _, _ = r.ResolveConcept(ctx, "x", "old", 0.5, nil)
			got, _, err := r.ResolveConcept(ctx, "x", "new", 0.3, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Description != tt.wantDesc || got.Confidence != tt.wantConf {
				t.Fatalf("expected (%q, %.1f), got (%q, %.1f)", tt.wantDesc, tt.wantConf, got.Description, got.Confidence)
			}
		})
	}

	ctx := context.Background()
	r := resolve.NewResolver(memory.New(), resolve.WithPolicy(resolve.KeepMaxConfidence))
	_, _, _ = r.ResolveConcept(ctx, "y", "old", 0.5, nil)
	got, _, _ := r.ResolveConcept(ctx, "y", "new", 0.8, nil)
	if got.Confidence != 0.8 || got.Description != "old" {
		t.Fatalf("expected confidence raised, got %+v", got)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := resolve.ParsePolicy(""); err != nil || p != resolve.KeepFirst {
		t.Fatalf("expected KeepFirst default, got %v %v", p, err)
	}
	if p, _ := resolve.ParsePolicy("LATEST"); p != resolve.KeepLatest {
		t.Fatalf("expected KeepLatest, got %v", p)
	}
	if _, err := resolve.ParsePolicy("newest"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestSeedDomains_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	if err := resolve.SeedDomains(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := resolve.SeedDomains(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tree, _ := s.ListDomainTree(ctx)
	if len(tree) != len(resolve.PredefinedDomains) {
		t.Fatalf("expected %d domains, got %d", len(resolve.PredefinedDomains), len(tree))
	}
}

func TestEnsureConcept_IgnoresPolicy(t *testing.T) {
	ctx := context.Background()
	r := resolve.NewResolver(memory.New(), resolve.WithPolicy(resolve.KeepLatest))
	first, _, _ := r.ResolveConcept(ctx, "배터리", "이차전지", 0.8, nil)
	got, created, err := r.EnsureConcept(ctx, "배터리", nil)
	if err != nil || created {
		t.Fatalf("expected existing concept, got err=%v created=%v", err, created)
	}
	if got.ID != first.ID || got.Confidence != 0.8 || got.Description != "이차전지" {
		t.Fatalf("expected untouched concept, got %+v", got)
	}
}
