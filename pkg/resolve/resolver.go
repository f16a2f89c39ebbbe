package resolve

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/knowledgesnode/backend/internal/util"
	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/logger"
)

// Kind tags what a Request resolves to.
type Kind string

const (
	KindConcept Kind = "concept"
	KindEntity  Kind = "entity"
	KindEvent   Kind = "event"
	KindDomain  Kind = "domain"
)

// Request is the kind-agnostic input of Resolve. Only the attributes that
// belong to Kind are read.
type Request struct {
	Kind        Kind
	Name        string
	Description string

	// concept
	Confidence float64
	DomainID   *int64

	// entity
	EntityType string

	// event
	EventDate *time.Time
	EventType string

	// domain
	Parent string
}

// Record identifies the canonical row a Request resolved to.
type Record struct {
	Kind    Kind
	ID      int64
	Name    string
	Created bool
}

// Resolver maps extracted names onto canonical records, creating them on
// first sight. Lookups are exact and case sensitive after trimming.
type Resolver struct {
	repo   Repository
	policy Policy
}

type Option func(*Resolver)

// WithPolicy sets the re-sight policy for concepts. Default is KeepFirst.
func WithPolicy(p Policy) Option {
	return func(r *Resolver) {
		r.policy = p
	}
}

func NewResolver(repo Repository, opts ...Option) *Resolver {
	r := &Resolver{repo: repo, policy: KeepFirst}
	for _, o := range opts {
		o(r)
	}
	return r
}

// WithRepository returns a resolver with the same policy over repo, used
// to resolve inside a store transaction.
func (r *Resolver) WithRepository(repo Repository) *Resolver {
	return &Resolver{repo: repo, policy: r.policy}
}

func (r *Resolver) Policy() Policy {
	return r.policy
}

// Resolve dispatches on req.Kind.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Record, error) {
	switch req.Kind {
	case KindConcept:
		c, created, err := r.ResolveConcept(ctx, req.Name, req.Description, req.Confidence, req.DomainID)
		return Record{Kind: req.Kind, ID: c.ID, Name: c.Name, Created: created}, err
	case KindEntity:
		e, created, err := r.ResolveEntity(ctx, req.Name, req.EntityType, req.Description)
		return Record{Kind: req.Kind, ID: e.ID, Name: e.Name, Created: created}, err
	case KindEvent:
		e, created, err := r.ResolveEvent(ctx, common.Event{
			Name:        req.Name,
			Description: req.Description,
			EventDate:   req.EventDate,
			EventType:   req.EventType,
			DomainID:    req.DomainID,
		})
		return Record{Kind: req.Kind, ID: e.ID, Name: e.Name, Created: created}, err
	case KindDomain:
		d, created, err := r.ResolveDomain(ctx, req.Name, req.Parent)
		return Record{Kind: req.Kind, ID: d.ID, Name: d.Name, Created: created}, err
	default:
		return Record{}, fmt.Errorf("%w: unknown kind %q", common.ErrInvalidInput, req.Kind)
	}
}

func normalize(kind Kind, name string) (string, error) {
	name = util.NormalizeName(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty %s name", common.ErrInvalidInput, kind)
	}
	return name, nil
}

func clampConfidence(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// ResolveConcept resolves (name, domainID). On a hit the configured policy
// decides whether description and confidence are refreshed.
func (r *Resolver) ResolveConcept(
	ctx context.Context,
	name string,
	description string,
	confidence float64,
	domainID *int64,
) (common.Concept, bool, error) {
	return r.resolveConcept(ctx, name, description, confidence, domainID, true)
}

// EnsureConcept resolves a concept that is only referenced, such as the
// endpoint of a stated relationship. An existing concept is returned
// unchanged regardless of the policy.
func (r *Resolver) EnsureConcept(ctx context.Context, name string, domainID *int64) (common.Concept, bool, error) {
	return r.resolveConcept(ctx, name, "", 0, domainID, false)
}

func (r *Resolver) resolveConcept(
	ctx context.Context,
	name string,
	description string,
	confidence float64,
	domainID *int64,
	refresh bool,
) (common.Concept, bool, error) {
	name, err := normalize(KindConcept, name)
	if err != nil {
		return common.Concept{}, false, err
	}
	description = util.SanitizePostgresText(description)
	confidence = clampConfidence(confidence)

	existing, err := r.repo.FindConcept(ctx, name, domainID)
	switch {
	case err == nil && !refresh:
		return existing, false, nil
	case err == nil:
		return r.resight(ctx, existing, description, confidence)
	case !errors.Is(err, common.ErrNotFound):
		return common.Concept{}, false, fmt.Errorf("failed to look up concept %q: %w", name, err)
	}

	c, created, err := r.repo.CreateConceptIfAbsent(ctx, common.Concept{
		Name:        name,
		Description: description,
		Confidence:  confidence,
		DomainID:    domainID,
	})
	if err != nil {
		return common.Concept{}, false, fmt.Errorf("failed to create concept %q: %w", name, err)
	}
	if !created {
		logger.Debug("[Resolve] Concept created concurrently, using survivor", "name", name, "id", c.ID)
		if !refresh {
			return c, false, nil
		}
		return r.resight(ctx, c, description, confidence)
	}
	return c, true, nil
}

func (r *Resolver) resight(ctx context.Context, c common.Concept, description string, confidence float64) (common.Concept, bool, error) {
	desc, conf, changed := r.policy.apply(c.Description, c.Confidence, description, confidence)
	if !changed {
		return c, false, nil
	}
	if err := r.repo.UpdateConceptAttributes(ctx, c.ID, desc, conf); err != nil {
		return common.Concept{}, false, fmt.Errorf("failed to refresh concept %q: %w", c.Name, err)
	}
	c.Description, c.Confidence = desc, conf
	return c, false, nil
}

// ResolveEntity resolves (name, entityType). An empty type falls back to
// common.DefaultEntityType.
func (r *Resolver) ResolveEntity(ctx context.Context, name string, entityType string, description string) (common.Entity, bool, error) {
	name, err := normalize(KindEntity, name)
	if err != nil {
		return common.Entity{}, false, err
	}
	entityType = util.NormalizeName(entityType)
	if entityType == "" {
		entityType = common.DefaultEntityType
	}

	existing, err := r.repo.FindEntity(ctx, name, entityType)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return common.Entity{}, false, fmt.Errorf("failed to look up entity %q: %w", name, err)
	}

	e, created, err := r.repo.CreateEntityIfAbsent(ctx, common.Entity{
		Name:        name,
		EntityType:  entityType,
		Description: util.SanitizePostgresText(description),
	})
	if err != nil {
		return common.Entity{}, false, fmt.Errorf("failed to create entity %q: %w", name, err)
	}
	return e, created, nil
}

// ResolveEvent resolves an event by name. Attributes are only used when
// the event is created.
func (r *Resolver) ResolveEvent(ctx context.Context, ev common.Event) (common.Event, bool, error) {
	name, err := normalize(KindEvent, ev.Name)
	if err != nil {
		return common.Event{}, false, err
	}

	existing, err := r.repo.FindEvent(ctx, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return common.Event{}, false, fmt.Errorf("failed to look up event %q: %w", name, err)
	}

	ev.Name = name
	ev.Description = util.SanitizePostgresText(ev.Description)
	ev.EventType = util.NormalizeName(ev.EventType)
	out, created, err := r.repo.CreateEventIfAbsent(ctx, ev)
	if err != nil {
		return common.Event{}, false, fmt.Errorf("failed to create event %q: %w", name, err)
	}
	return out, created, nil
}

// ResolveDomain resolves a domain by name. When parent is given and the
// domain does not exist yet, the parent is resolved first and the domain
// is created beneath it. Existing domains are never moved, so the parent
// relation stays acyclic.
func (r *Resolver) ResolveDomain(ctx context.Context, name string, parent string) (common.Domain, bool, error) {
	name, err := normalize(KindDomain, name)
	if err != nil {
		return common.Domain{}, false, err
	}
	parent = util.NormalizeName(parent)
	if parent == name {
		return common.Domain{}, false, fmt.Errorf("%w: domain %q cannot be its own parent", common.ErrInvalidInput, name)
	}

	existing, err := r.repo.FindDomain(ctx, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return common.Domain{}, false, fmt.Errorf("failed to look up domain %q: %w", name, err)
	}

	d := common.Domain{Name: name, Active: true}
	if parent != "" {
		p, _, err := r.ResolveDomain(ctx, parent, "")
		if err != nil {
			return common.Domain{}, false, err
		}
		d.ParentID = &p.ID
	}

	out, created, err := r.repo.CreateDomainIfAbsent(ctx, d)
	if err != nil {
		return common.Domain{}, false, fmt.Errorf("failed to create domain %q: %w", name, err)
	}
	return out, created, nil
}
