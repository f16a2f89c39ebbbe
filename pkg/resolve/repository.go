package resolve

import (
	"context"

	"github.com/knowledgesnode/backend/pkg/common"
)

// Repository is the storage contract of the resolver.
//
// Find* return common.ErrNotFound on a miss. Create*IfAbsent must be atomic
// on the natural key: when another writer created the row first, the
// surviving row is returned with created=false instead of an error.
type Repository interface {
	FindDomain(ctx context.Context, name string) (common.Domain, error)
	CreateDomainIfAbsent(ctx context.Context, d common.Domain) (common.Domain, bool, error)

	FindConcept(ctx context.Context, name string, domainID *int64) (common.Concept, error)
	CreateConceptIfAbsent(ctx context.Context, c common.Concept) (common.Concept, bool, error)
	UpdateConceptAttributes(ctx context.Context, id int64, description string, confidence float64) error

	FindEntity(ctx context.Context, name string, entityType string) (common.Entity, error)
	CreateEntityIfAbsent(ctx context.Context, e common.Entity) (common.Entity, bool, error)

	FindEvent(ctx context.Context, name string) (common.Event, error)
	CreateEventIfAbsent(ctx context.Context, e common.Event) (common.Event, bool, error)
}
