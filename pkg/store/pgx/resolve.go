package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/knowledgesnode/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// The CreateXIfAbsent methods insert with ON CONFLICT DO NOTHING and read
// the surviving row back when another writer got there first. A row that
// vanished between the two statements is a persistence conflict.

const domainColumns = `id, name, description, parent_id, is_active, created_at`

func scanDomain(row pgxv5.Row) (common.Domain, error) {
	var d common.Domain
	err := row.Scan(&d.ID, &d.Name, &d.Description, &d.ParentID, &d.Active, &d.CreatedAt)
	return d, err
}

func (s *Store) FindDomain(ctx context.Context, name string) (common.Domain, error) {
	d, err := scanDomain(s.conn.QueryRow(ctx, `SELECT `+domainColumns+` FROM domains WHERE name = $1`, name))
	if err != nil {
		return common.Domain{}, mapErr(err, fmt.Sprintf("domain %q", name))
	}
	return d, nil
}

func (s *Store) CreateDomainIfAbsent(ctx context.Context, d common.Domain) (common.Domain, bool, error) {
	created, err := scanDomain(s.conn.QueryRow(ctx, `
		INSERT INTO domains (name, description, parent_id) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
		RETURNING `+domainColumns,
		d.Name, d.Description, d.ParentID,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return common.Domain{}, false, mapErr(err, fmt.Sprintf("domain %q", d.Name))
	}
	existing, err := s.FindDomain(ctx, d.Name)
	return existing, false, survivor(err)
}

const conceptColumns = `id, name, description, confidence, domain_id, embedding, created_at`

func scanConcept(row pgxv5.Row) (common.Concept, error) {
	var (
		c   common.Concept
		emb *pgvector.Vector
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Confidence, &c.DomainID, &emb, &c.CreatedAt); err != nil {
		return common.Concept{}, err
	}
	if emb != nil {
		c.Embedding = emb.Slice()
	}
	return c, nil
}

func (s *Store) FindConcept(ctx context.Context, name string, domainID *int64) (common.Concept, error) {
	c, err := scanConcept(s.conn.QueryRow(ctx, `
		SELECT `+conceptColumns+` FROM concepts
		WHERE name = $1 AND domain_id IS NOT DISTINCT FROM $2`,
		name, domainID,
	))
	if err != nil {
		return common.Concept{}, mapErr(err, fmt.Sprintf("concept %q", name))
	}
	return c, nil
}

func (s *Store) CreateConceptIfAbsent(ctx context.Context, c common.Concept) (common.Concept, bool, error) {
	created, err := scanConcept(s.conn.QueryRow(ctx, `
		INSERT INTO concepts (name, description, confidence, domain_id, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name, domain_id) DO NOTHING
		RETURNING `+conceptColumns,
		c.Name, c.Description, c.Confidence, c.DomainID, vectorArg(c.Embedding),
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return common.Concept{}, false, mapErr(err, fmt.Sprintf("concept %q", c.Name))
	}
	existing, err := s.FindConcept(ctx, c.Name, c.DomainID)
	return existing, false, survivor(err)
}

func (s *Store) UpdateConceptAttributes(ctx context.Context, id int64, description string, confidence float64) error {
	tag, err := s.conn.Exec(ctx, `UPDATE concepts SET description = $2, confidence = $3 WHERE id = $1`, id, description, confidence)
	if err != nil {
		return mapErr(err, fmt.Sprintf("concept %d", id))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("concept %d: %w", id, common.ErrNotFound)
	}
	return nil
}

const entityColumns = `id, name, entity_type, description, created_at`

func scanEntity(row pgxv5.Row) (common.Entity, error) {
	var e common.Entity
	err := row.Scan(&e.ID, &e.Name, &e.EntityType, &e.Description, &e.CreatedAt)
	return e, err
}

func (s *Store) FindEntity(ctx context.Context, name string, entityType string) (common.Entity, error) {
	e, err := scanEntity(s.conn.QueryRow(ctx, `
		SELECT `+entityColumns+` FROM entities WHERE name = $1 AND entity_type = $2`,
		name, entityType,
	))
	if err != nil {
		return common.Entity{}, mapErr(err, fmt.Sprintf("entity %q (%s)", name, entityType))
	}
	return e, nil
}

func (s *Store) CreateEntityIfAbsent(ctx context.Context, e common.Entity) (common.Entity, bool, error) {
	created, err := scanEntity(s.conn.QueryRow(ctx, `
		INSERT INTO entities (name, entity_type, description) VALUES ($1, $2, $3)
		ON CONFLICT (name, entity_type) DO NOTHING
		RETURNING `+entityColumns,
		e.Name, e.EntityType, e.Description,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return common.Entity{}, false, mapErr(err, fmt.Sprintf("entity %q", e.Name))
	}
	existing, err := s.FindEntity(ctx, e.Name, e.EntityType)
	return existing, false, survivor(err)
}

const eventColumns = `id, name, description, event_date, event_type, domain_id, created_at`

func scanEvent(row pgxv5.Row) (common.Event, error) {
	var e common.Event
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.EventDate, &e.EventType, &e.DomainID, &e.CreatedAt)
	return e, err
}

func (s *Store) FindEvent(ctx context.Context, name string) (common.Event, error) {
	e, err := scanEvent(s.conn.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE name = $1`, name))
	if err != nil {
		return common.Event{}, mapErr(err, fmt.Sprintf("event %q", name))
	}
	return e, nil
}

func (s *Store) CreateEventIfAbsent(ctx context.Context, e common.Event) (common.Event, bool, error) {
	created, err := scanEvent(s.conn.QueryRow(ctx, `
		INSERT INTO events (name, description, event_date, event_type, domain_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO NOTHING
		RETURNING `+eventColumns,
		e.Name, e.Description, e.EventDate, e.EventType, e.DomainID,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return common.Event{}, false, mapErr(err, fmt.Sprintf("event %q", e.Name))
	}
	existing, err := s.FindEvent(ctx, e.Name)
	return existing, false, survivor(err)
}

func survivor(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("conflicting row disappeared: %w", common.ErrPersistenceConflict)
	}
	return err
}
