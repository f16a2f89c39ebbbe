// Package memory is an in-process KnowledgeStore. It enforces the same
// uniqueness rules as the Postgres store and is used by tests and local
// runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/store"
)

// Verify interface compliance
var _ store.KnowledgeStore = (*Store)(nil)

type conceptKey struct {
	name   string
	domain int64
	scoped bool
}

type entityKey struct {
	name, entityType string
}

type relKey struct {
	source, target int64
	relType        string
}

type pairKey struct {
	lo, hi int64
}

type articleConceptKey struct {
	article, concept int64
}

type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	nextID int64

	articles       map[int64]*common.Article
	articleURLs    map[string]int64
	articleDomains map[int64]map[int64]struct{}

	domains      map[int64]*common.Domain
	domainByName map[string]int64

	concepts      map[int64]*common.Concept
	conceptByKey  map[conceptKey]int64
	entities      map[int64]*common.Entity
	entityByKey   map[entityKey]int64
	events        map[int64]*common.Event
	eventByName   map[string]int64
	connections   map[pairKey]*common.Connection
	conceptRels   map[relKey]*common.ConceptRelationship
	articleRels   map[relKey]*common.ArticleRelationship
	articleConcs  map[articleConceptKey]*common.ArticleConcept
	articleEnts   map[articleConceptKey]*common.ArticleEntity
	articleEvents map[articleConceptKey]*common.ArticleEvent
}

func New() *Store {
	return &Store{
		now:            time.Now,
		articles:       make(map[int64]*common.Article),
		articleURLs:    make(map[string]int64),
		articleDomains: make(map[int64]map[int64]struct{}),
		domains:        make(map[int64]*common.Domain),
		domainByName:   make(map[string]int64),
		concepts:       make(map[int64]*common.Concept),
		conceptByKey:   make(map[conceptKey]int64),
		entities:       make(map[int64]*common.Entity),
		entityByKey:    make(map[entityKey]int64),
		events:         make(map[int64]*common.Event),
		eventByName:    make(map[string]int64),
		connections:    make(map[pairKey]*common.Connection),
		conceptRels:    make(map[relKey]*common.ConceptRelationship),
		articleRels:    make(map[relKey]*common.ArticleRelationship),
		articleConcs:   make(map[articleConceptKey]*common.ArticleConcept),
		articleEnts:    make(map[articleConceptKey]*common.ArticleEntity),
		articleEvents:  make(map[articleConceptKey]*common.ArticleEvent),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func keyOfConcept(name string, domainID *int64) conceptKey {
	if domainID == nil {
		return conceptKey{name: name}
	}
	return conceptKey{name: name, domain: *domainID, scoped: true}
}

func pairOf(a, b int64) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// WithTx runs fn directly. Writes are not rolled back when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.KnowledgeStore) error) error {
	return fn(s)
}

// ---- articles ----

func (s *Store) CreateArticle(ctx context.Context, a common.Article) (common.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.URL != "" {
		if _, ok := s.articleURLs[a.URL]; ok {
			return common.Article{}, fmt.Errorf("article url %q already exists: %w", a.URL, common.ErrPersistenceConflict)
		}
	}
	a.ID = s.id()
	if a.Status == "" {
		a.Status = common.StatusPending
	}
	a.CreatedAt = s.now()
	a.UpdatedAt = a.CreatedAt
	s.articles[a.ID] = &a
	if a.URL != "" {
		s.articleURLs[a.URL] = a.ID
	}
	return a, nil
}

func (s *Store) GetArticle(ctx context.Context, id int64) (common.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	if !ok {
		return common.Article{}, common.ErrNotFound
	}
	return *a, nil
}

func (s *Store) UpdateArticleStatus(ctx context.Context, id int64, status common.ProcessingStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return common.ErrNotFound
	}
	a.Status = status
	a.ErrorMessage = errMsg
	a.UpdatedAt = s.now()
	return nil
}

func (s *Store) UpdateArticleSummary(ctx context.Context, id int64, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return common.ErrNotFound
	}
	a.Summary = summary
	a.UpdatedAt = s.now()
	return nil
}

func (s *Store) AddArticleDomain(ctx context.Context, articleID, domainID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[articleID]; !ok {
		return common.ErrNotFound
	}
	if _, ok := s.domains[domainID]; !ok {
		return common.ErrNotFound
	}
	set, ok := s.articleDomains[articleID]
	if !ok {
		set = make(map[int64]struct{})
		s.articleDomains[articleID] = set
	}
	set[domainID] = struct{}{}
	return nil
}

func (s *Store) ListArticleIDsByStatus(ctx context.Context, status common.ProcessingStatus, limit int) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int64
	for _, id := range sortedKeys(s.articles) {
		if limit > 0 && len(out) >= limit {
			break
		}
		if s.articles[id].Status == status {
			out = append(out, id)
		}
	}
	return out, nil
}

// ArticleDomains lists the domain ids of an article in ascending order.
func (s *Store) ArticleDomains(articleID int64) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.articleDomains[articleID]))
	for id := range s.articleDomains[articleID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ---- resolver repository ----

func (s *Store) FindDomain(ctx context.Context, name string) (common.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.domainByName[name]
	if !ok {
		return common.Domain{}, common.ErrNotFound
	}
	return *s.domains[id], nil
}

func (s *Store) CreateDomainIfAbsent(ctx context.Context, d common.Domain) (common.Domain, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.domainByName[d.Name]; ok {
		return *s.domains[id], false, nil
	}
	if d.ParentID != nil {
		if _, ok := s.domains[*d.ParentID]; !ok {
			return common.Domain{}, false, fmt.Errorf("parent domain %d: %w", *d.ParentID, common.ErrNotFound)
		}
	}
	d.ID = s.id()
	d.Active = true
	d.CreatedAt = s.now()
	s.domains[d.ID] = &d
	s.domainByName[d.Name] = d.ID
	return d, true, nil
}

func (s *Store) FindConcept(ctx context.Context, name string, domainID *int64) (common.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.conceptByKey[keyOfConcept(name, domainID)]
	if !ok {
		return common.Concept{}, common.ErrNotFound
	}
	return cloneConcept(s.concepts[id]), nil
}

func (s *Store) CreateConceptIfAbsent(ctx context.Context, c common.Concept) (common.Concept, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyOfConcept(c.Name, c.DomainID)
	if id, ok := s.conceptByKey[key]; ok {
		return cloneConcept(s.concepts[id]), false, nil
	}
	c.ID = s.id()
	c.CreatedAt = s.now()
	stored := cloneConcept(&c)
	s.concepts[c.ID] = &stored
	s.conceptByKey[key] = c.ID
	return cloneConcept(&stored), true, nil
}

func (s *Store) UpdateConceptAttributes(ctx context.Context, id int64, description string, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.concepts[id]
	if !ok {
		return common.ErrNotFound
	}
	c.Description = description
	c.Confidence = confidence
	return nil
}

func (s *Store) FindEntity(ctx context.Context, name string, entityType string) (common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.entityByKey[entityKey{name, entityType}]
	if !ok {
		return common.Entity{}, common.ErrNotFound
	}
	return *s.entities[id], nil
}

func (s *Store) CreateEntityIfAbsent(ctx context.Context, e common.Entity) (common.Entity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{e.Name, e.EntityType}
	if id, ok := s.entityByKey[key]; ok {
		return *s.entities[id], false, nil
	}
	e.ID = s.id()
	e.CreatedAt = s.now()
	s.entities[e.ID] = &e
	s.entityByKey[key] = e.ID
	return e, true, nil
}

func (s *Store) FindEvent(ctx context.Context, name string) (common.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.eventByName[name]
	if !ok {
		return common.Event{}, common.ErrNotFound
	}
	return *s.events[id], nil
}

func (s *Store) CreateEventIfAbsent(ctx context.Context, e common.Event) (common.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.eventByName[e.Name]; ok {
		return *s.events[id], false, nil
	}
	e.ID = s.id()
	e.CreatedAt = s.now()
	s.events[e.ID] = &e
	s.eventByName[e.Name] = e.ID
	return e, true, nil
}

func (s *Store) AssignEventDomain(ctx context.Context, eventID, domainID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return common.ErrNotFound
	}
	if e.DomainID == nil {
		d := domainID
		e.DomainID = &d
	}
	return nil
}

// ---- article links ----

func (s *Store) UpsertArticleConcept(ctx context.Context, ac common.ArticleConcept) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.concepts[ac.ConceptID]; !ok {
		return fmt.Errorf("concept %d: %w", ac.ConceptID, common.ErrNotFound)
	}
	key := articleConceptKey{ac.ArticleID, ac.ConceptID}
	if cur, ok := s.articleConcs[key]; ok {
		cur.IsKeyConcept = cur.IsKeyConcept || ac.IsKeyConcept
		cur.Confidence = max(cur.Confidence, ac.Confidence)
		return nil
	}
	s.articleConcs[key] = &ac
	return nil
}

func (s *Store) UpsertArticleEntity(ctx context.Context, ae common.ArticleEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[ae.EntityID]; !ok {
		return fmt.Errorf("entity %d: %w", ae.EntityID, common.ErrNotFound)
	}
	key := articleConceptKey{ae.ArticleID, ae.EntityID}
	if cur, ok := s.articleEnts[key]; ok {
		cur.MentionCount += ae.MentionCount
		cur.Confidence = max(cur.Confidence, ae.Confidence)
		return nil
	}
	s.articleEnts[key] = &ae
	return nil
}

func (s *Store) UpsertArticleEvent(ctx context.Context, ae common.ArticleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ae.EventID]; !ok {
		return fmt.Errorf("event %d: %w", ae.EventID, common.ErrNotFound)
	}
	key := articleConceptKey{ae.ArticleID, ae.EventID}
	if _, ok := s.articleEvents[key]; ok {
		return nil
	}
	s.articleEvents[key] = &ae
	return nil
}

func (s *Store) UpsertConceptRelationship(ctx context.Context, rel common.ConceptRelationship) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rel.SourceConceptID == rel.TargetConceptID {
		return false, fmt.Errorf("concept relationship to itself: %w", common.ErrInvalidInput)
	}
	key := relKey{rel.SourceConceptID, rel.TargetConceptID, rel.RelationshipType}
	if cur, ok := s.conceptRels[key]; ok {
		cur.Weight = rel.Weight
		return false, nil
	}
	rel.ID = s.id()
	s.conceptRels[key] = &rel
	return true, nil
}

// ArticleConcepts returns the concept links of an article ordered by
// concept id.
func (s *Store) ArticleConcepts(articleID int64) []common.ArticleConcept {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []common.ArticleConcept
	for k, v := range s.articleConcs {
		if k.article == articleID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConceptID < out[j].ConceptID })
	return out
}

// ArticleEntities returns the entity links of an article ordered by
// entity id.
func (s *Store) ArticleEntities(articleID int64) []common.ArticleEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []common.ArticleEntity
	for k, v := range s.articleEnts {
		if k.article == articleID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// ArticleEvents returns the event links of an article ordered by event id.
func (s *Store) ArticleEvents(articleID int64) []common.ArticleEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []common.ArticleEvent
	for k, v := range s.articleEvents {
		if k.article == articleID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out
}

// ConceptRelationships returns every stated concept relationship ordered
// by id.
func (s *Store) ConceptRelationships() []common.ConceptRelationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.ConceptRelationship, 0, len(s.conceptRels))
	for _, v := range s.conceptRels {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneConcept(c *common.Concept) common.Concept {
	out := *c
	if c.Embedding != nil {
		out.Embedding = append([]float32(nil), c.Embedding...)
	}
	if c.DomainID != nil {
		d := *c.DomainID
		out.DomainID = &d
	}
	return out
}
