package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/knowledgesnode/backend/internal/util"
	"github.com/knowledgesnode/backend/pkg/logger"
	"github.com/knowledgesnode/backend/pkg/mirror"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Verify interface compliance
var (
	_ mirror.BatchSink = (*Sink)(nil)
	_ mirror.Querier   = (*Sink)(nil)
)

// Sink mirrors the knowledge graph into Neo4j. Every node carries the
// relational id as its `id` property, which is unique per label.
type Sink struct {
	driver   neo4j.DriverWithContext
	database string
}

func New(driver neo4j.DriverWithContext, database string) *Sink {
	return &Sink{driver: driver, database: database}
}

// NewFromEnv connects using NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD and
// NEO4J_DATABASE. It returns nil without error when NEO4J_URI is unset.
func NewFromEnv(ctx context.Context) (*Sink, error) {
	uri := util.GetEnv("NEO4J_URI")
	if uri == "" {
		return nil, nil
	}
	user := util.GetEnvString("NEO4J_USER", "neo4j")
	password := util.GetEnv("NEO4J_PASSWORD")
	timeout := util.GetEnvSeconds("NEO4J_TIMEOUT_SECONDS", 10*time.Second)

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""), func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = util.GetEnvInt("NEO4J_MAX_POOL_SIZE", 20)
		cfg.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	vCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	return New(driver, util.GetEnv("NEO4J_DATABASE")), nil
}

func (s *Sink) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// EnsureSchema creates the id uniqueness constraints. Failures are logged
// and ignored.
func (s *Sink) EnsureSchema(ctx context.Context) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, kind := range []mirror.NodeKind{
		mirror.NodeArticle, mirror.NodeConcept, mirror.NodeEntity, mirror.NodeEvent, mirror.NodeDomain,
	} {
		q := fmt.Sprintf(
			"CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
			lower(kind), kind,
		)
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			logger.Warn("[Neo4j] Schema init failed (continuing)", "label", kind, "err", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func (s *Sink) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

func (s *Sink) UpsertNode(ctx context.Context, kind mirror.NodeKind, id int64, props map[string]any) error {
	return s.WriteBatch(ctx, mirror.Batch{Nodes: []mirror.Node{{Kind: kind, ID: id, Props: props}}})
}

func (s *Sink) UpsertEdge(
	ctx context.Context,
	kind mirror.EdgeKind,
	sourceID, targetID int64,
	typeLabel string,
	props map[string]any,
) error {
	return s.WriteBatch(ctx, mirror.Batch{Edges: []mirror.Edge{{
		Kind: kind, SourceID: sourceID, TargetID: targetID, Type: typeLabel, Props: props,
	}}})
}

// WriteBatch writes all nodes and edges of batch in one transaction, one
// UNWIND statement per label or relationship shape.
func (s *Sink) WriteBatch(ctx context.Context, batch mirror.Batch) error {
	stmts, err := compile(batch)
	if err != nil {
		return err
	}
	if len(stmts) == 0 {
		return nil
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range stmts {
			res, err := tx.Run(ctx, st.query, map[string]any{"rows": st.rows})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// SimilarArticles finds articles that mention the same events as
// articleID, most shared events first.
func (s *Sink) SimilarArticles(ctx context.Context, articleID int64, limit int) ([]mirror.SimilarArticle, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:Article {id: $id})-[:MENTIONS]->(e:Event)<-[:MENTIONS]-(other:Article)
WHERE other.id <> $id
RETURN other.id AS id, other.title AS title, count(DISTINCT e) AS shared
ORDER BY shared DESC, id ASC
LIMIT $limit
`, map[string]any{"id": articleID, "limit": limit})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		articles := make([]mirror.SimilarArticle, 0, len(records))
		for _, rec := range records {
			articles = append(articles, mirror.SimilarArticle{
				ArticleID:    asInt64(rec, "id"),
				Title:        asString(rec, "title"),
				SharedEvents: int(asInt64(rec, "shared")),
			})
		}
		return articles, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]mirror.SimilarArticle), nil
}

// RelatedConcepts returns concepts connected to the concept named name by
// any relationship, strongest first.
func (s *Sink) RelatedConcepts(ctx context.Context, name string, limit int) ([]mirror.RelatedConcept, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept {name: $name})-[r]-(other:Concept)
RETURN other.id AS id, other.name AS name, type(r) AS rel,
       toFloat(coalesce(r.weight, r.strength, 0.0)) AS weight
ORDER BY weight DESC, id ASC
LIMIT $limit
`, map[string]any{"name": name, "limit": limit})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		concepts := make([]mirror.RelatedConcept, 0, len(records))
		for _, rec := range records {
			concepts = append(concepts, mirror.RelatedConcept{
				ConceptID:    asInt64(rec, "id"),
				Name:         asString(rec, "name"),
				Relationship: asString(rec, "rel"),
				Weight:       asFloat(rec, "weight"),
			})
		}
		return concepts, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]mirror.RelatedConcept), nil
}

func asInt64(rec *neo4j.Record, key string) int64 {
	v, _ := rec.Get(key)
	n, _ := v.(int64)
	return n
}

func asFloat(rec *neo4j.Record, key string) float64 {
	v, _ := rec.Get(key)
	f, _ := v.(float64)
	return f
}

func asString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}
