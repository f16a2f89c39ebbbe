package neo4j

import (
	"testing"

	"github.com/knowledgesnode/backend/pkg/mirror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_GroupsByLabelAndShape(t *testing.T) {
	batch := mirror.Batch{
		Nodes: []mirror.Node{
			{Kind: mirror.NodeConcept, ID: 2, Props: map[string]any{"name": "로봇"}},
			{Kind: mirror.NodeArticle, ID: 1},
			{Kind: mirror.NodeConcept, ID: 3},
		},
		Edges: []mirror.Edge{
			{Kind: mirror.EdgeKind{Source: mirror.NodeArticle, Target: mirror.NodeConcept}, SourceID: 1, TargetID: 2, Type: "MENTIONS"},
			{Kind: mirror.EdgeKind{Source: mirror.NodeArticle, Target: mirror.NodeConcept}, SourceID: 1, TargetID: 3, Type: "MENTIONS"},
			{Kind: mirror.EdgeKind{Source: mirror.NodeArticle, Target: mirror.NodeArticle}, SourceID: 1, TargetID: 4, Type: "RELATED_TO"},
		},
	}

	stmts, err := compile(batch)
	require.NoError(t, err)
	require.Len(t, stmts, 4)

	assert.Contains(t, stmts[0].query, "MERGE (n:Article {id: row.id})")
	assert.Contains(t, stmts[1].query, "MERGE (n:Concept {id: row.id})")
	assert.Len(t, stmts[1].rows, 2)
	assert.Contains(t, stmts[2].query, "MERGE (a)-[r:RELATED_TO]->(b)")
	assert.Contains(t, stmts[3].query, "MERGE (a)-[r:MENTIONS]->(b)")
	assert.Len(t, stmts[3].rows, 2)
	assert.NotNil(t, stmts[0].rows[0]["props"])
}

func TestCompile_RejectsUnsafeLabels(t *testing.T) {
	_, err := compile(mirror.Batch{Edges: []mirror.Edge{{
		Kind: mirror.EdgeKind{Source: mirror.NodeArticle, Target: mirror.NodeArticle},
		Type: "X]->() DETACH DELETE a //",
	}}})
	assert.Error(t, err)

	_, err = compile(mirror.Batch{Nodes: []mirror.Node{{Kind: "User"}}})
	assert.Error(t, err)
}

func TestCompile_EmptyBatch(t *testing.T) {
	stmts, err := compile(mirror.Batch{})
	require.NoError(t, err)
	assert.Empty(t, stmts)
}
