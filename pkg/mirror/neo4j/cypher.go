package neo4j

import (
	"fmt"
	"sort"
	"strings"

	"github.com/knowledgesnode/backend/pkg/mirror"
)

type statement struct {
	query string
	rows  []map[string]any
}

type edgeShape struct {
	kind mirror.EdgeKind
	typ  string
}

func lower(k mirror.NodeKind) string {
	return strings.ToLower(string(k))
}

// compile groups a batch into parameterised UNWIND statements. Labels and
// relationship types are spliced into the query text, so both are
// validated first.
func compile(batch mirror.Batch) ([]statement, error) {
	nodeRows := make(map[mirror.NodeKind][]map[string]any)
	for _, n := range batch.Nodes {
		if !n.Kind.Valid() {
			return nil, fmt.Errorf("invalid node kind %q", n.Kind)
		}
		nodeRows[n.Kind] = append(nodeRows[n.Kind], map[string]any{"id": n.ID, "props": propsOrEmpty(n.Props)})
	}

	edgeRows := make(map[edgeShape][]map[string]any)
	for _, e := range batch.Edges {
		if !e.Kind.Source.Valid() || !e.Kind.Target.Valid() {
			return nil, fmt.Errorf("invalid edge kind %s->%s", e.Kind.Source, e.Kind.Target)
		}
		if !mirror.ValidTypeLabel(e.Type) {
			return nil, fmt.Errorf("invalid relationship type %q", e.Type)
		}
		shape := edgeShape{kind: e.Kind, typ: e.Type}
		edgeRows[shape] = append(edgeRows[shape], map[string]any{
			"source": e.SourceID,
			"target": e.TargetID,
			"props":  propsOrEmpty(e.Props),
		})
	}

	var stmts []statement

	kinds := make([]mirror.NodeKind, 0, len(nodeRows))
	for k := range nodeRows {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		stmts = append(stmts, statement{
			query: fmt.Sprintf("UNWIND $rows AS row\nMERGE (n:%s {id: row.id})\nSET n += row.props", k),
			rows:  nodeRows[k],
		})
	}

	shapes := make([]edgeShape, 0, len(edgeRows))
	for s := range edgeRows {
		shapes = append(shapes, s)
	}
	sort.Slice(shapes, func(i, j int) bool {
		a, b := shapes[i], shapes[j]
		if a.kind.Source != b.kind.Source {
			return a.kind.Source < b.kind.Source
		}
		if a.kind.Target != b.kind.Target {
			return a.kind.Target < b.kind.Target
		}
		return a.typ < b.typ
	})
	for _, s := range shapes {
		stmts = append(stmts, statement{
			query: fmt.Sprintf(
				"UNWIND $rows AS row\nMERGE (a:%s {id: row.source})\nMERGE (b:%s {id: row.target})\nMERGE (a)-[r:%s]->(b)\nSET r += row.props",
				s.kind.Source, s.kind.Target, s.typ,
			),
			rows: edgeRows[s],
		})
	}
	return stmts, nil
}

func propsOrEmpty(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}
