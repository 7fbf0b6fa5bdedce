// Package topology builds a dependency graph of the migrated estate from the
// generated configuration artifact: which workspaces live in which
// environment, and which workspaces consume each other's state.
package topology

import (
	"strings"

	"scalr-migrate/internal/hcl"
)

const (
	BelongsToRelation     = "BELONGS_TO"
	ConsumesStateRelation = "CONSUMES_STATE"

	environmentType = "scalr_environment"
	workspaceType   = "scalr_workspace"
)

// Node is one declared environment or workspace.
type Node struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Edge is a directed relationship between two nodes.
type Edge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// Graph is the whole migrated topology.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// FromRecords derives the topology from artifact records. Variable blocks
// and other leaf records are ignored; only environments and workspaces shape
// the graph.
func FromRecords(records []*hcl.Record) *Graph {
	g := &Graph{Nodes: []Node{}, Edges: []Edge{}}
	known := map[string]bool{}

	for _, rec := range records {
		if rec.Type != environmentType && rec.Type != workspaceType {
			continue
		}
		id := rec.Address()
		g.Nodes = append(g.Nodes, Node{
			ID:   id,
			Type: rec.Type,
			Name: rec.Name,
			Kind: string(rec.Kind),
		})
		known[id] = true
	}

	uniqueEdges := map[Edge]bool{}
	addEdge := func(e Edge) {
		if known[e.From] && known[e.To] && !uniqueEdges[e] {
			uniqueEdges[e] = true
			g.Edges = append(g.Edges, e)
		}
	}

	for _, rec := range records {
		if rec.Type != workspaceType {
			continue
		}
		from := rec.Address()

		if v, ok := rec.Body.Get("environment_id"); ok {
			if to, ok := referencedAddress(v); ok {
				addEdge(Edge{From: from, To: to, Relation: BelongsToRelation})
			}
		}

		if v, ok := rec.Body.Get("remote_state_consumers"); ok {
			if list, ok := v.(hcl.ListValue); ok {
				for _, item := range list {
					if to, ok := referencedAddress(item); ok {
						addEdge(Edge{From: to, To: from, Relation: ConsumesStateRelation})
					}
				}
			}
		}
	}
	return g
}

// referencedAddress recovers the block address behind a reference value.
// Records scanned from disk carry references as raw id expressions, so both
// forms must resolve.
func referencedAddress(v hcl.Value) (string, bool) {
	switch v := v.(type) {
	case hcl.ReferenceValue:
		return v.Target.Address(), true
	case hcl.RawValue:
		expr := strings.TrimSuffix(string(v), ".id")
		if expr == string(v) {
			return "", false
		}
		return expr, true
	default:
		return "", false
	}
}
