package topology

import (
	"fmt"
	"strings"
)

// ToCypherTransaction converts the graph to a single parameterized Cypher
// query for driver execution. Parameters prevent injection and let the
// server cache the query plan; only the relation type, which Cypher cannot
// parameterize, is interpolated, and it comes from a closed set.
func ToCypherTransaction(g *Graph) (string, map[string]any) {
	var query strings.Builder
	params := map[string]any{}

	nodesData := make([]map[string]any, len(g.Nodes))
	for i, node := range g.Nodes {
		nodesData[i] = map[string]any{
			"id":   node.ID,
			"type": node.Type,
			"name": node.Name,
			"kind": node.Kind,
		}
	}
	params["nodes"] = nodesData

	query.WriteString("UNWIND $nodes AS node_data\n")
	query.WriteString("MERGE (n:Resource {id: node_data.id})\n")
	query.WriteString("SET n.type = node_data.type, n.name = node_data.name, n.kind = node_data.kind\n")

	// One UNWIND per relation type, since relationship types cannot be
	// parameterized.
	byRelation := map[string][]map[string]string{}
	for _, edge := range g.Edges {
		byRelation[edge.Relation] = append(byRelation[edge.Relation], map[string]string{
			"from": edge.From,
			"to":   edge.To,
		})
	}
	for _, relation := range []string{BelongsToRelation, ConsumesStateRelation} {
		edges := byRelation[relation]
		if len(edges) == 0 {
			continue
		}
		param := "edges_" + strings.ToLower(relation)
		params[param] = edges

		query.WriteString("WITH *\n")
		fmt.Fprintf(&query, "UNWIND $%s AS edge_data\n", param)
		query.WriteString("MATCH (from:Resource {id: edge_data.from})\n")
		query.WriteString("MATCH (to:Resource {id: edge_data.to})\n")
		fmt.Fprintf(&query, "MERGE (from)-[:%s]->(to)\n", relation)
	}

	return query.String(), params
}
