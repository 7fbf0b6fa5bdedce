package topology

import (
	"fmt"
	"strconv"

	"github.com/awalterschulze/gographviz"
)

const graphName = "topology"

// ToDOT renders the graph in Graphviz DOT form. Environments render as
// boxes, workspaces as ellipses, and edges carry their relation as a label.
func ToDOT(g *Graph) (string, error) {
	dot := gographviz.NewGraph()
	if err := dot.SetName(graphName); err != nil {
		return "", fmt.Errorf("failed to name graph: %w", err)
	}
	if err := dot.SetDir(true); err != nil {
		return "", fmt.Errorf("failed to set graph direction: %w", err)
	}

	for _, node := range g.Nodes {
		shape := "ellipse"
		if node.Type == environmentType {
			shape = "box"
		}
		attrs := map[string]string{
			"label": strconv.Quote(node.Name),
			"shape": shape,
		}
		if err := dot.AddNode(graphName, strconv.Quote(node.ID), attrs); err != nil {
			return "", fmt.Errorf("failed to add node %s: %w", node.ID, err)
		}
	}

	for _, edge := range g.Edges {
		attrs := map[string]string{"label": strconv.Quote(edge.Relation)}
		if err := dot.AddEdge(strconv.Quote(edge.From), strconv.Quote(edge.To), true, attrs); err != nil {
			return "", fmt.Errorf("failed to add edge %s -> %s: %w", edge.From, edge.To, err)
		}
	}

	return dot.String(), nil
}
