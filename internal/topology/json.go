package topology

import "encoding/json"

// ToJSON renders the graph as indented JSON.
func ToJSON(g *Graph) (string, error) {
	raw, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
