package models

// Position is the node location on the editor canvas. The engine never reads it.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a typed action in a workflow graph.
type Node struct {
	ID       string         `json:"id"                 yaml:"id"       validate:"required"`
	Type     string         `json:"type"               yaml:"type"     validate:"required"`
	Position Position       `json:"position"           yaml:"position"`
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Edge defines execution order between two nodes.
type Edge struct {
	ID     string `json:"id"     yaml:"id"`
	Source string `json:"source" yaml:"source" validate:"required"`
	Target string `json:"target" yaml:"target" validate:"required"`
}

// Setting returns the named setting as a string, or "" when missing or not a string.
func (n *Node) Setting(key string) string {
	if n.Settings == nil {
		return ""
	}

	value, ok := n.Settings[key].(string)
	if !ok {
		return ""
	}

	return value
}
