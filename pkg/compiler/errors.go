package compiler

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyGraph indicates a graph without nodes.
	ErrEmptyGraph = errors.New("graph has no nodes")

	// ErrNoStartNode indicates every node has at least one incoming edge.
	ErrNoStartNode = errors.New("graph has no start node")

	// ErrCycle indicates the graph contains a directed cycle.
	ErrCycle = errors.New("graph contains a cycle")

	// ErrSelfEdge indicates an edge whose source and target are the same node.
	ErrSelfEdge = errors.New("edge connects a node to itself")

	// ErrDanglingEdge indicates an edge referencing a node that does not exist.
	ErrDanglingEdge = errors.New("edge references unknown node")

	// ErrDuplicateNode indicates two nodes share the same id.
	ErrDuplicateNode = errors.New("duplicate node id")

	// ErrInvalidSettings indicates node settings that do not match the node type schema.
	ErrInvalidSettings = errors.New("invalid node settings")
)

// GraphError wraps a graph validation failure with the offending element.
type GraphError struct {
	NodeID string
	EdgeID string
	Err    error
}

func (e *GraphError) Error() string {
	switch {
	case e.EdgeID != "":
		return fmt.Sprintf("edge %s: %v", e.EdgeID, e.Err)
	case e.NodeID != "":
		return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// SettingsError lists schema violations for a single node.
type SettingsError struct {
	NodeID   string
	NodeType string
	Problems []string
}

func (e *SettingsError) Error() string {
	return fmt.Sprintf("node %s (%s): %v: %v", e.NodeID, e.NodeType, ErrInvalidSettings, e.Problems)
}

func (e *SettingsError) Unwrap() error {
	return ErrInvalidSettings
}

// IsGraphError reports whether err is a structural graph problem.
func IsGraphError(err error) bool {
	return errors.Is(err, ErrEmptyGraph) ||
		errors.Is(err, ErrNoStartNode) ||
		errors.Is(err, ErrCycle) ||
		errors.Is(err, ErrSelfEdge) ||
		errors.Is(err, ErrDanglingEdge) ||
		errors.Is(err, ErrDuplicateNode)
}
