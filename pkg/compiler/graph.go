package compiler

import (
	"github.com/dukex/browserflow/pkg/models"
)

type graph struct {
	nodes    []*models.Node
	byID     map[string]*models.Node
	outgoing map[string][]string
	inDegree map[string]int
}

// Validate checks the structural invariants of a node/edge graph: at least one
// node, unique node ids, edges between existing distinct nodes and at least one
// node without incoming edges.
func Validate(nodes []*models.Node, edges []*models.Edge) error {
	_, err := buildGraph(nodes, edges)

	return err
}

func buildGraph(nodes []*models.Node, edges []*models.Edge) (*graph, error) {
	if len(nodes) == 0 {
		return nil, &GraphError{Err: ErrEmptyGraph}
	}

	g := &graph{
		nodes:    nodes,
		byID:     make(map[string]*models.Node, len(nodes)),
		outgoing: make(map[string][]string, len(nodes)),
		inDegree: make(map[string]int, len(nodes)),
	}

	for _, node := range nodes {
		if _, exists := g.byID[node.ID]; exists {
			return nil, &GraphError{NodeID: node.ID, Err: ErrDuplicateNode}
		}

		g.byID[node.ID] = node
	}

	for _, edge := range edges {
		if _, ok := g.byID[edge.Source]; !ok {
			return nil, &GraphError{EdgeID: edge.ID, Err: ErrDanglingEdge}
		}

		if _, ok := g.byID[edge.Target]; !ok {
			return nil, &GraphError{EdgeID: edge.ID, Err: ErrDanglingEdge}
		}

		if edge.Source == edge.Target {
			return nil, &GraphError{EdgeID: edge.ID, Err: ErrSelfEdge}
		}

		g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge.Target)
		g.inDegree[edge.Target]++
	}

	if len(g.startNodes()) == 0 {
		return nil, &GraphError{Err: ErrNoStartNode}
	}

	return g, nil
}

// startNodes returns nodes that are no edge's target, in node array order.
func (g *graph) startNodes() []*models.Node {
	starts := make([]*models.Node, 0, 1)

	for _, node := range g.nodes {
		if g.inDegree[node.ID] == 0 {
			starts = append(starts, node)
		}
	}

	return starts
}

const (
	unvisited = iota
	onStack
	finished
)

// order walks the graph depth-first from every start node, following outgoing
// edges in edge-list order. Nodes run at most once: when paths converge the
// first path to reach a node wins and later arrivals are skipped.
func (g *graph) order() ([]*models.Node, error) {
	state := make(map[string]int, len(g.nodes))
	ordered := make([]*models.Node, 0, len(g.nodes))

	var visit func(id string) error

	visit = func(id string) error {
		state[id] = onStack
		ordered = append(ordered, g.byID[id])

		for _, next := range g.outgoing[id] {
			switch state[next] {
			case onStack:
				return &GraphError{NodeID: next, Err: ErrCycle}
			case finished:
				continue
			}

			if err := visit(next); err != nil {
				return err
			}
		}

		state[id] = finished

		return nil
	}

	for _, start := range g.startNodes() {
		if state[start.ID] != unvisited {
			continue
		}

		if err := visit(start.ID); err != nil {
			return nil, err
		}
	}

	// Every node in an acyclic graph is reachable from some start node.
	for _, node := range g.nodes {
		if state[node.ID] == unvisited {
			return nil, &GraphError{NodeID: node.ID, Err: ErrCycle}
		}
	}

	return ordered, nil
}
