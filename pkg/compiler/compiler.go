// Package compiler turns a workflow node/edge graph into a runnable browser script.
package compiler

import (
	"fmt"
	"strings"

	"github.com/dukex/browserflow/pkg/models"
)

const (
	scriptHeader = "module.exports = async function runWorkflow({ browser, page, context, helpers = {}, variables = {} }) {\n" +
		"  const vars = { ...variables };\n"
	scriptFooter = "  return vars;\n};\n"
	indent       = "  "
)

// Compiler emits one script fragment per reachable node.
type Compiler struct {
	registry *Registry
}

// New creates a compiler using the given codegen registry.
func New(registry *Registry) *Compiler {
	return &Compiler{registry: registry}
}

// NewDefault creates a compiler with every built-in node type.
func NewDefault() *Compiler {
	return New(DefaultRegistry())
}

// Registry returns the codegen registry in use.
func (c *Compiler) Registry() *Registry {
	return c.registry
}

// Order returns the nodes in execution order: depth-first pre-order from each
// start node, start nodes taken in array order.
func (c *Compiler) Order(nodes []*models.Node, edges []*models.Edge) ([]*models.Node, error) {
	g, err := buildGraph(nodes, edges)
	if err != nil {
		return nil, err
	}

	return g.order()
}

// Compile validates the graph and renders the script. Node types without a
// generator compile to a comment so that unknown types never abort compilation.
func (c *Compiler) Compile(nodes []*models.Node, edges []*models.Edge) (string, error) {
	ordered, err := c.Order(nodes, edges)
	if err != nil {
		return "", err
	}

	var script strings.Builder

	script.WriteString(scriptHeader)

	for _, node := range ordered {
		fragment, err := c.fragment(node)
		if err != nil {
			return "", err
		}

		script.WriteString("\n")
		writeIndented(&script, fragment)
	}

	script.WriteString("\n")
	script.WriteString(scriptFooter)

	return script.String(), nil
}

func (c *Compiler) fragment(node *models.Node) (string, error) {
	header := FragmentMarker(node)

	generator, ok := c.registry.Lookup(node.Type)
	if !ok {
		return header + "\n" + "// Unsupported node type: " + sanitizeComment(node.Type), nil
	}

	body, err := generator.render(node)
	if err != nil {
		return "", err
	}

	return header + "\n" + body, nil
}

// FragmentMarker is the comment line opening every node fragment.
func FragmentMarker(node *models.Node) string {
	return fmt.Sprintf("// node %s (%s)", sanitizeComment(node.ID), sanitizeComment(node.Type))
}

// sanitizeComment folds every JavaScript line terminator so the value stays
// inside a single line comment.
func sanitizeComment(value string) string {
	return strings.NewReplacer("\n", " ", "\r", " ", "\u2028", " ", "\u2029", " ").Replace(value)
}

func writeIndented(out *strings.Builder, text string) {
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			out.WriteString("\n")

			continue
		}

		out.WriteString(indent)
		out.WriteString(line)
		out.WriteString("\n")
	}
}
