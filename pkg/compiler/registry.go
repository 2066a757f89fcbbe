package compiler

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/dukex/browserflow/pkg/models"
)

// Generator turns one node into a script fragment.
type Generator struct {
	Type     string
	Template string
	// Schema is a JSON Schema describing the node settings. Optional.
	Schema map[string]any

	tmpl *template.Template
}

// Registry maps node types to their generators.
type Registry struct {
	generators map[string]*Generator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{generators: make(map[string]*Generator)}
}

// DefaultRegistry returns a registry holding every built-in node type.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	for _, generator := range builtinGenerators() {
		if err := r.Register(generator); err != nil {
			panic(err)
		}
	}

	return r
}

// Register parses the generator template and adds it, replacing any existing
// generator for the same type.
func (r *Registry) Register(generator Generator) error {
	if generator.Type == "" {
		return fmt.Errorf("generator type is required")
	}

	tmpl, err := template.New(generator.Type).
		Option("missingkey=zero").
		Funcs(templateFuncs()).
		Parse(generator.Template)
	if err != nil {
		return fmt.Errorf("failed to parse template for node type %s: %w", generator.Type, err)
	}

	generator.tmpl = tmpl
	r.generators[generator.Type] = &generator

	return nil
}

// Lookup returns the generator for nodeType.
func (r *Registry) Lookup(nodeType string) (*Generator, bool) {
	generator, ok := r.generators[nodeType]

	return generator, ok
}

// Types returns the registered node types sorted by name.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.generators))
	for nodeType := range r.generators {
		types = append(types, nodeType)
	}

	sort.Strings(types)

	return types
}

type fragmentData struct {
	ID string
	S  map[string]any
}

func (g *Generator) render(node *models.Node) (string, error) {
	settings := node.Settings
	if settings == nil {
		settings = map[string]any{}
	}

	var out strings.Builder

	err := g.tmpl.Execute(&out, fragmentData{ID: node.ID, S: settings})
	if err != nil {
		return "", fmt.Errorf("failed to render node %s (%s): %w", node.ID, node.Type, err)
	}

	return strings.TrimSpace(out.String()), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// js renders any value as a JavaScript literal.
		"js": func(value any) (string, error) {
			encoded, err := json.Marshal(value)
			if err != nil {
				return "", err
			}

			return string(encoded), nil
		},
		"str": func(value any, fallback string) string {
			if s, ok := value.(string); ok && s != "" {
				return s
			}

			return fallback
		},
		"num": func(value any, fallback float64) string {
			switch v := value.(type) {
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			case int:
				return strconv.Itoa(v)
			case string:
				if _, err := strconv.ParseFloat(v, 64); err == nil {
					return v
				}
			}

			return strconv.FormatFloat(fallback, 'f', -1, 64)
		},
		"bool": func(value any, fallback bool) bool {
			if b, ok := value.(bool); ok {
				return b
			}

			return fallback
		},
	}
}
