package compiler

import (
	"fmt"

	"github.com/dukex/browserflow/pkg/models"
	"github.com/hashicorp/go-multierror"
	"github.com/xeipuuv/gojsonschema"
)

// ValidateSettings checks every node whose type declares a schema. Nodes of
// unknown types are accepted, matching Compile.
func (c *Compiler) ValidateSettings(nodes []*models.Node) error {
	var result *multierror.Error

	for _, node := range nodes {
		generator, ok := c.registry.Lookup(node.Type)
		if !ok || generator.Schema == nil {
			continue
		}

		problems, err := validateAgainstSchema(generator.Schema, node.Settings)
		if err != nil {
			return fmt.Errorf("failed to validate settings of node %s: %w", node.ID, err)
		}

		if len(problems) > 0 {
			result = multierror.Append(result, &SettingsError{
				NodeID:   node.ID,
				NodeType: node.Type,
				Problems: problems,
			})
		}
	}

	return result.ErrorOrNil()
}

func validateAgainstSchema(schema map[string]any, settings map[string]any) ([]string, error) {
	if settings == nil {
		settings = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(settings))
	if err != nil {
		return nil, err
	}

	if result.Valid() {
		return nil, nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		problems = append(problems, resultErr.String())
	}

	return problems, nil
}
