package compiler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/browserflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// LoadGraphFile reads a workflow graph from a .json, .yaml or .yml file.
func LoadGraphFile(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}

	return ParseGraph(data, filepath.Ext(path))
}

// ParseGraph decodes a workflow graph. ext selects the format; anything other
// than .yaml/.yml is treated as JSON.
func ParseGraph(data []byte, ext string) (*models.Workflow, error) {
	workflow := &models.Workflow{}

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, workflow); err != nil {
			return nil, fmt.Errorf("failed to decode YAML graph: %w", err)
		}
	default:
		if err := json.Unmarshal(data, workflow); err != nil {
			return nil, fmt.Errorf("failed to decode JSON graph: %w", err)
		}
	}

	return workflow, nil
}
