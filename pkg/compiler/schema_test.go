package compiler_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/browserflow/pkg/compiler"
	"github.com/dukex/browserflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	c := compiler.NewDefault()

	t.Run("valid settings", func(t *testing.T) {
		t.Parallel()

		err := c.ValidateSettings([]*models.Node{
			node("c", compiler.NodeTypeClick, map[string]any{"selector": "#a"}),
			node("w", compiler.NodeTypeWriteTable, map[string]any{"selector": "table", "rows": []any{[]any{"a", "b"}}}),
			node("u", "unknown_type", nil),
			node("s", compiler.NodeTypeStart, nil),
		})
		assert.NoError(t, err)
	})

	t.Run("missing selector", func(t *testing.T) {
		t.Parallel()

		err := c.ValidateSettings([]*models.Node{
			node("c", compiler.NodeTypeClick, nil),
			node("n", compiler.NodeTypeNavigate, map[string]any{"url": ""}),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, compiler.ErrInvalidSettings)

		var settingsErr *compiler.SettingsError
		require.True(t, errors.As(err, &settingsErr))
		assert.Equal(t, "c", settingsErr.NodeID)
		assert.Contains(t, err.Error(), "node n (navigate)")
	})

	t.Run("compile ignores settings problems", func(t *testing.T) {
		t.Parallel()

		_, err := c.Compile([]*models.Node{node("c", compiler.NodeTypeClick, nil)}, nil)
		assert.NoError(t, err)
	})
}

func TestLoadGraphFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
id: wf-1
name: search
nodes:
  - id: start
    type: start
  - id: go
    type: navigate
    settings:
      url: https://example.com
      timeout: 5000
edges:
  - id: e1
    source: start
    target: go
`), 0o600))

	workflow, err := compiler.LoadGraphFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", workflow.ID)
	require.Len(t, workflow.Nodes, 2)
	require.Len(t, workflow.Edges, 1)

	script, err := compiler.NewDefault().Compile(workflow.Nodes, workflow.Edges)
	require.NoError(t, err)
	assert.Contains(t, script, `await page.goto("https://example.com", { waitUntil: "load", timeout: 5000 });`)

	jsonPath := filepath.Join(dir, "flow.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"id":"wf-2","nodes":[{"id":"a","type":"start"}],"edges":[]}`), 0o600))

	workflow, err = compiler.LoadGraphFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "wf-2", workflow.ID)

	_, err = compiler.LoadGraphFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
