// Package file provides file-based persistence for tasks, workflows and servers.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

const (
	tasksDir     = "tasks"
	workflowsDir = "workflows"
	serversDir   = "servers"
	filePerm     = 0o600
	dirPerm      = 0o750
)

// Persistence implements the persistence.Persistence interface using the file
// system, one JSON document per entity.
type Persistence struct {
	root string

	// guards read-modify-write of task documents
	mu sync.Mutex
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) documentPath(dir, id string) string {
	return filepath.Clean(path.Join(fp.root, dir, id+".json"))
}

// read decodes the document into dest; found is false when it does not exist.
func (fp *Persistence) read(dir, id string, dest any) (bool, error) {
	body, err := os.ReadFile(fp.documentPath(dir, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s %s: %w", dir, id, err)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s %s: %w", dir, id, err)
	}

	return true, nil
}

func (fp *Persistence) write(dir, id string, value any) error {
	err := os.MkdirAll(path.Join(fp.root, dir), dirPerm)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", dir, id, err)
	}

	return os.WriteFile(fp.documentPath(dir, id), data, filePerm)
}

// ids lists the document ids stored under dir.
func (fp *Persistence) ids(dir string) ([]string, error) {
	matches, err := fs.Glob(os.DirFS(path.Join(fp.root, dir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, strings.TrimSuffix(match, ".json"))
	}

	return ids, nil
}
