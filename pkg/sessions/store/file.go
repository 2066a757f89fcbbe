package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

const filePerm = 0o600

// File keeps every entry in a single JSON document, rewritten on each change.
type File struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
}

// NewFile opens (or creates) the JSON document at path.
func NewFile(path string) (*File, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store directory: %w", err)
	}

	f := &File{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}

		return nil, fmt.Errorf("failed to read session store: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &f.entries); err != nil {
			return nil, fmt.Errorf("failed to decode session store %s: %w", path, err)
		}
	}

	return f, nil
}

func (f *File) Get(_ context.Context, sessionID string) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[sessionID]
	if !ok {
		return Entry{}, ErrNotFound
	}

	return entry, nil
}

func (f *File) Set(_ context.Context, sessionID string, entry Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries[sessionID] = entry

	return f.flush()
}

func (f *File) Delete(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.entries[sessionID]; !ok {
		return nil
	}

	delete(f.entries, sessionID)

	return f.flush()
}

func (f *File) All(_ context.Context) (map[string]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return maps.Clone(f.entries), nil
}

func (f *File) Close(_ context.Context) error {
	return nil
}

// flush writes to a temp file and renames it over the document.
func (f *File) flush() error {
	data, err := json.MarshalIndent(f.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session store: %w", err)
	}

	tmp := f.path + ".tmp"

	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("failed to write session store: %w", err)
	}

	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace session store: %w", err)
	}

	return nil
}
