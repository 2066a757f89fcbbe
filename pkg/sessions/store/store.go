// Package store holds the durable port assignments of browser sessions so a
// restarted process does not lose in-flight allocations.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no entry exists for the session.
var ErrNotFound = errors.New("session entry not found")

// Entry is the persisted state of one session.
type Entry struct {
	Port      uint16    `json:"port"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a key-value store of session entries keyed by session id.
type Store interface {
	Get(ctx context.Context, sessionID string) (Entry, error)
	Set(ctx context.Context, sessionID string, entry Entry) error
	Delete(ctx context.Context, sessionID string) error
	All(ctx context.Context) (map[string]Entry, error)
	Close(ctx context.Context) error
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
