// Package sessions manages remote browser sessions: debug port allocation,
// start/stop through the browser host, readiness waiting and state polling.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/browserflow/pkg/models"
	"github.com/dukex/browserflow/pkg/sessions/store"
	"github.com/jonboulle/clockwork"
)

// Registry is the process-wide cache of session ports and last-seen status.
// Ports are written through to a durable store; status is only mirrored
// from the host and lives in memory.
type Registry struct {
	store  store.Store
	clock  clockwork.Clock
	logger *slog.Logger

	mu       sync.RWMutex
	ports    map[string]uint16
	statuses map[string]models.SessionStatus
	uuids    map[string]string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewRegistry(st store.Store, clock clockwork.Clock, logger *slog.Logger) *Registry {
	if st == nil {
		st = store.NewMemory()
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Registry{
		store:    st,
		clock:    clock,
		logger:   logger.With("module", "session_registry"),
		ports:    make(map[string]uint16),
		statuses: make(map[string]models.SessionStatus),
		uuids:    make(map[string]string),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Load hydrates the port cache from the store.
func (r *Registry) Load(ctx context.Context) error {
	entries, err := r.store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session ports: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for sessionID, entry := range entries {
		if entry.Port != 0 {
			r.ports[sessionID] = entry.Port
		}
	}

	r.logger.InfoContext(ctx, "Loaded session ports", "count", len(r.ports))

	return nil
}

// Lock serializes start/stop of one session and returns the unlock function.
func (r *Registry) Lock(sessionID string) func() {
	r.locksMu.Lock()

	lock, ok := r.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[sessionID] = lock
	}

	r.locksMu.Unlock()

	lock.Lock()

	return lock.Unlock
}

func (r *Registry) Port(sessionID string) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	port, ok := r.ports[sessionID]

	return port, ok
}

func (r *Registry) SetPort(ctx context.Context, sessionID string, port uint16) error {
	err := r.store.Set(ctx, sessionID, store.Entry{Port: port, UpdatedAt: r.clock.Now()})
	if err != nil {
		return fmt.Errorf("failed to persist port for session %s: %w", sessionID, err)
	}

	r.mu.Lock()
	r.ports[sessionID] = port
	r.mu.Unlock()

	return nil
}

// ClearPort forgets the port of a session. The in-memory entry is dropped
// even when the store delete fails.
func (r *Registry) ClearPort(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.ports, sessionID)
	r.mu.Unlock()

	if err := r.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear port for session %s: %w", sessionID, err)
	}

	return nil
}

func (r *Registry) Status(sessionID string) (models.SessionStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.statuses[sessionID]

	return status, ok
}

func (r *Registry) SetStatus(sessionID string, status models.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.statuses[sessionID] = status
}

// UUID returns the host uuid the session was last started with.
func (r *Registry) UUID(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uuid, ok := r.uuids[sessionID]

	return uuid, ok
}

func (r *Registry) SetUUID(sessionID, uuid string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.uuids[sessionID] = uuid
}

// PortsInUse returns every cached port mapped to its session, skipping
// the given session id.
func (r *Registry) PortsInUse(exceptSessionID string) map[uint16]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inUse := make(map[uint16]string, len(r.ports))

	for sessionID, port := range r.ports {
		if sessionID == exceptSessionID {
			continue
		}

		inUse[port] = sessionID
	}

	return inUse
}
