package sessions

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/dukex/browserflow/pkg/models"
)

const (
	MinDebugPort       uint16 = 32000
	MaxDebugPort       uint16 = 65535
	DefaultMaxAttempts        = 1000
)

var ErrPortPoolExhausted = errors.New("debug port pool exhausted")

// PortAllocator draws debug ports uniformly at random, rejecting ports used
// by other sessions, and records the result in the Registry.
type PortAllocator struct {
	registry    *Registry
	maxAttempts int
	intN        func(n int) int

	mu sync.Mutex
}

type AllocatorOption func(*PortAllocator)

// WithMaxAttempts bounds the number of draws before ErrPortPoolExhausted.
func WithMaxAttempts(attempts int) AllocatorOption {
	return func(a *PortAllocator) {
		if attempts > 0 {
			a.maxAttempts = attempts
		}
	}
}

// WithRand replaces the random source, mostly for deterministic tests.
func WithRand(r *rand.Rand) AllocatorOption {
	return func(a *PortAllocator) {
		a.intN = r.IntN
	}
}

func NewPortAllocator(registry *Registry, opts ...AllocatorOption) *PortAllocator {
	allocator := &PortAllocator{
		registry:    registry,
		maxAttempts: DefaultMaxAttempts,
		intN:        rand.IntN,
	}

	for _, opt := range opts {
		opt(allocator)
	}

	return allocator
}

// Allocate picks a free port for sessionID. Ports carried by existing and
// ports cached for any other session are excluded.
func (a *PortAllocator) Allocate(ctx context.Context, sessionID string, existing []models.Session) (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	excluded := a.registry.PortsInUse(sessionID)

	for _, session := range existing {
		if session.DebugPort != 0 {
			excluded[session.DebugPort] = session.ID
		}
	}

	poolSize := int(MaxDebugPort-MinDebugPort) + 1

	inRange := 0

	for port := range excluded {
		if port >= MinDebugPort {
			inRange++
		}
	}

	if inRange >= poolSize {
		return 0, fmt.Errorf("%w: all %d ports in use", ErrPortPoolExhausted, poolSize)
	}

	for range a.maxAttempts {
		port := MinDebugPort + uint16(a.intN(poolSize))

		if _, taken := excluded[port]; taken {
			continue
		}

		if err := a.registry.SetPort(ctx, sessionID, port); err != nil {
			return 0, err
		}

		return port, nil
	}

	return 0, fmt.Errorf("%w: no free port after %d attempts", ErrPortPoolExhausted, a.maxAttempts)
}
