package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/browserflow/pkg/models"
	"github.com/gobwas/glob"
	"github.com/jonboulle/clockwork"
)

// DefaultPollInterval is the cadence used while waiting on a session.
const DefaultPollInterval = 300 * time.Millisecond

// SessionLister is the read side of the browser host API.
type SessionLister interface {
	ListSessions(ctx context.Context) ([]models.Session, error)
}

// Poller reconciles the host session list with locally cached ports.
type Poller struct {
	host     SessionLister
	registry *Registry
	clock    clockwork.Clock
	interval time.Duration
	filter   glob.Glob
	logger   *slog.Logger
}

type PollerOption func(*Poller)

func WithPollClock(clock clockwork.Clock) PollerOption {
	return func(p *Poller) {
		p.clock = clock
	}
}

func WithPollInterval(interval time.Duration) PollerOption {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithNameFilter keeps only sessions whose name matches the glob.
func WithNameFilter(filter glob.Glob) PollerOption {
	return func(p *Poller) {
		p.filter = filter
	}
}

func NewPoller(host SessionLister, registry *Registry, logger *slog.Logger, opts ...PollerOption) *Poller {
	poller := &Poller{
		host:     host,
		registry: registry,
		clock:    clockwork.NewRealClock(),
		interval: DefaultPollInterval,
		logger:   logger.With("module", "session_poller"),
	}

	for _, opt := range opts {
		opt(poller)
	}

	return poller
}

// CompileNameFilter compiles a session name pattern such as "prod-*". An
// empty pattern yields a nil filter that matches everything.
//
//nolint:ireturn // glob.Compile only exposes the interface
func CompileNameFilter(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil //nolint:nilnil // no filter
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid session name filter %q: %w", pattern, err)
	}

	return g, nil
}

// FilterByName returns the sessions whose name matches filter.
func FilterByName(sessions []models.Session, filter glob.Glob) []models.Session {
	if filter == nil {
		return sessions
	}

	matched := make([]models.Session, 0, len(sessions))

	for _, session := range sessions {
		if filter.Match(session.Name) {
			matched = append(matched, session)
		}
	}

	return matched
}

// Poll fetches the host list once. Host status and uuid are kept as
// reported; the debug port is only ever the locally cached one.
func (p *Poller) Poll(ctx context.Context) ([]models.Session, error) {
	hostSessions, err := p.host.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to poll sessions: %w", err)
	}

	sessions := make([]models.Session, 0, len(hostSessions))

	for _, session := range hostSessions {
		session.DebugPort = 0

		if port, ok := p.registry.Port(session.ID); ok {
			session.DebugPort = port
		}

		p.registry.SetStatus(session.ID, session.Status)
		sessions = append(sessions, session)
	}

	return FilterByName(sessions, p.filter), nil
}

// Run polls immediately and then on every tick until ctx is done. Poll
// failures go to onError and never stop the loop.
func (p *Poller) Run(ctx context.Context, onUpdate func([]models.Session), onError func(error)) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx, onUpdate, onError)

	for {
		select {
		case <-ctx.Done():
			p.logger.DebugContext(ctx, "Session poller stopped")

			return
		case <-ticker.Chan():
			p.tick(ctx, onUpdate, onError)
		}
	}
}

func (p *Poller) tick(ctx context.Context, onUpdate func([]models.Session), onError func(error)) {
	sessions, err := p.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		p.logger.WarnContext(ctx, "Session poll failed", "error", err)

		if onError != nil {
			onError(err)
		}

		return
	}

	if onUpdate != nil {
		onUpdate(sessions)
	}
}
