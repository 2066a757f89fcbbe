package sessions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/browserflow/pkg/hostapi"
	"github.com/dukex/browserflow/pkg/models"
	"github.com/jonboulle/clockwork"
)

// HostClient is the part of the browser host API the session package needs.
type HostClient interface {
	ListSessions(ctx context.Context) ([]models.Session, error)
	StartSession(ctx context.Context, uuid string, headless bool, debugPort uint16) (*hostapi.StartResponse, error)
	StopSession(ctx context.Context, uuid string) error
}

// StartResult describes a session that answered on its debug port.
type StartResult struct {
	SessionID string
	Port      uint16
	Reused    bool
}

// Manager starts and stops sessions on the browser host.
type Manager struct {
	host      HostClient
	registry  *Registry
	allocator *PortAllocator
	prober    Prober
	clock     clockwork.Clock
	logger    *slog.Logger

	headless      bool
	readyInterval time.Duration
	readyAttempts int
}

type ManagerOption func(*Manager)

func WithClock(clock clockwork.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = clock
	}
}

func WithProber(prober Prober) ManagerOption {
	return func(m *Manager) {
		m.prober = prober
	}
}

func WithHeadless(headless bool) ManagerOption {
	return func(m *Manager) {
		m.headless = headless
	}
}

// WithReadiness sets the probe spacing and the number of probes.
func WithReadiness(interval time.Duration, attempts int) ManagerOption {
	return func(m *Manager) {
		if interval > 0 {
			m.readyInterval = interval
		}

		if attempts > 0 {
			m.readyAttempts = attempts
		}
	}
}

func NewManager(host HostClient, registry *Registry, allocator *PortAllocator, logger *slog.Logger, opts ...ManagerOption) *Manager {
	manager := &Manager{
		host:          host,
		registry:      registry,
		allocator:     allocator,
		prober:        NewHTTPProber(),
		clock:         clockwork.NewRealClock(),
		logger:        logger.With("module", "session_manager"),
		readyInterval: DefaultReadyInterval,
		readyAttempts: DefaultReadyAttempts,
	}

	for _, opt := range opts {
		opt(manager)
	}

	return manager
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// Start launches the session with a freshly allocated debug port and waits
// for the port to answer. The host uuid is taken from session.UUID when set,
// otherwise from the host's session list. A cached port is reused only while
// the host reports the session active and the port answers.
func (m *Manager) Start(ctx context.Context, session models.Session) (StartResult, error) {
	unlock := m.registry.Lock(session.ID)
	defer unlock()

	existing, listErr := m.host.ListSessions(ctx)
	if listErr != nil {
		m.logger.WarnContext(ctx, "Could not list host sessions, allocating from local cache only",
			"session_id", session.ID, "error", listErr)
	}

	hostSession := findHostSession(existing, session.ID)

	uuid, err := m.resolveUUID(session, hostSession, listErr)
	if err != nil {
		m.registry.SetStatus(session.ID, models.SessionStatusError)

		return StartResult{}, &SessionError{Op: "start", SessionID: session.ID, Err: err}
	}

	logger := m.logger.With("session_id", session.ID, "uuid", uuid)

	if port, ok := m.registry.Port(session.ID); ok && hostSession != nil && hostSession.IsActive() {
		if err := m.prober.Probe(ctx, port); err == nil {
			logger.InfoContext(ctx, "Reusing running session", "port", port)
			m.registry.SetStatus(session.ID, models.SessionStatusRunning)

			return StartResult{SessionID: session.ID, Port: port, Reused: true}, nil
		}
	}

	m.registry.SetStatus(session.ID, models.SessionStatusStarting)

	port, err := m.allocator.Allocate(ctx, session.ID, existing)
	if err != nil {
		m.registry.SetStatus(session.ID, models.SessionStatusError)

		return StartResult{}, &SessionError{Op: "start", SessionID: session.ID, Err: err}
	}

	logger.InfoContext(ctx, "Starting session", "port", port, "headless", m.headless)

	resp, err := m.host.StartSession(ctx, uuid, m.headless, port)
	if err != nil {
		m.fail(ctx, session.ID)

		return StartResult{}, &SessionError{Op: "start", SessionID: session.ID, Err: err}
	}

	m.registry.SetUUID(session.ID, uuid)

	if resp.DebugPort != 0 && resp.DebugPort != port {
		logger.InfoContext(ctx, "Host assigned a different debug port", "requested", port, "assigned", resp.DebugPort)

		port = resp.DebugPort
		if err := m.registry.SetPort(ctx, session.ID, port); err != nil {
			m.fail(ctx, session.ID)

			return StartResult{}, &SessionError{Op: "start", SessionID: session.ID, Err: err}
		}
	}

	started := m.clock.Now()

	probes, err := waitReady(ctx, m.clock, m.prober, port, m.readyInterval, m.readyAttempts)
	if err != nil {
		m.fail(ctx, session.ID)

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return StartResult{}, &SessionError{Op: "start", SessionID: session.ID, Err: err}
		}

		timeoutErr := &PortTimeoutError{
			SessionID: session.ID,
			Port:      port,
			Attempts:  probes,
			Elapsed:   m.clock.Since(started),
			Err:       err,
		}
		logger.ErrorContext(ctx, "Session debug port never became reachable", "error", timeoutErr)

		return StartResult{}, timeoutErr
	}

	m.registry.SetStatus(session.ID, models.SessionStatusRunning)
	logger.InfoContext(ctx, "Session ready", "port", port, "probes", probes)

	return StartResult{SessionID: session.ID, Port: port}, nil
}

// Stop asks the host to stop the session. The cached port is cleared even
// when the host call fails.
func (m *Manager) Stop(ctx context.Context, session models.Session) error {
	unlock := m.registry.Lock(session.ID)
	defer unlock()

	uuid := session.UUID
	if uuid == "" {
		uuid, _ = m.registry.UUID(session.ID)
	}

	var hostErr error

	if uuid == "" {
		existing, listErr := m.host.ListSessions(ctx)

		uuid, hostErr = m.resolveUUID(session, findHostSession(existing, session.ID), listErr)
	}

	logger := m.logger.With("session_id", session.ID, "uuid", uuid)

	if hostErr == nil {
		hostErr = m.host.StopSession(ctx, uuid)
	}

	if err := m.registry.ClearPort(ctx, session.ID); err != nil {
		logger.WarnContext(ctx, "Failed to clear session port", "error", err)
	}

	if hostErr != nil {
		logger.ErrorContext(ctx, "Failed to stop session", "error", hostErr)

		return &SessionError{Op: "stop", SessionID: session.ID, Err: hostErr}
	}

	m.registry.SetStatus(session.ID, models.SessionStatusStopped)
	logger.InfoContext(ctx, "Session stopped")

	return nil
}

// resolveUUID picks the host uuid for a session: the caller's explicit uuid,
// then the host's entry for the id, then the uuid of the last start.
func (m *Manager) resolveUUID(session models.Session, hostSession *models.Session, listErr error) (string, error) {
	if session.UUID != "" {
		return session.UUID, nil
	}

	if hostSession != nil {
		if hostSession.UUID != "" {
			return hostSession.UUID, nil
		}

		return hostSession.ID, nil
	}

	if uuid, ok := m.registry.UUID(session.ID); ok {
		return uuid, nil
	}

	if listErr != nil {
		return "", listErr
	}

	return "", ErrSessionNotFound
}

func findHostSession(existing []models.Session, sessionID string) *models.Session {
	for i := range existing {
		if existing[i].ID == sessionID {
			return &existing[i]
		}
	}

	return nil
}

func (m *Manager) fail(ctx context.Context, sessionID string) {
	m.registry.SetStatus(sessionID, models.SessionStatusError)

	if err := m.registry.ClearPort(ctx, sessionID); err != nil {
		m.logger.WarnContext(ctx, "Failed to clear session port", "session_id", sessionID, "error", err)
	}
}
