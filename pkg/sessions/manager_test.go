package sessions_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/browserflow/pkg/hostapi"
	"github.com/dukex/browserflow/pkg/mocks"
	"github.com/dukex/browserflow/pkg/models"
	"github.com/dukex/browserflow/pkg/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type managerFixture struct {
	host     *mocks.MockHostClient
	prober   *mocks.MockProber
	clock    *clockwork.FakeClock
	registry *sessions.Registry
	manager  *sessions.Manager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	f := &managerFixture{
		host:   &mocks.MockHostClient{},
		prober: &mocks.MockProber{},
		clock:  clockwork.NewFakeClock(),
	}

	f.registry = sessions.NewRegistry(nil, f.clock, testLogger())
	f.manager = sessions.NewManager(f.host, f.registry, sessions.NewPortAllocator(f.registry), testLogger(),
		sessions.WithClock(f.clock),
		sessions.WithProber(f.prober),
	)

	return f
}

type startOutcome struct {
	result sessions.StartResult
	err    error
}

// start runs Manager.Start in the background and advances the fake clock by
// the probe interval the given number of times.
func (f *managerFixture) start(t *testing.T, session models.Session, ticks int) startOutcome {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan startOutcome, 1)

	go func() {
		result, err := f.manager.Start(ctx, session)
		done <- startOutcome{result: result, err: err}
	}()

	for range ticks {
		require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
		f.clock.Advance(sessions.DefaultReadyInterval)
	}

	select {
	case outcome := <-done:
		return outcome
	case <-ctx.Done():
		t.Fatal("Start did not return")

		return startOutcome{}
	}
}

var testSession = models.Session{ID: "s1", UUID: "u1", Name: "one"}

func TestManager_StartWaitsForPort(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)

	f.host.On("ListSessions", mock.Anything).Return([]models.Session{}, nil)
	f.host.On("StartSession", mock.Anything, "u1", false, mock.AnythingOfType("uint16")).
		Return(&hostapi.StartResponse{UUID: "u1"}, nil)
	f.prober.On("Probe", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Twice()
	f.prober.On("Probe", mock.Anything, mock.Anything).Return(nil).Once()

	outcome := f.start(t, testSession, 3)
	require.NoError(t, outcome.err)

	port, ok := f.registry.Port("s1")
	require.True(t, ok)
	assert.Equal(t, port, outcome.result.Port)
	assert.False(t, outcome.result.Reused)

	status, _ := f.registry.Status("s1")
	assert.Equal(t, models.SessionStatusRunning, status)

	f.host.AssertExpectations(t)
	f.prober.AssertNumberOfCalls(t, "Probe", 3)
}

func TestManager_StartPortTimeout(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)
	started := f.clock.Now()

	f.host.On("ListSessions", mock.Anything).Return([]models.Session{}, nil)
	f.host.On("StartSession", mock.Anything, "u1", false, mock.AnythingOfType("uint16")).
		Return(&hostapi.StartResponse{}, nil)
	f.prober.On("Probe", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	outcome := f.start(t, testSession, sessions.DefaultReadyAttempts)
	require.Error(t, outcome.err)
	assert.ErrorIs(t, outcome.err, sessions.ErrPortTimeout)
	assert.True(t, sessions.IsPortTimeout(outcome.err))

	var timeoutErr *sessions.PortTimeoutError
	require.ErrorAs(t, outcome.err, &timeoutErr)
	assert.Equal(t, 5, timeoutErr.Attempts)
	assert.Equal(t, 10*time.Second, timeoutErr.Elapsed)
	assert.Equal(t, 10*time.Second, f.clock.Since(started))

	_, ok := f.registry.Port("s1")
	assert.False(t, ok)

	status, _ := f.registry.Status("s1")
	assert.Equal(t, models.SessionStatusError, status)

	f.prober.AssertNumberOfCalls(t, "Probe", 5)
}

func TestManager_StartUsesHostAssignedPort(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)

	f.host.On("ListSessions", mock.Anything).Return([]models.Session{}, nil)
	f.host.On("StartSession", mock.Anything, "u1", false, mock.AnythingOfType("uint16")).
		Return(&hostapi.StartResponse{DebugPort: 45000}, nil)
	f.prober.On("Probe", mock.Anything, uint16(45000)).Return(nil)

	outcome := f.start(t, testSession, 1)
	require.NoError(t, outcome.err)
	assert.Equal(t, uint16(45000), outcome.result.Port)

	port, _ := f.registry.Port("s1")
	assert.Equal(t, uint16(45000), port)
}

func TestManager_StartExcludesHostReportedPorts(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)

	f.host.On("ListSessions", mock.Anything).Return(fullPool(40000), nil)
	f.host.On("StartSession", mock.Anything, "u1", false, uint16(40000)).
		Return(&hostapi.StartResponse{}, nil)
	f.prober.On("Probe", mock.Anything, uint16(40000)).Return(nil)

	manager := sessions.NewManager(f.host, f.registry,
		sessions.NewPortAllocator(f.registry, sessions.WithMaxAttempts(1_000_000)), testLogger(),
		sessions.WithClock(f.clock), sessions.WithProber(f.prober))
	f.manager = manager

	outcome := f.start(t, testSession, 1)
	require.NoError(t, outcome.err)
	assert.Equal(t, uint16(40000), outcome.result.Port)
}

func TestManager_StartHostFailure(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)

	hostErr := &hostapi.HostError{Op: "StartSession", StatusCode: 502, PortStatus: "closed", Err: hostapi.ErrHostPortClosed}

	f.host.On("ListSessions", mock.Anything).Return(nil, hostapi.ErrHostUnavailable)
	f.host.On("StartSession", mock.Anything, "u1", false, mock.AnythingOfType("uint16")).Return(nil, hostErr)

	outcome := f.start(t, testSession, 0)
	require.Error(t, outcome.err)
	assert.True(t, hostapi.IsPortClosed(outcome.err))

	var sessionErr *sessions.SessionError
	require.ErrorAs(t, outcome.err, &sessionErr)
	assert.Equal(t, "s1", sessionErr.SessionID)

	_, ok := f.registry.Port("s1")
	assert.False(t, ok)

	status, _ := f.registry.Status("s1")
	assert.Equal(t, models.SessionStatusError, status)

	f.prober.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
}

func TestManager_StartReusesLiveCachedPort(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)
	require.NoError(t, f.registry.SetPort(context.Background(), "s1", 41000))

	f.host.On("ListSessions", mock.Anything).Return([]models.Session{
		{ID: "s1", UUID: "u1", Status: models.SessionStatusRunning, DebugPort: 41000},
	}, nil)
	f.prober.On("Probe", mock.Anything, uint16(41000)).Return(nil)

	outcome := f.start(t, testSession, 0)
	require.NoError(t, outcome.err)
	assert.True(t, outcome.result.Reused)
	assert.Equal(t, uint16(41000), outcome.result.Port)

	f.host.AssertNotCalled(t, "StartSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_StartRestartsStoppedSessionWithLivePort(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)
	require.NoError(t, f.registry.SetPort(context.Background(), "s1", 41000))

	// Something else answers on the cached port while the host reports the
	// session stopped.
	f.host.On("ListSessions", mock.Anything).Return([]models.Session{
		{ID: "s1", UUID: "u1", Status: models.SessionStatusStopped},
	}, nil)
	f.host.On("StartSession", mock.Anything, "u1", false, mock.AnythingOfType("uint16")).
		Return(&hostapi.StartResponse{DebugPort: 42000}, nil)
	f.prober.On("Probe", mock.Anything, mock.AnythingOfType("uint16")).Return(nil)

	outcome := f.start(t, testSession, 1)
	require.NoError(t, outcome.err)
	assert.False(t, outcome.result.Reused)
	assert.Equal(t, uint16(42000), outcome.result.Port)

	f.host.AssertNumberOfCalls(t, "StartSession", 1)
}

func TestManager_StartResolvesHostUUID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newManagerFixture(t)

	f.host.On("ListSessions", mock.Anything).Return([]models.Session{
		{ID: "s0", UUID: "u0", Status: models.SessionStatusRunning, DebugPort: 40010},
		{ID: "s1", UUID: "u1", Status: models.SessionStatusStopped},
	}, nil)
	f.host.On("StartSession", mock.Anything, "u1", false, mock.AnythingOfType("uint16")).
		Return(&hostapi.StartResponse{}, nil)
	f.host.On("StopSession", mock.Anything, "u1").Return(nil)
	f.prober.On("Probe", mock.Anything, mock.AnythingOfType("uint16")).Return(nil)

	ref := models.Session{ID: "s1"}

	outcome := f.start(t, ref, 1)
	require.NoError(t, outcome.err)
	assert.Equal(t, "s1", outcome.result.SessionID)

	uuid, ok := f.registry.UUID("s1")
	require.True(t, ok)
	assert.Equal(t, "u1", uuid)

	require.NoError(t, f.manager.Stop(ctx, ref))

	f.host.AssertNotCalled(t, "StartSession", mock.Anything, "s1", mock.Anything, mock.Anything)
	f.host.AssertNotCalled(t, "StopSession", mock.Anything, "s1")
	f.host.AssertNumberOfCalls(t, "ListSessions", 1)
}

func TestManager_StartUnknownSession(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)

	f.host.On("ListSessions", mock.Anything).Return([]models.Session{{ID: "s0", UUID: "u0"}}, nil)

	outcome := f.start(t, models.Session{ID: "s1"}, 0)
	require.Error(t, outcome.err)
	assert.True(t, sessions.IsSessionNotFound(outcome.err))

	status, _ := f.registry.Status("s1")
	assert.Equal(t, models.SessionStatusError, status)

	f.host.AssertNotCalled(t, "StartSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_StartCancelled(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)

	f.host.On("ListSessions", mock.Anything).Return([]models.Session{}, nil)
	f.host.On("StartSession", mock.Anything, "u1", false, mock.AnythingOfType("uint16")).
		Return(&hostapi.StartResponse{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		_, err := f.manager.Start(ctx, testSession)
		done <- err
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	require.NoError(t, f.clock.BlockUntilContext(waitCtx, 1))
	cancel()

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, sessions.IsPortTimeout(err))
}

func TestManager_Stop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newManagerFixture(t)
	require.NoError(t, f.registry.SetPort(ctx, "s1", 41000))

	f.host.On("StopSession", mock.Anything, "u1").Return(nil)

	require.NoError(t, f.manager.Stop(ctx, testSession))

	_, ok := f.registry.Port("s1")
	assert.False(t, ok)

	status, _ := f.registry.Status("s1")
	assert.Equal(t, models.SessionStatusStopped, status)
}

func TestManager_StopClearsPortOnHostFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newManagerFixture(t)
	require.NoError(t, f.registry.SetPort(ctx, "s1", 41000))

	f.host.On("StopSession", mock.Anything, "u1").Return(hostapi.ErrHostTimeout)

	err := f.manager.Stop(ctx, testSession)
	require.Error(t, err)
	assert.True(t, hostapi.IsTimeout(err))

	_, ok := f.registry.Port("s1")
	assert.False(t, ok)
}

func TestManager_StopResolvesHostUUID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newManagerFixture(t)

	f.host.On("ListSessions", mock.Anything).Return([]models.Session{
		{ID: "s1", UUID: "u1", Status: models.SessionStatusRunning},
	}, nil)
	f.host.On("StopSession", mock.Anything, "u1").Return(nil)

	require.NoError(t, f.manager.Stop(ctx, models.Session{ID: "s1"}))

	status, _ := f.registry.Status("s1")
	assert.Equal(t, models.SessionStatusStopped, status)
}

func TestManager_StopUnknownSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newManagerFixture(t)
	require.NoError(t, f.registry.SetPort(ctx, "s1", 41000))

	f.host.On("ListSessions", mock.Anything).Return([]models.Session{}, nil)

	err := f.manager.Stop(ctx, models.Session{ID: "s1"})
	require.Error(t, err)
	assert.True(t, sessions.IsSessionNotFound(err))

	_, ok := f.registry.Port("s1")
	assert.False(t, ok)

	f.host.AssertNotCalled(t, "StopSession", mock.Anything, mock.Anything)
}

func TestManager_StopUsesUUIDOfLastStart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newManagerFixture(t)

	f.host.On("ListSessions", mock.Anything).Return([]models.Session{{ID: "s1", UUID: "u1"}}, nil).Once()
	f.host.On("StartSession", mock.Anything, "override", false, mock.AnythingOfType("uint16")).
		Return(&hostapi.StartResponse{}, nil)
	f.host.On("StopSession", mock.Anything, "override").Return(nil)
	f.prober.On("Probe", mock.Anything, mock.AnythingOfType("uint16")).Return(nil)

	outcome := f.start(t, models.Session{ID: "s1", UUID: "override"}, 1)
	require.NoError(t, outcome.err)

	require.NoError(t, f.manager.Stop(ctx, models.Session{ID: "s1"}))

	f.host.AssertNotCalled(t, "StopSession", mock.Anything, "u1")
	f.host.AssertExpectations(t)
}
