package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/browserflow/pkg/mocks"
	"github.com/dukex/browserflow/pkg/models"
	"github.com/dukex/browserflow/pkg/orchestrator"
	"github.com/dukex/browserflow/pkg/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu       sync.Mutex
	executed []string
	failures map[string]error
}

func (e *fakeExecutor) Execute(_ context.Context, taskID string) (*orchestrator.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.executed = append(e.executed, taskID)

	if err := e.failures[taskID]; err != nil {
		return nil, err
	}

	return &orchestrator.Report{TaskID: taskID, Status: models.TaskStatusDone}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTick_ExecutesDueTasksOnly(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	store := &mocks.MockPersistence{}
	store.On("TasksByStatus", mock.Anything, models.TaskStatusPending).Return([]*models.Task{
		{ID: "immediate", Status: models.TaskStatusPending, RunImmediately: true},
		{ID: "later", Status: models.TaskStatusPending, StartTime: &future},
		{ID: "past", Status: models.TaskStatusPending, StartTime: &past},
		{ID: "exact", Status: models.TaskStatusPending, StartTime: &now},
		{ID: "unscheduled", Status: models.TaskStatusPending},
	}, nil)

	executor := &fakeExecutor{}
	s := scheduler.New(store, executor, testLogger(), scheduler.WithClock(clockwork.NewFakeClockAt(now)))

	executed, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, executed)
	assert.Equal(t, []string{"immediate", "past", "exact"}, executor.executed)
}

func TestTick_FailuresDoNotStopTheScan(t *testing.T) {
	t.Parallel()

	store := &mocks.MockPersistence{}
	store.On("TasksByStatus", mock.Anything, models.TaskStatusPending).Return([]*models.Task{
		{ID: "a", Status: models.TaskStatusPending, RunImmediately: true},
		{ID: "b", Status: models.TaskStatusPending, RunImmediately: true},
		{ID: "c", Status: models.TaskStatusPending, RunImmediately: true},
	}, nil)

	executor := &fakeExecutor{failures: map[string]error{
		"a": orchestrator.ErrNoSessionsConfigured,
		"b": errors.New("runner down"),
	}}

	executed, err := scheduler.New(store, executor, testLogger()).Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, executed)
	assert.Equal(t, []string{"a", "b", "c"}, executor.executed)
}

func TestTick_ListError(t *testing.T) {
	t.Parallel()

	store := &mocks.MockPersistence{}
	store.On("TasksByStatus", mock.Anything, models.TaskStatusPending).Return(nil, errors.New("db down"))

	_, err := scheduler.New(store, &fakeExecutor{}, testLogger()).Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestStart_RejectsSubSecondInterval(t *testing.T) {
	t.Parallel()

	s := scheduler.New(&mocks.MockPersistence{}, &fakeExecutor{}, testLogger(), scheduler.WithInterval(100*time.Millisecond))

	err := s.Start(context.Background())
	require.ErrorIs(t, err, scheduler.ErrInvalidInterval)
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	s := scheduler.New(&mocks.MockPersistence{}, &fakeExecutor{}, testLogger(), scheduler.WithInterval(time.Hour))

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}
