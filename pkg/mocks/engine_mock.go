package mocks

import (
	"context"

	"github.com/dukex/browserflow/pkg/devtools"
	"github.com/dukex/browserflow/pkg/models"
	"github.com/dukex/browserflow/pkg/orchestrator"
	"github.com/dukex/browserflow/pkg/sessions"
	"github.com/stretchr/testify/mock"
)

// MockSessionManager is a mock implementation of orchestrator.SessionManager.
type MockSessionManager struct {
	mock.Mock
}

func (m *MockSessionManager) Start(ctx context.Context, session models.Session) (sessions.StartResult, error) {
	args := m.Called(ctx, session)

	return args.Get(0).(sessions.StartResult), args.Error(1)
}

func (m *MockSessionManager) Stop(ctx context.Context, session models.Session) error {
	args := m.Called(ctx, session)

	return args.Error(0)
}

// MockEndpointResolver is a mock implementation of orchestrator.EndpointResolver.
type MockEndpointResolver struct {
	mock.Mock
}

func (m *MockEndpointResolver) Resolve(ctx context.Context, port uint16, sessionID string) (*devtools.Endpoint, error) {
	args := m.Called(ctx, port, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*devtools.Endpoint), args.Error(1)
}

// MockVerifier is a mock implementation of devtools.Verifier.
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, wsEndpoint string) error {
	args := m.Called(ctx, wsEndpoint)

	return args.Error(0)
}

// MockDispatcher is a mock implementation of orchestrator.Dispatcher.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, server *models.Server, payload *models.ExecutionPayload) ([]byte, error) {
	args := m.Called(ctx, server, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]byte), args.Error(1)
}

// MockSessionLister is a mock implementation of web.SessionLister.
type MockSessionLister struct {
	mock.Mock
}

func (m *MockSessionLister) Poll(ctx context.Context) ([]models.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Session), args.Error(1)
}

// MockTaskRunner is a mock implementation of web.TaskRunner.
type MockTaskRunner struct {
	mock.Mock
}

func (m *MockTaskRunner) Execute(ctx context.Context, taskID string) (*orchestrator.Report, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*orchestrator.Report), args.Error(1)
}

func (m *MockTaskRunner) Stop(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)

	return args.Error(0)
}
