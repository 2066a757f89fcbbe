package mocks

import (
	"context"

	"github.com/dukex/browserflow/pkg/hostapi"
	"github.com/dukex/browserflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockHostClient is a mock implementation of sessions.HostClient.
type MockHostClient struct {
	mock.Mock
}

func (m *MockHostClient) ListSessions(ctx context.Context) ([]models.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Session), args.Error(1)
}

func (m *MockHostClient) StartSession(ctx context.Context, uuid string, headless bool, debugPort uint16) (*hostapi.StartResponse, error) {
	args := m.Called(ctx, uuid, headless, debugPort)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*hostapi.StartResponse), args.Error(1)
}

func (m *MockHostClient) StopSession(ctx context.Context, uuid string) error {
	args := m.Called(ctx, uuid)

	return args.Error(0)
}

// MockProber is a mock implementation of sessions.Prober.
type MockProber struct {
	mock.Mock
}

func (m *MockProber) Probe(ctx context.Context, port uint16) error {
	args := m.Called(ctx, port)

	return args.Error(0)
}
