package mocks

import (
	"context"

	"github.com/absmach/fedlearn/coordinator"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/stretchr/testify/mock"
)

var _ coordinator.Service = (*MockService)(nil)

// MockService is a mock implementation of the coordinator.Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) RegisterClient(ctx context.Context, info coordinator.ClientInfo) (coordinator.ClientInfo, error) {
	args := m.Called(ctx, info)
	return args.Get(0).(coordinator.ClientInfo), args.Error(1)
}

func (m *MockService) ListClients(ctx context.Context) ([]coordinator.ClientInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).([]coordinator.ClientInfo), args.Error(1)
}

func (m *MockService) RemoveClient(ctx context.Context, clientID string) error {
	args := m.Called(ctx, clientID)
	return args.Error(0)
}

func (m *MockService) StartRun(ctx context.Context, cfg fl.RunConfig) (fl.Run, error) {
	args := m.Called(ctx, cfg)
	return args.Get(0).(fl.Run), args.Error(1)
}

func (m *MockService) GetRun(ctx context.Context, runID string) (fl.Run, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(fl.Run), args.Error(1)
}

func (m *MockService) ListRuns(ctx context.Context, offset, limit uint64) (fl.RunPage, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(fl.RunPage), args.Error(1)
}

func (m *MockService) StopRun(ctx context.Context, runID string) (fl.Run, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(fl.Run), args.Error(1)
}

func (m *MockService) GetHistory(ctx context.Context, runID string) (fl.RunHistory, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(fl.RunHistory), args.Error(1)
}

func (m *MockService) GetGlobalParameters(ctx context.Context, runID string) (fl.Checkpoint, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(fl.Checkpoint), args.Error(1)
}
