package mocks

import (
	"context"

	"github.com/absmach/fedlearn/coordinator"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/stretchr/testify/mock"
)

var _ coordinator.ClientSession = (*MockSession)(nil)

// MockSession is a mock implementation of the coordinator.ClientSession interface
type MockSession struct {
	mock.Mock
}

func (m *MockSession) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSession) GetParameters(ctx context.Context) (fl.ParameterSet, error) {
	args := m.Called(ctx)
	return args.Get(0).(fl.ParameterSet), args.Error(1)
}

func (m *MockSession) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	args := m.Called(ctx, params, cfg)
	return args.Get(0).(fl.ClientReport), args.Error(1)
}

func (m *MockSession) Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	args := m.Called(ctx, params, cfg)
	return args.Get(0).(fl.ClientReport), args.Error(1)
}
