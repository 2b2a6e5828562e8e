package coordinator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/absmach/fedlearn/coordinator"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/pkg/mqtt"
	"github.com/absmach/fedlearn/pkg/mqtt/mocks"
	"github.com/absmach/fedlearn/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errUnreachable = errors.New("dial tcp: connection refused")

// sessionFactory builds fake sessions keyed by address. The "down" address
// fails to connect.
type sessionFactory struct {
	delay time.Duration

	mu       sync.Mutex
	sessions map[string]*fakeSession
}

func (f *sessionFactory) build(info coordinator.ClientInfo) (coordinator.ClientSession, error) {
	if info.Address == "down" {
		return nil, errUnreachable
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions == nil {
		f.sessions = make(map[string]*fakeSession)
	}
	s := &fakeSession{id: info.ID, samples: 10, delta: 1, loss: 0.3, delay: f.delay}
	f.sessions[info.Address] = s

	return s, nil
}

func runConfig(rounds, minClients int) fl.RunConfig {
	cfg := fl.DefaultRunConfig()
	cfg.Name = "test"
	cfg.NumRounds = rounds
	cfg.MinClients = minClients
	cfg.RoundTimeout = fl.Duration(time.Second)
	cfg.WaitTimeout = fl.Duration(50 * time.Millisecond)
	cfg.Seed = 7

	return cfg
}

type serviceFixture struct {
	svc      coordinator.Service
	factory  *sessionFactory
	exporter *fl.Exporter
}

func newService(t *testing.T, publisher mqtt.PubSub, delay time.Duration, addresses ...string) serviceFixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	exporter, err := fl.NewExporter(t.TempDir())
	require.NoError(t, err)

	factory := &sessionFactory{delay: delay}
	svc := coordinator.NewService(ctx, coordinator.NewRegistry(), storage.NewMemoryRepositories(), factory.build, publisher, exporter, logger)
	for _, addr := range addresses {
		_, err := svc.RegisterClient(ctx, coordinator.ClientInfo{Address: addr})
		require.NoError(t, err)
	}

	return serviceFixture{svc: svc, factory: factory, exporter: exporter}
}

func waitForStatus(t *testing.T, svc coordinator.Service, runID string, status fl.RunStatus) fl.Run {
	t.Helper()

	var run fl.Run
	assert.Eventually(t, func() bool {
		var err error
		run, err = svc.GetRun(context.Background(), runID)
		return err == nil && run.Status == status
	}, 5*time.Second, 10*time.Millisecond)

	return run
}

func TestServiceRegisterClient(t *testing.T) {
	ctx := context.Background()
	f := newService(t, nil, 0)

	cases := []struct {
		desc string
		info coordinator.ClientInfo
		err  error
	}{
		{
			desc: "register with generated identity",
			info: coordinator.ClientInfo{Address: "http://a:9100"},
		},
		{
			desc: "register with explicit identity",
			info: coordinator.ClientInfo{ID: "b", Name: "bravo", Address: "http://b:9100"},
		},
		{
			desc: "register duplicate id",
			info: coordinator.ClientInfo{ID: "b", Address: "http://b2:9100"},
			err:  pkgerrors.ErrEntityExists,
		},
		{
			desc: "register unreachable client",
			info: coordinator.ClientInfo{ID: "c", Address: "down"},
			err:  errUnreachable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			info, err := f.svc.RegisterClient(ctx, tc.info)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, info.ID)
			assert.NotEmpty(t, info.Name)
			assert.False(t, info.RegisteredAt.IsZero())
			if tc.info.ID != "" {
				assert.Equal(t, tc.info.ID, info.ID)
				assert.Equal(t, tc.info.Name, info.Name)
			}
		})
	}

	clients, err := f.svc.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 2)

	require.NoError(t, f.svc.RemoveClient(ctx, "b"))
	assert.ErrorIs(t, f.svc.RemoveClient(ctx, "b"), pkgerrors.ErrNotFound)

	clients, err = f.svc.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}

func TestServiceRunCompletes(t *testing.T) {
	ctx := context.Background()
	f := newService(t, nil, 0, "http://a:9100", "http://b:9100")

	run, err := f.svc.StartRun(ctx, runConfig(3, 2))
	require.NoError(t, err)
	assert.Equal(t, fl.RunPending, run.Status)
	assert.Equal(t, "test", run.Name)

	run = waitForStatus(t, f.svc, run.ID, fl.RunCompleted)
	assert.Equal(t, 3, run.RoundsCompleted)
	assert.Empty(t, run.Error)
	assert.False(t, run.StartedAt.IsZero())
	assert.False(t, run.FinishedAt.IsZero())

	// Waits for the background goroutine to release the run.
	stopped, err := f.svc.StopRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, fl.RunCompleted, stopped.Status)

	history, err := f.svc.GetHistory(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, s := range history {
		assert.Equal(t, i+1, s.RoundIndex)
		assert.Equal(t, fl.RoundCompleted, s.Status)
		require.NotNil(t, s.Loss)
		assert.InDelta(t, 0.3, *s.Loss, 1e-12)
	}

	cp, err := f.svc.GetGlobalParameters(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, cp.RoundIndex)
	assert.InDeltaSlice(t, []float64{3, 3}, cp.Parameters[0].Data, 1e-9)

	exported, err := f.exporter.LoadHistory(run.ID)
	require.NoError(t, err)
	assert.Len(t, exported, 3)
	model, err := f.exporter.LoadModel(run.ID)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3, 3}, model[0].Data, 1e-9)

	next, err := f.svc.StartRun(ctx, runConfig(1, 2))
	require.NoError(t, err)
	waitForStatus(t, f.svc, next.ID, fl.RunCompleted)

	page, err := f.svc.ListRuns(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), page.Total)
	require.Len(t, page.Runs, 2)
	assert.Equal(t, next.ID, page.Runs[0].ID)
}

func TestServiceSingleActiveRun(t *testing.T) {
	ctx := context.Background()
	f := newService(t, nil, 200*time.Millisecond, "http://a:9100", "http://b:9100")

	first, err := f.svc.StartRun(ctx, runConfig(50, 2))
	require.NoError(t, err)

	_, err = f.svc.StartRun(ctx, runConfig(1, 1))
	assert.ErrorIs(t, err, pkgerrors.ErrRunInProgress)

	waitForStatus(t, f.svc, first.ID, fl.RunRunning)

	stopped, err := f.svc.StopRun(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, fl.RunCancelled, stopped.Status)
	assert.Less(t, stopped.RoundsCompleted, 50)
	assert.Empty(t, stopped.Error)

	page, err := f.svc.ListRuns(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), page.Total)
}

func TestServiceRunFails(t *testing.T) {
	ctx := context.Background()
	f := newService(t, nil, 0)

	run, err := f.svc.StartRun(ctx, runConfig(2, 1))
	require.NoError(t, err)

	run = waitForStatus(t, f.svc, run.ID, fl.RunFailed)
	assert.Contains(t, run.Error, pkgerrors.ErrInsufficientClients.Error())
	assert.Zero(t, run.RoundsCompleted)

	_, err = f.svc.GetGlobalParameters(ctx, run.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestServiceInvalidRequests(t *testing.T) {
	ctx := context.Background()
	f := newService(t, nil, 0)

	bad := runConfig(0, 1)
	_, err := f.svc.StartRun(ctx, bad)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	_, err = f.svc.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	_, err = f.svc.GetHistory(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	_, err = f.svc.StopRun(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestServicePublishesProgress(t *testing.T) {
	ctx := context.Background()
	pub := new(mocks.MockPubSub)
	pub.On("Publish", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(nil)
	f := newService(t, pub, 0, "http://a:9100")

	run, err := f.svc.StartRun(ctx, runConfig(2, 1))
	require.NoError(t, err)
	waitForStatus(t, f.svc, run.ID, fl.RunCompleted)
	_, err = f.svc.StopRun(ctx, run.ID)
	require.NoError(t, err)

	var rounds, statuses []string
	for _, call := range pub.Calls {
		topic := call.Arguments.String(1)
		switch {
		case topic == mqtt.RoundsTopic(run.ID):
			rounds = append(rounds, topic)
		case topic == mqtt.StatusTopic(run.ID):
			statuses = append(statuses, string(call.Arguments.Get(2).(fl.Run).Status))
		default:
			t.Errorf("unexpected topic %s", topic)
		}
	}
	assert.Len(t, rounds, 2)
	assert.Equal(t, []string{string(fl.RunRunning), string(fl.RunCompleted)}, statuses)
}
