package coordinator_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/absmach/fedlearn/client"
	"github.com/absmach/fedlearn/coordinator"
	"github.com/absmach/fedlearn/pkg/dataset"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/trainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSession adds a constant to every parameter on Fit and reports fixed
// evaluation results.
type fakeSession struct {
	id      string
	samples int
	delta   float64
	loss    float64
	delay   time.Duration
	fitErr  error
	evalErr error

	mu       sync.Mutex
	received []fl.ParameterSet
	configs  []fl.RoundConfig
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) GetParameters(context.Context) (fl.ParameterSet, error) {
	return fl.ParameterSet{{Shape: []int{2}, Data: []float64{0, 0}}}, nil
}

func (f *fakeSession) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	f.record(params, cfg)
	if err := f.wait(ctx); err != nil {
		return fl.ClientReport{}, err
	}
	if f.fitErr != nil {
		return fl.ClientReport{}, f.fitErr
	}
	out := params.Clone()
	for i := range out[0].Data {
		out[0].Data[i] += f.delta
	}

	return fl.ClientReport{
		ClientID:   f.id,
		RoundIndex: cfg.RoundIndex,
		Phase:      fl.PhaseFit,
		NumSamples: f.samples,
		Parameters: out,
		Metrics:    fl.Metrics{"accuracy": 0.5},
	}, nil
}

func (f *fakeSession) Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	f.record(params, cfg)
	if err := f.wait(ctx); err != nil {
		return fl.ClientReport{}, err
	}
	if f.evalErr != nil {
		return fl.ClientReport{}, f.evalErr
	}

	return fl.ClientReport{
		ClientID:   f.id,
		RoundIndex: cfg.RoundIndex,
		Phase:      fl.PhaseEvaluate,
		NumSamples: f.samples,
		Loss:       f.loss,
		Metrics:    fl.Metrics{"accuracy": 1 - f.loss},
	}, nil
}

func (f *fakeSession) record(p fl.ParameterSet, cfg fl.RoundConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, p.Clone())
	f.configs = append(f.configs, cfg)
}

func (f *fakeSession) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.delay):
		return nil
	}
}

func (f *fakeSession) calls() []fl.RoundConfig {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]fl.RoundConfig(nil), f.configs...)
}

type recordingSink struct {
	mu     sync.Mutex
	rounds []int
	params []fl.ParameterSet
}

func (s *recordingSink) RecordRound(_ context.Context, _ string, summary fl.RoundSummary, params fl.ParameterSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = append(s.rounds, summary.RoundIndex)
	s.params = append(s.params, params)

	return nil
}

func newRegistry(t *testing.T, sessions ...coordinator.ClientSession) *coordinator.Registry {
	t.Helper()

	reg := coordinator.NewRegistry()
	for _, s := range sessions {
		require.NoError(t, reg.Add(coordinator.ClientInfo{ID: s.ID()}, s))
	}

	return reg
}

func testConfig() coordinator.Config {
	return coordinator.Config{
		RunID:        "run-1",
		RoundTimeout: time.Second,
		WaitTimeout:  50 * time.Millisecond,
		Seed:         7,
	}
}

func TestRunTrainingRecordsEveryRound(t *testing.T) {
	a := &fakeSession{id: "a", samples: 10, delta: 1, loss: 0.2}
	b := &fakeSession{id: "b", samples: 30, delta: 3, loss: 0.4}
	sink := &recordingSink{}
	c := coordinator.New(newRegistry(t, a, b), fl.NewFedAvgAggregator(), testConfig(), logger, coordinator.WithSink(sink))

	history, err := c.RunTraining(context.Background(), 5, 2)
	require.NoError(t, err)
	require.Len(t, history, 5)

	for i, s := range history {
		assert.Equal(t, i+1, s.RoundIndex)
		assert.Equal(t, fl.RoundCompleted, s.Status)
		assert.Equal(t, 2, s.ParticipantCount)
		require.NotNil(t, s.Loss)
		assert.InDelta(t, 0.35, *s.Loss, 1e-12)
		assert.InDelta(t, 0.65, s.Metrics["accuracy"], 1e-12)
		assert.InDelta(t, 0.5, s.FitMetrics["accuracy"], 1e-12)
	}

	// (10*1 + 30*3) / 40 = 2.5 per round.
	assert.InDeltaSlice(t, []float64{12.5, 12.5}, c.GlobalParameters()[0].Data, 1e-9)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, sink.rounds)
	assert.InDeltaSlice(t, []float64{2.5, 2.5}, sink.params[0][0].Data, 1e-9)

	for _, cfg := range a.calls() {
		assert.Equal(t, "run-1", cfg.RunID)
	}
}

func TestEvaluateUsesAggregatedParameters(t *testing.T) {
	a := &fakeSession{id: "a", samples: 1, delta: 2}
	b := &fakeSession{id: "b", samples: 1, delta: 4}
	c := coordinator.New(newRegistry(t, a, b), fl.NewFedAvgAggregator(), testConfig(), logger)

	_, err := c.RunTraining(context.Background(), 1, 2)
	require.NoError(t, err)

	calls := a.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, fl.PhaseFit, calls[0].Phase)
	assert.Equal(t, fl.PhaseEvaluate, calls[1].Phase)
	assert.Equal(t, []float64{0, 0}, a.received[0][0].Data)
	assert.Equal(t, []float64{3, 3}, a.received[1][0].Data)
}

func TestRunTrainingQuorum(t *testing.T) {
	cases := []struct {
		desc     string
		sessions []coordinator.ClientSession
		min      int
		status   fl.RoundStatus
		params   []float64
		fitCount int
	}{
		{
			desc: "fit replies below quorum",
			sessions: []coordinator.ClientSession{
				&fakeSession{id: "a", samples: 5, delta: 1},
				&fakeSession{id: "b", samples: 5, delta: 1, fitErr: pkgerrors.ErrClientUnreachable},
			},
			min:      2,
			status:   fl.RoundSkipped,
			params:   []float64{0, 0},
			fitCount: 1,
		},
		{
			desc: "zero sample report is not counted",
			sessions: []coordinator.ClientSession{
				&fakeSession{id: "a", samples: 5, delta: 1},
				&fakeSession{id: "b", samples: 0, delta: 1},
			},
			min:      2,
			status:   fl.RoundSkipped,
			params:   []float64{0, 0},
			fitCount: 1,
		},
		{
			desc: "evaluate replies below quorum",
			sessions: []coordinator.ClientSession{
				&fakeSession{id: "a", samples: 5, delta: 1},
				&fakeSession{id: "b", samples: 5, delta: 1, evalErr: pkgerrors.ErrClientUnreachable},
			},
			min:      2,
			status:   fl.RoundPartial,
			params:   []float64{1, 1},
			fitCount: 2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			c := coordinator.New(newRegistry(t, tc.sessions...), fl.NewFedAvgAggregator(), testConfig(), logger,
				coordinator.WithInitialParameters(fl.ParameterSet{{Shape: []int{2}, Data: []float64{0, 0}}}))

			history, err := c.RunTraining(context.Background(), 1, tc.min)
			require.NoError(t, err)
			require.Len(t, history, 1)

			s := history[0]
			assert.Equal(t, tc.status, s.Status)
			assert.Equal(t, 0, s.ParticipantCount)
			assert.Nil(t, s.Loss)
			assert.Equal(t, tc.fitCount, s.FitParticipants)
			assert.Contains(t, s.Reason, pkgerrors.ErrQuorumNotMet.Error())
			assert.NotEmpty(t, s.Failures)
			assert.Equal(t, tc.params, c.GlobalParameters()[0].Data)
		})
	}
}

func TestRoundSkippedWhenClientsDropBelowMinimum(t *testing.T) {
	a := &fakeSession{id: "a", samples: 5, delta: 1}
	b := &fakeSession{id: "b", samples: 5, delta: 1}
	c3 := &fakeSession{id: "c", samples: 5, delta: 1, fitErr: pkgerrors.ErrEmptyPartition}
	reg := newRegistry(t, a, b, c3)
	c := coordinator.New(reg, fl.NewFedAvgAggregator(), testConfig(), logger)

	history, err := c.RunTraining(context.Background(), 2, 3)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, fl.RoundSkipped, history[0].Status)
	assert.Equal(t, 2, history[0].FitParticipants)
	assert.Equal(t, fl.RoundSkipped, history[1].Status)
	assert.Equal(t, 0, history[1].FitParticipants)
	assert.Equal(t, []float64{0, 0}, c.GlobalParameters()[0].Data)

	info, err := reg.Get("c")
	require.NoError(t, err)
	assert.True(t, info.Excluded)
	assert.Len(t, c3.calls(), 1)
}

func TestEmptyPartitionExcludesClient(t *testing.T) {
	a := &fakeSession{id: "a", samples: 5, delta: 1}
	b := &fakeSession{id: "b", samples: 5, delta: 1}
	empty := &fakeSession{id: "empty", samples: 5, fitErr: pkgerrors.ErrEmptyPartition}
	reg := newRegistry(t, a, b, empty)
	c := coordinator.New(reg, fl.NewFedAvgAggregator(), testConfig(), logger)

	history, err := c.RunTraining(context.Background(), 3, 2)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Len(t, empty.calls(), 1)
	require.Len(t, history[0].Failures, 1)
	assert.Equal(t, "empty", history[0].Failures[0].ClientID)
	assert.Empty(t, history[1].Failures)
	for _, s := range history {
		assert.Equal(t, fl.RoundCompleted, s.Status)
	}
	assert.Len(t, reg.Eligible(), 2)
}

func TestRunTrainingInsufficientClients(t *testing.T) {
	c := coordinator.New(coordinator.NewRegistry(), fl.NewFedAvgAggregator(), testConfig(), logger)

	history, err := c.RunTraining(context.Background(), 3, 1)
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientClients)
	assert.Empty(t, history)
}

func TestRunTrainingWaitsForLateClient(t *testing.T) {
	reg := newRegistry(t, &fakeSession{id: "a", samples: 5, delta: 1})
	cfg := testConfig()
	cfg.WaitTimeout = 2 * time.Second
	c := coordinator.New(reg, fl.NewFedAvgAggregator(), cfg, logger)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = reg.Add(coordinator.ClientInfo{ID: "b"}, &fakeSession{id: "b", samples: 5, delta: 1})
	}()

	history, err := c.RunTraining(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, fl.RoundCompleted, history[0].Status)
}

func TestSlowClientIsDiscarded(t *testing.T) {
	a := &fakeSession{id: "a", samples: 5, delta: 1}
	b := &fakeSession{id: "b", samples: 5, delta: 1}
	slow := &fakeSession{id: "slow", samples: 1000, delta: 100, delay: time.Second}
	cfg := testConfig()
	cfg.RoundTimeout = 50 * time.Millisecond
	c := coordinator.New(newRegistry(t, a, b, slow), fl.NewFedAvgAggregator(), cfg, logger)

	history, err := c.RunTraining(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, history, 1)

	s := history[0]
	assert.Equal(t, fl.RoundCompleted, s.Status)
	assert.Equal(t, 2, s.FitParticipants)
	assert.Equal(t, []float64{1, 1}, c.GlobalParameters()[0].Data)
	require.NotEmpty(t, s.Failures)
	assert.Equal(t, "slow", s.Failures[0].ClientID)
	assert.Contains(t, s.Failures[0].Error, pkgerrors.ErrClientUnreachable.Error())
}

func TestExpiredClientIsUnreachable(t *testing.T) {
	a := &fakeSession{id: "a", samples: 5, delta: 1}
	b := &fakeSession{id: "b", samples: 5, delta: 1}
	expired := &fakeSession{id: "expired", samples: 5, delta: 1, fitErr: context.DeadlineExceeded}
	c := coordinator.New(newRegistry(t, a, b, expired), fl.NewFedAvgAggregator(), testConfig(), logger)

	history, err := c.RunTraining(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, history, 1)

	s := history[0]
	assert.Equal(t, fl.RoundCompleted, s.Status)
	assert.Equal(t, 2, s.FitParticipants)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "expired", s.Failures[0].ClientID)
	assert.Equal(t, fl.PhaseFit, s.Failures[0].Phase)
	assert.Contains(t, s.Failures[0].Error, pkgerrors.ErrClientUnreachable.Error())
	assert.Contains(t, s.Failures[0].Error, context.DeadlineExceeded.Error())
}

func TestRejectedReports(t *testing.T) {
	cases := []struct {
		desc    string
		session coordinator.ClientSession
	}{
		{desc: "stale round index", session: &staleSession{fakeSession{id: "bad", samples: 5}}},
		{desc: "wrong parameter shape", session: &reshapeSession{fakeSession{id: "bad", samples: 5}}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			a := &fakeSession{id: "a", samples: 5, delta: 1}
			b := &fakeSession{id: "b", samples: 5, delta: 1}
			c := coordinator.New(newRegistry(t, a, b, tc.session), fl.NewFedAvgAggregator(), testConfig(), logger)

			history, err := c.RunTraining(context.Background(), 1, 2)
			require.NoError(t, err)
			assert.Equal(t, 2, history[0].FitParticipants)
			assert.Equal(t, []float64{1, 1}, c.GlobalParameters()[0].Data)
			require.NotEmpty(t, history[0].Failures)
			assert.Equal(t, "bad", history[0].Failures[0].ClientID)
		})
	}
}

type staleSession struct{ fakeSession }

func (s *staleSession) Fit(ctx context.Context, p fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	r, err := s.fakeSession.Fit(ctx, p, cfg)
	r.RoundIndex--

	return r, err
}

type reshapeSession struct{ fakeSession }

func (s *reshapeSession) Fit(ctx context.Context, p fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	r, err := s.fakeSession.Fit(ctx, p, cfg)
	r.Parameters = fl.ParameterSet{fl.NewTensor(3)}

	return r, err
}

func TestCancellationStopsRun(t *testing.T) {
	a := &fakeSession{id: "a", samples: 5, delta: 1, delay: 30 * time.Millisecond}
	b := &fakeSession{id: "b", samples: 5, delta: 1, delay: 30 * time.Millisecond}
	cfg := testConfig()
	cfg.RoundTimeout = 5 * time.Second
	c := coordinator.New(newRegistry(t, a, b), fl.NewFedAvgAggregator(), cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	history, err := c.RunTraining(ctx, 100, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, len(history), 100)
	for i, s := range history {
		assert.Equal(t, i+1, s.RoundIndex)
		assert.Equal(t, fl.RoundCompleted, s.Status)
	}
}

func TestRunTrainingInvalidArguments(t *testing.T) {
	reg := newRegistry(t, &fakeSession{id: "a", samples: 1})

	cases := []struct {
		desc   string
		rounds int
		min    int
		cfg    coordinator.Config
		err    error
	}{
		{desc: "no rounds", rounds: 0, min: 1, cfg: testConfig(), err: pkgerrors.ErrInvalidConfig},
		{desc: "no minimum", rounds: 1, min: 0, cfg: testConfig(), err: pkgerrors.ErrInvalidConfig},
		{desc: "fraction above one", rounds: 1, min: 1, cfg: coordinator.Config{FractionFit: 1.5}, err: pkgerrors.ErrInvalidConfig},
		{desc: "unknown hyperparameter", rounds: 1, min: 1, cfg: coordinator.Config{Hyperparams: map[string]float64{"momentum": 0.9}}, err: pkgerrors.ErrUnknownConfigKey},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			c := coordinator.New(reg, fl.NewFedAvgAggregator(), tc.cfg, logger)
			_, err := c.RunTraining(context.Background(), tc.rounds, tc.min)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestFractionSelectsSubset(t *testing.T) {
	sessions := make([]coordinator.ClientSession, 0, 6)
	fakes := make([]*fakeSession, 0, 6)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		f := &fakeSession{id: id, samples: 5, delta: 1}
		fakes = append(fakes, f)
		sessions = append(sessions, f)
	}
	cfg := testConfig()
	cfg.FractionFit = 0.5
	c := coordinator.New(newRegistry(t, sessions...), fl.NewFedAvgAggregator(), cfg, logger)

	history, err := c.RunTraining(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, history[0].FitParticipants)
	assert.Equal(t, 6, history[0].ParticipantCount)

	fits := 0
	for _, f := range fakes {
		for _, cfg := range f.calls() {
			if cfg.Phase == fl.PhaseFit {
				fits++
			}
		}
	}
	assert.Equal(t, 3, fits)
}

func TestTrainingWithLocalTrainers(t *testing.T) {
	data := dataset.Synthetic(240, 5, 11)
	parts := dataset.ArraySplit(data, 3)
	reg := coordinator.NewRegistry()
	for i, part := range parts {
		cfg := trainer.DefaultConfig()
		cfg.LocalEpochs = 2
		cfg.BatchSize = 16
		cfg.LearningRate = 0.01
		cfg.Seed = uint64(i + 1)
		cfg.Privacy.Enabled = false
		model := trainer.NewMLP(5, []int{8}, 3)
		tr := trainer.New(model, dataset.TrainTestSplit(part, 0.2, uint64(i)), cfg, logger)
		s := client.NewSession(string(rune('a'+i)), tr)
		require.NoError(t, reg.Add(coordinator.ClientInfo{ID: s.ID()}, s))
	}

	c := coordinator.New(reg, fl.NewFedAvgAggregator(), testConfig(), logger)
	history, err := c.RunTraining(context.Background(), 5, 2)
	require.NoError(t, err)
	require.Len(t, history, 5)

	first, last := history[0], history[4]
	require.NotNil(t, first.Loss)
	require.NotNil(t, last.Loss)
	assert.Less(t, *last.Loss, *first.Loss)
	assert.Equal(t, 3, last.ParticipantCount)
	assert.Contains(t, last.Metrics, trainer.MetricAccuracy)
	assert.Equal(t, 0.0, last.FitMetrics[trainer.MetricDPEnabled])
}

func fitRounds(f *fakeSession) []int {
	var rounds []int
	for _, cfg := range f.calls() {
		if cfg.Phase == fl.PhaseFit {
			rounds = append(rounds, cfg.RoundIndex)
		}
	}

	return rounds
}

func TestRoundRobinSelection(t *testing.T) {
	sessions := []*fakeSession{
		{id: "a", samples: 5, delta: 1},
		{id: "b", samples: 5, delta: 1},
		{id: "c", samples: 5, delta: 1},
		{id: "d", samples: 5, delta: 1},
	}
	reg := coordinator.NewRegistry()
	for _, s := range sessions {
		require.NoError(t, reg.Add(coordinator.ClientInfo{ID: s.id}, s))
	}
	cfg := testConfig()
	cfg.FractionFit = 0.5
	cfg.Selection = "round_robin"
	c := coordinator.New(reg, fl.NewFedAvgAggregator(), cfg, logger)

	history, err := c.RunTraining(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, []int{1}, fitRounds(sessions[0]))
	assert.Equal(t, []int{1}, fitRounds(sessions[1]))
	assert.Equal(t, []int{2}, fitRounds(sessions[2]))
	assert.Equal(t, []int{2}, fitRounds(sessions[3]))
}

func TestUnknownSelectionStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.Selection = "priority"
	c := coordinator.New(newRegistry(t, &fakeSession{id: "a", samples: 5, delta: 1}), fl.NewFedAvgAggregator(), cfg, logger)

	_, err := c.RunTraining(context.Background(), 1, 1)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
}
