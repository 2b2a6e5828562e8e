package client_test

import (
	"context"
	"testing"

	"github.com/absmach/fedlearn/client"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/trainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrainer struct {
	params fl.ParameterSet
	fits   int
	evals  int
	err    error
}

func (f *fakeTrainer) Parameters() fl.ParameterSet {
	return f.params.Clone()
}

func (f *fakeTrainer) Fit(_ context.Context, params fl.ParameterSet, _ fl.RoundConfig) (trainer.FitResult, error) {
	f.fits++
	if f.err != nil {
		return trainer.FitResult{}, f.err
	}
	out := params.Clone()
	out[0].Data[0] += float64(f.fits)

	return trainer.FitResult{Parameters: out, NumSamples: 12, Metrics: fl.Metrics{"dp_enabled": 1}}, nil
}

func (f *fakeTrainer) Evaluate(_ context.Context, _ fl.ParameterSet, _ fl.RoundConfig) (trainer.EvaluateResult, error) {
	f.evals++
	if f.err != nil {
		return trainer.EvaluateResult{}, f.err
	}

	return trainer.EvaluateResult{Loss: 0.3, NumSamples: 4, Metrics: fl.Metrics{"accuracy": 0.75}}, nil
}

func newFake() *fakeTrainer {
	return &fakeTrainer{params: fl.ParameterSet{{Shape: []int{2}, Data: []float64{1, 2}}}}
}

func TestSessionFitAndEvaluate(t *testing.T) {
	ft := newFake()
	s := client.NewSession("client-1", ft)
	ctx := context.Background()

	p, err := s.GetParameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, ft.params, p)

	fit, err := s.Fit(ctx, p, fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseFit, RunID: "run"})
	require.NoError(t, err)
	assert.Equal(t, "client-1", fit.ClientID)
	assert.Equal(t, 1, fit.RoundIndex)
	assert.Equal(t, fl.PhaseFit, fit.Phase)
	assert.Equal(t, 12, fit.NumSamples)
	assert.Equal(t, 2.0, fit.Parameters[0].Data[0])

	ev, err := s.Evaluate(ctx, fit.Parameters, fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseEvaluate, RunID: "run"})
	require.NoError(t, err)
	assert.Equal(t, 0.3, ev.Loss)
	assert.Equal(t, 4, ev.NumSamples)
	assert.Equal(t, fl.Metrics{"accuracy": 0.75}, ev.Metrics)
}

func TestSessionDuplicateRoundIsIdempotent(t *testing.T) {
	ft := newFake()
	s := client.NewSession("client-1", ft)
	ctx := context.Background()
	p := ft.Parameters()

	cases := []struct {
		desc  string
		cfg   fl.RoundConfig
		fits  int
		value float64
	}{
		{desc: "first delivery trains", cfg: fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseFit, RunID: "a"}, fits: 1, value: 2},
		{desc: "repeated delivery is served from cache", cfg: fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseFit, RunID: "a"}, fits: 1, value: 2},
		{desc: "next round trains again", cfg: fl.RoundConfig{RoundIndex: 2, Phase: fl.PhaseFit, RunID: "a"}, fits: 2, value: 3},
		{desc: "same index in a new run trains again", cfg: fl.RoundConfig{RoundIndex: 2, Phase: fl.PhaseFit, RunID: "b"}, fits: 3, value: 4},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			r, err := s.Fit(ctx, p, tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.fits, ft.fits)
			assert.Equal(t, tc.value, r.Parameters[0].Data[0])
		})
	}
}

func TestSessionErrors(t *testing.T) {
	ctx := context.Background()
	p := newFake().Parameters()

	cases := []struct {
		desc    string
		trainer *fakeTrainer
		call    func(s client.Service) error
		err     error
	}{
		{
			desc:    "evaluate config sent to fit",
			trainer: newFake(),
			call: func(s client.Service) error {
				_, err := s.Fit(ctx, p, fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseEvaluate})
				return err
			},
			err: pkgerrors.ErrInvalidConfig,
		},
		{
			desc:    "unknown config key",
			trainer: newFake(),
			call: func(s client.Service) error {
				_, err := s.Fit(ctx, p, fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseFit, Hyperparams: map[string]float64{"momentum": 1}})
				return err
			},
			err: pkgerrors.ErrUnknownConfigKey,
		},
		{
			desc:    "trainer error passes through",
			trainer: &fakeTrainer{err: pkgerrors.ErrEmptyPartition},
			call: func(s client.Service) error {
				_, err := s.Evaluate(ctx, p, fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseEvaluate})
				return err
			},
			err: pkgerrors.ErrEmptyPartition,
		},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.call(client.NewSession("c", tc.trainer))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}
