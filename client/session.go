// Package client exposes one local trainer to the coordinator.
package client

import (
	"context"
	"fmt"
	"sync"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/trainer"
)

type Trainer interface {
	Parameters() fl.ParameterSet
	Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (trainer.FitResult, error)
	Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (trainer.EvaluateResult, error)
}

// Service answers the coordinator's per-round calls.
type Service interface {
	ID() string
	GetParameters(ctx context.Context) (fl.ParameterSet, error)
	Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error)
	Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error)
}

var _ Service = (*session)(nil)

type session struct {
	id      string
	trainer Trainer

	mu   sync.Mutex
	last map[fl.Phase]fl.ClientReport
	runs map[fl.Phase]string
}

func NewSession(id string, t Trainer) Service {
	return &session{
		id:      id,
		trainer: t,
		last:    make(map[fl.Phase]fl.ClientReport),
		runs:    make(map[fl.Phase]string),
	}
}

func (s *session) ID() string {
	return s.id
}

func (s *session) GetParameters(ctx context.Context) (fl.ParameterSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.trainer.Parameters(), nil
}

func (s *session) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	if err := checkPhase(cfg, fl.PhaseFit); err != nil {
		return fl.ClientReport{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.cached(cfg); ok {
		return r, nil
	}
	res, err := s.trainer.Fit(ctx, params, cfg)
	if err != nil {
		return fl.ClientReport{}, err
	}

	report := fl.ClientReport{
		ClientID:   s.id,
		RoundIndex: cfg.RoundIndex,
		Phase:      fl.PhaseFit,
		NumSamples: res.NumSamples,
		Parameters: res.Parameters,
		Metrics:    res.Metrics,
	}
	s.last[fl.PhaseFit] = report
	s.runs[fl.PhaseFit] = cfg.RunID

	return report, nil
}

func (s *session) Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	if err := checkPhase(cfg, fl.PhaseEvaluate); err != nil {
		return fl.ClientReport{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.cached(cfg); ok {
		return r, nil
	}
	res, err := s.trainer.Evaluate(ctx, params, cfg)
	if err != nil {
		return fl.ClientReport{}, err
	}

	report := fl.ClientReport{
		ClientID:   s.id,
		RoundIndex: cfg.RoundIndex,
		Phase:      fl.PhaseEvaluate,
		NumSamples: res.NumSamples,
		Loss:       res.Loss,
		Metrics:    res.Metrics,
	}
	s.last[fl.PhaseEvaluate] = report
	s.runs[fl.PhaseEvaluate] = cfg.RunID

	return report, nil
}

// cached returns the report already produced for a repeated round delivery.
func (s *session) cached(cfg fl.RoundConfig) (fl.ClientReport, bool) {
	r, ok := s.last[cfg.Phase]
	if !ok || r.RoundIndex != cfg.RoundIndex || s.runs[cfg.Phase] != cfg.RunID {
		return fl.ClientReport{}, false
	}
	r.Parameters = r.Parameters.Clone()
	r.Metrics = r.Metrics.Clone()

	return r, true
}

func checkPhase(cfg fl.RoundConfig, want fl.Phase) error {
	if cfg.Phase != want {
		return fmt.Errorf("%w: %s config sent to %s", pkgerrors.ErrInvalidConfig, cfg.Phase, want)
	}

	return cfg.Validate()
}
