// Package simulation trains a federation of in-process clients on one
// partitioned dataset.
package simulation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/absmach/fedlearn"
	"github.com/absmach/fedlearn/client"
	"github.com/absmach/fedlearn/coordinator"
	"github.com/absmach/fedlearn/pkg/dataset"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/trainer"
	"github.com/google/uuid"
)

type Result struct {
	RunID      string                           `json:"run_id"`
	History    fl.RunHistory                    `json:"history"`
	Parameters fl.ParameterSet                  `json:"-"`
	Budgets    map[string]trainer.PrivacyBudget `json:"privacy_budgets,omitempty"`
}

// Run loads the configured dataset, gives every partition its own trainer and
// runs the coordinator over them. On cancellation the rounds finished so far
// are returned with the context error.
func Run(ctx context.Context, cfg fedlearn.Config, logger *slog.Logger, opts ...coordinator.Option) (Result, error) {
	rc, err := cfg.RunConfig()
	if err != nil {
		return Result{}, err
	}

	parts, err := dataset.Load(ctx, cfg.DatasetConfig())
	if err != nil {
		return Result{}, err
	}
	features := 0
	for _, p := range parts {
		if f := p.Train.Features(); f > 0 {
			features = f

			break
		}
	}
	if features == 0 {
		return Result{}, fmt.Errorf("%w: dataset has no training rows", pkgerrors.ErrInvalidConfig)
	}

	registry := coordinator.NewRegistry()
	trainers := make(map[string]*trainer.LocalTrainer, len(parts))
	for i, p := range parts {
		id := fmt.Sprintf("client-%d", i)
		tc := cfg.TrainerConfig()
		tc.Seed += uint64(i)
		model := trainer.NewMLP(features, cfg.Client.Hidden, cfg.Client.Seed)
		t := trainer.New(model, p, tc, logger.With(slog.String("client_id", id)))
		trainers[id] = t

		if err := registry.Add(coordinator.ClientInfo{ID: id, Name: id}, client.NewSession(id, t)); err != nil {
			return Result{}, err
		}
	}

	runID := rc.Name
	if runID == "" {
		runID = uuid.NewString()
	}
	c := coordinator.New(registry, fl.NewFedAvgAggregator(), coordinator.NewConfig(runID, rc), logger, opts...)

	logger.Info("Starting simulation",
		slog.String("run_id", runID),
		slog.Int("clients", len(parts)),
		slog.Int("rounds", rc.NumRounds),
		slog.Bool("dp", cfg.Privacy.Enabled),
	)
	history, err := c.RunTraining(ctx, rc.NumRounds, rc.MinClients)

	res := Result{
		RunID:      runID,
		History:    history,
		Parameters: c.GlobalParameters(),
		Budgets:    make(map[string]trainer.PrivacyBudget),
	}
	for id, t := range trainers {
		if b, ok := t.Budget(); ok {
			res.Budgets[id] = b
		}
	}

	return res, err
}
