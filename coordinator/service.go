package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0x6flab/namegenerator"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/pkg/mqtt"
	"github.com/absmach/fedlearn/pkg/storage"
	"github.com/google/uuid"
)

var namegen = namegenerator.NewGenerator()

// SessionFactory builds the session used to reach a registered client.
type SessionFactory func(info ClientInfo) (ClientSession, error)

type Service interface {
	// RegisterClient adds a client reachable at info.Address. Missing IDs
	// and names are generated.
	RegisterClient(ctx context.Context, info ClientInfo) (ClientInfo, error)
	ListClients(ctx context.Context) ([]ClientInfo, error)
	RemoveClient(ctx context.Context, clientID string) error

	// StartRun persists a run and trains it in the background. Only one run
	// may be active at a time.
	StartRun(ctx context.Context, cfg fl.RunConfig) (fl.Run, error)
	GetRun(ctx context.Context, runID string) (fl.Run, error)
	ListRuns(ctx context.Context, offset, limit uint64) (fl.RunPage, error)
	// StopRun cancels the active run and waits for it to finish.
	StopRun(ctx context.Context, runID string) (fl.Run, error)

	GetHistory(ctx context.Context, runID string) (fl.RunHistory, error)
	GetGlobalParameters(ctx context.Context, runID string) (fl.Checkpoint, error)
}

type activeRun struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

type service struct {
	ctx        context.Context
	registry   *Registry
	repos      *storage.Repositories
	aggregator fl.Aggregator
	factory    SessionFactory
	publisher  mqtt.PubSub
	exporter   *fl.Exporter
	logger     *slog.Logger

	mu     sync.Mutex
	active *activeRun
}

// NewService returns a coordinator service. Runs are bound to ctx and are
// cancelled with it. publisher and exporter may be nil.
func NewService(ctx context.Context, registry *Registry, repos *storage.Repositories, factory SessionFactory, publisher mqtt.PubSub, exporter *fl.Exporter, logger *slog.Logger) Service {
	return &service{
		ctx:        ctx,
		registry:   registry,
		repos:      repos,
		aggregator: fl.NewFedAvgAggregator(),
		factory:    factory,
		publisher:  publisher,
		exporter:   exporter,
		logger:     logger,
	}
}

func (svc *service) RegisterClient(_ context.Context, info ClientInfo) (ClientInfo, error) {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.Name == "" {
		info.Name = namegen.Generate()
	}
	info.Excluded = false
	info.Reason = ""
	info.RegisteredAt = time.Now()

	session, err := svc.factory(info)
	if err != nil {
		return ClientInfo{}, err
	}
	if err := svc.registry.Add(info, session); err != nil {
		return ClientInfo{}, err
	}

	return info, nil
}

func (svc *service) ListClients(_ context.Context) ([]ClientInfo, error) {
	return svc.registry.List(), nil
}

func (svc *service) RemoveClient(_ context.Context, clientID string) error {
	return svc.registry.Remove(clientID)
}

func (svc *service) StartRun(ctx context.Context, cfg fl.RunConfig) (fl.Run, error) {
	if err := cfg.Validate(); err != nil {
		return fl.Run{}, err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.active != nil {
		return fl.Run{}, fmt.Errorf("%w: %s", pkgerrors.ErrRunInProgress, svc.active.id)
	}

	run := fl.Run{
		ID:        uuid.NewString(),
		Name:      cfg.Name,
		Config:    cfg,
		Status:    fl.RunPending,
		CreatedAt: time.Now(),
	}
	if run.Name == "" {
		run.Name = namegen.Generate()
		run.Config.Name = run.Name
	}
	if err := svc.repos.Runs.Create(ctx, run); err != nil {
		return fl.Run{}, err
	}

	rctx, cancel := context.WithCancel(svc.ctx)
	svc.active = &activeRun{id: run.ID, cancel: cancel, done: make(chan struct{})}
	go svc.execute(rctx, run, svc.active)

	return run, nil
}

func (svc *service) GetRun(ctx context.Context, runID string) (fl.Run, error) {
	return svc.repos.Runs.Get(ctx, runID)
}

func (svc *service) ListRuns(ctx context.Context, offset, limit uint64) (fl.RunPage, error) {
	runs, total, err := svc.repos.Runs.List(ctx, offset, limit)
	if err != nil {
		return fl.RunPage{}, err
	}

	return fl.RunPage{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Runs:   runs,
	}, nil
}

func (svc *service) StopRun(ctx context.Context, runID string) (fl.Run, error) {
	svc.mu.Lock()
	active := svc.active
	svc.mu.Unlock()

	if active == nil || active.id != runID {
		return svc.repos.Runs.Get(ctx, runID)
	}

	active.cancel()
	select {
	case <-active.done:
	case <-ctx.Done():
		return fl.Run{}, ctx.Err()
	}

	return svc.repos.Runs.Get(ctx, runID)
}

func (svc *service) GetHistory(ctx context.Context, runID string) (fl.RunHistory, error) {
	if _, err := svc.repos.Runs.Get(ctx, runID); err != nil {
		return nil, err
	}

	return svc.repos.Rounds.List(ctx, runID)
}

func (svc *service) GetGlobalParameters(ctx context.Context, runID string) (fl.Checkpoint, error) {
	if _, err := svc.repos.Runs.Get(ctx, runID); err != nil {
		return fl.Checkpoint{}, err
	}

	return svc.repos.Checkpoints.Latest(ctx, runID)
}

func (svc *service) execute(ctx context.Context, run fl.Run, active *activeRun) {
	logger := svc.logger.With(slog.String("run_id", run.ID))
	// Final bookkeeping must survive cancellation of the run.
	bg := context.WithoutCancel(ctx)

	defer func() {
		svc.mu.Lock()
		svc.active = nil
		svc.mu.Unlock()
		active.cancel()
		close(active.done)
	}()

	run.Status = fl.RunRunning
	run.StartedAt = time.Now()
	if err := svc.repos.Runs.Update(bg, run); err != nil {
		logger.Error("failed to update run", slog.Any("error", err))
	}
	svc.publishStatus(bg, run)

	cfg := run.Config
	sink := &recorder{repos: svc.repos, publisher: svc.publisher, logger: logger}
	c := New(svc.registry, svc.aggregator, NewConfig(run.ID, cfg), logger, WithSink(sink))

	history, err := c.RunTraining(ctx, cfg.NumRounds, cfg.MinClients)

	run.RoundsCompleted = history.Completed()
	run.FinishedAt = time.Now()
	switch {
	case err == nil:
		run.Status = fl.RunCompleted
	case errors.Is(err, context.Canceled):
		run.Status = fl.RunCancelled
	default:
		run.Status = fl.RunFailed
		run.Error = err.Error()
	}
	if err := svc.repos.Runs.Update(bg, run); err != nil {
		logger.Error("failed to update run", slog.Any("error", err))
	}
	svc.export(run.ID, history, c.GlobalParameters(), logger)
	svc.publishStatus(bg, run)

	logger.Info("run finished", slog.String("status", string(run.Status)), slog.Int("rounds", len(history)), slog.Int("completed", run.RoundsCompleted))
}

func (svc *service) export(runID string, history fl.RunHistory, params fl.ParameterSet, logger *slog.Logger) {
	if svc.exporter == nil {
		return
	}
	if err := svc.exporter.SaveHistory(runID, history); err != nil {
		logger.Warn("failed to export history", slog.Any("error", err))
	}
	if params == nil {
		return
	}
	if err := svc.exporter.SaveModel(runID, params); err != nil {
		logger.Warn("failed to export model", slog.Any("error", err))
	}
}

func (svc *service) publishStatus(ctx context.Context, run fl.Run) {
	if svc.publisher == nil {
		return
	}
	if err := svc.publisher.Publish(ctx, mqtt.StatusTopic(run.ID), run); err != nil {
		svc.logger.Warn("failed to publish run status", slog.String("run_id", run.ID), slog.Any("error", err))
	}
}

// recorder persists every round and its checkpoint, then broadcasts the summary.
type recorder struct {
	repos     *storage.Repositories
	publisher mqtt.PubSub
	logger    *slog.Logger
}

func (r *recorder) RecordRound(ctx context.Context, runID string, s fl.RoundSummary, params fl.ParameterSet) error {
	ctx = context.WithoutCancel(ctx)

	if err := r.repos.Rounds.Save(ctx, runID, s); err != nil {
		return err
	}
	if err := r.repos.Checkpoints.Save(ctx, fl.Checkpoint{
		RunID:      runID,
		RoundIndex: s.RoundIndex,
		Parameters: params,
		CreatedAt:  time.Now(),
	}); err != nil {
		return err
	}

	run, err := r.repos.Runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	if s.Status == fl.RoundCompleted {
		run.RoundsCompleted++
	}
	if err := r.repos.Runs.Update(ctx, run); err != nil {
		return err
	}

	if r.publisher != nil {
		msg := struct {
			RunID string `json:"run_id"`
			fl.RoundSummary
		}{RunID: runID, RoundSummary: s}
		if err := r.publisher.Publish(ctx, mqtt.RoundsTopic(runID), msg); err != nil {
			r.logger.Warn("failed to publish round", slog.Int("round", s.RoundIndex), slog.Any("error", err))
		}
	}

	return nil
}
