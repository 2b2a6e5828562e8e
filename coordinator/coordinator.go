package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/pkg/scheduler"
)

const (
	DefaultRoundTimeout = 5 * time.Minute
	DefaultWaitTimeout  = 2 * time.Minute
)

// Config controls how a run selects and waits for clients.
type Config struct {
	RunID            string
	FractionFit      float64
	FractionEvaluate float64
	RoundTimeout     time.Duration
	WaitTimeout      time.Duration
	Hyperparams      map[string]float64
	Seed             uint64
	// Selection names the client sampling strategy, see pkg/scheduler.
	Selection string
}

// NewConfig derives the coordinator settings of one run.
func NewConfig(runID string, rc fl.RunConfig) Config {
	return Config{
		RunID:            runID,
		FractionFit:      rc.FractionFit,
		FractionEvaluate: rc.FractionEvaluate,
		RoundTimeout:     time.Duration(rc.RoundTimeout),
		WaitTimeout:      time.Duration(rc.WaitTimeout),
		Hyperparams:      rc.Hyperparams,
		Seed:             rc.Seed,
		Selection:        rc.Selection,
	}
}

func (c Config) Validate() error {
	if c.FractionFit <= 0 || c.FractionFit > 1 {
		return fmt.Errorf("%w: fraction_fit must be in (0, 1]", pkgerrors.ErrInvalidConfig)
	}
	if c.FractionEvaluate <= 0 || c.FractionEvaluate > 1 {
		return fmt.Errorf("%w: fraction_evaluate must be in (0, 1]", pkgerrors.ErrInvalidConfig)
	}
	if c.RoundTimeout < 0 || c.WaitTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", pkgerrors.ErrInvalidConfig)
	}
	if err := scheduler.Validate(c.Selection); err != nil {
		return err
	}

	return fl.ValidateHyperparams(c.Hyperparams)
}

// Sink receives every round the coordinator records, with the global
// parameters as they stand after that round.
type Sink interface {
	RecordRound(ctx context.Context, runID string, summary fl.RoundSummary, params fl.ParameterSet) error
}

type Option func(*Coordinator)

// WithInitialParameters seeds the global model instead of asking a client for it.
func WithInitialParameters(p fl.ParameterSet) Option {
	return func(c *Coordinator) {
		c.global = p.Clone()
	}
}

func WithSink(s Sink) Option {
	return func(c *Coordinator) {
		c.sinks = append(c.sinks, s)
	}
}

// Coordinator drives the rounds of one training run. It is not safe for
// concurrent use: RunTraining owns the global parameters and history.
type Coordinator struct {
	registry   *Registry
	aggregator fl.Aggregator
	cfg        Config
	logger     *slog.Logger
	sinks      []Sink
	scheduler  scheduler.Scheduler

	global  fl.ParameterSet
	history fl.RunHistory
}

func New(registry *Registry, aggregator fl.Aggregator, cfg Config, logger *slog.Logger, opts ...Option) *Coordinator {
	if cfg.RoundTimeout == 0 {
		cfg.RoundTimeout = DefaultRoundTimeout
	}
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.FractionFit == 0 {
		cfg.FractionFit = 1
	}
	if cfg.FractionEvaluate == 0 {
		cfg.FractionEvaluate = 1
	}

	c := &Coordinator{
		registry:   registry,
		aggregator: aggregator,
		cfg:        cfg,
		logger:     logger.With(slog.String("run_id", cfg.RunID)),
	}
	// An unknown strategy is reported by RunTraining through Config.Validate.
	if s, err := scheduler.New(cfg.Selection, cfg.Seed); err == nil {
		c.scheduler = s
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GlobalParameters returns a copy of the current global model.
func (c *Coordinator) GlobalParameters() fl.ParameterSet {
	return c.global.Clone()
}

// RunTraining executes numRounds rounds and returns the recorded history.
// Rounds that miss quorum are recorded as skipped and do not stop the run.
// On cancellation the in-flight round is dropped and ctx.Err() is returned
// with the history so far.
func (c *Coordinator) RunTraining(ctx context.Context, numRounds, minClients int) (fl.RunHistory, error) {
	if numRounds < 1 {
		return nil, fmt.Errorf("%w: num_rounds must be at least 1", pkgerrors.ErrInvalidConfig)
	}
	if minClients < 1 {
		return nil, fmt.Errorf("%w: min_clients must be at least 1", pkgerrors.ErrInvalidConfig)
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	c.registry.ResetExclusions()
	if err := c.waitForClients(ctx, minClients); err != nil {
		return nil, err
	}
	if err := c.initParameters(ctx); err != nil {
		return nil, err
	}

	c.logger.Info("training started", slog.Int("rounds", numRounds), slog.Int("min_clients", minClients))
	for r := 1; r <= numRounds; r++ {
		summary, err := c.runRound(ctx, r, minClients)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				c.logger.Warn("training cancelled", slog.Int("round", r))

				return c.history, ctxErr
			}

			return c.history, err
		}
		if err := c.history.Append(summary); err != nil {
			return c.history, err
		}
		c.observe(summary)
		c.notify(ctx, summary)
	}
	c.logger.Info("training finished", slog.Int("completed", c.history.Completed()), slog.Int("rounds", len(c.history)))

	return c.history, nil
}

func (c *Coordinator) waitForClients(ctx context.Context, minClients int) error {
	wctx, cancel := context.WithTimeout(ctx, c.cfg.WaitTimeout)
	defer cancel()

	if err := c.registry.WaitFor(wctx, minClients); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n := len(c.registry.Eligible())

		return fmt.Errorf("%w: %d of %d clients available after %s", pkgerrors.ErrInsufficientClients, n, minClients, c.cfg.WaitTimeout)
	}

	return nil
}

func (c *Coordinator) initParameters(ctx context.Context) error {
	if c.global != nil {
		return c.global.Validate()
	}

	for _, s := range c.registry.Eligible() {
		pctx, cancel := context.WithTimeout(ctx, c.cfg.RoundTimeout)
		p, err := s.GetParameters(pctx)
		cancel()
		if err == nil {
			err = p.Validate()
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("initial parameters unavailable", slog.String("client_id", s.ID()), slog.Any("error", err))

			continue
		}
		c.global = p
		c.logger.Info("initial parameters received", slog.String("client_id", s.ID()), slog.Int("values", p.NumValues()))

		return nil
	}

	return fmt.Errorf("%w: no client returned initial parameters", pkgerrors.ErrInsufficientClients)
}

func (c *Coordinator) runRound(ctx context.Context, round, minClients int) (fl.RoundSummary, error) {
	started := time.Now()
	summary := fl.RoundSummary{RoundIndex: round, StartedAt: started}
	finish := func(s fl.RoundSummary) (fl.RoundSummary, error) {
		s.Duration = time.Since(started)

		return s, nil
	}

	eligible := c.registry.Eligible()
	if len(eligible) == 0 {
		return summary, fmt.Errorf("%w: no eligible clients for round %d", pkgerrors.ErrInsufficientClients, round)
	}
	if len(eligible) < minClients {
		summary.Status = fl.RoundSkipped
		summary.Reason = fmt.Sprintf("%s: %d eligible, %d required", pkgerrors.ErrQuorumNotMet, len(eligible), minClients)
		c.logger.Warn("round skipped", slog.Int("round", round), slog.String("reason", summary.Reason))

		return finish(summary)
	}

	fitCfg := fl.ForPhase(round, fl.PhaseFit, c.cfg.Hyperparams)
	fitCfg.RunID = c.cfg.RunID
	selected := c.sample(eligible, c.cfg.FractionFit, minClients)
	fitReports, failures, err := c.dispatch(ctx, fitCfg, c.global, selected)
	summary.Failures = append(summary.Failures, failures...)
	if err != nil {
		return summary, err
	}
	summary.FitParticipants = len(fitReports)
	if len(fitReports) < minClients {
		summary.Status = fl.RoundSkipped
		summary.Reason = fmt.Sprintf("%s: %d fit reports, %d required", pkgerrors.ErrQuorumNotMet, len(fitReports), minClients)
		c.logger.Warn("round skipped", slog.Int("round", round), slog.String("reason", summary.Reason))

		return finish(summary)
	}

	weighted := make([]fl.WeightedParams, len(fitReports))
	fitMetrics := make([]fl.WeightedMetrics, len(fitReports))
	for i, r := range fitReports {
		weighted[i] = fl.WeightedParams{Params: r.Parameters, Weight: r.Weight()}
		fitMetrics[i] = fl.WeightedMetrics{Metrics: r.Metrics, Weight: r.Weight()}
	}
	params, err := c.aggregator.AggregateParams(weighted)
	if err != nil {
		return summary, fmt.Errorf("round %d: %w", round, err)
	}
	c.global = params
	if agg, err := c.aggregator.AggregateMetrics(fitMetrics); err == nil {
		summary.FitMetrics = agg.Complete
	}

	evalCfg := fl.ForPhase(round, fl.PhaseEvaluate, c.cfg.Hyperparams)
	evalCfg.RunID = c.cfg.RunID
	eligible = c.registry.Eligible()
	var evalReports []fl.ClientReport
	if len(eligible) >= minClients {
		selected = c.sample(eligible, c.cfg.FractionEvaluate, minClients)
		evalReports, failures, err = c.dispatch(ctx, evalCfg, c.global, selected)
		summary.Failures = append(summary.Failures, failures...)
		if err != nil {
			return summary, err
		}
	}
	if len(evalReports) < minClients {
		summary.Status = fl.RoundPartial
		summary.Reason = fmt.Sprintf("%s: %d evaluate reports, %d required", pkgerrors.ErrQuorumNotMet, len(evalReports), minClients)
		c.logger.Warn("round not evaluated", slog.Int("round", round), slog.String("reason", summary.Reason))

		return finish(summary)
	}

	evalMetrics := make([]fl.WeightedMetrics, len(evalReports))
	for i, r := range evalReports {
		evalMetrics[i] = fl.WeightedMetrics{Metrics: r.Metrics, Weight: r.Weight()}
	}
	agg, err := c.aggregator.AggregateMetrics(evalMetrics)
	if err != nil {
		return summary, fmt.Errorf("round %d: %w", round, err)
	}
	summary.Metrics = agg.Complete
	summary.PartialMetrics = agg.Partial
	if loss, err := fl.WeightedLoss(evalReports); err == nil {
		summary.Loss = &loss
	}
	summary.ParticipantCount = len(evalReports)
	summary.Status = fl.RoundCompleted

	args := []any{slog.Int("round", round), slog.Int("participants", summary.ParticipantCount)}
	if summary.Loss != nil {
		args = append(args, slog.Float64("loss", *summary.Loss))
	}
	c.logger.Info("round completed", args...)

	return finish(summary)
}

// sample picks max(floor(n*fraction), min) clients, capped at n, and keeps
// them in registry order.
func (c *Coordinator) sample(clients []ClientSession, fraction float64, minClients int) []ClientSession {
	k := int(float64(len(clients)) * fraction)
	if k < minClients {
		k = minClients
	}
	if k >= len(clients) {
		return clients
	}

	idx := c.scheduler.Select(len(clients), k)
	out := make([]ClientSession, len(idx))
	for i, j := range idx {
		out[i] = clients[j]
	}

	return out
}

type outcome struct {
	idx    int
	report fl.ClientReport
	err    error
}

// dispatch sends cfg to every session concurrently and waits at most
// RoundTimeout. Replies arriving later are dropped, and a reply that failed
// with its own deadline counts as unreachable. Accepted reports are
// returned in session order. A non-nil error means ctx was cancelled.
func (c *Coordinator) dispatch(ctx context.Context, cfg fl.RoundConfig, params fl.ParameterSet, sessions []ClientSession) ([]fl.ClientReport, []fl.ClientFailure, error) {
	pctx, cancel := context.WithTimeout(ctx, c.cfg.RoundTimeout)
	defer cancel()

	results := make(chan outcome, len(sessions))
	for i, s := range sessions {
		p := params.Clone()
		go func() {
			var (
				r   fl.ClientReport
				err error
			)
			switch cfg.Phase {
			case fl.PhaseFit:
				r, err = s.Fit(pctx, p, cfg)
			default:
				r, err = s.Evaluate(pctx, p, cfg)
			}
			results <- outcome{idx: i, report: r, err: err}
		}()
	}

	got := make([]*outcome, len(sessions))
	pending := len(sessions)
wait:
	for pending > 0 {
		select {
		case o := <-results:
			pending--
			got[o.idx] = &o
		case <-pctx.Done():
			break wait
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		reports  []fl.ClientReport
		failures []fl.ClientFailure
	)
	for i, s := range sessions {
		var err error
		switch o := got[i]; {
		case o == nil:
			err = fmt.Errorf("%w: no reply within %s", pkgerrors.ErrClientUnreachable, c.cfg.RoundTimeout)
		case errors.Is(o.err, context.DeadlineExceeded):
			err = fmt.Errorf("%w: %w", pkgerrors.ErrClientUnreachable, o.err)
		case o.err != nil:
			err = o.err
		default:
			err = c.accept(cfg, &o.report)
			if err == nil {
				o.report.ClientID = s.ID()
				reports = append(reports, o.report)

				continue
			}
		}

		if errors.Is(err, pkgerrors.ErrEmptyPartition) {
			c.registry.Exclude(s.ID(), err.Error())
		}
		failures = append(failures, fl.ClientFailure{ClientID: s.ID(), Phase: cfg.Phase, Error: err.Error()})
		c.logger.Warn("client failed", slog.String("client_id", s.ID()), slog.String("phase", string(cfg.Phase)), slog.Int("round", cfg.RoundIndex), slog.Any("error", err))
	}

	return reports, failures, nil
}

func (c *Coordinator) accept(cfg fl.RoundConfig, r *fl.ClientReport) error {
	switch {
	case r.RoundIndex != cfg.RoundIndex:
		return fmt.Errorf("%w: report for round %d in round %d", pkgerrors.ErrInvalidData, r.RoundIndex, cfg.RoundIndex)
	case r.Phase != "" && r.Phase != cfg.Phase:
		return fmt.Errorf("%w: %s report in %s phase", pkgerrors.ErrInvalidData, r.Phase, cfg.Phase)
	case r.NumSamples <= 0:
		return fmt.Errorf("%w: report carries no samples", pkgerrors.ErrInvalidData)
	}
	if cfg.Phase == fl.PhaseFit {
		return c.global.CheckShape(r.Parameters)
	}

	return nil
}

func (c *Coordinator) observe(s fl.RoundSummary) {
	RoundTotal.WithLabelValues(string(s.Status)).Inc()
	RoundDuration.Observe(s.Duration.Seconds())
	RoundParticipants.Set(float64(s.ParticipantCount))
	ClientsEligible.Set(float64(len(c.registry.Eligible())))
	for _, f := range s.Failures {
		ClientFailures.WithLabelValues(string(f.Phase)).Inc()
	}
	if s.Loss != nil {
		GlobalLoss.Set(*s.Loss)
	}
}

func (c *Coordinator) notify(ctx context.Context, s fl.RoundSummary) {
	for _, sink := range c.sinks {
		if err := sink.RecordRound(ctx, c.cfg.RunID, s, c.global.Clone()); err != nil {
			c.logger.Warn("failed to record round", slog.Int("round", s.RoundIndex), slog.Any("error", err))
		}
	}
}
