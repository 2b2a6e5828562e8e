// Package trainer runs local training and evaluation on one client's private
// partition, optionally with DP-SGD.
package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/absmach/fedlearn/pkg/dataset"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
)

const (
	MetricLoss            = "loss"
	MetricAccuracy        = "accuracy"
	MetricDPEnabled       = "dp_enabled"
	MetricDPSteps         = "dp_steps"
	MetricNoiseMultiplier = "dp_noise_multiplier"
	MetricL2NormClip      = "dp_l2_norm_clip"
)

type Config struct {
	LocalEpochs  int           `toml:"local_epochs"  env:"LOCAL_EPOCHS"  envDefault:"3"`
	BatchSize    int           `toml:"batch_size"    env:"BATCH_SIZE"    envDefault:"32"`
	LearningRate float64       `toml:"learning_rate" env:"LEARNING_RATE" envDefault:"0.001"`
	Optimizer    string        `toml:"optimizer"     env:"OPTIMIZER"     envDefault:"adam"`
	Seed         uint64        `toml:"seed"          env:"SEED"          envDefault:"42"`
	Privacy      PrivacyConfig `toml:"privacy"       envPrefix:"DP_"`
}

func DefaultConfig() Config {
	return Config{
		LocalEpochs:  3,
		BatchSize:    32,
		LearningRate: 0.001,
		Optimizer:    OptimizerAdam,
		Seed:         42,
		Privacy: PrivacyConfig{
			Enabled:         true,
			L2NormClip:      1.0,
			NoiseMultiplier: 0.5,
			Microbatches:    32,
		},
	}
}

type FitResult struct {
	Parameters fl.ParameterSet
	NumSamples int
	Metrics    fl.Metrics
}

type EvaluateResult struct {
	Loss       float64
	NumSamples int
	Metrics    fl.Metrics
}

// LocalTrainer owns one model and one data partition. Calls are serialized.
type LocalTrainer struct {
	mu      sync.Mutex
	model   Model
	data    dataset.Partition
	cfg     Config
	rng     *rand.Rand
	private *privatizer
	logger  *slog.Logger
}

// New builds a trainer. Whether DP-SGD is used is decided here, once: when
// privacy is requested with unusable parameters the trainer falls back to the
// plain optimizer and reports dp_enabled=0 on every fit.
func New(model Model, data dataset.Partition, cfg Config, logger *slog.Logger) *LocalTrainer {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0xda942042e4dd58b5))
	t := &LocalTrainer{
		model:  model,
		data:   data,
		cfg:    cfg,
		rng:    rng,
		logger: logger,
	}

	if cfg.Privacy.Enabled {
		if err := cfg.Privacy.Validate(); err != nil {
			logger.Warn("Differential privacy unavailable, training without it", slog.Any("error", err))
		} else {
			t.private = newPrivatizer(cfg.Privacy, rng)
		}
	}

	return t
}

func (t *LocalTrainer) DPEnabled() bool {
	return t.private != nil
}

// Budget reports the privacy bookkeeping so far. ok is false without DP.
func (t *LocalTrainer) Budget() (PrivacyBudget, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.private == nil {
		return PrivacyBudget{}, false
	}

	return t.private.snapshot(), true
}

func (t *LocalTrainer) Parameters() fl.ParameterSet {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.model.Parameters()
}

func (t *LocalTrainer) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (FitResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.model.SetParameters(params); err != nil {
		return FitResult{}, err
	}
	train := t.data.Train
	if train.Len() == 0 {
		return FitResult{}, fmt.Errorf("%w: no training examples", pkgerrors.ErrEmptyPartition)
	}

	epochs := cfg.Int(fl.KeyLocalEpochs, t.cfg.LocalEpochs)
	batch := cfg.Int(fl.KeyBatchSize, t.cfg.BatchSize)
	if batch < 1 {
		batch = train.Len()
	}
	opt, err := NewOptimizer(t.cfg.Optimizer, cfg.Float(fl.KeyLearningRate, t.cfg.LearningRate))
	if err != nil {
		return FitResult{}, err
	}

	weights := t.model.Weights()
	xb := make([][]float64, 0, batch)
	yb := make([]float64, 0, batch)
	for range epochs {
		order := t.rng.Perm(train.Len())
		for start := 0; start < len(order); start += batch {
			if err := ctx.Err(); err != nil {
				return FitResult{}, err
			}
			xb, yb = xb[:0], yb[:0]
			for _, i := range order[start:min(start+batch, len(order))] {
				xb = append(xb, train.X[i])
				yb = append(yb, train.Y[i])
			}

			var grads fl.ParameterSet
			if t.private != nil {
				grads, _ = t.private.gradient(t.model, xb, yb)
			} else {
				grads, _ = t.model.Gradients(xb, yb)
			}
			opt.Step(weights, grads)
		}
	}

	loss, acc := t.model.Evaluate(train.X, train.Y)
	metrics := fl.Metrics{
		MetricLoss:      loss,
		MetricAccuracy:  acc,
		MetricDPEnabled: 0,
	}
	if t.private != nil {
		b := t.private.snapshot()
		metrics[MetricDPEnabled] = 1
		metrics[MetricDPSteps] = float64(b.Steps)
		metrics[MetricNoiseMultiplier] = b.NoiseMultiplier
		metrics[MetricL2NormClip] = b.L2NormClip
	}

	return FitResult{
		Parameters: t.model.Parameters(),
		NumSamples: train.Len(),
		Metrics:    metrics,
	}, nil
}

func (t *LocalTrainer) Evaluate(ctx context.Context, params fl.ParameterSet, _ fl.RoundConfig) (EvaluateResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return EvaluateResult{}, err
	}
	if err := t.model.SetParameters(params); err != nil {
		return EvaluateResult{}, err
	}
	test := t.data.Test
	if test.Len() == 0 {
		return EvaluateResult{}, fmt.Errorf("%w: no test examples", pkgerrors.ErrEmptyPartition)
	}

	loss, acc := t.model.Evaluate(test.X, test.Y)

	return EvaluateResult{
		Loss:       loss,
		NumSamples: test.Len(),
		Metrics:    fl.Metrics{MetricAccuracy: acc},
	}, nil
}
