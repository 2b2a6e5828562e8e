package fl

import (
	"encoding/json"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/scheduler"
)

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether a run in status s will not change again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// Duration is a time.Duration that encodes as a Go duration string ("30s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%w: %w", pkgerrors.ErrInvalidConfig, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("%w: invalid duration %v", pkgerrors.ErrInvalidConfig, v)
	}

	return nil
}

// RunConfig describes one training run. Zero fractions and timeouts fall
// back to the coordinator defaults.
type RunConfig struct {
	Name             string             `json:"name,omitempty"`
	NumRounds        int                `json:"num_rounds"`
	MinClients       int                `json:"min_clients"`
	FractionFit      float64            `json:"fraction_fit,omitempty"`
	FractionEvaluate float64            `json:"fraction_evaluate,omitempty"`
	RoundTimeout     Duration           `json:"round_timeout,omitempty"`
	WaitTimeout      Duration           `json:"wait_timeout,omitempty"`
	Hyperparams      map[string]float64 `json:"hyperparams,omitempty"`
	Seed             uint64             `json:"seed,omitempty"`
	Selection        string             `json:"selection,omitempty"`
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		NumRounds:        5,
		MinClients:       2,
		FractionFit:      1,
		FractionEvaluate: 1,
		Hyperparams: map[string]float64{
			KeyLocalEpochs: 3,
			KeyBatchSize:   32,
		},
	}
}

func (c RunConfig) Validate() error {
	if c.NumRounds < 1 {
		return fmt.Errorf("%w: num_rounds must be at least 1", pkgerrors.ErrInvalidConfig)
	}
	if c.MinClients < 1 {
		return fmt.Errorf("%w: min_clients must be at least 1", pkgerrors.ErrInvalidConfig)
	}
	if c.FractionFit < 0 || c.FractionFit > 1 {
		return fmt.Errorf("%w: fraction_fit must be in [0, 1]", pkgerrors.ErrInvalidConfig)
	}
	if c.FractionEvaluate < 0 || c.FractionEvaluate > 1 {
		return fmt.Errorf("%w: fraction_evaluate must be in [0, 1]", pkgerrors.ErrInvalidConfig)
	}
	if c.RoundTimeout < 0 || c.WaitTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", pkgerrors.ErrInvalidConfig)
	}
	if err := scheduler.Validate(c.Selection); err != nil {
		return err
	}

	return ValidateHyperparams(c.Hyperparams)
}

type Run struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Config          RunConfig `json:"config"`
	Status          RunStatus `json:"status"`
	Error           string    `json:"error,omitempty"`
	RoundsCompleted int       `json:"rounds_completed"`
	CreatedAt       time.Time `json:"created_at"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	FinishedAt      time.Time `json:"finished_at,omitempty"`
}

type RunPage struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
	Total  uint64 `json:"total"`
	Runs   []Run  `json:"runs"`
}
