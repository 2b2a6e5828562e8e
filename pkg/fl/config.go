package fl

import (
	"fmt"
	"math"
	"sort"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
)

const (
	KeyLocalEpochs  = "local_epochs"
	KeyBatchSize    = "batch_size"
	KeyLearningRate = "learning_rate"
)

var phaseKeys = map[Phase]map[string]struct{}{
	PhaseFit: {
		KeyLocalEpochs:  {},
		KeyBatchSize:    {},
		KeyLearningRate: {},
	},
	PhaseEvaluate: {
		KeyBatchSize: {},
	},
}

// RoundConfig is sent with every Fit and Evaluate call.
type RoundConfig struct {
	RoundIndex  int                `json:"round_index"           cbor:"1,keyasint"`
	Phase       Phase              `json:"phase"                 cbor:"2,keyasint"`
	Hyperparams map[string]float64 `json:"hyperparams,omitempty" cbor:"3,keyasint,omitempty"`
	// RunID scopes RoundIndex, so a client can tell a repeated delivery from a new run.
	RunID string `json:"run_id,omitempty" cbor:"4,keyasint,omitempty"`
}

// AllowedKeys lists the hyperparameters accepted for phase.
func AllowedKeys(phase Phase) []string {
	keys := make([]string, 0, len(phaseKeys[phase]))
	for k := range phaseKeys[phase] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

func (c RoundConfig) Validate() error {
	allowed, ok := phaseKeys[c.Phase]
	if !ok {
		return fmt.Errorf("%w: unknown phase %q", pkgerrors.ErrInvalidConfig, c.Phase)
	}
	if c.RoundIndex < 1 {
		return fmt.Errorf("%w: round index must be positive, got %d", pkgerrors.ErrInvalidConfig, c.RoundIndex)
	}
	for k, v := range c.Hyperparams {
		if _, ok := allowed[k]; !ok {
			return fmt.Errorf("%w: %q in %s config", pkgerrors.ErrUnknownConfigKey, k, c.Phase)
		}
		if err := checkValue(k, v); err != nil {
			return err
		}
	}

	return nil
}

// intKeys are hyperparameters read with RoundConfig.Int.
var intKeys = map[string]struct{}{
	KeyLocalEpochs: {},
	KeyBatchSize:   {},
}

func checkValue(key string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%w: %s must be a positive number", pkgerrors.ErrInvalidConfig, key)
	}
	if _, ok := intKeys[key]; ok && v != math.Trunc(v) {
		return fmt.Errorf("%w: %s must be a whole number, got %v", pkgerrors.ErrInvalidConfig, key, v)
	}

	return nil
}

// ForPhase narrows a combined hyperparameter map to the keys phase accepts.
func ForPhase(round int, phase Phase, hyperparams map[string]float64) RoundConfig {
	cfg := RoundConfig{RoundIndex: round, Phase: phase}
	for k, v := range hyperparams {
		if _, ok := phaseKeys[phase][k]; ok {
			if cfg.Hyperparams == nil {
				cfg.Hyperparams = make(map[string]float64)
			}
			cfg.Hyperparams[k] = v
		}
	}

	return cfg
}

func (c RoundConfig) Float(key string, def float64) float64 {
	if v, ok := c.Hyperparams[key]; ok {
		return v
	}

	return def
}

func (c RoundConfig) Int(key string, def int) int {
	if v, ok := c.Hyperparams[key]; ok {
		return int(v)
	}

	return def
}

// ValidateHyperparams checks a coordinator-side hyperparameter map against every phase.
func ValidateHyperparams(hyperparams map[string]float64) error {
	for k, v := range hyperparams {
		known := false
		for _, keys := range phaseKeys {
			if _, ok := keys[k]; ok {
				known = true

				break
			}
		}
		if !known {
			return fmt.Errorf("%w: %q", pkgerrors.ErrUnknownConfigKey, k)
		}
		if err := checkValue(k, v); err != nil {
			return err
		}
	}

	return nil
}
