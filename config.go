package fedlearn

import (
	"fmt"
	"os"
	"time"

	"github.com/absmach/fedlearn/pkg/dataset"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/trainer"
	"github.com/pelletier/go-toml"
)

// Config is the run configuration file shared by the simulator and both
// binaries.
type Config struct {
	Coordinator CoordinatorConfig     `toml:"coordinator"`
	Client      ClientConfig          `toml:"client"`
	Privacy     trainer.PrivacyConfig `toml:"privacy"`
	Dataset     DatasetConfig         `toml:"dataset"`
}

type CoordinatorConfig struct {
	Name             string  `toml:"name"`
	NumRounds        int     `toml:"num_rounds"`
	MinClients       int     `toml:"min_clients"`
	FractionFit      float64 `toml:"fraction_fit"`
	FractionEvaluate float64 `toml:"fraction_evaluate"`
	RoundTimeout     string  `toml:"round_timeout"`
	WaitTimeout      string  `toml:"wait_timeout"`
	Seed             uint64  `toml:"seed"`
	Selection        string  `toml:"selection"`
}

type ClientConfig struct {
	LocalEpochs  int     `toml:"local_epochs"`
	BatchSize    int     `toml:"batch_size"`
	LearningRate float64 `toml:"learning_rate"`
	Optimizer    string  `toml:"optimizer"`
	Hidden       []int   `toml:"hidden"`
	Seed         uint64  `toml:"seed"`
}

type DatasetConfig struct {
	Source            string  `toml:"source"`
	Clients           int     `toml:"clients"`
	TestFraction      float64 `toml:"test_fraction"`
	Seed              uint64  `toml:"seed"`
	Synthetic         int     `toml:"synthetic"`
	SyntheticFeatures int     `toml:"synthetic_features"`
}

// DefaultHidden is the hidden layer layout of the heart-disease model.
var DefaultHidden = []int{16, 8}

func DefaultConfig() Config {
	run := fl.DefaultRunConfig()
	tc := trainer.DefaultConfig()

	return Config{
		Coordinator: CoordinatorConfig{
			NumRounds:        run.NumRounds,
			MinClients:       run.MinClients,
			FractionFit:      run.FractionFit,
			FractionEvaluate: run.FractionEvaluate,
			RoundTimeout:     "5m",
			WaitTimeout:      "2m",
		},
		Client: ClientConfig{
			LocalEpochs:  tc.LocalEpochs,
			BatchSize:    tc.BatchSize,
			LearningRate: tc.LearningRate,
			Optimizer:    tc.Optimizer,
			Hidden:       append([]int(nil), DefaultHidden...),
			Seed:         tc.Seed,
		},
		Privacy: tc.Privacy,
		Dataset: DatasetConfig{
			Clients:           2,
			TestFraction:      0.2,
			Seed:              42,
			Synthetic:         300,
			SyntheticFeatures: 13,
		},
	}
}

// LoadConfig reads a TOML file. Keys missing from the file keep their
// DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.fill(DefaultConfig(), tree)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// fill copies defaults into every key the file did not set. Explicit zero
// values in the file are kept.
func (c *Config) fill(def Config, tree *toml.Tree) {
	set := func(key string) bool { return tree.Has(key) }

	if !set("coordinator.num_rounds") {
		c.Coordinator.NumRounds = def.Coordinator.NumRounds
	}
	if !set("coordinator.min_clients") {
		c.Coordinator.MinClients = def.Coordinator.MinClients
	}
	if !set("coordinator.fraction_fit") {
		c.Coordinator.FractionFit = def.Coordinator.FractionFit
	}
	if !set("coordinator.fraction_evaluate") {
		c.Coordinator.FractionEvaluate = def.Coordinator.FractionEvaluate
	}
	if !set("coordinator.round_timeout") {
		c.Coordinator.RoundTimeout = def.Coordinator.RoundTimeout
	}
	if !set("coordinator.wait_timeout") {
		c.Coordinator.WaitTimeout = def.Coordinator.WaitTimeout
	}

	if !set("client.local_epochs") {
		c.Client.LocalEpochs = def.Client.LocalEpochs
	}
	if !set("client.batch_size") {
		c.Client.BatchSize = def.Client.BatchSize
	}
	if !set("client.learning_rate") {
		c.Client.LearningRate = def.Client.LearningRate
	}
	if !set("client.optimizer") {
		c.Client.Optimizer = def.Client.Optimizer
	}
	if !set("client.hidden") {
		c.Client.Hidden = def.Client.Hidden
	}
	if !set("client.seed") {
		c.Client.Seed = def.Client.Seed
	}

	if !set("privacy.enabled") {
		c.Privacy.Enabled = def.Privacy.Enabled
	}
	if !set("privacy.l2_norm_clip") {
		c.Privacy.L2NormClip = def.Privacy.L2NormClip
	}
	if !set("privacy.noise_multiplier") {
		c.Privacy.NoiseMultiplier = def.Privacy.NoiseMultiplier
	}
	if !set("privacy.microbatches") {
		c.Privacy.Microbatches = def.Privacy.Microbatches
	}

	if !set("dataset.clients") {
		c.Dataset.Clients = def.Dataset.Clients
	}
	if !set("dataset.test_fraction") {
		c.Dataset.TestFraction = def.Dataset.TestFraction
	}
	if !set("dataset.seed") {
		c.Dataset.Seed = def.Dataset.Seed
	}
	if !set("dataset.synthetic") {
		c.Dataset.Synthetic = def.Dataset.Synthetic
	}
	if !set("dataset.synthetic_features") {
		c.Dataset.SyntheticFeatures = def.Dataset.SyntheticFeatures
	}
}

// Validate checks ranges. Privacy settings are not checked here: an unusable
// mechanism makes the trainer fall back to the plain optimizer.
func (c Config) Validate() error {
	if _, err := c.RunConfig(); err != nil {
		return err
	}
	if c.Client.LocalEpochs < 1 || c.Client.BatchSize < 1 {
		return fmt.Errorf("%w: local_epochs and batch_size must be positive", pkgerrors.ErrInvalidConfig)
	}
	if !(c.Client.LearningRate > 0) {
		return fmt.Errorf("%w: learning_rate must be positive", pkgerrors.ErrInvalidConfig)
	}
	if _, err := trainer.NewOptimizer(c.Client.Optimizer, c.Client.LearningRate); err != nil {
		return err
	}
	for _, n := range c.Client.Hidden {
		if n < 1 {
			return fmt.Errorf("%w: hidden layer sizes must be positive", pkgerrors.ErrInvalidConfig)
		}
	}
	if c.Dataset.Clients < 1 {
		return fmt.Errorf("%w: dataset clients must be positive", pkgerrors.ErrInvalidConfig)
	}
	if c.Dataset.TestFraction < 0 || c.Dataset.TestFraction >= 1 {
		return fmt.Errorf("%w: test_fraction must be in [0, 1)", pkgerrors.ErrInvalidConfig)
	}

	return nil
}

// RunConfig builds the coordinator run settings. The client section supplies
// the hyperparameters sent with every round.
func (c Config) RunConfig() (fl.RunConfig, error) {
	roundTimeout, err := parseDuration("round_timeout", c.Coordinator.RoundTimeout)
	if err != nil {
		return fl.RunConfig{}, err
	}
	waitTimeout, err := parseDuration("wait_timeout", c.Coordinator.WaitTimeout)
	if err != nil {
		return fl.RunConfig{}, err
	}

	rc := fl.RunConfig{
		Name:             c.Coordinator.Name,
		NumRounds:        c.Coordinator.NumRounds,
		MinClients:       c.Coordinator.MinClients,
		FractionFit:      c.Coordinator.FractionFit,
		FractionEvaluate: c.Coordinator.FractionEvaluate,
		RoundTimeout:     fl.Duration(roundTimeout),
		WaitTimeout:      fl.Duration(waitTimeout),
		Seed:             c.Coordinator.Seed,
		Selection:        c.Coordinator.Selection,
		Hyperparams: map[string]float64{
			fl.KeyLocalEpochs:  float64(c.Client.LocalEpochs),
			fl.KeyBatchSize:    float64(c.Client.BatchSize),
			fl.KeyLearningRate: c.Client.LearningRate,
		},
	}
	if err := rc.Validate(); err != nil {
		return fl.RunConfig{}, err
	}

	return rc, nil
}

func (c Config) TrainerConfig() trainer.Config {
	return trainer.Config{
		LocalEpochs:  c.Client.LocalEpochs,
		BatchSize:    c.Client.BatchSize,
		LearningRate: c.Client.LearningRate,
		Optimizer:    c.Client.Optimizer,
		Seed:         c.Client.Seed,
		Privacy:      c.Privacy,
	}
}

func (c Config) DatasetConfig() dataset.Config {
	return dataset.Config{
		Source:            c.Dataset.Source,
		Clients:           c.Dataset.Clients,
		TestFraction:      c.Dataset.TestFraction,
		Seed:              c.Dataset.Seed,
		Synthetic:         c.Dataset.Synthetic,
		SyntheticFeatures: c.Dataset.SyntheticFeatures,
	}
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", pkgerrors.ErrInvalidConfig, key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", pkgerrors.ErrInvalidConfig, key)
	}

	return d, nil
}
