package trainer

import (
	"fmt"
	"math"
	"math/rand/v2"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"gonum.org/v1/gonum/floats"
)

type PrivacyConfig struct {
	Enabled         bool    `toml:"enabled"          env:"ENABLED"          envDefault:"true"`
	L2NormClip      float64 `toml:"l2_norm_clip"     env:"L2_NORM_CLIP"     envDefault:"1.0"`
	NoiseMultiplier float64 `toml:"noise_multiplier" env:"NOISE_MULTIPLIER" envDefault:"0.5"`
	Microbatches    int     `toml:"microbatches"     env:"MICROBATCHES"     envDefault:"32"`
}

func (c PrivacyConfig) Validate() error {
	switch {
	case !(c.L2NormClip > 0) || math.IsInf(c.L2NormClip, 0):
		return fmt.Errorf("%w: l2_norm_clip must be positive", pkgerrors.ErrInvalidConfig)
	case !(c.NoiseMultiplier >= 0) || math.IsInf(c.NoiseMultiplier, 0):
		return fmt.Errorf("%w: noise_multiplier must not be negative", pkgerrors.ErrInvalidConfig)
	case c.Microbatches < 1:
		return fmt.Errorf("%w: microbatches must be positive", pkgerrors.ErrInvalidConfig)
	}

	return nil
}

// PrivacyBudget tracks the DP-SGD parameters and the number of noised steps
// taken by one client.
type PrivacyBudget struct {
	L2NormClip      float64 `json:"l2_norm_clip"`
	NoiseMultiplier float64 `json:"noise_multiplier"`
	Microbatches    int     `json:"microbatches"`
	Steps           int     `json:"steps"`
}

type privatizer struct {
	budget PrivacyBudget
	rng    *rand.Rand
}

func newPrivatizer(cfg PrivacyConfig, rng *rand.Rand) *privatizer {
	return &privatizer{
		budget: PrivacyBudget{
			L2NormClip:      cfg.L2NormClip,
			NoiseMultiplier: cfg.NoiseMultiplier,
			Microbatches:    cfg.Microbatches,
		},
		rng: rng,
	}
}

// gradient splits the batch into microbatches, clips each microbatch gradient
// to the L2 bound, averages them and adds Gaussian noise with standard
// deviation noise_multiplier*l2_norm_clip/microbatches.
func (p *privatizer) gradient(m Model, x [][]float64, y []float64) (fl.ParameterSet, float64) {
	n := len(y)
	mb := min(p.budget.Microbatches, n)
	sum := fl.ZerosLike(m.Weights())
	if mb == 0 {
		return sum, 0
	}

	var loss float64
	base, extra := n/mb, n%mb
	start := 0
	for k := range mb {
		size := base
		if k < extra {
			size++
		}
		g, l := m.Gradients(x[start:start+size], y[start:start+size])
		loss += l * float64(size)
		clip(g, p.budget.L2NormClip)
		for i := range sum {
			floats.Add(sum[i].Data, g[i].Data)
		}
		start += size
	}

	stddev := p.budget.NoiseMultiplier * p.budget.L2NormClip / float64(mb)
	for i := range sum {
		floats.Scale(1/float64(mb), sum[i].Data)
		if stddev == 0 {
			continue
		}
		for j := range sum[i].Data {
			sum[i].Data[j] += stddev * p.rng.NormFloat64()
		}
	}
	p.budget.Steps++

	return sum, loss / float64(n)
}

func (p *privatizer) snapshot() PrivacyBudget {
	return p.budget
}

// L2Norm is the Euclidean norm of all values in g taken together.
func L2Norm(g fl.ParameterSet) float64 {
	var sq float64
	for _, t := range g {
		sq += floats.Dot(t.Data, t.Data)
	}

	return math.Sqrt(sq)
}

// clip scales g in place so that its global L2 norm is at most bound.
func clip(g fl.ParameterSet, bound float64) {
	norm := L2Norm(g)
	if norm <= bound || norm == 0 {
		return
	}
	scale := bound / norm
	for i := range g {
		floats.Scale(scale, g[i].Data)
	}
}
