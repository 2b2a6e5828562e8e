package fl

import (
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
)

type Phase string

const (
	PhaseFit      Phase = "fit"
	PhaseEvaluate Phase = "evaluate"
)

// Tensor is a dense row-major array of float64 values.
type Tensor struct {
	Shape []int     `json:"shape" cbor:"1,keyasint"`
	Data  []float64 `json:"data"  cbor:"2,keyasint"`
}

func NewTensor(shape ...int) Tensor {
	size := 1
	for _, d := range shape {
		size *= d
	}

	return Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, size),
	}
}

func (t Tensor) Size() int {
	if len(t.Shape) == 0 {
		return len(t.Data)
	}
	size := 1
	for _, d := range t.Shape {
		size *= d
	}

	return size
}

func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64(nil), t.Data...),
	}
}

func (t Tensor) SameShape(o Tensor) bool {
	if len(t.Shape) != len(o.Shape) || len(t.Data) != len(o.Data) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}

	return true
}

// ParameterSet is the ordered list of a model's trainable tensors.
type ParameterSet []Tensor

func (p ParameterSet) Clone() ParameterSet {
	if p == nil {
		return nil
	}
	out := make(ParameterSet, len(p))
	for i, t := range p {
		out[i] = t.Clone()
	}

	return out
}

// ZerosLike returns a ParameterSet with p's shapes and all values zero.
func ZerosLike(p ParameterSet) ParameterSet {
	out := make(ParameterSet, len(p))
	for i, t := range p {
		out[i] = Tensor{
			Shape: append([]int(nil), t.Shape...),
			Data:  make([]float64, len(t.Data)),
		}
	}

	return out
}

func (p ParameterSet) NumValues() int {
	n := 0
	for _, t := range p {
		n += len(t.Data)
	}

	return n
}

// CheckShape reports ErrShapeMismatch when o does not have the layout of p.
func (p ParameterSet) CheckShape(o ParameterSet) error {
	if len(p) != len(o) {
		return fmt.Errorf("%w: expected %d tensors, got %d", pkgerrors.ErrShapeMismatch, len(p), len(o))
	}
	for i := range p {
		if !p[i].SameShape(o[i]) {
			return fmt.Errorf("%w: tensor %d expected shape %v, got %v", pkgerrors.ErrShapeMismatch, i, p[i].Shape, o[i].Shape)
		}
	}

	return nil
}

// Validate checks that every tensor holds exactly as many values as its shape describes.
func (p ParameterSet) Validate() error {
	for i, t := range p {
		if t.Size() != len(t.Data) {
			return fmt.Errorf("%w: tensor %d has %d values for shape %v", pkgerrors.ErrShapeMismatch, i, len(t.Data), t.Shape)
		}
	}

	return nil
}

type Metrics map[string]float64

func (m Metrics) Clone() Metrics {
	if m == nil {
		return nil
	}
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

// ClientReport is what one client returns for one phase of one round.
type ClientReport struct {
	ClientID   string       `json:"client_id"            cbor:"1,keyasint"`
	RoundIndex int          `json:"round_index"          cbor:"2,keyasint"`
	Phase      Phase        `json:"phase"                cbor:"3,keyasint"`
	NumSamples int          `json:"num_samples"          cbor:"4,keyasint"`
	Parameters ParameterSet `json:"parameters,omitempty" cbor:"5,keyasint,omitempty"`
	Loss       float64      `json:"loss,omitempty"       cbor:"6,keyasint,omitempty"`
	Metrics    Metrics      `json:"metrics,omitempty"    cbor:"7,keyasint,omitempty"`
}

func (r ClientReport) Weight() float64 {
	return float64(r.NumSamples)
}

type RoundStatus string

const (
	RoundCompleted RoundStatus = "completed"
	// RoundSkipped marks a round whose global parameters were left unchanged.
	RoundSkipped RoundStatus = "skipped"
	// RoundPartial marks a round that advanced the parameters but could not be evaluated.
	RoundPartial RoundStatus = "partial"
)

type ClientFailure struct {
	ClientID string `json:"client_id"`
	Phase    Phase  `json:"phase"`
	Error    string `json:"error"`
}

type RoundSummary struct {
	RoundIndex       int             `json:"round_index"`
	Status           RoundStatus     `json:"status"`
	Loss             *float64        `json:"loss,omitempty"`
	Metrics          Metrics         `json:"metrics,omitempty"`
	PartialMetrics   Metrics         `json:"partial_metrics,omitempty"`
	FitMetrics       Metrics         `json:"fit_metrics,omitempty"`
	ParticipantCount int             `json:"participant_count"`
	FitParticipants  int             `json:"fit_participants"`
	Failures         []ClientFailure `json:"failures,omitempty"`
	Reason           string          `json:"reason,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	Duration         time.Duration   `json:"duration"`
}

// RunHistory is the append-only record of a run's rounds.
type RunHistory []RoundSummary

// Append adds s if it directly follows the last recorded round.
func (h *RunHistory) Append(s RoundSummary) error {
	next := 1
	if n := len(*h); n > 0 {
		next = (*h)[n-1].RoundIndex + 1
	}
	if s.RoundIndex != next {
		return fmt.Errorf("%w: expected round %d, got %d", pkgerrors.ErrInvalidData, next, s.RoundIndex)
	}
	*h = append(*h, s)

	return nil
}

func (h RunHistory) Last() (RoundSummary, bool) {
	if len(h) == 0 {
		return RoundSummary{}, false
	}

	return h[len(h)-1], true
}

// Completed counts the rounds that were fully aggregated.
func (h RunHistory) Completed() int {
	n := 0
	for _, s := range h {
		if s.Status == RoundCompleted {
			n++
		}
	}

	return n
}

// Checkpoint is the global model after a round.
type Checkpoint struct {
	RunID      string       `json:"run_id"`
	RoundIndex int          `json:"round_index"`
	Parameters ParameterSet `json:"parameters"`
	CreatedAt  time.Time    `json:"created_at"`
}
