package trainer

import (
	"fmt"
	"math"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"gonum.org/v1/gonum/floats"
)

const (
	OptimizerAdam = "adam"
	OptimizerSGD  = "sgd"
)

// Optimizer applies one gradient step to params in place.
type Optimizer interface {
	Step(params, grads fl.ParameterSet)
}

func NewOptimizer(kind string, learningRate float64) (Optimizer, error) {
	if learningRate <= 0 {
		return nil, fmt.Errorf("%w: learning rate must be positive", pkgerrors.ErrInvalidConfig)
	}
	switch kind {
	case OptimizerAdam, "":
		return NewAdam(learningRate), nil
	case OptimizerSGD:
		return &SGD{LearningRate: learningRate}, nil
	default:
		return nil, fmt.Errorf("%w: unknown optimizer %q", pkgerrors.ErrInvalidConfig, kind)
	}
}

type SGD struct {
	LearningRate float64
}

func (o *SGD) Step(params, grads fl.ParameterSet) {
	for i := range params {
		floats.AddScaled(params[i].Data, -o.LearningRate, grads[i].Data)
	}
}

type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	m, v fl.ParameterSet
	t    int
}

func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      epsilon,
	}
}

func (o *Adam) Step(params, grads fl.ParameterSet) {
	if o.m == nil {
		o.m = fl.ZerosLike(params)
		o.v = fl.ZerosLike(params)
	}
	o.t++
	lr := o.LearningRate * math.Sqrt(1-math.Pow(o.Beta2, float64(o.t))) / (1 - math.Pow(o.Beta1, float64(o.t)))

	for i := range params {
		p, g := params[i].Data, grads[i].Data
		m, v := o.m[i].Data, o.v[i].Data
		for j := range p {
			m[j] = o.Beta1*m[j] + (1-o.Beta1)*g[j]
			v[j] = o.Beta2*v[j] + (1-o.Beta2)*g[j]*g[j]
			p[j] -= lr * m[j] / (math.Sqrt(v[j]) + o.Epsilon)
		}
	}
}
