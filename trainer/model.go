package trainer

import (
	"math"
	"math/rand/v2"

	"github.com/absmach/fedlearn/pkg/fl"
	"gonum.org/v1/gonum/floats"
)

const epsilon = 1e-7

// Model is a trainable binary classifier.
type Model interface {
	// Parameters returns a copy of the current weights.
	Parameters() fl.ParameterSet

	// SetParameters replaces the weights. The layout must match exactly.
	SetParameters(params fl.ParameterSet) error

	// Weights returns the live weights for in-place optimizer updates.
	Weights() fl.ParameterSet

	// Gradients returns the mean gradient and mean loss over the batch.
	Gradients(x [][]float64, y []float64) (fl.ParameterSet, float64)

	// Evaluate returns mean loss and accuracy over the batch.
	Evaluate(x [][]float64, y []float64) (loss, accuracy float64)
}

var _ Model = (*MLP)(nil)

// MLP is a dense network with ReLU hidden layers and one sigmoid output unit,
// trained on binary cross-entropy. Parameters are laid out as [W1, b1, W2, b2, ...]
// with kernels shaped [in, out].
type MLP struct {
	sizes  []int
	params fl.ParameterSet
}

// NewMLP builds a network with Glorot-uniform kernels and zero biases.
func NewMLP(inputs int, hidden []int, seed uint64) *MLP {
	sizes := append([]int{inputs}, hidden...)
	sizes = append(sizes, 1)

	rng := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
	params := make(fl.ParameterSet, 0, 2*(len(sizes)-1))
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		w := fl.NewTensor(in, out)
		limit := math.Sqrt(6 / float64(in+out))
		for i := range w.Data {
			w.Data[i] = (rng.Float64()*2 - 1) * limit
		}
		params = append(params, w, fl.NewTensor(out))
	}

	return &MLP{sizes: sizes, params: params}
}

func (m *MLP) Parameters() fl.ParameterSet {
	return m.params.Clone()
}

func (m *MLP) SetParameters(params fl.ParameterSet) error {
	if err := m.params.CheckShape(params); err != nil {
		return err
	}
	for i := range params {
		copy(m.params[i].Data, params[i].Data)
	}

	return nil
}

func (m *MLP) Weights() fl.ParameterSet {
	return m.params
}

func (m *MLP) layers() int {
	return len(m.sizes) - 1
}

// forward returns the activations of every layer, input included.
func (m *MLP) forward(x []float64) [][]float64 {
	acts := make([][]float64, m.layers()+1)
	acts[0] = x
	for l := range m.layers() {
		in, out := m.sizes[l], m.sizes[l+1]
		w, b := m.params[2*l].Data, m.params[2*l+1].Data
		z := make([]float64, out)
		copy(z, b)
		prev := acts[l]
		for i := range in {
			a := prev[i]
			if a == 0 {
				continue
			}
			row := w[i*out : (i+1)*out]
			for j := range out {
				z[j] += a * row[j]
			}
		}
		if l == m.layers()-1 {
			for j := range z {
				z[j] = sigmoid(z[j])
			}
		} else {
			for j := range z {
				if z[j] < 0 {
					z[j] = 0
				}
			}
		}
		acts[l+1] = z
	}

	return acts
}

func (m *MLP) Predict(x []float64) float64 {
	acts := m.forward(x)

	return acts[len(acts)-1][0]
}

func (m *MLP) Gradients(x [][]float64, y []float64) (fl.ParameterSet, float64) {
	grads := fl.ZerosLike(m.params)
	if len(y) == 0 {
		return grads, 0
	}

	var loss float64
	for n := range y {
		acts := m.forward(x[n])
		p := acts[len(acts)-1][0]
		loss += crossEntropy(p, y[n])

		// d(BCE)/dz for a sigmoid output.
		delta := []float64{p - y[n]}
		for l := m.layers() - 1; l >= 0; l-- {
			in, out := m.sizes[l], m.sizes[l+1]
			w := m.params[2*l].Data
			gw, gb := grads[2*l].Data, grads[2*l+1].Data
			prev := acts[l]
			for j := range out {
				gb[j] += delta[j]
			}
			var next []float64
			if l > 0 {
				next = make([]float64, in)
			}
			for i := range in {
				row := w[i*out : (i+1)*out]
				grow := gw[i*out : (i+1)*out]
				var back float64
				for j := range out {
					grow[j] += prev[i] * delta[j]
					back += row[j] * delta[j]
				}
				if next != nil && prev[i] > 0 {
					next[i] = back
				}
			}
			delta = next
		}
	}

	scale := 1 / float64(len(y))
	for i := range grads {
		floats.Scale(scale, grads[i].Data)
	}

	return grads, loss * scale
}

func (m *MLP) Evaluate(x [][]float64, y []float64) (float64, float64) {
	if len(y) == 0 {
		return 0, 0
	}
	var loss float64
	correct := 0
	for n := range y {
		p := m.Predict(x[n])
		loss += crossEntropy(p, y[n])
		if (p >= 0.5) == (y[n] >= 0.5) {
			correct++
		}
	}
	total := float64(len(y))

	return loss / total, float64(correct) / total
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func crossEntropy(p, y float64) float64 {
	p = math.Min(math.Max(p, epsilon), 1-epsilon)

	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}
