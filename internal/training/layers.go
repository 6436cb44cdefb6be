package training

import (
	"fmt"
	"math"
	"math/rand"
)

type activation struct {
	fn    func(float64) float64
	deriv func(pre, post float64) float64
}

func activationByName(name string) (activation, error) {
	switch name {
	case "relu":
		return activation{
			fn: func(x float64) float64 {
				if x > 0 {
					return x
				}
				return 0
			},
			deriv: func(pre, _ float64) float64 {
				if pre > 0 {
					return 1
				}
				return 0
			},
		}, nil
	case "sigmoid":
		return activation{
			fn: func(x float64) float64 {
				return 1 / (1 + math.Exp(-x))
			},
			deriv: func(_, post float64) float64 {
				return post * (1 - post)
			},
		}, nil
	case "", "linear":
		return activation{
			fn:    func(x float64) float64 { return x },
			deriv: func(_, _ float64) float64 { return 1 },
		}, nil
	default:
		return activation{}, fmt.Errorf("unsupported activation %q", name)
	}
}

// dense is a fully connected layer. The kernel is stored row-major as
// [inDim, outDim]; forward state from the last pass is kept for backward.
type dense struct {
	inDim, outDim int
	act           activation

	kernel Tensor
	bias   Tensor

	gradKernel Tensor
	gradBias   Tensor

	lastInput []float64
	lastPre   []float64
	lastPost  []float64
}

func newDense(inDim, outDim int, act activation, rng *rand.Rand) *dense {
	d := &dense{
		inDim:      inDim,
		outDim:     outDim,
		act:        act,
		kernel:     Zeros(inDim, outDim),
		bias:       Zeros(outDim),
		gradKernel: Zeros(inDim, outDim),
		gradBias:   Zeros(outDim),
	}

	// Xavier/Glorot initialization, clamped against degenerate dims
	limit := math.Sqrt(6.0 / float64(inDim+outDim))
	if limit > 1 {
		limit = 1
	}
	for i := range d.kernel.Data {
		d.kernel.Data[i] = (rng.Float64()*2 - 1) * limit
	}
	// Small random bias to break symmetry
	for i := range d.bias.Data {
		d.bias.Data[i] = (rng.Float64() - 0.5) * 0.02
	}

	return d
}

func (d *dense) forward(in []float64, _ bool) []float64 {
	d.lastInput = in
	pre := make([]float64, d.outDim)
	post := make([]float64, d.outDim)
	for j := 0; j < d.outDim; j++ {
		sum := d.bias.Data[j]
		for i := 0; i < d.inDim; i++ {
			sum += in[i] * d.kernel.Data[i*d.outDim+j]
		}
		pre[j] = sum
		post[j] = d.act.fn(sum)
	}
	d.lastPre = pre
	d.lastPost = post
	return post
}

func (d *dense) backward(grad []float64) []float64 {
	delta := make([]float64, d.outDim)
	for j := 0; j < d.outDim; j++ {
		delta[j] = grad[j] * d.act.deriv(d.lastPre[j], d.lastPost[j])
		d.gradBias.Data[j] += delta[j]
	}

	gradIn := make([]float64, d.inDim)
	for i := 0; i < d.inDim; i++ {
		for j := 0; j < d.outDim; j++ {
			d.gradKernel.Data[i*d.outDim+j] += d.lastInput[i] * delta[j]
			gradIn[i] += delta[j] * d.kernel.Data[i*d.outDim+j]
		}
	}
	return gradIn
}

func (d *dense) params() []*Tensor { return []*Tensor{&d.kernel, &d.bias} }
func (d *dense) grads() []*Tensor  { return []*Tensor{&d.gradKernel, &d.gradBias} }

// dropout zeroes a random fraction of activations during training and
// rescales the rest (inverted dropout). Inference passes values through.
type dropout struct {
	rate float64
	rng  *rand.Rand
	mask []float64
}

func (d *dropout) forward(in []float64, train bool) []float64 {
	if !train || d.rate == 0 {
		d.mask = nil
		return in
	}
	keep := 1 - d.rate
	d.mask = make([]float64, len(in))
	out := make([]float64, len(in))
	for i := range in {
		if d.rng.Float64() < keep {
			d.mask[i] = 1 / keep
			out[i] = in[i] * d.mask[i]
		}
	}
	return out
}

func (d *dropout) backward(grad []float64) []float64 {
	if d.mask == nil {
		return grad
	}
	out := make([]float64, len(grad))
	for i := range grad {
		out[i] = grad[i] * d.mask[i]
	}
	return out
}

func (d *dropout) params() []*Tensor { return nil }
func (d *dropout) grads() []*Tensor  { return nil }
