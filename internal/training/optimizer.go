package training

import "math"

// Optimizer applies accumulated gradients to parameters once per batch.
type Optimizer interface {
	Step(params, grads []*Tensor, batchSize float64)
}

// SGD is plain mini-batch gradient descent.
type SGD struct {
	LearningRate float64
}

func NewSGD(learningRate float64) *SGD {
	return &SGD{LearningRate: learningRate}
}

func (o *SGD) Step(params, grads []*Tensor, batchSize float64) {
	if batchSize == 0 {
		batchSize = 1
	}
	for i, p := range params {
		g := grads[i]
		for j := range p.Data {
			update := o.LearningRate * g.Data[j] / batchSize
			applyUpdate(&p.Data[j], update)
		}
	}
}

// Adam implements the Adam optimizer with bias-corrected moment estimates.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	step int
	m    [][]float64
	v    [][]float64
}

func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

func (o *Adam) Step(params, grads []*Tensor, batchSize float64) {
	if batchSize == 0 {
		batchSize = 1
	}
	if o.m == nil {
		o.m = make([][]float64, len(params))
		o.v = make([][]float64, len(params))
		for i, p := range params {
			o.m[i] = make([]float64, len(p.Data))
			o.v[i] = make([]float64, len(p.Data))
		}
	}

	o.step++
	correction1 := 1 - math.Pow(o.Beta1, float64(o.step))
	correction2 := 1 - math.Pow(o.Beta2, float64(o.step))

	for i, p := range params {
		g := grads[i]
		for j := range p.Data {
			grad := g.Data[j] / batchSize
			if math.IsNaN(grad) || math.IsInf(grad, 0) {
				continue
			}
			o.m[i][j] = o.Beta1*o.m[i][j] + (1-o.Beta1)*grad
			o.v[i][j] = o.Beta2*o.v[i][j] + (1-o.Beta2)*grad*grad

			mHat := o.m[i][j] / correction1
			vHat := o.v[i][j] / correction2
			update := o.LearningRate * mHat / (math.Sqrt(vHat) + o.Epsilon)
			applyUpdate(&p.Data[j], update)
		}
	}
}

// applyUpdate subtracts update from the weight, skipping any step that
// would introduce NaN or Inf.
func applyUpdate(weight *float64, update float64) {
	if math.IsNaN(update) || math.IsInf(update, 0) {
		return
	}
	next := *weight - update
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return
	}
	*weight = next
}
