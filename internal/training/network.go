// Package training implements the feed-forward network the client trains
// on-device. Networks are reconstructed from the coordinator's ordered
// architecture description; weight order is part of the wire contract.
package training

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/pathlearn/fedclient/internal/core/errs"
	"github.com/pathlearn/fedclient/internal/core/models"
)

// Defaults applied when the model's hyperparameters leave them unset.
const (
	DefaultOptimizer    = "adam"
	DefaultLearningRate = 0.001
	DefaultLoss         = "meanSquaredError"
)

type layer interface {
	forward(in []float64, train bool) []float64
	backward(grad []float64) []float64
	params() []*Tensor
	grads() []*Tensor
}

// Network is a sequential feed-forward model.
type Network struct {
	layers    []layer
	inputDim  int
	outputDim int
	optimizer Optimizer
	rng       *rand.Rand
}

// Build constructs and compiles a network from an ordered architecture
// description. The first layer takes the explicit input shape; subsequent
// layers chain implicitly.
func Build(arch models.Architecture, hp models.Hyperparameters) (*Network, error) {
	if len(arch.InputShape) == 0 || arch.InputShape[0] <= 0 {
		return nil, fmt.Errorf("invalid input shape %v", arch.InputShape)
	}
	if len(arch.Layers) == 0 {
		return nil, fmt.Errorf("architecture has no layers")
	}

	n := &Network{
		inputDim: arch.InputShape[0],
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	dim := n.inputDim
	for i, spec := range arch.Layers {
		switch spec.Type {
		case models.LayerDense:
			if spec.Units <= 0 {
				return nil, fmt.Errorf("layer %d: dense layer requires positive units, got %d", i, spec.Units)
			}
			act, err := activationByName(spec.Activation)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			n.layers = append(n.layers, newDense(dim, spec.Units, act, n.rng))
			dim = spec.Units
		case models.LayerDropout:
			rate := 0.0
			if v, ok := spec.Config["rate"].(float64); ok {
				rate = v
			}
			if rate < 0 || rate >= 1 {
				return nil, fmt.Errorf("layer %d: dropout rate %v out of range", i, rate)
			}
			n.layers = append(n.layers, &dropout{rate: rate, rng: n.rng})
		default:
			return nil, fmt.Errorf("layer %d: unsupported layer type %q", i, spec.Type)
		}
	}
	n.outputDim = dim

	lr := hp.LearningRate
	if lr == 0 {
		lr = DefaultLearningRate
	}
	switch opt := hp.Optimizer; opt {
	case "", DefaultOptimizer:
		n.optimizer = NewAdam(lr)
	case "sgd":
		n.optimizer = NewSGD(lr)
	default:
		return nil, fmt.Errorf("unsupported optimizer %q", opt)
	}

	loss := hp.Loss
	if loss != "" && loss != DefaultLoss {
		return nil, fmt.Errorf("unsupported loss %q", loss)
	}

	return n, nil
}

// InputDim returns the expected feature vector arity.
func (n *Network) InputDim() int { return n.inputDim }

// OutputDim returns the network's output arity.
func (n *Network) OutputDim() int { return n.outputDim }

// Predict runs a forward pass for one feature vector. The input slice is
// never mutated.
func (n *Network) Predict(features []float64) ([]float64, error) {
	if len(features) != n.inputDim {
		return nil, fmt.Errorf("%w: got %d features, model expects %d",
			errs.ErrShapeMismatch, len(features), n.inputDim)
	}
	out := append([]float64(nil), features...)
	for _, l := range n.layers {
		out = l.forward(out, false)
	}
	return out, nil
}

// FitOptions configures one training run.
type FitOptions struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	Shuffle         bool
	OnEpochEnd      func(epoch int, loss, accuracy float64)
}

// History holds per-epoch metrics from a completed fit.
type History struct {
	Loss        []float64
	Accuracy    []float64
	ValLoss     []float64
	ValAccuracy []float64
}

// Fit trains the network on xs/ys. A validation split is carved off the
// tail before training; the training portion is reshuffled every epoch.
// The epoch-end callback is the only reporting point; it must be fast and
// non-blocking. No partial state is rolled back on error: weights reflect
// whatever batches completed, matching incremental-fit semantics.
func (n *Network) Fit(xs, ys [][]float64, opts FitOptions) (*History, error) {
	if len(xs) == 0 || len(ys) == 0 {
		return nil, fmt.Errorf("empty training data")
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("feature and label count mismatch: %d vs %d", len(xs), len(ys))
	}
	for i := range xs {
		if len(xs[i]) != n.inputDim {
			return nil, fmt.Errorf("%w: sample %d has %d features, model expects %d",
				errs.ErrShapeMismatch, i, len(xs[i]), n.inputDim)
		}
		if len(ys[i]) != n.outputDim {
			return nil, fmt.Errorf("%w: sample %d has %d labels, model outputs %d",
				errs.ErrShapeMismatch, i, len(ys[i]), n.outputDim)
		}
		for j, v := range xs[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("input features contain NaN or Inf at sample %d, feature %d", i, j)
			}
		}
	}

	epochs := opts.Epochs
	if epochs <= 0 {
		epochs = 1
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 || batchSize > len(xs) {
		batchSize = len(xs)
	}

	split := opts.ValidationSplit
	if split < 0 || split >= 1 {
		split = 0
	}
	trainCount := len(xs) - int(float64(len(xs))*split)
	if trainCount < 1 {
		trainCount = 1
	}
	valXs, valYs := xs[trainCount:], ys[trainCount:]

	indices := make([]int, trainCount)
	for i := range indices {
		indices[i] = i
	}

	history := &History{}
	for epoch := 0; epoch < epochs; epoch++ {
		if opts.Shuffle {
			n.rng.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}

		totalLoss := 0.0
		correct := 0
		for start := 0; start < trainCount; start += batchSize {
			end := start + batchSize
			if end > trainCount {
				end = trainCount
			}

			n.zeroGrads()
			for _, idx := range indices[start:end] {
				loss, ok := n.trainSample(xs[idx], ys[idx])
				if math.IsNaN(loss) || math.IsInf(loss, 0) {
					return nil, fmt.Errorf("training produced NaN/Inf loss at epoch %d", epoch)
				}
				totalLoss += loss
				if ok {
					correct++
				}
			}
			n.optimizer.Step(n.paramTensors(), n.gradTensors(), float64(end-start))
		}

		epochLoss := totalLoss / float64(trainCount)
		epochAcc := float64(correct) / float64(trainCount)
		if math.IsNaN(epochLoss) || math.IsInf(epochLoss, 0) {
			return nil, fmt.Errorf("training produced NaN/Inf loss at epoch %d", epoch)
		}
		history.Loss = append(history.Loss, epochLoss)
		history.Accuracy = append(history.Accuracy, epochAcc)

		if len(valXs) > 0 {
			valLoss, valAcc := n.evaluate(valXs, valYs)
			history.ValLoss = append(history.ValLoss, valLoss)
			history.ValAccuracy = append(history.ValAccuracy, valAcc)
		}

		if opts.OnEpochEnd != nil {
			opts.OnEpochEnd(epoch+1, epochLoss, epochAcc)
		}
	}

	return history, nil
}

// trainSample performs one forward/backward pass and accumulates gradients.
// It returns the sample loss and whether the prediction was correct.
func (n *Network) trainSample(x, y []float64) (float64, bool) {
	out := append([]float64(nil), x...)
	for _, l := range n.layers {
		out = l.forward(out, true)
	}

	loss := 0.0
	grad := make([]float64, len(out))
	for i := range out {
		diff := out[i] - y[i]
		loss += diff * diff
		grad[i] = diff
	}
	loss /= 2

	for i := len(n.layers) - 1; i >= 0; i-- {
		grad = n.layers[i].backward(grad)
	}

	return loss, argmax(out) == argmax(y)
}

// evaluate computes loss and accuracy on held-out data, forward only.
func (n *Network) evaluate(xs, ys [][]float64) (float64, float64) {
	totalLoss := 0.0
	correct := 0
	for i := range xs {
		out := append([]float64(nil), xs[i]...)
		for _, l := range n.layers {
			out = l.forward(out, false)
		}
		loss := 0.0
		for j := range out {
			diff := out[j] - ys[i][j]
			loss += diff * diff
		}
		totalLoss += loss / 2
		if argmax(out) == argmax(ys[i]) {
			correct++
		}
	}
	return totalLoss / float64(len(xs)), float64(correct) / float64(len(xs))
}

// Weights returns the trainable parameters in layer order: kernel then
// bias for each dense layer. This order is the serialization contract.
func (n *Network) Weights() []Tensor {
	var out []Tensor
	for _, l := range n.layers {
		for _, p := range l.params() {
			out = append(out, p.Clone())
		}
	}
	return out
}

// SetWeights assigns parameters in the same order Weights produces them.
func (n *Network) SetWeights(weights []Tensor) error {
	var targets []*Tensor
	for _, l := range n.layers {
		targets = append(targets, l.params()...)
	}
	if len(weights) != len(targets) {
		return fmt.Errorf("weight count mismatch: got %d tensors, model has %d", len(weights), len(targets))
	}
	for i, w := range weights {
		if !w.SameShape(*targets[i]) {
			return fmt.Errorf("weight %d shape mismatch: got %v, want %v", i, w.Shape, targets[i].Shape)
		}
	}
	for i, w := range weights {
		copy(targets[i].Data, w.Data)
	}
	return nil
}

func (n *Network) paramTensors() []*Tensor {
	var out []*Tensor
	for _, l := range n.layers {
		out = append(out, l.params()...)
	}
	return out
}

func (n *Network) gradTensors() []*Tensor {
	var out []*Tensor
	for _, l := range n.layers {
		out = append(out, l.grads()...)
	}
	return out
}

func (n *Network) zeroGrads() {
	for _, g := range n.gradTensors() {
		for i := range g.Data {
			g.Data[i] = 0
		}
	}
}

func argmax(v []float64) int {
	maxIdx := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[maxIdx] {
			maxIdx = i
		}
	}
	return maxIdx
}
