package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// LinearHead is the replaced final classification layer: a dense layer
// mapping backbone features to per-class scores. Its weights are the only
// trainable parameters; the backbone keeps its pretrained weights.
type LinearHead struct {
	w *mat.Dense // inDim x classes
	b []float64  // classes

	gradW *mat.Dense
	gradB []float64

	inDim   int
	classes int
}

// NewLinearHead creates a head with small random weights and zero bias.
func NewLinearHead(inDim, classes int, seed int64) *LinearHead {
	rng := rand.New(rand.NewSource(seed))
	scale := 1.0 / math.Sqrt(float64(inDim))
	data := make([]float64, inDim*classes)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return &LinearHead{
		w:       mat.NewDense(inDim, classes, data),
		b:       make([]float64, classes),
		gradW:   mat.NewDense(inDim, classes, nil),
		gradB:   make([]float64, classes),
		inDim:   inDim,
		classes: classes,
	}
}

// Forward computes per-class scores for a feature batch: features*W + b.
func (h *LinearHead) Forward(features *mat.Dense) (*mat.Dense, error) {
	rows, cols := features.Dims()
	if cols != h.inDim {
		return nil, &ShapeError{Want: h.inDim, Got: cols}
	}
	var scores mat.Dense
	scores.Mul(features, h.w)
	for i := 0; i < rows; i++ {
		for j := 0; j < h.classes; j++ {
			scores.Set(i, j, scores.At(i, j)+h.b[j])
		}
	}
	return &scores, nil
}

// ZeroGrad resets the accumulated gradients. TrainStep calls this before
// every backward pass; skipping it would mix gradients across steps.
func (h *LinearHead) ZeroGrad() {
	h.gradW.Zero()
	for j := range h.gradB {
		h.gradB[j] = 0
	}
}

// accumulate adds the cross-entropy gradient for one batch, where dScores is
// (softmax - onehot)/batchSize.
func (h *LinearHead) accumulate(features, dScores *mat.Dense) {
	var gw mat.Dense
	gw.Mul(features.T(), dScores)
	h.gradW.Add(h.gradW, &gw)

	rows, _ := dScores.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < h.classes; j++ {
			h.gradB[j] += dScores.At(i, j)
		}
	}
}

// State returns a point-in-time copy of the head parameters.
func (h *LinearHead) State() *HeadState {
	weights := make([]float64, h.inDim*h.classes)
	copy(weights, h.w.RawMatrix().Data)
	bias := make([]float64, h.classes)
	copy(bias, h.b)
	return &HeadState{
		InputDim:   h.inDim,
		NumClasses: h.classes,
		Weights:    weights,
		Bias:       bias,
	}
}

// SetState restores the head parameters from a snapshot.
func (h *LinearHead) SetState(state *HeadState) error {
	if state.InputDim != h.inDim || state.NumClasses != h.classes {
		return fmt.Errorf("state shape %dx%d does not match head %dx%d",
			state.InputDim, state.NumClasses, h.inDim, h.classes)
	}
	if len(state.Weights) != h.inDim*h.classes || len(state.Bias) != h.classes {
		return fmt.Errorf("state has %d weights and %d biases, want %d and %d",
			len(state.Weights), len(state.Bias), h.inDim*h.classes, h.classes)
	}
	h.w = mat.NewDense(h.inDim, h.classes, append([]float64(nil), state.Weights...))
	copy(h.b, state.Bias)
	return nil
}

// HeadState is a durable snapshot of the trainable parameters: the weight
// matrix in row-major order plus the bias vector.
type HeadState struct {
	InputDim   int       `json:"input_dim"`
	NumClasses int       `json:"num_classes"`
	Weights    []float64 `json:"weights"`
	Bias       []float64 `json:"bias"`
}

// Clone returns a deep copy of the snapshot.
func (s *HeadState) Clone() *HeadState {
	return &HeadState{
		InputDim:   s.InputDim,
		NumClasses: s.NumClasses,
		Weights:    append([]float64(nil), s.Weights...),
		Bias:       append([]float64(nil), s.Bias...),
	}
}
