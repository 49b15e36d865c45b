// Package model wraps a pretrained backbone with a fresh classification
// layer and exposes the train-step and inference operations the training
// loop drives.
package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Backbone is the pretrained feature extractor preceding the classification
// layer. It is consumed as an opaque mapping from an input batch (one row
// per sample) to a feature batch; its weights are frozen here, only the
// replaced classification layer is trained.
type Backbone interface {
	// Features maps a batch to its feature representation.
	Features(x *mat.Dense) (*mat.Dense, error)
	// InputDim is the feature width Features expects.
	InputDim() int
	// OutputDim is the feature width Features produces.
	OutputDim() int
}

// Identity is a pass-through backbone: features are the raw inputs. Useful
// when inputs are already embeddings, and in tests.
type Identity struct {
	Dim int
}

func (b *Identity) Features(x *mat.Dense) (*mat.Dense, error) {
	return x, nil
}

func (b *Identity) InputDim() int  { return b.Dim }
func (b *Identity) OutputDim() int { return b.Dim }

// RandomProjection is a frozen single-layer backbone: a fixed Gaussian
// projection followed by tanh. It stands in for a pretrained feature
// extractor where none is available.
type RandomProjection struct {
	w      *mat.Dense
	inDim  int
	outDim int
}

// NewRandomProjection builds a projection with weights drawn from
// N(0, 1/inDim) using the given seed, so the "pretrained" features are
// reproducible.
func NewRandomProjection(inDim, outDim int, seed int64) *RandomProjection {
	rng := rand.New(rand.NewSource(seed))
	scale := 1.0 / math.Sqrt(float64(inDim))
	data := make([]float64, inDim*outDim)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return &RandomProjection{
		w:      mat.NewDense(inDim, outDim, data),
		inDim:  inDim,
		outDim: outDim,
	}
}

func (b *RandomProjection) Features(x *mat.Dense) (*mat.Dense, error) {
	_, cols := x.Dims()
	if cols != b.inDim {
		return nil, &ShapeError{Want: b.inDim, Got: cols}
	}
	var out mat.Dense
	out.Mul(x, b.w)
	out.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, &out)
	return &out, nil
}

func (b *RandomProjection) InputDim() int  { return b.inDim }
func (b *RandomProjection) OutputDim() int { return b.outDim }
