package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Adapter wraps a pretrained backbone whose final classification layer has
// been replaced to match the target class count. The training loop owns the
// model state exclusively through this type: TrainStep is the only mutation
// path, and StateCopy hands out point-in-time snapshots only.
type Adapter struct {
	backbone  Backbone
	head      *LinearHead
	optimizer *SGD
}

// NewAdapter builds an adapter over the backbone with a fresh head sized to
// numClasses. Only the new head's weights are trainable; the backbone keeps
// its pretrained weights as initialization for the features.
func NewAdapter(backbone Backbone, numClasses int, optimizer *SGD, seed int64) (*Adapter, error) {
	if numClasses < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", numClasses)
	}
	if optimizer == nil {
		return nil, fmt.Errorf("optimizer is required")
	}
	return &Adapter{
		backbone:  backbone,
		head:      NewLinearHead(backbone.OutputDim(), numClasses, seed),
		optimizer: optimizer,
	}, nil
}

// NumClasses returns the width of the classification layer.
func (a *Adapter) NumClasses() int {
	return a.head.classes
}

// Optimizer returns the optimizer so the scheduler can adjust its rate.
func (a *Adapter) Optimizer() *SGD {
	return a.optimizer
}

// Forward computes per-class scores for a batch.
func (a *Adapter) Forward(x *mat.Dense) (*mat.Dense, error) {
	if _, cols := x.Dims(); cols != a.backbone.InputDim() {
		return nil, &ShapeError{Want: a.backbone.InputDim(), Got: cols}
	}
	features, err := a.backbone.Features(x)
	if err != nil {
		return nil, fmt.Errorf("backbone: %w", err)
	}
	return a.head.Forward(features)
}

// Loss computes the mean softmax cross-entropy of scores against labels.
func (a *Adapter) Loss(scores *mat.Dense, labels []int) (float64, error) {
	rows, cols := scores.Dims()
	if rows != len(labels) {
		return 0, fmt.Errorf("scores have %d rows, labels have %d entries", rows, len(labels))
	}
	if cols != a.head.classes {
		return 0, &ShapeError{Want: a.head.classes, Got: cols}
	}

	var total float64
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, scores)
		label := labels[i]
		if label < 0 || label >= cols {
			return 0, fmt.Errorf("label %d out of range [0, %d)", label, cols)
		}
		total += logSumExp(row) - row[label]
	}

	loss := total / float64(rows)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, &DivergenceError{Loss: loss}
	}
	return loss, nil
}

// TrainStep runs one optimization step over a batch: it clears any prior
// gradients, computes scores and loss, backpropagates through the head, and
// applies exactly one optimizer update. Returns the batch loss.
func (a *Adapter) TrainStep(x *mat.Dense, labels []int) (float64, error) {
	if _, cols := x.Dims(); cols != a.backbone.InputDim() {
		return 0, &ShapeError{Want: a.backbone.InputDim(), Got: cols}
	}
	features, err := a.backbone.Features(x)
	if err != nil {
		return 0, fmt.Errorf("backbone: %w", err)
	}
	scores, err := a.head.Forward(features)
	if err != nil {
		return 0, err
	}
	loss, err := a.Loss(scores, labels)
	if err != nil {
		return loss, err
	}

	// dL/dscores = (softmax(scores) - onehot(labels)) / batchSize
	rows, cols := scores.Dims()
	dScores := mat.NewDense(rows, cols, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, scores)
		softmaxInPlace(row)
		row[labels[i]] -= 1
		floats.Scale(1/float64(rows), row)
		dScores.SetRow(i, row)
	}

	a.head.ZeroGrad()
	a.head.accumulate(features, dScores)
	a.optimizer.Step(a.head)

	return loss, nil
}

// Predict returns the argmax class per sample.
func (a *Adapter) Predict(x *mat.Dense) ([]int, error) {
	scores, err := a.Forward(x)
	if err != nil {
		return nil, err
	}
	rows, cols := scores.Dims()
	preds := make([]int, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, scores)
		preds[i] = floats.MaxIdx(row)
	}
	return preds, nil
}

// StateCopy returns a point-in-time snapshot of the trainable parameters,
// safe to persist while training continues.
func (a *Adapter) StateCopy() *HeadState {
	return a.head.State()
}

// Restore loads a snapshot into the head, replacing the current parameters.
func (a *Adapter) Restore(state *HeadState) error {
	return a.head.SetState(state)
}

// softmaxInPlace converts scores to probabilities with the usual max-shift
// for numerical stability.
func softmaxInPlace(row []float64) {
	max := floats.Max(row)
	var sum float64
	for j, v := range row {
		e := math.Exp(v - max)
		row[j] = e
		sum += e
	}
	floats.Scale(1/sum, row)
}

// logSumExp computes log(sum(exp(row))) stably.
func logSumExp(row []float64) float64 {
	max := floats.Max(row)
	var sum float64
	for _, v := range row {
		sum += math.Exp(v - max)
	}
	return max + math.Log(sum)
}
