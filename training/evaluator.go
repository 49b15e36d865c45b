package training

import (
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/finetune/dataloader"
	"github.com/tsawler/finetune/model"
)

// Evaluator runs inference over a partition without mutating model state.
// It accumulates a sample-weighted mean loss and whole-partition accuracy
// (correct predictions over total samples, not averaged per batch).
type Evaluator struct {
	adapter *model.Adapter
}

// NewEvaluator creates an evaluator over the adapter.
func NewEvaluator(adapter *model.Adapter) *Evaluator {
	return &Evaluator{adapter: adapter}
}

// Evaluate computes mean loss and accuracy over the partition.
func (e *Evaluator) Evaluate(loader *dataloader.DataLoader) (float64, float64, error) {
	loss, acc, _, err := e.run(loader, nil)
	return loss, acc, err
}

// EvaluateTest computes mean loss and accuracy and additionally fills a
// confusion matrix, one increment per sample. Used for the test partition.
func (e *Evaluator) EvaluateTest(loader *dataloader.DataLoader) (float64, float64, *ConfusionMatrix, error) {
	matrix := NewConfusionMatrix(e.adapter.NumClasses())
	loss, acc, matrix, err := e.run(loader, matrix)
	return loss, acc, matrix, err
}

func (e *Evaluator) run(loader *dataloader.DataLoader, matrix *ConfusionMatrix) (float64, float64, *ConfusionMatrix, error) {
	loader.Reset()

	var totalLoss float64
	var totalCorrect, totalSamples int

	for {
		batch, err := loader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, 0, nil, fmt.Errorf("failed to load batch: %w", err)
		}

		scores, err := e.adapter.Forward(batch.X)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("forward pass failed: %w", err)
		}
		batchLoss, err := e.adapter.Loss(scores, batch.Labels)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("loss computation failed: %w", err)
		}
		preds := argmaxRows(scores)

		batchSize := len(batch.Labels)
		totalLoss += batchLoss * float64(batchSize)
		totalSamples += batchSize

		for i, pred := range preds {
			if pred == batch.Labels[i] {
				totalCorrect++
			}
			if matrix != nil {
				if err := matrix.Add(batch.Labels[i], pred); err != nil {
					return 0, 0, nil, err
				}
			}
		}
	}

	if totalSamples == 0 {
		return 0, 0, nil, fmt.Errorf("empty partition")
	}

	meanLoss := totalLoss / float64(totalSamples)
	accuracy := float64(totalCorrect) / float64(totalSamples)
	return meanLoss, accuracy, matrix, nil
}

// argmaxRows returns the predicted class per row of a score matrix.
func argmaxRows(scores *mat.Dense) []int {
	rows, cols := scores.Dims()
	preds := make([]int, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, scores)
		preds[i] = floats.MaxIdx(row)
	}
	return preds
}
