package training

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/tsawler/finetune/checkpoints"
	"github.com/tsawler/finetune/dataloader"
	"github.com/tsawler/finetune/model"
)

// EpochRecord captures the outcome of one completed epoch. Records are
// appended once per epoch and never mutated; their ordered sequence is the
// training curve.
type EpochRecord struct {
	Epoch         int           `json:"epoch"`
	TrainLoss     float64       `json:"train_loss"`
	ValidLoss     float64       `json:"valid_loss"`
	ValidAccuracy float64       `json:"valid_accuracy"`
	LearningRate  float64       `json:"learning_rate"`
	Duration      time.Duration `json:"duration"`
}

// Trainer manages the training process: each epoch runs every training
// batch through the adapter, evaluates the validation partition, feeds the
// validation loss to the scheduler, and checkpoints on a strict new
// minimum. Any failure aborts the run; no epoch is retried.
type Trainer struct {
	adapter    *model.Adapter
	scheduler  *PlateauScheduler
	checkpoint *checkpoints.Manager
	evaluator  *Evaluator
	config     Config
	out        io.Writer
	records    []EpochRecord
}

// NewTrainer creates a trainer. The checkpoint manager may be nil, in which
// case no state is persisted (validation metrics are still tracked).
func NewTrainer(adapter *model.Adapter, checkpoint *checkpoints.Manager, config Config) *Trainer {
	return &Trainer{
		adapter:    adapter,
		scheduler:  NewPlateauScheduler(config.Patience, config.Factor),
		checkpoint: checkpoint,
		evaluator:  NewEvaluator(adapter),
		config:     config,
		out:        os.Stdout,
	}
}

// SetOutput redirects the per-epoch progress lines.
func (t *Trainer) SetOutput(w io.Writer) {
	t.out = w
}

// Fit runs the configured number of epochs and returns the training curve.
func (t *Trainer) Fit(trainLoader, validLoader *dataloader.DataLoader) ([]EpochRecord, error) {
	bestValidLoss := math.Inf(1)

	for epoch := 0; epoch < t.config.Epochs; epoch++ {
		epochStart := time.Now()

		trainLoss, err := t.trainEpoch(trainLoader)
		if err != nil {
			return t.records, fmt.Errorf("epoch %d: training: %w", epoch, err)
		}

		validLoss, validAcc, err := t.evaluator.Evaluate(validLoader)
		if err != nil {
			return t.records, fmt.Errorf("epoch %d: validation: %w", epoch, err)
		}

		opt := t.adapter.Optimizer()
		opt.SetLR(t.scheduler.Step(validLoss, opt.LR()))

		if validLoss < bestValidLoss {
			bestValidLoss = validLoss
			if t.checkpoint != nil {
				if err := t.checkpoint.Save(t.adapter.StateCopy(), validLoss, epoch); err != nil {
					return t.records, fmt.Errorf("epoch %d: checkpoint: %w", epoch, err)
				}
			}
		}

		record := EpochRecord{
			Epoch:         epoch,
			TrainLoss:     trainLoss,
			ValidLoss:     validLoss,
			ValidAccuracy: validAcc,
			LearningRate:  opt.LR(),
			Duration:      time.Since(epochStart),
		}
		t.records = append(t.records, record)
		t.printEpochSummary(record)
	}

	return t.records, nil
}

// trainEpoch runs one full pass over the training partition and returns the
// sample-weighted mean loss.
func (t *Trainer) trainEpoch(loader *dataloader.DataLoader) (float64, error) {
	loader.Reset()

	var totalLoss float64
	var totalSamples int

	for {
		batch, err := loader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to load batch: %w", err)
		}

		batchLoss, err := t.adapter.TrainStep(batch.X, batch.Labels)
		if err != nil {
			return 0, fmt.Errorf("train step failed: %w", err)
		}

		batchSize := len(batch.Labels)
		totalLoss += batchLoss * float64(batchSize)
		totalSamples += batchSize
	}

	if totalSamples == 0 {
		return 0, fmt.Errorf("empty training partition")
	}
	return totalLoss / float64(totalSamples), nil
}

// Records returns the epoch records collected so far.
func (t *Trainer) Records() []EpochRecord {
	return t.records
}

// printEpochSummary writes the human-readable progress line for an epoch.
func (t *Trainer) printEpochSummary(r EpochRecord) {
	fmt.Fprintf(t.out, "Epoch %d/%d: Train Loss=%.4f, Valid Loss=%.4f, Valid Acc=%.2f%%, LR=%.6f, Time=%v\n",
		r.Epoch+1, t.config.Epochs, r.TrainLoss, r.ValidLoss, r.ValidAccuracy*100, r.LearningRate,
		r.Duration.Round(time.Millisecond))
}
