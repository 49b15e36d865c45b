package training

import (
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/tsawler/finetune/checkpoints"
	"github.com/tsawler/finetune/dataloader"
	"github.com/tsawler/finetune/dataset"
	"github.com/tsawler/finetune/model"
)

// Result is the output artifact of a complete run: the training curve, the
// best checkpoint's test metrics, and the test confusion matrix.
type Result struct {
	Records      []EpochRecord
	TestLoss     float64
	TestAccuracy float64
	Confusion    *ConfusionMatrix
	BestEpoch    int
	BestMetric   float64
}

// Run executes a complete run: balance the training corpus, split it into
// training and validation partitions, fit the adapter, restore the best
// checkpoint, and grade it on the independently provided test set. The test
// partition is never balanced or split.
//
// All run state is local to the call, so multiple runs can execute
// concurrently in one process as long as they use distinct checkpoint paths.
func Run(trainSet, testSet dataset.Dataset, backbone model.Backbone, config Config, checkpointPath string, out io.Writer) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stdout
	}

	balanced, err := dataset.BalancedIndices(trainSet, config.QuotaPerClass)
	if err != nil {
		return nil, fmt.Errorf("balanced sampling: %w", err)
	}

	var rng *rand.Rand
	if config.Seed != 0 {
		rng = rand.New(rand.NewSource(config.Seed))
	}
	trainIdx, validIdx := dataloader.Split(balanced, config.SplitRatio, rng)

	trainLoader, err := dataloader.New(trainSet, trainIdx, dataloader.Config{
		BatchSize: config.BatchSize,
		Shuffle:   true,
		Workers:   config.Workers,
		Seed:      config.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("training loader: %w", err)
	}
	validLoader, err := dataloader.New(trainSet, validIdx, dataloader.Config{
		BatchSize: config.BatchSize,
		Workers:   config.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("validation loader: %w", err)
	}
	testLoader, err := dataloader.New(testSet, dataloader.AllIndices(testSet.Len()), dataloader.Config{
		BatchSize: config.BatchSize,
		Workers:   config.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("test loader: %w", err)
	}

	optimizer, err := model.NewSGD(config.LearningRate, 0)
	if err != nil {
		return nil, err
	}
	adapter, err := model.NewAdapter(backbone, config.NumClasses, optimizer, config.Seed)
	if err != nil {
		return nil, err
	}

	manager := checkpoints.NewManager(checkpointPath, checkpoints.FormatJSON)
	trainer := NewTrainer(adapter, manager, config)
	trainer.SetOutput(out)

	records, err := trainer.Fit(trainLoader, validLoader)
	if err != nil {
		return nil, err
	}

	// Grade the best state observed during the run, not the final one.
	best, meta, err := manager.Load()
	if err != nil {
		return nil, fmt.Errorf("restoring best state: %w", err)
	}
	if err := adapter.Restore(best); err != nil {
		return nil, fmt.Errorf("restoring best state: %w", err)
	}

	evaluator := NewEvaluator(adapter)
	testLoss, testAcc, matrix, err := evaluator.EvaluateTest(testLoader)
	if err != nil {
		return nil, fmt.Errorf("test evaluation: %w", err)
	}

	return &Result{
		Records:      records,
		TestLoss:     testLoss,
		TestAccuracy: testAcc,
		Confusion:    matrix,
		BestEpoch:    meta.Epoch,
		BestMetric:   meta.Metric,
	}, nil
}
