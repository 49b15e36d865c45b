package training

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tsawler/finetune/checkpoints"
	"github.com/tsawler/finetune/dataloader"
	"github.com/tsawler/finetune/dataset"
	"github.com/tsawler/finetune/model"
)

// toyDataset builds a linearly separable dataset with samplesPerClass
// samples for each of numClasses classes, clustered around the class axis.
func toyDataset(t *testing.T, numClasses, samplesPerClass int, seed int64) *dataset.InMemoryDataset {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	ds := dataset.NewInMemoryDataset(numClasses)
	for s := 0; s < samplesPerClass; s++ {
		for c := 0; c < numClasses; c++ {
			features := make([]float64, numClasses)
			for j := range features {
				features[j] = rng.NormFloat64() * 0.05
			}
			features[c] += 1.0
			if err := ds.Add(features, c); err != nil {
				t.Fatalf("Add: %v", err)
			}
		}
	}
	return ds
}

func toyConfig() Config {
	config := DefaultConfig()
	config.NumClasses = 3
	config.BatchSize = 4
	config.Epochs = 2
	config.LearningRate = 0.5
	config.QuotaPerClass = 10
	config.SplitRatio = 0.8
	config.Seed = 17
	return config
}

func newToyAdapter(t *testing.T, numClasses int, lr float64) *model.Adapter {
	t.Helper()
	optimizer, err := model.NewSGD(lr, 0)
	if err != nil {
		t.Fatalf("NewSGD: %v", err)
	}
	adapter, err := model.NewAdapter(&model.Identity{Dim: numClasses}, numClasses, optimizer, 17)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	return adapter
}

func TestEndToEndToyRun(t *testing.T) {
	trainSet := toyDataset(t, 3, 10, 1) // 30 samples
	testSet := toyDataset(t, 3, 5, 2)   // independent corpus, never split
	config := toyConfig()

	balanced, err := dataset.BalancedIndices(trainSet, config.QuotaPerClass)
	if err != nil {
		t.Fatalf("BalancedIndices: %v", err)
	}
	if len(balanced) != 30 {
		t.Fatalf("balanced subset has %d samples, want 30", len(balanced))
	}

	trainIdx, validIdx := dataloader.Split(balanced, config.SplitRatio, rand.New(rand.NewSource(config.Seed)))
	if len(trainIdx) != 24 {
		t.Errorf("training partition has %d samples, want floor(0.8*30)=24", len(trainIdx))
	}
	if len(validIdx) != 6 {
		t.Errorf("validation partition has %d samples, want 6", len(validIdx))
	}

	var out bytes.Buffer
	result, err := Run(trainSet, testSet, &model.Identity{Dim: 3}, config,
		filepath.Join(t.TempDir(), "best.json"), &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Records) != config.Epochs {
		t.Fatalf("curve has %d records, want %d", len(result.Records), config.Epochs)
	}
	for i, r := range result.Records {
		if r.Epoch != i {
			t.Errorf("record %d has epoch %d", i, r.Epoch)
		}
	}

	if result.Confusion == nil {
		t.Fatal("test run produced no confusion matrix")
	}
	if result.Confusion.TotalSamples != testSet.Len() {
		t.Errorf("confusion matrix counted %d samples, want %d", result.Confusion.TotalSamples, testSet.Len())
	}
	for c := 0; c < 3; c++ {
		if got := result.Confusion.RowSum(c); got != 5 {
			t.Errorf("confusion row %d sums to %d, want 5", c, got)
		}
	}

	// Progress lines, one per epoch.
	lines := strings.Count(out.String(), "\n")
	if lines != config.Epochs {
		t.Errorf("progress output has %d lines, want %d:\n%s", lines, config.Epochs, out.String())
	}
	if !strings.Contains(out.String(), "Train Loss=") || !strings.Contains(out.String(), "Valid Acc=") {
		t.Errorf("progress lines missing metrics:\n%s", out.String())
	}
}

func TestCheckpointHoldsMinimumValidLoss(t *testing.T) {
	trainSet := toyDataset(t, 3, 20, 3)
	testSet := toyDataset(t, 3, 5, 4)
	config := toyConfig()
	config.Epochs = 6
	config.QuotaPerClass = 20

	path := filepath.Join(t.TempDir(), "best.json")
	result, err := Run(trainSet, testSet, &model.Identity{Dim: 3}, config, path, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	minValid := math.Inf(1)
	for _, r := range result.Records {
		if r.ValidLoss < minValid {
			minValid = r.ValidLoss
		}
	}

	_, meta, err := checkpoints.NewManager(path, checkpoints.FormatJSON).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if math.Abs(meta.Metric-minValid) > 1e-12 {
		t.Errorf("checkpoint metric %v, want run minimum %v", meta.Metric, minValid)
	}
	if meta.Metric != result.BestMetric {
		t.Errorf("result reports best metric %v, checkpoint holds %v", result.BestMetric, meta.Metric)
	}
}

func TestEvaluatorIdempotent(t *testing.T) {
	ds := toyDataset(t, 3, 8, 5)
	loader, err := dataloader.New(ds, dataloader.AllIndices(ds.Len()), dataloader.Config{BatchSize: 5})
	if err != nil {
		t.Fatalf("New loader: %v", err)
	}

	adapter := newToyAdapter(t, 3, 0.1)
	evaluator := NewEvaluator(adapter)

	loss1, acc1, err := evaluator.Evaluate(loader)
	if err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	loss2, acc2, err := evaluator.Evaluate(loader)
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}

	if loss1 != loss2 || acc1 != acc2 {
		t.Errorf("evaluation mutated state: (%v, %v) then (%v, %v)", loss1, acc1, loss2, acc2)
	}
}

func TestEvaluateTestFillsMatrixOnly(t *testing.T) {
	ds := toyDataset(t, 3, 4, 6)
	loader, err := dataloader.New(ds, dataloader.AllIndices(ds.Len()), dataloader.Config{BatchSize: 4})
	if err != nil {
		t.Fatalf("New loader: %v", err)
	}
	evaluator := NewEvaluator(newToyAdapter(t, 3, 0.1))

	_, acc, matrix, err := evaluator.EvaluateTest(loader)
	if err != nil {
		t.Fatalf("EvaluateTest: %v", err)
	}
	if matrix == nil {
		t.Fatal("test mode returned no confusion matrix")
	}
	if matrix.TotalSamples != ds.Len() {
		t.Errorf("matrix counted %d samples, want %d", matrix.TotalSamples, ds.Len())
	}
	if math.Abs(matrix.Accuracy()-acc) > 1e-15 {
		t.Errorf("matrix accuracy %v disagrees with evaluator accuracy %v", matrix.Accuracy(), acc)
	}
}

func TestRestoreBeforeAnySave(t *testing.T) {
	// Requesting the best state before any save must surface
	// ErrNoCheckpoint, never fall back to the untrained model.
	manager := checkpoints.NewManager(filepath.Join(t.TempDir(), "never-written.json"), checkpoints.FormatJSON)
	if _, _, err := manager.Load(); !errors.Is(err, checkpoints.ErrNoCheckpoint) {
		t.Errorf("Load: got %v, want ErrNoCheckpoint", err)
	}
}

func TestTrainerWrapsEpochContext(t *testing.T) {
	// A divergent batch must abort the run and carry the epoch and phase.
	ds := dataset.NewInMemoryDataset(2)
	for i := 0; i < 8; i++ {
		ds.Add([]float64{math.NaN(), 0}, i%2)
	}
	trainLoader, err := dataloader.New(ds, dataloader.AllIndices(8), dataloader.Config{BatchSize: 4})
	if err != nil {
		t.Fatalf("New loader: %v", err)
	}
	validLoader, err := dataloader.New(ds, dataloader.AllIndices(8), dataloader.Config{BatchSize: 4})
	if err != nil {
		t.Fatalf("New loader: %v", err)
	}

	config := DefaultConfig()
	config.Epochs = 3
	trainer := NewTrainer(newToyAdapter(t, 2, 0.1), nil, config)
	trainer.SetOutput(&bytes.Buffer{})

	_, err = trainer.Fit(trainLoader, validLoader)
	if err == nil {
		t.Fatal("expected divergence to abort the run")
	}

	var divErr *model.DivergenceError
	if !errors.As(err, &divErr) {
		t.Errorf("error does not wrap DivergenceError: %v", err)
	}
	if !strings.Contains(err.Error(), "epoch 0") || !strings.Contains(err.Error(), "training") {
		t.Errorf("error lacks epoch/phase context: %v", err)
	}
}

func TestSchedulerReducesLearningRateDuringFit(t *testing.T) {
	// Validation labels are shifted relative to training labels, so the
	// better the model fits the training partition the worse the validation
	// loss gets: a guaranteed plateau that must trigger rate reductions.
	trainSet := toyDataset(t, 3, 10, 9)
	validSet := dataset.NewInMemoryDataset(3)
	for i := 0; i < trainSet.Len(); i++ {
		sample, err := trainSet.Get(i)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		validSet.Add(sample.Features, (sample.Label+1)%3)
	}

	trainLoader, err := dataloader.New(trainSet, dataloader.AllIndices(trainSet.Len()),
		dataloader.Config{BatchSize: 8, Shuffle: true, Seed: 9})
	if err != nil {
		t.Fatalf("New loader: %v", err)
	}
	validLoader, err := dataloader.New(validSet, dataloader.AllIndices(validSet.Len()),
		dataloader.Config{BatchSize: 8})
	if err != nil {
		t.Fatalf("New loader: %v", err)
	}

	config := DefaultConfig()
	config.NumClasses = 3
	config.Epochs = 10
	config.Patience = 2
	config.Factor = 0.5
	config.LearningRate = 0.5

	adapter := newToyAdapter(t, 3, config.LearningRate)
	trainer := NewTrainer(adapter, nil, config)
	trainer.SetOutput(&bytes.Buffer{})

	records, err := trainer.Fit(trainLoader, validLoader)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	prev := config.LearningRate
	reduced := false
	for _, r := range records {
		if r.LearningRate > prev {
			t.Fatalf("epoch %d: learning rate rose from %v to %v", r.Epoch, prev, r.LearningRate)
		}
		if r.LearningRate < prev {
			reduced = true
		}
		prev = r.LearningRate
	}
	if !reduced {
		t.Error("learning rate was never reduced across the plateau run")
	}
}
