package dataloader

import (
	"fmt"
	"io"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/finetune/dataset"
)

// Batch is a fixed-size group of samples stacked into a dense matrix (one
// row per sample) plus the matching label vector. The last batch of a
// partition may hold fewer rows.
type Batch struct {
	X      *mat.Dense
	Labels []int
}

// Config holds configuration for a DataLoader.
type Config struct {
	BatchSize int
	Shuffle   bool  // reshuffle index order at every Reset (training partitions)
	Workers   int   // parallel sample loaders per batch; <=1 loads serially
	Seed      int64 // shuffle seed; 0 leaves the loader unseeded
}

// DataLoader yields batches over a fixed index list of a dataset. Training
// loaders reshuffle their order every epoch; validation and test loaders
// iterate in the order given. Sample loading within a batch may be spread
// across workers, but batches are always emitted in the configured order.
type DataLoader struct {
	dataset   dataset.Dataset
	indices   []int
	batchSize int
	shuffle   bool
	workers   int
	rng       *rand.Rand
	position  int
	mu        sync.Mutex
}

// New creates a DataLoader over the given dataset indices.
func New(ds dataset.Dataset, indices []int, config Config) (*DataLoader, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", config.BatchSize)
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("empty index list")
	}
	for _, idx := range indices {
		if idx < 0 || idx >= ds.Len() {
			return nil, fmt.Errorf("index %d out of range [0, %d)", idx, ds.Len())
		}
	}

	owned := make([]int, len(indices))
	copy(owned, indices)

	var rng *rand.Rand
	if config.Seed != 0 {
		rng = rand.New(rand.NewSource(config.Seed))
	}

	dl := &DataLoader{
		dataset:   ds,
		indices:   owned,
		batchSize: config.BatchSize,
		shuffle:   config.Shuffle,
		workers:   config.Workers,
		rng:       rng,
	}
	dl.Reset()
	return dl, nil
}

// Reset rewinds the loader to the start of its partition, reshuffling the
// index order when shuffling is enabled.
func (dl *DataLoader) Reset() {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.position = 0
	if !dl.shuffle {
		return
	}
	swap := func(i, j int) {
		dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
	}
	if dl.rng != nil {
		dl.rng.Shuffle(len(dl.indices), swap)
	} else {
		rand.Shuffle(len(dl.indices), swap)
	}
}

// Len returns the number of samples in the partition.
func (dl *DataLoader) Len() int {
	return len(dl.indices)
}

// NumBatches returns the number of batches per epoch.
func (dl *DataLoader) NumBatches() int {
	return (len(dl.indices) + dl.batchSize - 1) / dl.batchSize
}

// HasNext reports whether the current epoch has more batches.
func (dl *DataLoader) HasNext() bool {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return dl.position < len(dl.indices)
}

// Next assembles and returns the next batch. It returns io.EOF when the
// epoch is exhausted; call Reset to start the next epoch.
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mu.Lock()
	if dl.position >= len(dl.indices) {
		dl.mu.Unlock()
		return nil, io.EOF
	}
	end := dl.position + dl.batchSize
	if end > len(dl.indices) {
		end = len(dl.indices)
	}
	batchIndices := dl.indices[dl.position:end]
	dl.position = end
	dl.mu.Unlock()

	return dl.loadBatch(batchIndices)
}

// loadBatch fetches every sample of the batch and stacks them row-wise.
// With more than one worker the fetches run in parallel, each writing its
// own rows, so the batch contents never depend on worker scheduling.
func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	first, err := dl.dataset.Get(indices[0])
	if err != nil {
		return nil, fmt.Errorf("failed to load sample %d: %w", indices[0], err)
	}

	rows := len(indices)
	cols := len(first.Features)
	x := mat.NewDense(rows, cols, nil)
	labels := make([]int, rows)

	setRow := func(row int, s dataset.Sample) error {
		if len(s.Features) != cols {
			return fmt.Errorf("sample %d: feature width %d, want %d", indices[row], len(s.Features), cols)
		}
		x.SetRow(row, s.Features)
		labels[row] = s.Label
		return nil
	}

	if err := setRow(0, first); err != nil {
		return nil, err
	}

	if dl.workers <= 1 || rows <= 1 {
		for i := 1; i < rows; i++ {
			s, err := dl.dataset.Get(indices[i])
			if err != nil {
				return nil, fmt.Errorf("failed to load sample %d: %w", indices[i], err)
			}
			if err := setRow(i, s); err != nil {
				return nil, err
			}
		}
		return &Batch{X: x, Labels: labels}, nil
	}

	workers := dl.workers
	if workers > rows-1 {
		workers = rows - 1
	}

	var wg sync.WaitGroup
	work := make(chan int)
	errCh := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				s, err := dl.dataset.Get(indices[i])
				if err == nil {
					err = setRow(i, s)
				}
				if err != nil {
					// Record the first failure but keep draining so the
					// feeder never blocks.
					select {
					case errCh <- fmt.Errorf("failed to load sample %d: %w", indices[i], err):
					default:
					}
				}
			}
		}()
	}

	for i := 1; i < rows; i++ {
		work <- i
	}
	close(work)
	wg.Wait()

	select {
	case err := <-errCh:
		return nil, err
	default:
	}

	return &Batch{X: x, Labels: labels}, nil
}
