package dataset

import "fmt"

// BalancedIndices scans the dataset once in index order and greedily selects
// up to quota samples per class. It stops early once every class has reached
// its quota. A class with fewer than quota samples in the whole dataset
// simply contributes fewer; that is not an error.
//
// The returned indices preserve dataset encounter order, not class grouping.
// Reproducibility of the selection is therefore exactly the reproducibility
// of the dataset's own enumeration order.
func BalancedIndices(d Dataset, quota int) ([]int, error) {
	if quota <= 0 {
		return nil, fmt.Errorf("quota must be positive, got %d", quota)
	}

	numClasses := d.NumClasses()
	counts := make([]int, numClasses)
	indices := make([]int, 0, numClasses*quota)
	full := 0

	for i := 0; i < d.Len(); i++ {
		sample, err := d.Get(i)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		if sample.Label < 0 || sample.Label >= numClasses {
			return nil, fmt.Errorf("sample %d: label %d out of range [0, %d)", i, sample.Label, numClasses)
		}
		if counts[sample.Label] >= quota {
			continue
		}
		counts[sample.Label]++
		indices = append(indices, i)
		if counts[sample.Label] == quota {
			full++
			if full == numClasses {
				break
			}
		}
	}

	return indices, nil
}

// ClassCounts returns the number of samples per class among the given
// dataset indices.
func ClassCounts(d Dataset, indices []int) ([]int, error) {
	counts := make([]int, d.NumClasses())
	for _, idx := range indices {
		sample, err := d.Get(idx)
		if err != nil {
			return nil, err
		}
		counts[sample.Label]++
	}
	return counts, nil
}
