// Package dataloader partitions sample indices into training and validation
// shares and exposes batched iteration over a dataset.
package dataloader

import "math/rand"

// Split partitions indices into a training share of exactly floor(ratio*N)
// indices and a validation share with the remainder. The input is permuted
// before the cut; pass a seeded *rand.Rand for a reproducible split, or nil
// to use an unseeded permutation. The input slice is not modified and the
// two returned slices are disjoint.
func Split(indices []int, ratio float64, rng *rand.Rand) (train, valid []int) {
	n := len(indices)
	shuffled := make([]int, n)
	copy(shuffled, indices)

	swap := func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	if rng != nil {
		rng.Shuffle(n, swap)
	} else {
		rand.Shuffle(n, swap)
	}

	cut := int(ratio * float64(n))
	if cut < 0 {
		cut = 0
	}
	if cut > n {
		cut = n
	}
	return shuffled[:cut], shuffled[cut:]
}

// AllIndices returns [0, n) in order, the identity index list for iterating
// a whole dataset (used for test partitions, which are never split).
func AllIndices(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}
