// Package dataset provides labeled sample collections and class-balanced
// subset construction for classifier training.
package dataset

import (
	"fmt"
)

// Sample is a single labeled example: a model-ready feature vector and an
// integer class label.
type Sample struct {
	Features []float64
	Label    int
}

// Dataset is an indexable collection of labeled samples.
type Dataset interface {
	Len() int
	Get(index int) (Sample, error)
	NumClasses() int
}

// InMemoryDataset is a slice-backed Dataset.
type InMemoryDataset struct {
	samples    []Sample
	numClasses int
}

// NewInMemoryDataset creates an empty in-memory dataset for the given
// number of classes.
func NewInMemoryDataset(numClasses int) *InMemoryDataset {
	return &InMemoryDataset{numClasses: numClasses}
}

// Add appends a sample. The label must be in [0, numClasses).
func (d *InMemoryDataset) Add(features []float64, label int) error {
	if label < 0 || label >= d.numClasses {
		return fmt.Errorf("label %d out of range [0, %d)", label, d.numClasses)
	}
	d.samples = append(d.samples, Sample{Features: features, Label: label})
	return nil
}

// Len returns the number of samples in the dataset.
func (d *InMemoryDataset) Len() int {
	return len(d.samples)
}

// Get returns the sample at the given index.
func (d *InMemoryDataset) Get(index int) (Sample, error) {
	if index < 0 || index >= len(d.samples) {
		return Sample{}, fmt.Errorf("index %d out of range [0, %d)", index, len(d.samples))
	}
	return d.samples[index], nil
}

// NumClasses returns the number of classes.
func (d *InMemoryDataset) NumClasses() int {
	return d.numClasses
}
