package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Transform maps a raw image file to a model-ready feature vector. The
// decoding, augmentation and normalization pipeline is supplied by the
// caller; the orchestration core treats it as opaque.
type Transform func(path string) ([]float64, error)

// ImageFolderDataset is a labeled dataset loaded from a directory structure
// where each subdirectory is one class.
type ImageFolderDataset struct {
	imagePaths []string
	labels     []int
	classNames []string
	classToIdx map[string]int
	transform  Transform
}

// NewImageFolderDataset scans root for class subdirectories and builds a
// dataset over the image files they contain. Class indices are assigned in
// sorted directory-name order so enumeration is stable across runs.
func NewImageFolderDataset(root string, extensions []string, transform Transform) (*ImageFolderDataset, error) {
	if transform == nil {
		return nil, fmt.Errorf("transform is required")
	}
	if len(extensions) == 0 {
		extensions = []string{".jpg", ".jpeg", ".png", ".bmp"}
	}

	dataset := &ImageFolderDataset{
		classToIdx: make(map[string]int),
		transform:  transform,
	}

	classes, err := filepath.Glob(filepath.Join(root, "*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	sort.Strings(classes)

	classIdx := 0
	for _, classPath := range classes {
		info, err := os.Stat(classPath)
		if err != nil || !info.IsDir() {
			continue
		}

		className := filepath.Base(classPath)
		dataset.classNames = append(dataset.classNames, className)
		dataset.classToIdx[className] = classIdx

		var files []string
		for _, ext := range extensions {
			matches, err := filepath.Glob(filepath.Join(classPath, "*"+ext))
			if err != nil {
				continue
			}
			files = append(files, matches...)
		}
		sort.Strings(files)

		for _, file := range files {
			dataset.imagePaths = append(dataset.imagePaths, file)
			dataset.labels = append(dataset.labels, classIdx)
		}

		classIdx++
	}

	if len(dataset.imagePaths) == 0 {
		return nil, fmt.Errorf("no images found in %s", root)
	}

	return dataset, nil
}

// Len returns the number of images in the dataset.
func (d *ImageFolderDataset) Len() int {
	return len(d.imagePaths)
}

// Get loads the image at the given index through the transform and returns
// it with its class label.
func (d *ImageFolderDataset) Get(index int) (Sample, error) {
	if index < 0 || index >= len(d.imagePaths) {
		return Sample{}, fmt.Errorf("index %d out of range [0, %d)", index, len(d.imagePaths))
	}
	features, err := d.transform(d.imagePaths[index])
	if err != nil {
		return Sample{}, fmt.Errorf("transform %s: %w", d.imagePaths[index], err)
	}
	return Sample{Features: features, Label: d.labels[index]}, nil
}

// NumClasses returns the number of classes.
func (d *ImageFolderDataset) NumClasses() int {
	return len(d.classNames)
}

// ClassNames returns the class names in label order.
func (d *ImageFolderDataset) ClassNames() []string {
	return d.classNames
}

// ClassDistribution returns the number of samples per class name.
func (d *ImageFolderDataset) ClassDistribution() map[string]int {
	dist := make(map[string]int)
	for _, label := range d.labels {
		dist[d.classNames[label]]++
	}
	return dist
}
