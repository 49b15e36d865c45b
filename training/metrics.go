package training

import (
	"fmt"
	"strings"
)

// ConfusionMatrix counts (true class, predicted class) pairs over an
// evaluation set. Rows are true classes, columns predicted classes.
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int
	TotalSamples int
}

// NewConfusionMatrix creates a zeroed numClasses x numClasses matrix.
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}
	return &ConfusionMatrix{NumClasses: numClasses, Matrix: matrix}
}

// Reset clears all counts.
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
	cm.TotalSamples = 0
}

// Add records one sample.
func (cm *ConfusionMatrix) Add(trueClass, predClass int) error {
	if trueClass < 0 || trueClass >= cm.NumClasses {
		return fmt.Errorf("true class %d out of range [0, %d)", trueClass, cm.NumClasses)
	}
	if predClass < 0 || predClass >= cm.NumClasses {
		return fmt.Errorf("predicted class %d out of range [0, %d)", predClass, cm.NumClasses)
	}
	cm.Matrix[trueClass][predClass]++
	cm.TotalSamples++
	return nil
}

// RowSum returns the number of true-class-i samples recorded, which always
// equals the count of class i in the evaluated partition.
func (cm *ConfusionMatrix) RowSum(i int) int {
	var sum int
	for _, v := range cm.Matrix[i] {
		sum += v
	}
	return sum
}

// Accuracy returns the fraction of samples on the diagonal.
func (cm *ConfusionMatrix) Accuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0
	}
	var correct int
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}
	return float64(correct) / float64(cm.TotalSamples)
}

// MacroPrecision averages per-class precision, skipping classes that were
// never predicted.
func (cm *ConfusionMatrix) MacroPrecision() float64 {
	var total float64
	var counted int
	for j := 0; j < cm.NumClasses; j++ {
		var predicted int
		for i := 0; i < cm.NumClasses; i++ {
			predicted += cm.Matrix[i][j]
		}
		if predicted == 0 {
			continue
		}
		total += float64(cm.Matrix[j][j]) / float64(predicted)
		counted++
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

// MacroRecall averages per-class recall, skipping classes with no samples.
func (cm *ConfusionMatrix) MacroRecall() float64 {
	var total float64
	var counted int
	for i := 0; i < cm.NumClasses; i++ {
		actual := cm.RowSum(i)
		if actual == 0 {
			continue
		}
		total += float64(cm.Matrix[i][i]) / float64(actual)
		counted++
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

// String renders the matrix as a table with true classes down the rows.
func (cm *ConfusionMatrix) String() string {
	var b strings.Builder
	b.WriteString("true\\pred")
	for j := 0; j < cm.NumClasses; j++ {
		fmt.Fprintf(&b, "%8d", j)
	}
	b.WriteByte('\n')
	for i := 0; i < cm.NumClasses; i++ {
		fmt.Fprintf(&b, "%9d", i)
		for j := 0; j < cm.NumClasses; j++ {
			fmt.Fprintf(&b, "%8d", cm.Matrix[i][j])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
