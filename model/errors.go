package model

import "fmt"

// ShapeError reports a batch whose feature width disagrees with the input
// width the adapter was built for. It indicates a configuration mistake, so
// callers must abort the run rather than retry.
type ShapeError struct {
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("input width mismatch: model expects %d features, batch has %d", e.Want, e.Got)
}

// DivergenceError reports a non-finite loss. Continuing past it would
// corrupt best-checkpoint selection, so it is always propagated.
type DivergenceError struct {
	Loss float64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("training diverged: loss is %v", e.Loss)
}
