package model

import (
	"fmt"
	"sync"
)

// SGD implements stochastic gradient descent over the head parameters. The
// learning rate is mutable so a scheduler can reduce it between epochs; the
// optimizer itself never changes it.
type SGD struct {
	learningRate float64
	weightDecay  float64
	mu           sync.RWMutex
}

// NewSGD creates an SGD optimizer.
func NewSGD(lr, weightDecay float64) (*SGD, error) {
	if lr <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", lr)
	}
	if weightDecay < 0 {
		return nil, fmt.Errorf("weight decay must be non-negative, got %v", weightDecay)
	}
	return &SGD{learningRate: lr, weightDecay: weightDecay}, nil
}

// LR returns the current learning rate.
func (s *SGD) LR() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.learningRate
}

// SetLR sets the learning rate.
func (s *SGD) SetLR(lr float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learningRate = lr
}

// Step applies one update: w -= lr * (grad + weightDecay*w).
func (s *SGD) Step(head *LinearHead) {
	lr := s.LR()

	w := head.w.RawMatrix().Data
	gw := head.gradW.RawMatrix().Data
	for i := range w {
		g := gw[i]
		if s.weightDecay > 0 {
			g += s.weightDecay * w[i]
		}
		w[i] -= lr * g
	}
	for j := range head.b {
		head.b[j] -= lr * head.gradB[j]
	}
}
