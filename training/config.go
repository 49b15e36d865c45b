// Package training drives the epoch-level training loop: balanced subset
// construction feeds a split manager, batches feed the model adapter, a
// plateau scheduler adjusts the learning rate, and the best validation
// state is checkpointed for final evaluation.
package training

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the run parameters. Every field has a default; zero values
// are replaced by DefaultConfig values when loaded from a file.
type Config struct {
	NumClasses    int     `json:"num_classes"`
	BatchSize     int     `json:"batch_size"`
	Epochs        int     `json:"epochs"`
	LearningRate  float64 `json:"learning_rate"`
	QuotaPerClass int     `json:"quota_per_class"`
	SplitRatio    float64 `json:"split_ratio"`
	Patience      int     `json:"patience"`
	Factor        float64 `json:"factor"`
	Workers       int     `json:"workers"`
	Seed          int64   `json:"seed"` // 0 leaves shuffling unseeded
}

// DefaultConfig returns the default run parameters.
func DefaultConfig() Config {
	return Config{
		NumClasses:    2,
		BatchSize:     32,
		Epochs:        10,
		LearningRate:  0.01,
		QuotaPerClass: 1000,
		SplitRatio:    0.8,
		Patience:      3,
		Factor:        0.1,
		Workers:       1,
	}
}

// LoadConfig reads a JSON config file and overlays it on the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, config.Validate()
}

// Validate checks the parameters for values no run can work with.
func (c Config) Validate() error {
	if c.NumClasses < 2 {
		return fmt.Errorf("num_classes must be at least 2, got %d", c.NumClasses)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %v", c.LearningRate)
	}
	if c.QuotaPerClass <= 0 {
		return fmt.Errorf("quota_per_class must be positive, got %d", c.QuotaPerClass)
	}
	if c.SplitRatio <= 0 || c.SplitRatio >= 1 {
		return fmt.Errorf("split_ratio must be in (0, 1), got %v", c.SplitRatio)
	}
	if c.Patience <= 0 {
		return fmt.Errorf("patience must be positive, got %d", c.Patience)
	}
	if c.Factor <= 0 || c.Factor >= 1 {
		return fmt.Errorf("factor must be in (0, 1), got %v", c.Factor)
	}
	return nil
}
