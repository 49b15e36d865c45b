package training

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	contents := `{"num_classes": 5, "epochs": 3, "learning_rate": 0.25}`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if config.NumClasses != 5 || config.Epochs != 3 || config.LearningRate != 0.25 {
		t.Errorf("overridden fields not applied: %+v", config)
	}
	defaults := DefaultConfig()
	if config.BatchSize != defaults.BatchSize || config.Patience != defaults.Patience {
		t.Errorf("defaults not preserved: %+v", config)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"one class", func(c *Config) { c.NumClasses = 1 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"zero epochs", func(c *Config) { c.Epochs = 0 }},
		{"negative lr", func(c *Config) { c.LearningRate = -1 }},
		{"zero quota", func(c *Config) { c.QuotaPerClass = 0 }},
		{"ratio one", func(c *Config) { c.SplitRatio = 1 }},
		{"zero patience", func(c *Config) { c.Patience = 0 }},
		{"factor one", func(c *Config) { c.Factor = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
