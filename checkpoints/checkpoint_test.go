package checkpoints

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tsawler/finetune/model"
)

func testState() *model.HeadState {
	return &model.HeadState{
		InputDim:   3,
		NumClasses: 2,
		Weights:    []float64{0.1, -0.2, 0.3, -0.4, 0.5, -0.6},
		Bias:       []float64{0.01, -0.02},
	}
}

func TestLoadBeforeSave(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatBinary} {
		manager := NewManager(filepath.Join(t.TempDir(), "ckpt"), format)
		if _, _, err := manager.Load(); !errors.Is(err, ErrNoCheckpoint) {
			t.Errorf("%s: Load before Save: got %v, want ErrNoCheckpoint", format, err)
		}
		if manager.Saved() {
			t.Errorf("%s: Saved reported true before any Save", format)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatBinary} {
		t.Run(format.String(), func(t *testing.T) {
			manager := NewManager(filepath.Join(t.TempDir(), "ckpt"), format)
			state := testState()

			if err := manager.Save(state, 0.42, 7); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if !manager.Saved() {
				t.Fatal("Saved reported false after Save")
			}

			loaded, meta, err := manager.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if meta.Epoch != 7 {
				t.Errorf("epoch: got %d, want 7", meta.Epoch)
			}
			if math.Abs(meta.Metric-0.42) > 1e-15 {
				t.Errorf("metric: got %v, want 0.42", meta.Metric)
			}
			if loaded.InputDim != state.InputDim || loaded.NumClasses != state.NumClasses {
				t.Errorf("shape: got %dx%d, want %dx%d",
					loaded.InputDim, loaded.NumClasses, state.InputDim, state.NumClasses)
			}
			for i := range state.Weights {
				if loaded.Weights[i] != state.Weights[i] {
					t.Fatalf("weight %d: got %v, want %v", i, loaded.Weights[i], state.Weights[i])
				}
			}
			for i := range state.Bias {
				if loaded.Bias[i] != state.Bias[i] {
					t.Fatalf("bias %d: got %v, want %v", i, loaded.Bias[i], state.Bias[i])
				}
			}
		})
	}
}

func TestSaveOverwritesSingleSlot(t *testing.T) {
	dir := t.TempDir()
	manager := NewManager(filepath.Join(dir, "ckpt"), FormatJSON)

	if err := manager.Save(testState(), 0.9, 0); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := manager.Save(testState(), 0.5, 3); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	_, meta, err := manager.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if meta.Metric != 0.5 || meta.Epoch != 3 {
		t.Errorf("slot holds metric=%v epoch=%d, want the latest save", meta.Metric, meta.Epoch)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".checkpoint-") {
			t.Errorf("temporary file %s left behind", entry.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("slot directory holds %d files, want 1", len(entries))
	}
}

func TestBinaryRejectsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt")
	manager := NewManager(path, FormatBinary)
	if err := manager.Save(testState(), 0.1, 1); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := os.WriteFile(path, data[:len(data)/2], 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, _, err := manager.Load(); err == nil {
		t.Error("expected error loading truncated checkpoint")
	}
}
