// Package checkpoints persists the best-performing model state for a
// training run. A run has exactly one checkpoint slot: every save replaces
// the previous snapshot, and writes are atomic so the slot is never left
// partially written.
package checkpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tsawler/finetune/model"
)

// ErrNoCheckpoint is returned by Load when nothing has been saved to the
// slot. Callers must not fall back to an untrained model.
var ErrNoCheckpoint = errors.New("no checkpoint saved")

// Format defines the serialization format.
type Format int

const (
	FormatJSON Format = iota
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "JSON"
	case FormatBinary:
		return "Binary"
	default:
		return "Unknown"
	}
}

// Meta describes the training state a checkpoint was taken at.
type Meta struct {
	Epoch     int       `json:"epoch"`
	Metric    float64   `json:"metric"`
	CreatedAt time.Time `json:"created_at"`
}

// checkpointFile is the JSON on-disk layout.
type checkpointFile struct {
	Version string           `json:"version"`
	Meta    Meta             `json:"meta"`
	Head    *model.HeadState `json:"head"`
}

const formatVersion = "1.0.0"

// Manager owns one checkpoint slot at a fixed path. Save persists
// unconditionally when called; gating saves on improvement is the training
// loop's responsibility, not the manager's.
type Manager struct {
	path   string
	format Format
}

// NewManager creates a manager for the given slot path.
func NewManager(path string, format Format) *Manager {
	return &Manager{path: path, format: format}
}

// Path returns the slot path.
func (m *Manager) Path() string {
	return m.path
}

// Save persists a snapshot tagged with the metric and epoch that produced
// it, overwriting any prior checkpoint. The snapshot is written to a
// temporary file and renamed into place so a crash mid-write cannot corrupt
// the slot.
func (m *Manager) Save(state *model.HeadState, metric float64, epoch int) error {
	if state == nil {
		return fmt.Errorf("nil state")
	}

	var data []byte
	var err error
	meta := Meta{Epoch: epoch, Metric: metric, CreatedAt: time.Now().UTC()}

	switch m.format {
	case FormatJSON:
		data, err = json.MarshalIndent(checkpointFile{
			Version: formatVersion,
			Meta:    meta,
			Head:    state,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode checkpoint: %w", err)
		}
	case FormatBinary:
		data = encodeBinary(state, meta)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", m.format)
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// Load retrieves the most recently saved snapshot. It returns
// ErrNoCheckpoint if the slot has never been written.
func (m *Manager) Load() (*model.HeadState, Meta, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Meta{}, ErrNoCheckpoint
		}
		return nil, Meta{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	switch m.format {
	case FormatJSON:
		var file checkpointFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, Meta{}, fmt.Errorf("failed to decode checkpoint: %w", err)
		}
		if file.Head == nil {
			return nil, Meta{}, fmt.Errorf("checkpoint has no model state")
		}
		return file.Head, file.Meta, nil
	case FormatBinary:
		return decodeBinary(data)
	default:
		return nil, Meta{}, fmt.Errorf("unsupported checkpoint format: %s", m.format)
	}
}

// Saved reports whether the slot currently holds a checkpoint.
func (m *Manager) Saved() bool {
	_, err := os.Stat(m.path)
	return err == nil
}
