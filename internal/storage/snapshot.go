package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/replacementbot/internal/schedule"
)

// ErrSnapshotCorrupt is returned when the persisted snapshot cannot be decoded.
var ErrSnapshotCorrupt = errors.New("snapshot file is corrupt")

// SnapshotStore keeps the latest snapshot as one JSON file. Writes go to a
// temporary file in the same directory that is renamed over the old one, so
// readers see either the previous or the new snapshot, never a partial file.
type SnapshotStore struct {
	path string
	mu   sync.Mutex // serializes writers
}

// NewSnapshotStore creates a store at path, creating the directory if needed.
func NewSnapshotStore(path string) (*SnapshotStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &SnapshotStore{path: path}, nil
}

// Path returns the snapshot file location.
func (s *SnapshotStore) Path() string {
	return s.path
}

// Load returns the persisted snapshot, or nil when none has been saved yet.
func (s *SnapshotStore) Load() (*schedule.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap schedule.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if snap.Groups == nil {
		snap.Groups = make(map[string][]schedule.Record)
	}
	snap.Prune()
	return &snap, nil
}

// Save replaces the persisted snapshot as a whole.
func (s *SnapshotStore) Save(snap *schedule.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	if snap.Groups == nil {
		snap.Groups = make(map[string][]schedule.Record)
	}
	snap.Prune()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Differs reports whether two snapshots differ anywhere: date, raw date line or
// any group's records. A missing snapshot differs from any present one.
func Differs(a, b *schedule.Snapshot) bool {
	return !a.Equal(b)
}

// DateDiffers reports whether the schedule date changed between two snapshots.
func DateDiffers(a, b *schedule.Snapshot) bool {
	if a == nil || b == nil {
		return a != b
	}
	return a.DateValue() != b.DateValue()
}
