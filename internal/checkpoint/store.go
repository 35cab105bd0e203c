// Package checkpoint persists engine progress to a JSON file so an interrupted
// run can resume where it stopped.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/sink"
)

// Store reads and writes a single checkpoint file. It satisfies
// ingestion.CheckpointStore.
type Store struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// New returns a store backed by path. The file is created on the first Save.
func New(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger.With("checkpoint", path)}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string {
	return s.path
}

// Save atomically replaces the checkpoint file with cp.
func (s *Store) Save(cp models.Checkpoint) error {
	cp.SeenIDs = append([]string(nil), cp.SeenIDs...)
	cp.Normalize()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := sink.WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	s.logger.Debug("checkpoint saved", "accepted", cp.AcceptedCount, "seen", len(cp.SeenIDs))
	return nil
}

// Load returns the stored checkpoint. A missing, unreadable or invalid file is
// reported as absent so the run starts fresh.
func (s *Store) Load() (models.Checkpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("cannot read checkpoint, starting fresh", "error", err)
		}
		return models.Checkpoint{}, false
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn("malformed checkpoint, starting fresh", "kind", models.ErrorKindCheckpointCorruption, "error", err)
		return models.Checkpoint{}, false
	}
	if err := cp.Validate(); err != nil {
		s.logger.Warn("invalid checkpoint, starting fresh", "kind", models.ErrorKindCheckpointCorruption, "error", err)
		return models.Checkpoint{}, false
	}
	cp.Normalize()
	return cp, true
}

// Reset removes the checkpoint file. A missing file is not an error.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}
