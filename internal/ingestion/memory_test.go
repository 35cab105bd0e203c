package ingestion

import (
	"context"
	"sync"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

// MemorySink is an in-memory RecordSink. Records move from the pending buffer
// to Persisted when the threshold is reached or Flush is called.
type MemorySink[T any] struct {
	mu        sync.Mutex
	threshold int
	pending   []T
	persisted []T
	flushErr  error
	closed    bool
}

// NewMemorySink creates a sink that auto-flushes every threshold records.
// A threshold of zero disables auto-flush.
func NewMemorySink[T any](threshold int) *MemorySink[T] {
	return &MemorySink[T]{threshold: threshold}
}

// Append buffers rec.
func (s *MemorySink[T]) Append(ctx context.Context, rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, rec)
	if s.threshold > 0 && len(s.pending) >= s.threshold {
		return s.flushLocked()
	}
	return nil
}

// Flush moves pending records to Persisted.
func (s *MemorySink[T]) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Close flushes and marks the sink closed.
func (s *MemorySink[T]) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.flushLocked()
}

// FailFlushes makes every subsequent flush fail with err until it is reset
// with nil.
func (s *MemorySink[T]) FailFlushes(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushErr = err
}

// Persisted returns a copy of the flushed records.
func (s *MemorySink[T]) Persisted() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.persisted...)
}

// Pending returns the number of buffered records.
func (s *MemorySink[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Closed reports whether Close was called.
func (s *MemorySink[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MemorySink[T]) flushLocked() error {
	if s.flushErr != nil {
		return s.flushErr
	}
	s.persisted = append(s.persisted, s.pending...)
	s.pending = nil
	return nil
}

// MemoryCheckpointStore keeps the last saved checkpoint in memory.
type MemoryCheckpointStore struct {
	mu    sync.Mutex
	cp    models.Checkpoint
	ok    bool
	saves int
}

// NewMemoryCheckpointStore creates an empty store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{}
}

// Load returns the last saved checkpoint.
func (s *MemoryCheckpointStore) Load() (models.Checkpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cp, s.ok
}

// Save replaces the stored checkpoint.
func (s *MemoryCheckpointStore) Save(cp models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.SeenIDs = append([]string(nil), cp.SeenIDs...)
	cp.Normalize()
	s.cp = cp
	s.ok = true
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryCheckpointStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
