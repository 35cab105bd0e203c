// Package sink persists accepted and rejected records as paired CSV and JSON
// files. Each flush rewrites both files with every record of the run, so the
// two formats always hold the same set.
package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Flush targets reported to a FlushObserver.
const (
	TargetPrimary  = "primary"
	TargetFallback = "fallback"
	TargetFailed   = "failed"
)

// Mirror receives every batch after it was written to disk, e.g. a database
// copy of the output.
type Mirror[T any] interface {
	Upsert(ctx context.Context, recs []T) error
}

// FlushObserver is notified of each flush outcome.
type FlushObserver interface {
	ObserveFlush(sink, target string, records int)
}

// Options configures a FileSink.
type Options struct {
	// Name labels the sink in logs and metrics, e.g. "accepted".
	Name string
	Dir  string
	// Base is the file name without extension, e.g. "tweets_20240501_120000".
	Base string
	// Threshold is the number of pending records that triggers a flush.
	// Zero disables auto-flush.
	Threshold int
}

// FileSink buffers records and rewrites {Base}.csv and {Base}.json in Dir on
// every flush. When the primary files cannot be written it falls back to
// {Base}.backup.csv and {Base}.backup.json. A FileSink is safe for concurrent
// use.
type FileSink[T any] struct {
	opts     Options
	codec    Codec[T]
	logger   *slog.Logger
	mirror   Mirror[T]
	observer FlushObserver

	writeFile func(path string, data []byte) error
	rename    func(oldpath, newpath string) error

	mu        sync.Mutex
	persisted []T
	pending   []T
}

// New creates a sink. Nothing is written until the first flush.
func New[T any](opts Options, codec Codec[T], logger *slog.Logger) (*FileSink[T], error) {
	if opts.Dir == "" || opts.Base == "" {
		return nil, errors.New("sink: dir and base name are required")
	}
	if opts.Threshold < 0 {
		return nil, fmt.Errorf("sink: negative threshold %d", opts.Threshold)
	}
	return &FileSink[T]{
		opts:      opts,
		codec:     codec,
		logger:    logger.With("sink", opts.Name),
		writeFile: WriteFileAtomic,
		rename:    os.Rename,
	}, nil
}

// SetMirror installs a mirror that receives each flushed batch.
func (s *FileSink[T]) SetMirror(m Mirror[T]) {
	s.mirror = m
}

// SetObserver installs a flush observer.
func (s *FileSink[T]) SetObserver(o FlushObserver) {
	s.observer = o
}

// Paths returns the primary CSV and JSON paths.
func (s *FileSink[T]) Paths() (csvPath, jsonPath string) {
	return s.path(".csv"), s.path(".json")
}

// Files returns every file the sink may have written, primary first.
func (s *FileSink[T]) Files() []string {
	return []string{
		s.path(".csv"), s.path(".json"),
		s.path(".backup.csv"), s.path(".backup.json"),
	}
}

// Append buffers rec and flushes once Threshold records are pending.
func (s *FileSink[T]) Append(ctx context.Context, rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, rec)
	if s.opts.Threshold > 0 && len(s.pending) >= s.opts.Threshold {
		return s.flushLocked(ctx)
	}
	return nil
}

// Flush writes every buffered record. Either the whole buffer is written and
// cleared, or it is kept for the next attempt and an error is returned.
func (s *FileSink[T]) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// Close flushes the buffer.
func (s *FileSink[T]) Close(ctx context.Context) error {
	return s.Flush(ctx)
}

// Len returns the number of persisted and pending records.
func (s *FileSink[T]) Len() (persisted, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.persisted), len(s.pending)
}

func (s *FileSink[T]) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	all := make([]T, 0, len(s.persisted)+len(s.pending))
	all = append(all, s.persisted...)
	all = append(all, s.pending...)

	csvData, err := s.encodeCSV(all)
	if err != nil {
		return fmt.Errorf("encode %s csv: %w", s.opts.Name, err)
	}
	jsonData, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s json: %w", s.opts.Name, err)
	}

	target := TargetPrimary
	primaryErr := s.writePair(s.path(".csv"), s.path(".json"), csvData, jsonData)
	if primaryErr != nil {
		s.logger.Error("failed to write output, trying fallback", "path", s.path(".csv"), "error", primaryErr)

		target = TargetFallback
		if err := s.writePair(s.path(".backup.csv"), s.path(".backup.json"), csvData, jsonData); err != nil {
			s.notify(TargetFailed, len(s.pending))
			s.logger.Error("fallback write failed, keeping records in memory",
				"path", s.path(".backup.csv"),
				"pending", len(s.pending),
				"error", err,
			)
			return fmt.Errorf("flush %s: %w", s.opts.Name, errors.Join(primaryErr, err))
		}
		s.logger.Warn("records saved to fallback files", "path", s.path(".backup.csv"))
	}

	batch := s.pending
	s.persisted = all
	s.pending = nil
	s.notify(target, len(batch))
	s.logger.Debug("flushed records", "records", len(batch), "total", len(all), "target", target)

	if s.mirror != nil {
		if err := s.mirror.Upsert(ctx, batch); err != nil {
			s.logger.Warn("failed to mirror flushed records", "records", len(batch), "error", err)
		}
	}
	return nil
}

// writePair stages both files next to their targets and moves them into
// place only once both were written. If the JSON cannot be moved the CSV is
// put back, so a pair never holds two different record sets.
func (s *FileSink[T]) writePair(csvPath, jsonPath string, csvData, jsonData []byte) error {
	csvStage, jsonStage := stagedPath(csvPath), stagedPath(jsonPath)
	defer os.Remove(csvStage)
	defer os.Remove(jsonStage)

	if err := s.writeFile(csvStage, csvData); err != nil {
		return err
	}
	if err := s.writeFile(jsonStage, jsonData); err != nil {
		return err
	}

	prevCSV, err := os.ReadFile(csvPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", csvPath, err)
	}
	if err := s.rename(csvStage, csvPath); err != nil {
		return fmt.Errorf("rename to %s: %w", csvPath, err)
	}
	if err := s.rename(jsonStage, jsonPath); err != nil {
		if rerr := restoreFile(csvPath, prevCSV); rerr != nil {
			s.logger.Error("failed to restore csv after json write failed", "path", csvPath, "error", rerr)
		}
		return fmt.Errorf("rename to %s: %w", jsonPath, err)
	}
	return nil
}

// restoreFile puts back the previous content of path, removing it when there
// was none.
func restoreFile(path string, prev []byte) error {
	if prev == nil {
		return os.Remove(path)
	}
	return WriteFileAtomic(path, prev)
}

func stagedPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".staged")
}

func (s *FileSink[T]) encodeCSV(recs []T) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(s.codec.Header); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if err := w.Write(s.codec.Row(rec)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func (s *FileSink[T]) notify(target string, n int) {
	if s.observer != nil {
		s.observer.ObserveFlush(s.opts.Name, target, n)
	}
}

func (s *FileSink[T]) path(ext string) string {
	return filepath.Join(s.opts.Dir, s.opts.Base+ext)
}
