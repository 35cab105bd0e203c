package ingestion

import (
	"context"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/filter"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

// RecordSink buffers records and writes them to stable storage.
type RecordSink[T any] interface {
	// Append buffers rec and flushes once the auto-flush threshold is reached.
	// A returned error means the flush failed on every target; the record is
	// still buffered.
	Append(ctx context.Context, rec T) error

	// Flush writes every buffered record. On failure the buffer is kept.
	Flush(ctx context.Context) error

	// Close flushes and releases the sink.
	Close(ctx context.Context) error
}

// AcceptedSink persists accepted records.
type AcceptedSink = RecordSink[models.AcceptedRecord]

// RejectedSink persists rejected records.
type RejectedSink = RecordSink[models.RejectedRecord]

// CheckpointStore saves and restores engine progress.
type CheckpointStore interface {
	// Load returns the saved checkpoint. It reports false when there is none
	// or when the stored one is unusable.
	Load() (models.Checkpoint, bool)

	// Save overwrites the stored checkpoint.
	Save(cp models.Checkpoint) error
}

// QueryGenerator produces the next search query and its category.
type QueryGenerator interface {
	Next() (query string, category models.Category)
}

// Classifier decides whether a candidate is accepted.
type Classifier interface {
	Classify(c models.CandidateRecord) filter.Decision
}

// IDSource supplies identifiers processed by earlier runs, such as prior
// output files or a database mirror.
type IDSource interface {
	Name() string
	KnownIDs(ctx context.Context) ([]string, error)
}
