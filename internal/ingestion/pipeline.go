package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

var (
	// ErrInterrupted is returned by Run when the context was cancelled before
	// the target was reached.
	ErrInterrupted = errors.New("collection interrupted")

	// ErrAuthExhausted is returned by Run when authentication kept failing
	// after every retry.
	ErrAuthExhausted = errors.New("authentication retries exhausted")

	// ErrRequestRejected is returned by Run when the source refused a request
	// as invalid, which usually means the configuration is wrong.
	ErrRequestRejected = errors.New("source rejected the request")
)

// Transport request outcomes reported to a Recorder.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeTransient   = "transient"
	OutcomeAuthFailed  = "auth_failed"
	OutcomeRejected    = "rejected"
)

// Recorder receives engine events, typically to update metrics.
type Recorder interface {
	BackoffObserver
	RecordAccepted(category models.Category, personal bool)
	RecordRejected(reason models.Reason)
	RecordTransport(outcome string)
	RecordCheckpoint(err error)
	SetProgress(accepted, target int)
}

type noopRecorder struct{}

func (noopRecorder) ObserveWait(string, time.Duration) {}
func (noopRecorder) RecordAccepted(models.Category, bool) {}
func (noopRecorder) RecordRejected(models.Reason) {}
func (noopRecorder) RecordTransport(string) {}
func (noopRecorder) RecordCheckpoint(error) {}
func (noopRecorder) SetProgress(int, int) {}

// EngineConfig holds the run parameters of the collection loop.
type EngineConfig struct {
	RunID             string
	Target            int
	CheckpointEvery   int
	ProgressEvery     int
	RotateProbability float64
	MaxEmptyPages     int
	Auth              RetryPolicy
}

// DefaultEngineConfig returns the defaults used when nothing is configured.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Target:            10000,
		CheckpointEvery:   10,
		ProgressEvery:     100,
		RotateProbability: 0.3,
		MaxEmptyPages:     5,
		Auth:              DefaultRetryPolicy(),
	}
}

// EngineDeps are the collaborators of the collection loop. Recorder, Mirror,
// Seeders, Clock and Rand are optional.
type EngineDeps struct {
	Connector   Connector
	Queries     QueryGenerator
	Filter      Classifier
	Controller  *Controller
	Accepted    AcceptedSink
	Rejected    RejectedSink
	Checkpoints CheckpointStore
	Recorder    Recorder
	Mirror      DedupMirror
	Seeders     []IDSource
	Clock       Clock
	Rand        Rand
}

// Engine turns a stream of search queries into deduplicated, filtered and
// checkpointed records. Run is strictly sequential: one transport call and
// one candidate at a time.
type Engine struct {
	cfg  EngineConfig
	deps EngineDeps

	dedup       *DedupIndex
	state       *EngineState
	logger      *slog.Logger
	forceRotate bool

	// ids taken since the last successful flush, not yet sent to the mirror
	unmirrored []string
}

// NewEngine validates deps and creates an engine ready to Run.
func NewEngine(cfg EngineConfig, deps EngineDeps, logger *slog.Logger) (*Engine, error) {
	switch {
	case deps.Connector == nil:
		return nil, errors.New("engine: connector is required")
	case deps.Queries == nil:
		return nil, errors.New("engine: query generator is required")
	case deps.Filter == nil:
		return nil, errors.New("engine: filter is required")
	case deps.Controller == nil:
		return nil, errors.New("engine: controller is required")
	case deps.Accepted == nil || deps.Rejected == nil:
		return nil, errors.New("engine: accepted and rejected sinks are required")
	case deps.Checkpoints == nil:
		return nil, errors.New("engine: checkpoint store is required")
	}
	if cfg.Target <= 0 {
		return nil, fmt.Errorf("engine: target must be positive, got %d", cfg.Target)
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 10
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 100
	}
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Rand == nil {
		deps.Rand = GlobalRand()
	}
	deps.Controller.SetObserver(deps.Recorder)

	return &Engine{
		cfg:    cfg,
		deps:   deps,
		dedup:  NewDedupIndex(),
		state:  NewEngineState(cfg.RunID, cfg.Target, deps.Clock.Now()),
		logger: logger.With("connector", deps.Connector.Name()),
	}, nil
}

// State exposes the live state for progress reporting.
func (e *Engine) State() *EngineState {
	return e.state
}

// Dedup exposes the deduplication index.
func (e *Engine) Dedup() *DedupIndex {
	return e.dedup
}

// Run executes the collection loop until the target is reached, ctx is
// cancelled or authentication is exhausted. Every exit path flushes the sinks
// and, when the flush succeeded, saves a final checkpoint.
func (e *Engine) Run(ctx context.Context) (err error) {
	e.restore(ctx)

	defer func() {
		e.shutdown(context.WithoutCancel(ctx), err)
	}()

	e.logger.Info("starting collection",
		"target", e.cfg.Target,
		"accepted", e.state.acceptedCount(),
		"known_ids", e.dedup.Size(),
	)

	if err := e.authenticate(ctx); err != nil {
		return err
	}

	for !e.state.reached() {
		if ctx.Err() != nil {
			return ErrInterrupted
		}

		if e.shouldRotate() {
			e.rotate()
		}

		page, err := e.fetch(ctx)
		if err != nil {
			if err := e.handleFetchError(ctx, err); err != nil {
				return err
			}
			continue
		}

		e.deps.Controller.OnSuccess()
		e.deps.Recorder.RecordTransport(OutcomeSuccess)
		e.processPage(ctx, page)
	}

	e.state.markCompleted()
	return nil
}

func (e *Engine) restore(ctx context.Context) {
	if cp, ok := e.deps.Checkpoints.Load(); ok {
		e.state.restore(cp)
		restored := e.dedup.Restore(cp.SeenIDs)
		e.logger.Info("resuming from checkpoint",
			"accepted", cp.AcceptedCount,
			"rejected", cp.RejectedCount,
			"ids", restored,
			"saved_at", cp.SavedAt,
		)
	}

	for _, src := range e.deps.Seeders {
		ids, err := src.KnownIDs(ctx)
		if err != nil {
			e.logger.Warn("failed to seed dedup index", "source", src.Name(), "error", err)
			continue
		}
		added := e.dedup.Restore(ids)
		e.logger.Info("seeded dedup index", "source", src.Name(), "ids", len(ids), "new", added)
	}

	if e.deps.Mirror != nil {
		ids, err := e.deps.Mirror.Members(ctx)
		if err != nil {
			e.logger.Warn("failed to read dedup mirror", "error", err)
		} else {
			added := e.dedup.Restore(ids)
			e.logger.Info("seeded dedup index", "source", "mirror", "ids", len(ids), "new", added)
		}
	}

	e.deps.Recorder.SetProgress(e.state.acceptedCount(), e.cfg.Target)
}

func (e *Engine) authenticate(ctx context.Context) error {
	clock := observingClock{Clock: e.deps.Clock, observer: e.deps.Recorder, kind: WaitAuth}
	attempt := 0
	err := Retry(ctx, clock, e.cfg.Auth, func(ctx context.Context) error {
		attempt++
		err := e.deps.Connector.Authenticate(ctx)
		if err != nil {
			e.deps.Recorder.RecordTransport(OutcomeAuthFailed)
			e.logger.Warn("authentication failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	e.deps.Controller.Abort()
	return fmt.Errorf("%w: %w", ErrAuthExhausted, err)
}

func (e *Engine) shouldRotate() bool {
	query, _, _ := e.state.position()
	if query == "" || e.forceRotate {
		return true
	}
	return e.cfg.RotateProbability > 0 && e.deps.Rand.Float64() < e.cfg.RotateProbability
}

func (e *Engine) rotate() {
	query, category := e.deps.Queries.Next()
	e.state.setQuery(query, category.OrDefault())
	e.forceRotate = false
	e.logger.Debug("rotated query", "query", query, "category", category)
}

func (e *Engine) fetch(ctx context.Context) (Page, error) {
	query, _, cursor := e.state.position()
	if _, err := e.deps.Controller.Pace(ctx, cursor != ""); err != nil {
		return Page{}, err
	}
	return e.deps.Connector.FetchPage(ctx, query, cursor)
}

// handleFetchError applies the controller policy to a failed fetch. It only
// returns an error when the run must stop.
func (e *Engine) handleFetchError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrInterrupted
	}

	switch Classify(err) {
	case models.ErrorKindRateLimited:
		e.deps.Recorder.RecordTransport(OutcomeRateLimited)
		var rl *RateLimitError
		errors.As(err, &rl)
		if _, err := e.deps.Controller.OnRateLimited(ctx, rl.RetryAfter); err != nil {
			return ErrInterrupted
		}

	case models.ErrorKindAuthenticationFailure:
		e.deps.Recorder.RecordTransport(OutcomeAuthFailed)
		e.logger.Warn("session rejected, re-authenticating", "error", err)
		return e.authenticate(ctx)

	case models.ErrorKindOperatorInterrupt:
		return ErrInterrupted

	case models.ErrorKindRequestRejected:
		e.deps.Recorder.RecordTransport(OutcomeRejected)
		e.deps.Controller.Abort()
		return fmt.Errorf("%w: %w", ErrRequestRejected, err)

	default:
		e.deps.Recorder.RecordTransport(OutcomeTransient)
		_, rotate, werr := e.deps.Controller.OnTransient(ctx, err)
		if werr != nil {
			return ErrInterrupted
		}
		if rotate {
			query, _, _ := e.state.position()
			e.logger.Warn("query exhausted after repeated failures", "query", query)
			e.forceRotate = true
		}
	}
	return nil
}

func (e *Engine) processPage(ctx context.Context, page Page) {
	query, category, _ := e.state.position()
	if page.NextCursor == "" {
		e.forceRotate = true
	}
	e.state.setCursor(page.NextCursor)

	accepted := 0
	for _, c := range page.Candidates {
		if e.state.reached() {
			break
		}
		if c.ID == "" {
			e.logger.Debug("skipping candidate without id")
			continue
		}
		if !e.dedup.CheckAndAdd(c.ID) {
			e.state.recordDuplicate()
			e.deps.Recorder.RecordRejected(models.ReasonDuplicate)
			continue
		}
		e.unmirrored = append(e.unmirrored, c.ID)

		if c.SourceQuery == "" {
			c.SourceQuery = query
		}
		if c.Permalink == "" {
			c.Permalink = models.BuildPermalink(c.Author.Handle, c.ID)
		}
		c.Engagement = models.NormalizeEngagement(c.Engagement)

		decision := e.deps.Filter.Classify(c)
		if decision.Include {
			e.accept(ctx, models.Accept(c, category, decision.Reason))
			accepted++
			continue
		}
		e.reject(ctx, c, decision.Reason)
	}

	if accepted == 0 {
		n := e.state.recordEmptyPage()
		e.logger.Debug("page yielded no accepted records",
			"query", query,
			"candidates", len(page.Candidates),
			"empty_pages", n,
		)
		if e.cfg.MaxEmptyPages > 0 && n >= e.cfg.MaxEmptyPages {
			e.forceRotate = true
		}
		return
	}
	e.state.resetEmptyPages()
}

func (e *Engine) accept(ctx context.Context, rec models.AcceptedRecord) {
	if err := e.deps.Accepted.Append(ctx, rec); err != nil {
		e.logger.Error("accepted records kept in memory after failed flush", "error", err)
	}
	n := e.state.recordAccepted(rec)
	e.deps.Recorder.RecordAccepted(rec.Category, rec.IsPersonalExpression)
	e.deps.Recorder.SetProgress(n, e.cfg.Target)

	if n%e.cfg.CheckpointEvery == 0 {
		if err := e.flush(ctx); err != nil {
			e.deps.Recorder.RecordCheckpoint(err)
			e.logger.Error("checkpoint skipped, buffered records not persisted",
				"kind", models.ErrorKindPersistenceFailure,
				"error", err,
			)
		} else {
			e.saveCheckpoint()
		}
		e.logProgress()
	} else if n%e.cfg.ProgressEvery == 0 {
		e.logProgress()
	}
}

func (e *Engine) reject(ctx context.Context, c models.CandidateRecord, reason models.Reason) {
	rec, err := models.Reject(c, reason)
	if err != nil {
		e.logger.Error("invalid rejection", "id", c.ID, "error", err)
		return
	}
	if err := e.deps.Rejected.Append(ctx, rec); err != nil {
		e.logger.Error("rejected records kept in memory after failed flush", "error", err)
	}
	e.state.recordRejected(reason)
	e.deps.Recorder.RecordRejected(reason)
}

// flush writes both sinks and then forwards the newly persisted ids to the
// dedup mirror. A checkpoint may only be saved after a successful flush, so
// its seen ids never cover records that exist only in memory.
func (e *Engine) flush(ctx context.Context) error {
	if err := e.deps.Accepted.Flush(ctx); err != nil {
		return fmt.Errorf("flush accepted: %w", err)
	}
	if err := e.deps.Rejected.Flush(ctx); err != nil {
		return fmt.Errorf("flush rejected: %w", err)
	}
	e.recordMirror(ctx)
	return nil
}

func (e *Engine) recordMirror(ctx context.Context) {
	if e.deps.Mirror == nil || len(e.unmirrored) == 0 {
		e.unmirrored = nil
		return
	}
	if err := e.deps.Mirror.Record(ctx, e.unmirrored...); err != nil {
		e.logger.Warn("failed to update dedup mirror", "error", err)
	}
	e.unmirrored = nil
}

func (e *Engine) saveCheckpoint() {
	cp := e.state.checkpoint(e.dedup.Snapshot(), e.deps.Clock.Now())
	err := e.deps.Checkpoints.Save(cp)
	e.deps.Recorder.RecordCheckpoint(err)
	if err != nil {
		e.logger.Error("failed to save checkpoint", "error", err)
	}
}

func (e *Engine) logProgress() {
	snap := e.state.Snapshot()
	pct := 100 * float64(snap.AcceptedCount) / float64(max(snap.Target, 1))
	e.logger.Info("progress",
		"accepted", snap.AcceptedCount,
		"target", snap.Target,
		"percent", fmt.Sprintf("%.1f", pct),
		"personal", snap.PersonalCount,
		"rejected", snap.RejectedCount,
		"duplicates", snap.DuplicateCount,
	)
}

func (e *Engine) shutdown(ctx context.Context, runErr error) {
	persisted := true
	if err := e.deps.Accepted.Close(ctx); err != nil {
		persisted = false
		e.logger.Error("failed to flush accepted records", "kind", models.ErrorKindPersistenceFailure, "error", err)
	}
	if err := e.deps.Rejected.Close(ctx); err != nil {
		persisted = false
		e.logger.Error("failed to flush rejected records", "kind", models.ErrorKindPersistenceFailure, "error", err)
	}
	if persisted {
		e.recordMirror(ctx)
		e.saveCheckpoint()
	} else {
		e.logger.Warn("final checkpoint skipped, the previous one stays in place")
	}

	snap := e.state.Snapshot()
	attrs := []any{
		"accepted", snap.AcceptedCount,
		"personal", snap.PersonalCount,
		"rejected", snap.RejectedCount,
		"duplicates", snap.DuplicateCount,
		"known_ids", e.dedup.Size(),
	}
	switch {
	case runErr == nil:
		e.logger.Info("collection completed", attrs...)
	case errors.Is(runErr, ErrInterrupted):
		e.logger.Warn("collection interrupted by operator", attrs...)
	default:
		e.logger.Error("collection aborted", append(attrs, "error", runErr)...)
	}
}

// observingClock reports sleeps to a BackoffObserver.
type observingClock struct {
	Clock
	observer BackoffObserver
	kind     string
}

func (c observingClock) Sleep(ctx context.Context, d time.Duration) error {
	if d > 0 {
		c.observer.ObserveWait(c.kind, d)
	}
	return c.Clock.Sleep(ctx, d)
}
