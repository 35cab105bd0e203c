package ingestion

import (
	"sync"
	"time"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

// EngineState holds the counters and query position of a collection run. The
// engine loop is its only writer; other goroutines read it through Snapshot.
type EngineState struct {
	mu sync.RWMutex

	runID      string
	target     int
	startedAt  time.Time
	accepted   int
	personal   int
	rejected   int
	duplicates int

	perCategory map[models.Category]int
	perReason   map[models.Reason]int

	query      string
	category   models.Category
	cursor     Cursor
	emptyPages int
	completed  bool
}

// Snapshot is a read-only copy of EngineState.
type Snapshot struct {
	RunID          string                  `json:"run_id"`
	Target         int                     `json:"target"`
	StartedAt      time.Time               `json:"started_at"`
	AcceptedCount  int                     `json:"accepted_count"`
	PersonalCount  int                     `json:"personal_expression_count"`
	RejectedCount  int                     `json:"rejected_count"`
	DuplicateCount int                     `json:"duplicate_count"`
	PerCategory    map[models.Category]int `json:"per_category_counts"`
	PerReason      map[models.Reason]int   `json:"per_reason_counts"`
	Query          string                  `json:"query"`
	Category       models.Category         `json:"category"`
	EmptyPages     int                     `json:"empty_pages"`
	Completed      bool                    `json:"completed"`
}

// NewEngineState creates an empty state for a run.
func NewEngineState(runID string, target int, startedAt time.Time) *EngineState {
	return &EngineState{
		runID:       runID,
		target:      target,
		startedAt:   startedAt,
		perCategory: make(map[models.Category]int),
		perReason:   make(map[models.Reason]int),
	}
}

// Snapshot returns a copy safe to hand to other goroutines.
func (s *EngineState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		RunID:          s.runID,
		Target:         s.target,
		StartedAt:      s.startedAt,
		AcceptedCount:  s.accepted,
		PersonalCount:  s.personal,
		RejectedCount:  s.rejected,
		DuplicateCount: s.duplicates,
		PerCategory:    make(map[models.Category]int, len(s.perCategory)),
		PerReason:      make(map[models.Reason]int, len(s.perReason)),
		Query:          s.query,
		Category:       s.category,
		EmptyPages:     s.emptyPages,
		Completed:      s.completed,
	}
	for k, v := range s.perCategory {
		snap.PerCategory[k] = v
	}
	for k, v := range s.perReason {
		snap.PerReason[k] = v
	}
	return snap
}

// restore loads counters and the query position from a checkpoint.
func (s *EngineState) restore(cp models.Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accepted = cp.AcceptedCount
	s.personal = cp.PersonalCount
	s.rejected = cp.RejectedCount
	s.duplicates = cp.DuplicateCount
	for k, v := range cp.PerCategory {
		s.perCategory[k] = v
	}
	for k, v := range cp.PerReason {
		s.perReason[k] = v
	}
	if cp.LastQuery != "" && cp.LastCategory.IsValid() {
		s.query = cp.LastQuery
		s.category = cp.LastCategory
		s.cursor = Cursor(cp.LastCursor)
	}
}

// checkpoint builds a checkpoint from the current counters.
func (s *EngineState) checkpoint(seen []string, savedAt time.Time) models.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := models.Checkpoint{
		RunID:          s.runID,
		AcceptedCount:  s.accepted,
		PersonalCount:  s.personal,
		RejectedCount:  s.rejected,
		DuplicateCount: s.duplicates,
		PerCategory:    make(map[models.Category]int, len(s.perCategory)),
		PerReason:      make(map[models.Reason]int, len(s.perReason)),
		SeenIDs:        seen,
		LastQuery:      s.query,
		LastCategory:   s.category,
		LastCursor:     string(s.cursor),
		Completed:      s.completed,
		SavedAt:        savedAt,
	}
	for k, v := range s.perCategory {
		cp.PerCategory[k] = v
	}
	for k, v := range s.perReason {
		cp.PerReason[k] = v
	}
	return cp
}

func (s *EngineState) reached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accepted >= s.target
}

func (s *EngineState) acceptedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accepted
}

func (s *EngineState) position() (string, models.Category, Cursor) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query, s.category, s.cursor
}

func (s *EngineState) setQuery(query string, category models.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = query
	s.category = category
	s.cursor = ""
	s.emptyPages = 0
}

func (s *EngineState) setCursor(c Cursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = c
}

// recordEmptyPage increments the empty page counter and returns it.
func (s *EngineState) recordEmptyPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emptyPages++
	return s.emptyPages
}

func (s *EngineState) resetEmptyPages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emptyPages = 0
}

// recordAccepted counts rec and returns the new accepted total.
func (s *EngineState) recordAccepted(rec models.AcceptedRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted++
	if rec.IsPersonalExpression {
		s.personal++
	}
	s.perCategory[rec.Category]++
	return s.accepted
}

func (s *EngineState) recordRejected(reason models.Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
	s.perReason[reason]++
}

func (s *EngineState) recordDuplicate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duplicates++
	s.perReason[models.ReasonDuplicate]++
}

func (s *EngineState) markCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
}
