package models

import (
	"errors"
	"sort"
	"time"
)

// Checkpoint is a snapshot of engine progress used to resume a run.
type Checkpoint struct {
	RunID          string           `json:"run_id"`
	AcceptedCount  int              `json:"accepted_count"`
	PersonalCount  int              `json:"personal_expression_count"`
	RejectedCount  int              `json:"rejected_count"`
	DuplicateCount int              `json:"duplicate_count"`
	PerCategory    map[Category]int `json:"per_category_counts"`
	PerReason      map[Reason]int   `json:"per_reason_counts,omitempty"`
	SeenIDs        []string         `json:"dedup_index"`
	LastQuery      string           `json:"last_query,omitempty"`
	LastCategory   Category         `json:"last_category,omitempty"`
	LastCursor     string           `json:"last_cursor,omitempty"`
	Completed      bool             `json:"completed"`
	SavedAt        time.Time        `json:"saved_at"`
}

// Validate reports structural problems that make a checkpoint unusable.
func (c Checkpoint) Validate() error {
	if c.SavedAt.IsZero() {
		return errors.New("saved_at is missing")
	}
	if c.AcceptedCount < 0 || c.PersonalCount < 0 || c.RejectedCount < 0 || c.DuplicateCount < 0 {
		return errors.New("negative counter")
	}
	if c.PersonalCount > c.AcceptedCount {
		return errors.New("personal expression count exceeds accepted count")
	}
	for category, n := range c.PerCategory {
		if n < 0 {
			return errors.New("negative count for category " + string(category))
		}
	}
	return nil
}

// Normalize sorts the seen IDs and drops empty ones so that saved snapshots are
// stable regardless of insertion order.
func (c *Checkpoint) Normalize() {
	ids := c.SeenIDs[:0]
	for _, id := range c.SeenIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	c.SeenIDs = ids
	if c.PerCategory == nil {
		c.PerCategory = make(map[Category]int)
	}
}
