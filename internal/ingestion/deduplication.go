package ingestion

import (
	"context"
	"sort"
	"sync"
)

// DedupMirror is an optional external copy of the seen set, used to share
// progress between runs that do not share a checkpoint file.
type DedupMirror interface {
	Record(ctx context.Context, ids ...string) error
	Members(ctx context.Context) ([]string, error)
}

// DedupIndex is the set of candidate IDs already processed. It only grows.
type DedupIndex struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedupIndex creates an empty index.
func NewDedupIndex() *DedupIndex {
	return &DedupIndex{seen: make(map[string]struct{})}
}

// Contains reports whether id has been seen.
func (d *DedupIndex) Contains(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// Add records id as seen. Adding an existing id is a no-op.
func (d *DedupIndex) Add(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = struct{}{}
}

// CheckAndAdd inserts id and reports whether it was new. The test and the
// insert happen under one lock so a given id is admitted at most once.
func (d *DedupIndex) CheckAndAdd(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}

// Restore merges a snapshot into the index and returns how many IDs were new.
func (d *DedupIndex) Restore(ids []string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	added := 0
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := d.seen[id]; !ok {
			d.seen[id] = struct{}{}
			added++
		}
	}
	return added
}

// Snapshot returns the seen IDs in sorted order.
func (d *DedupIndex) Snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.seen))
	for id := range d.seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Size returns the number of seen IDs.
func (d *DedupIndex) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
