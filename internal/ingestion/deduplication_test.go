package ingestion

import (
	"fmt"
	"sync"
	"testing"
)

func TestDedupIndex_CheckAndAdd(t *testing.T) {
	dedup := NewDedupIndex()

	if !dedup.CheckAndAdd("100") {
		t.Error("id should be new on first check")
	}
	if dedup.CheckAndAdd("100") {
		t.Error("id should not be new on second check")
	}
	if !dedup.Contains("100") {
		t.Error("Contains() = false after CheckAndAdd")
	}
	if dedup.Size() != 1 {
		t.Errorf("expected 1 id, got %d", dedup.Size())
	}
}

func TestDedupIndex_AddIsIdempotent(t *testing.T) {
	dedup := NewDedupIndex()
	for i := 0; i < 3; i++ {
		dedup.Add("7")
	}
	if dedup.Size() != 1 {
		t.Errorf("expected 1 id, got %d", dedup.Size())
	}
}

func TestDedupIndex_Restore(t *testing.T) {
	dedup := NewDedupIndex()
	dedup.Add("1")

	added := dedup.Restore([]string{"1", "2", "", "3", "2"})
	if added != 2 {
		t.Errorf("Restore() added %d, want 2", added)
	}
	if dedup.Size() != 3 {
		t.Errorf("expected 3 ids, got %d", dedup.Size())
	}
	if dedup.Contains("") {
		t.Error("empty id should never be stored")
	}
}

func TestDedupIndex_SnapshotSorted(t *testing.T) {
	dedup := NewDedupIndex()
	dedup.Restore([]string{"30", "10", "20"})

	got := dedup.Snapshot()
	want := []string{"10", "20", "30"}
	if len(got) != len(want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	// the snapshot is a copy
	got[0] = "mutated"
	if dedup.Contains("mutated") {
		t.Error("mutating the snapshot changed the index")
	}
}

func TestDedupIndex_ConcurrentCheckAndAdd(t *testing.T) {
	dedup := NewDedupIndex()

	const workers = 8
	const ids = 200

	var mu sync.Mutex
	admitted := make(map[string]int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < ids; i++ {
				id := fmt.Sprintf("%d", i)
				if dedup.CheckAndAdd(id) {
					mu.Lock()
					admitted[id]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if len(admitted) != ids {
		t.Fatalf("admitted %d distinct ids, want %d", len(admitted), ids)
	}
	for id, n := range admitted {
		if n != 1 {
			t.Errorf("id %s admitted %d times", id, n)
		}
	}
}
