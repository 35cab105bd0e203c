package checkpoint

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleCheckpoint() models.Checkpoint {
	return models.Checkpoint{
		RunID:          "run-1",
		AcceptedCount:  12,
		PersonalCount:  4,
		RejectedCount:  30,
		DuplicateCount: 2,
		PerCategory: map[models.Category]int{
			models.CategoryDirectStress:     8,
			models.CategoryActivitiesImpact: 4,
		},
		PerReason:    map[models.Reason]int{models.ReasonInstitutionalAccount: 30},
		SeenIDs:      []string{"30", "10", "20"},
		LastQuery:    "apagones Quito",
		LastCategory: models.CategoryDirectStress,
		LastCursor:   "abc",
		SavedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state", "checkpoint.json"), discardLogger())

	want := sampleCheckpoint()
	if err := s.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if want.SeenIDs[0] != "30" {
		t.Fatalf("Save() reordered the caller's slice: %v", want.SeenIDs)
	}

	got, ok := s.Load()
	if !ok {
		t.Fatal("Load() reported no checkpoint after Save")
	}
	opts := cmp.Options{
		cmpopts.SortSlices(func(a, b string) bool { return a < b }),
		cmpopts.EquateEmpty(),
	}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	if got.SeenIDs[0] != "10" {
		t.Errorf("SeenIDs not sorted: %v", got.SeenIDs)
	}
}

func TestStore_LoadFailSoft(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing file", ""},
		{"malformed json", `{"accepted_count": `},
		{"missing saved_at", `{"accepted_count": 3, "dedup_index": ["1"]}`},
		{"personal exceeds accepted", `{"accepted_count": 1, "personal_expression_count": 2, "saved_at": "2024-05-01T12:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "checkpoint.json")
			if tt.content != "" {
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			if _, ok := New(path, discardLogger()).Load(); ok {
				t.Errorf("Load() = ok for %s, want fresh start", tt.name)
			}
		})
	}
}

func TestStore_Reset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	s := New(path, discardLogger())

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() on missing file error = %v", err)
	}
	if err := s.Save(sampleCheckpoint()); err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("checkpoint file still present after Reset: %v", err)
	}
	if _, ok := s.Load(); ok {
		t.Error("Load() after Reset reported a checkpoint")
	}
}
