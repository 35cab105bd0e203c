package database

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

func sampleCandidate(id string) models.CandidateRecord {
	return models.CandidateRecord{
		ID:          id,
		Author:      models.Author{Handle: "ana", DisplayName: "Ana", Location: "Cuenca"},
		Text:        "tres dias sin luz y no puedo dormir",
		PublishedAt: time.Date(2024, 4, 15, 21, 4, 5, 0, time.FixedZone("ECT", -5*3600)),
		Engagement:  map[string]int{models.MetricLikes: 7},
		SourceQuery: "insomnio apagon",
		Permalink:   models.BuildPermalink("ana", id),
	}
}

func TestAcceptedRow(t *testing.T) {
	rec := models.Accept(sampleCandidate("1"), models.CategoryPhysical, models.ReasonPersonalExpression)
	row := acceptedRow(rec)

	if row.Status != StatusAccepted {
		t.Errorf("Status = %q, want %q", row.Status, StatusAccepted)
	}
	if !row.Category.Valid || row.Category.String != string(models.CategoryPhysical) {
		t.Errorf("Category = %+v", row.Category)
	}
	if row.RejectedReason.Valid {
		t.Errorf("accepted row carries a rejection reason: %+v", row.RejectedReason)
	}
	if got := row.PublishedAt.Time.Location(); got != time.UTC {
		t.Errorf("PublishedAt location = %v, want UTC", got)
	}

	args, err := row.args("run-1")
	if err != nil {
		t.Fatalf("args() error = %v", err)
	}
	if len(args) != 15 {
		t.Fatalf("args() returned %d values, want 15", len(args))
	}
	var engagement map[string]int
	if err := json.Unmarshal(args[7].([]byte), &engagement); err != nil {
		t.Fatalf("engagement is not JSON: %v", err)
	}
	if engagement[models.MetricLikes] != 7 {
		t.Errorf("engagement = %v", engagement)
	}
	if args[14] != "run-1" {
		t.Errorf("run id = %v", args[14])
	}
}

func TestRejectedRow(t *testing.T) {
	c := sampleCandidate("2")
	c.Engagement = nil
	c.PublishedAt = time.Time{}
	rec, err := models.Reject(c, models.ReasonOfficialAnnouncement)
	if err != nil {
		t.Fatal(err)
	}

	row := rejectedRow(rec)
	if row.Status != StatusRejected {
		t.Errorf("Status = %q, want %q", row.Status, StatusRejected)
	}
	if row.Category.Valid || row.Personal.Valid {
		t.Error("rejected row carries accepted-only columns")
	}
	if row.PublishedAt.Valid {
		t.Error("zero publish time should be stored as NULL")
	}

	args, err := row.args("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(args[7].([]byte)) != "{}" {
		t.Errorf("engagement = %s, want {}", args[7])
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://collector:secret@db:5432/tweets?sslmode=disable", "postgres://collector:***@db:5432/tweets?sslmode=disable"},
		{"postgresql://collector@db/tweets", "postgresql://collector@db/tweets"},
		{"host=/cloudsql/p:r:i user=collector password=secret dbname=tweets", "host=/cloudsql/p:r:i user=collector password=*** dbname=tweets"},
	}
	for _, tt := range tests {
		if got := RedactURL(tt.in); got != tt.want {
			t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPendingMigrations(t *testing.T) {
	files := fstest.MapFS{
		"002_b.sql":  {Data: []byte("SELECT 2")},
		"001_a.sql":  {Data: []byte("SELECT 1")},
		"README.txt": {Data: []byte("notes")},
	}

	got, err := pendingMigrations(files, map[string]bool{"001_a.sql": true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "002_b.sql" {
		t.Errorf("pendingMigrations() = %v, want [002_b.sql]", got)
	}

	all, err := pendingMigrations(Migrations(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) == 0 {
		t.Error("no embedded migrations found")
	}
}

func TestRecordRepository_Integration(t *testing.T) {
	dbURL := os.Getenv("DATABASE_TEST_URL")
	if dbURL == "" {
		t.Skip("DATABASE_TEST_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, DefaultConfig(dbURL))
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := RunMigrations(ctx, db, Migrations(), logger); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	repo := NewRecordRepository(db, uuid.NewString())
	id := "it-" + uuid.NewString()
	defer db.ExecContext(ctx, "DELETE FROM collected_records WHERE id = $1", id)

	rec := models.Accept(sampleCandidate(id), models.CategoryDirectStress, models.ReasonCrisisSignal)
	if err := repo.AcceptedMirror().Upsert(ctx, []models.AcceptedRecord{rec, rec}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	ids, err := repo.KnownIDs(ctx)
	if err != nil {
		t.Fatalf("KnownIDs() error = %v", err)
	}
	found := false
	for _, known := range ids {
		if known == id {
			found = true
		}
	}
	if !found {
		t.Errorf("KnownIDs() does not include %s", id)
	}
}
