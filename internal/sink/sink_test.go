package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func acceptedRecord(id string) models.AcceptedRecord {
	c := models.CandidateRecord{
		ID:          id,
		Author:      models.Author{Handle: "ana", Location: "Quito"},
		Text:        "sin luz, otra vez, \"harta\"",
		PublishedAt: time.Date(2024, 4, 15, 21, 4, 5, 0, time.FixedZone("ECT", -5*3600)),
		Engagement:  map[string]int{models.MetricLikes: 3, models.MetricShares: 1},
		SourceQuery: "apagones",
		Permalink:   models.BuildPermalink("ana", id),
	}
	return models.Accept(c, models.CategoryDirectStress, models.ReasonPersonalExpression)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func readJSON(t *testing.T, path string) []models.AcceptedRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var recs []models.AcceptedRecord
	require.NoError(t, json.Unmarshal(data, &recs))
	return recs
}

type flushCounter struct {
	targets map[string]int
}

func (f *flushCounter) ObserveFlush(sink, target string, records int) {
	if f.targets == nil {
		f.targets = make(map[string]int)
	}
	f.targets[target] += records
}

func newAcceptedSink(t *testing.T, threshold int) (*FileSink[models.AcceptedRecord], string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(Options{Name: "accepted", Dir: dir, Base: "tweets_test", Threshold: threshold}, AcceptedCodec, discardLogger())
	require.NoError(t, err)
	return s, dir
}

func TestFileSink_AutoFlushAtThreshold(t *testing.T) {
	ctx := context.Background()
	s, dir := newAcceptedSink(t, 3)

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.Append(ctx, acceptedRecord(id)))
	}

	rows := readCSV(t, filepath.Join(dir, "tweets_test.csv"))
	require.Len(t, rows, 4)
	require.Equal(t, AcceptedCodec.Header, rows[0])
	require.Equal(t, "1", rows[1][0])
	require.Equal(t, "2024-04-15T21:04:05-05:00", rows[1][3])

	recs := readJSON(t, filepath.Join(dir, "tweets_test.json"))
	require.Len(t, recs, 3)
	require.Equal(t, models.CategoryDirectStress, recs[0].Category)
	require.True(t, recs[0].IsPersonalExpression)

	persisted, pending := s.Len()
	require.Equal(t, 3, persisted)
	require.Equal(t, 0, pending)
}

func TestFileSink_BelowThresholdWritesNothing(t *testing.T) {
	ctx := context.Background()
	s, dir := newAcceptedSink(t, 3)

	require.NoError(t, s.Append(ctx, acceptedRecord("1")))
	require.NoError(t, s.Append(ctx, acceptedRecord("2")))

	_, err := os.Stat(filepath.Join(dir, "tweets_test.csv"))
	require.True(t, os.IsNotExist(err), "expected no file before the threshold")

	require.NoError(t, s.Close(ctx))
	require.Len(t, readCSV(t, filepath.Join(dir, "tweets_test.csv")), 3)
	require.Len(t, readJSON(t, filepath.Join(dir, "tweets_test.json")), 2)
}

func TestFileSink_RewritesWholeSetOnEachFlush(t *testing.T) {
	ctx := context.Background()
	s, dir := newAcceptedSink(t, 2)

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, s.Append(ctx, acceptedRecord(id)))
	}
	require.NoError(t, s.Flush(ctx))

	rows := readCSV(t, filepath.Join(dir, "tweets_test.csv"))
	recs := readJSON(t, filepath.Join(dir, "tweets_test.json"))
	require.Len(t, rows, 6)
	require.Len(t, recs, 5)
	for i, rec := range recs {
		require.Equal(t, rec.ID, rows[i+1][0])
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.Contains(e.Name(), ".tmp-"), "temporary file left behind: %s", e.Name())
	}
}

func TestFileSink_FallbackTarget(t *testing.T) {
	ctx := context.Background()
	s, dir := newAcceptedSink(t, 0)
	observer := &flushCounter{}
	s.SetObserver(observer)

	primary := filepath.Join(dir, "tweets_test.csv")
	s.writeFile = func(path string, data []byte) error {
		if path == stagedPath(primary) {
			return errors.New("permission denied")
		}
		return WriteFileAtomic(path, data)
	}

	require.NoError(t, s.Append(ctx, acceptedRecord("1")))
	require.NoError(t, s.Flush(ctx))

	require.Len(t, readCSV(t, filepath.Join(dir, "tweets_test.backup.csv")), 2)
	require.Len(t, readJSON(t, filepath.Join(dir, "tweets_test.backup.json")), 1)
	require.Equal(t, 1, observer.targets[TargetFallback])

	persisted, pending := s.Len()
	require.Equal(t, 1, persisted)
	require.Equal(t, 0, pending)
}

func TestFileSink_FailedFlushKeepsRecords(t *testing.T) {
	ctx := context.Background()
	s, dir := newAcceptedSink(t, 2)
	observer := &flushCounter{}
	s.SetObserver(observer)

	s.writeFile = func(path string, data []byte) error {
		return errors.New("disk full")
	}

	require.NoError(t, s.Append(ctx, acceptedRecord("1")))
	err := s.Append(ctx, acceptedRecord("2"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
	require.Equal(t, 2, observer.targets[TargetFailed])

	_, pending := s.Len()
	require.Equal(t, 2, pending)

	s.writeFile = WriteFileAtomic
	require.NoError(t, s.Flush(ctx))
	require.Len(t, readJSON(t, filepath.Join(dir, "tweets_test.json")), 2)
}

func TestFileSink_JSONFailureKeepsPrimaryPairConsistent(t *testing.T) {
	ctx := context.Background()
	s, dir := newAcceptedSink(t, 0)
	primaryCSV := filepath.Join(dir, "tweets_test.csv")
	primaryJSON := filepath.Join(dir, "tweets_test.json")

	require.NoError(t, s.Append(ctx, acceptedRecord("1")))
	require.NoError(t, s.Flush(ctx))

	s.writeFile = func(path string, data []byte) error {
		if path == stagedPath(primaryJSON) {
			return errors.New("quota exceeded")
		}
		return WriteFileAtomic(path, data)
	}
	require.NoError(t, s.Append(ctx, acceptedRecord("2")))
	require.NoError(t, s.Flush(ctx))

	require.Len(t, readCSV(t, primaryCSV), 2, "primary csv must keep the previous set")
	require.Len(t, readJSON(t, primaryJSON), 1)
	require.Len(t, readCSV(t, filepath.Join(dir, "tweets_test.backup.csv")), 3)
	require.Len(t, readJSON(t, filepath.Join(dir, "tweets_test.backup.json")), 2)
}

func TestFileSink_JSONRenameFailureRestoresCSV(t *testing.T) {
	ctx := context.Background()
	s, dir := newAcceptedSink(t, 0)
	primaryCSV := filepath.Join(dir, "tweets_test.csv")
	primaryJSON := filepath.Join(dir, "tweets_test.json")

	require.NoError(t, s.Append(ctx, acceptedRecord("1")))
	require.NoError(t, s.Flush(ctx))

	s.rename = func(oldpath, newpath string) error {
		if newpath == primaryJSON {
			return errors.New("device busy")
		}
		return os.Rename(oldpath, newpath)
	}
	require.NoError(t, s.Append(ctx, acceptedRecord("2")))
	require.NoError(t, s.Flush(ctx))

	require.Len(t, readCSV(t, primaryCSV), 2)
	require.Len(t, readJSON(t, primaryJSON), 1)
	require.Len(t, readJSON(t, filepath.Join(dir, "tweets_test.backup.json")), 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), ".staged"), "staging file left behind: %s", e.Name())
	}
}

type recordingMirror struct {
	batches [][]models.AcceptedRecord
	err     error
}

func (m *recordingMirror) Upsert(ctx context.Context, recs []models.AcceptedRecord) error {
	m.batches = append(m.batches, recs)
	return m.err
}

func TestFileSink_MirrorReceivesOnlyNewBatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newAcceptedSink(t, 2)
	mirror := &recordingMirror{err: errors.New("database down")}
	s.SetMirror(mirror)

	for _, id := range []string{"1", "2", "3", "4"} {
		require.NoError(t, s.Append(ctx, acceptedRecord(id)))
	}

	require.Len(t, mirror.batches, 2)
	require.Equal(t, "3", mirror.batches[1][0].ID)
	require.Len(t, mirror.batches[1], 2)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Name: "accepted"}, AcceptedCodec, discardLogger())
	require.Error(t, err)

	_, err = New(Options{Name: "accepted", Dir: "d", Base: "b", Threshold: -1}, AcceptedCodec, discardLogger())
	require.Error(t, err)
}

func TestRejectedCodec(t *testing.T) {
	c := acceptedRecord("9").CandidateRecord
	rec, err := models.Reject(c, models.ReasonLocationMismatch)
	require.NoError(t, err)

	row := RejectedCodec.Row(rec)
	require.Len(t, row, len(RejectedCodec.Header))
	require.Equal(t, "9", row[0])
	require.Equal(t, "location-mismatch", row[len(row)-1])
}

func TestPriorOutput_KnownIDs(t *testing.T) {
	ctx := context.Background()
	outDir := t.TempDir()
	rejDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(outDir, "tweets_a.csv"), []byte("\ufeffid,author\n1,ana\n2,luis\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "tweets_a.json"), []byte(`[{"id":"99"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rejDir, "nonrelevant_a.csv"), []byte("author,id\nx,2\ny,3\nz,\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rejDir, "other.csv"), []byte("name\nfoo\n"), 0o644))

	ids, err := PriorOutput{Dirs: []string{outDir, rejDir, filepath.Join(outDir, "missing")}}.KnownIDs(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"1", "2", "3"}, ids)
}
