// Package report renders run summaries and checkpoint status as terminal
// tables.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/ingestion"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

// NewTable returns a rounded table writing to w.
func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// counts is the subset shared by engine snapshots and checkpoints.
type counts struct {
	accepted    int
	personal    int
	rejected    int
	duplicates  int
	perCategory map[models.Category]int
	perReason   map[models.Reason]int
}

// RunSummary prints the outcome of a run.
func RunSummary(w io.Writer, snap ingestion.Snapshot, elapsed time.Duration) {
	t := NewTable(w)
	t.SetTitle("Run " + snap.RunID)
	t.AppendRows([]table.Row{
		{"Target", snap.Target},
		{"Accepted", fmt.Sprintf("%d (%s)", snap.AcceptedCount, percent(snap.AcceptedCount, snap.Target))},
		{"Completed", snap.Completed},
		{"Elapsed", elapsed.Round(time.Second)},
		{"Last query", snap.Query},
	})
	t.Render()

	renderCounts(w, counts{
		accepted:    snap.AcceptedCount,
		personal:    snap.PersonalCount,
		rejected:    snap.RejectedCount,
		duplicates:  snap.DuplicateCount,
		perCategory: snap.PerCategory,
		perReason:   snap.PerReason,
	})
}

// CheckpointStatus prints the contents of a stored checkpoint.
func CheckpointStatus(w io.Writer, path string, cp models.Checkpoint) {
	t := NewTable(w)
	t.SetTitle("Checkpoint")
	t.AppendRows([]table.Row{
		{"File", path},
		{"Run", cp.RunID},
		{"Saved at", cp.SavedAt.Format(time.RFC3339)},
		{"Completed", cp.Completed},
		{"Known ids", len(cp.SeenIDs)},
		{"Last query", cp.LastQuery},
		{"Last category", cp.LastCategory},
	})
	t.Render()

	renderCounts(w, counts{
		accepted:    cp.AcceptedCount,
		personal:    cp.PersonalCount,
		rejected:    cp.RejectedCount,
		duplicates:  cp.DuplicateCount,
		perCategory: cp.PerCategory,
		perReason:   cp.PerReason,
	})
}

func renderCounts(w io.Writer, c counts) {
	cats := NewTable(w)
	cats.SetTitle("Accepted by category")
	cats.AppendHeader(table.Row{"Category", "Records", "Share"})
	for _, category := range models.Categories {
		n := c.perCategory[category]
		cats.AppendRow(table.Row{category, n, percent(n, c.accepted)})
	}
	cats.AppendFooter(table.Row{"Total", c.accepted, fmt.Sprintf("%d personal", c.personal)})
	cats.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	cats.Render()

	reasons := NewTable(w)
	reasons.SetTitle("Rejected by reason")
	reasons.AppendHeader(table.Row{"Reason", "Records"})
	for _, reason := range models.RejectionReasons {
		reasons.AppendRow(table.Row{reason, c.perReason[reason]})
	}
	reasons.AppendFooter(table.Row{"Total", c.rejected + c.duplicates})
	reasons.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	reasons.Render()
}

func percent(n, total int) string {
	if total <= 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
}
