package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/sink"
)

// Record statuses stored in collected_records.status.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

const upsertRecordSQL = `
	INSERT INTO collected_records
	(id, status, author_handle, author_name, author_location, text, published_at,
	 engagement, source_query, permalink, category, is_personal_expression,
	 location_matched, rejection_reason, run_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (id)
	DO UPDATE SET
		status = EXCLUDED.status,
		engagement = EXCLUDED.engagement,
		category = EXCLUDED.category,
		is_personal_expression = EXCLUDED.is_personal_expression,
		location_matched = EXCLUDED.location_matched,
		rejection_reason = EXCLUDED.rejection_reason,
		run_id = EXCLUDED.run_id,
		collected_at = NOW()
`

// RecordRepository stores accepted and rejected records in one table.
type RecordRepository struct {
	db       *sql.DB
	runID    string
	statuses []string
}

// NewRecordRepository tags every written row with runID.
func NewRecordRepository(db *sql.DB, runID string) *RecordRepository {
	return &RecordRepository{
		db:       db,
		runID:    runID,
		statuses: []string{StatusAccepted, StatusRejected},
	}
}

// UpsertAccepted writes accepted records in a single transaction.
func (r *RecordRepository) UpsertAccepted(ctx context.Context, recs []models.AcceptedRecord) error {
	rows := make([]recordRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, acceptedRow(rec))
	}
	return r.upsert(ctx, rows)
}

// UpsertRejected writes rejected records in a single transaction.
func (r *RecordRepository) UpsertRejected(ctx context.Context, recs []models.RejectedRecord) error {
	rows := make([]recordRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, rejectedRow(rec))
	}
	return r.upsert(ctx, rows)
}

// Name identifies the repository as a dedup seed source.
func (r *RecordRepository) Name() string {
	return "postgres"
}

// KnownIDs returns the id of every stored record.
func (r *RecordRepository) KnownIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM collected_records WHERE status = ANY($1)`,
		pq.Array(r.statuses),
	)
	if err != nil {
		return nil, fmt.Errorf("query known ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByStatus returns the number of stored rows per status.
func (r *RecordRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM collected_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// AcceptedMirror adapts the repository to the accepted sink.
func (r *RecordRepository) AcceptedMirror() sink.Mirror[models.AcceptedRecord] {
	return acceptedMirror{r}
}

// RejectedMirror adapts the repository to the rejected sink.
func (r *RecordRepository) RejectedMirror() sink.Mirror[models.RejectedRecord] {
	return rejectedMirror{r}
}

type acceptedMirror struct{ repo *RecordRepository }

func (m acceptedMirror) Upsert(ctx context.Context, recs []models.AcceptedRecord) error {
	return m.repo.UpsertAccepted(ctx, recs)
}

type rejectedMirror struct{ repo *RecordRepository }

func (m rejectedMirror) Upsert(ctx context.Context, recs []models.RejectedRecord) error {
	return m.repo.UpsertRejected(ctx, recs)
}

// recordRow holds the column values of one collected_records row.
type recordRow struct {
	ID             string
	Status         string
	Handle         string
	Name           string
	Location       string
	Text           string
	PublishedAt    sql.NullTime
	Engagement     map[string]int
	SourceQuery    string
	Permalink      string
	Category       sql.NullString
	Personal       sql.NullBool
	LocationMatch  sql.NullBool
	RejectedReason sql.NullString
}

func candidateRow(c models.CandidateRecord, status string) recordRow {
	row := recordRow{
		ID:          c.ID,
		Status:      status,
		Handle:      c.Author.Handle,
		Name:        c.Author.DisplayName,
		Location:    c.Author.Location,
		Text:        c.Text,
		Engagement:  c.Engagement,
		SourceQuery: c.SourceQuery,
		Permalink:   c.Permalink,
	}
	if !c.PublishedAt.IsZero() {
		row.PublishedAt = sql.NullTime{Time: c.PublishedAt.UTC(), Valid: true}
	}
	return row
}

func acceptedRow(rec models.AcceptedRecord) recordRow {
	row := candidateRow(rec.CandidateRecord, StatusAccepted)
	row.Category = sql.NullString{String: string(rec.Category), Valid: true}
	row.Personal = sql.NullBool{Bool: rec.IsPersonalExpression, Valid: true}
	row.LocationMatch = sql.NullBool{Bool: rec.LocationMatched, Valid: true}
	return row
}

func rejectedRow(rec models.RejectedRecord) recordRow {
	row := candidateRow(rec.CandidateRecord, StatusRejected)
	row.RejectedReason = sql.NullString{String: string(rec.Reason), Valid: true}
	return row
}

func (row recordRow) args(runID string) ([]any, error) {
	engagement := row.Engagement
	if engagement == nil {
		engagement = map[string]int{}
	}
	engagementJSON, err := json.Marshal(engagement)
	if err != nil {
		return nil, err
	}
	return []any{
		row.ID, row.Status, row.Handle, row.Name, row.Location, row.Text, row.PublishedAt,
		engagementJSON, row.SourceQuery, row.Permalink, row.Category, row.Personal,
		row.LocationMatch, row.RejectedReason, runID,
	}, nil
}

func (r *RecordRepository) upsert(ctx context.Context, rows []recordRow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, upsertRecordSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		args, err := row.args(r.runID)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode record %s: %w", row.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert record %s: %w", row.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}
