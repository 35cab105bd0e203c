package sink

import (
	"strconv"
	"time"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

// Codec describes the tabular layout of a record type. The JSON form is the
// record's own encoding.
type Codec[T any] struct {
	Header []string
	Row    func(rec T) []string
	ID     func(rec T) string
}

// IDColumn is the header of the identifier column in every CSV output.
const IDColumn = "id"

var candidateColumns = []string{
	IDColumn, "author", "text", "published_at",
	"likes", "shares", "replies", "quotes",
	"permalink", "source_query", "location",
}

func candidateRow(c models.CandidateRecord) []string {
	published := ""
	if !c.PublishedAt.IsZero() {
		published = c.PublishedAt.Format(time.RFC3339)
	}
	return []string{
		c.ID,
		c.Author.Handle,
		c.Text,
		published,
		strconv.Itoa(c.Engagement[models.MetricLikes]),
		strconv.Itoa(c.Engagement[models.MetricShares]),
		strconv.Itoa(c.Engagement[models.MetricReplies]),
		strconv.Itoa(c.Engagement[models.MetricQuotes]),
		c.Permalink,
		c.SourceQuery,
		c.LocationOrDefault(),
	}
}

// AcceptedCodec lays out accepted records.
var AcceptedCodec = Codec[models.AcceptedRecord]{
	Header: append(append([]string{}, candidateColumns...), "category", "is_personal_expression", "location_matched"),
	Row: func(rec models.AcceptedRecord) []string {
		return append(candidateRow(rec.CandidateRecord),
			string(rec.Category),
			strconv.FormatBool(rec.IsPersonalExpression),
			strconv.FormatBool(rec.LocationMatched),
		)
	},
	ID: func(rec models.AcceptedRecord) string { return rec.ID },
}

// RejectedCodec lays out rejected records.
var RejectedCodec = Codec[models.RejectedRecord]{
	Header: append(append([]string{}, candidateColumns...), "rejection_reason"),
	Row: func(rec models.RejectedRecord) []string {
		return append(candidateRow(rec.CandidateRecord), string(rec.Reason))
	},
	ID: func(rec models.RejectedRecord) string { return rec.ID },
}
