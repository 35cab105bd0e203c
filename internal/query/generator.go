// Package query builds search queries from the lexicon.
package query

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/lexicon"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

// Rand is the source of randomness used to pick strategies and terms.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Options configures a Generator.
type Options struct {
	// ComboRatio is the probability of drawing a curated combination instead
	// of composing a query from independent pools.
	ComboRatio float64
	Start      time.Time
	End        time.Time
}

// Generator produces search queries. It is not safe for concurrent use.
type Generator struct {
	lex    *lexicon.Lexicon
	opts   Options
	rng    Rand
	logger *slog.Logger
	suffix string
}

// NewGenerator creates a generator over lex. rng is typically a
// *rand.Rand from math/rand/v2.
func NewGenerator(lex *lexicon.Lexicon, opts Options, rng Rand, logger *slog.Logger) *Generator {
	return &Generator{
		lex:    lex,
		opts:   opts,
		rng:    rng,
		logger: logger,
		suffix: qualifiers(opts.Start, opts.End),
	}
}

// Next returns a query and the manifestation category it targets. The
// category is always a member of models.Categories.
func (g *Generator) Next() (string, models.Category) {
	if len(g.lex.Combinations) > 0 && g.rng.Float64() < g.opts.ComboRatio {
		return g.fromCombination()
	}
	return g.composed()
}

func (g *Generator) fromCombination() (string, models.Category) {
	combo := g.lex.Combinations[g.rng.IntN(len(g.lex.Combinations))]

	category, ok := g.lex.CategoryOf(combo.Manifestation)
	if !ok {
		category = models.DefaultCategory
		g.logger.Debug("combination term not in taxonomy, using default category",
			"term", combo.Manifestation,
			"category", category,
		)
	}

	q := fmt.Sprintf("%q %s %s", combo.Manifestation, combo.Context, g.suffix)
	return q, category
}

func (g *Generator) composed() (string, models.Category) {
	crisis := g.pick(g.lex.Context.Crisis)
	place := g.pick(g.lex.Context.Places)

	category := models.Categories[g.rng.IntN(len(models.Categories))]
	manifestation := g.pick(g.lex.Taxonomy[category])

	q := fmt.Sprintf("(%s) (%s) (%s) %s", manifestation, crisis, place, g.suffix)
	return q, category
}

func (g *Generator) pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[g.rng.IntN(len(pool))]
}

// qualifiers returns the structural part shared by every query.
func qualifiers(start, end time.Time) string {
	parts := []string{"-filter:retweets", "-filter:replies", "lang:es"}
	if !start.IsZero() {
		parts = append(parts, "since:"+start.Format(time.DateOnly))
	}
	if !end.IsZero() {
		parts = append(parts, "until:"+end.Format(time.DateOnly))
	}
	return strings.Join(parts, " ")
}
