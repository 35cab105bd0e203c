package query

import (
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/lexicon"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

var (
	testStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
)

type stubRand struct {
	float float64
	index int
}

func (r stubRand) Float64() float64 { return r.float }
func (r stubRand) IntN(n int) int { return min(r.index, n-1) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLexicon(t *testing.T) *lexicon.Lexicon {
	t.Helper()
	lex, err := lexicon.Default()
	if err != nil {
		t.Fatalf("lexicon.Default() returned error: %v", err)
	}
	return lex
}

func TestGenerator_CategoryAlwaysInTaxonomy(t *testing.T) {
	g := NewGenerator(testLexicon(t), Options{ComboRatio: 0.7, Start: testStart, End: testEnd}, rand.New(rand.NewPCG(1, 2)), discardLogger())

	combos := 0
	const n = 2000
	for i := 0; i < n; i++ {
		q, category := g.Next()
		if !category.IsValid() {
			t.Fatalf("query %q returned category %q", q, category)
		}
		if !strings.HasSuffix(q, "-filter:retweets -filter:replies lang:es since:2024-03-01 until:2024-12-31") {
			t.Fatalf("query %q is missing the qualifiers", q)
		}
		if strings.HasPrefix(q, `"`) {
			combos++
		}
	}

	ratio := float64(combos) / n
	if ratio < 0.65 || ratio > 0.75 {
		t.Errorf("combination ratio = %.3f, want about 0.7", ratio)
	}
}

func TestGenerator_CombinationStrategy(t *testing.T) {
	lex := testLexicon(t)
	g := NewGenerator(lex, Options{ComboRatio: 0.7, Start: testStart, End: testEnd}, stubRand{float: 0.1}, discardLogger())

	q, category := g.Next()

	first := lex.Combinations[0]
	want := `"` + first.Manifestation + `" ` + first.Context + " -filter:retweets -filter:replies lang:es since:2024-03-01 until:2024-12-31"
	if q != want {
		t.Errorf("Next() query = %q, want %q", q, want)
	}
	wantCategory, ok := lex.CategoryOf(first.Manifestation)
	if !ok {
		wantCategory = models.DefaultCategory
	}
	if category != wantCategory {
		t.Errorf("Next() category = %s, want %s", category, wantCategory)
	}
}

func TestGenerator_UnknownCombinationTermUsesDefault(t *testing.T) {
	lex := testLexicon(t)
	lex.Combinations = []lexicon.Combination{{Manifestation: "término inventado", Context: "Quito"}}
	g := NewGenerator(lex, Options{ComboRatio: 1}, stubRand{float: 0}, discardLogger())

	q, category := g.Next()
	if category != models.DefaultCategory {
		t.Errorf("category = %s, want %s", category, models.DefaultCategory)
	}
	if q != `"término inventado" Quito -filter:retweets -filter:replies lang:es` {
		t.Errorf("query = %q", q)
	}
}

func TestGenerator_ComposedStrategy(t *testing.T) {
	lex := testLexicon(t)
	g := NewGenerator(lex, Options{ComboRatio: 0.7, Start: testStart}, stubRand{float: 0.9}, discardLogger())

	q, category := g.Next()
	if category != models.Categories[0] {
		t.Errorf("category = %s, want %s", category, models.Categories[0])
	}
	want := "(" + lex.Taxonomy[models.Categories[0]][0] + ") (" + lex.Context.Crisis[0] + ") (" + lex.Context.Places[0] + ") -filter:retweets -filter:replies lang:es since:2024-03-01"
	if q != want {
		t.Errorf("query = %q, want %q", q, want)
	}
}

func TestGenerator_NoCombinationsFallsBackToComposed(t *testing.T) {
	lex := testLexicon(t)
	lex.Combinations = nil
	g := NewGenerator(lex, Options{ComboRatio: 1}, stubRand{float: 0}, discardLogger())

	q, _ := g.Next()
	if !strings.HasPrefix(q, "(") {
		t.Errorf("query = %q, want composed form", q)
	}
}
