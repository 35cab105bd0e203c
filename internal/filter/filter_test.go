package filter

import (
	"testing"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/lexicon"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

func newTestFilter(t *testing.T) *Filter {
	t.Helper()
	lex, err := lexicon.Default()
	if err != nil {
		t.Fatalf("lexicon.Default() returned error: %v", err)
	}
	return New(lex)
}

func candidate(text string, author models.Author) models.CandidateRecord {
	return models.CandidateRecord{ID: "1", Text: text, Author: author}
}

func TestEvaluate_PolicyOrder(t *testing.T) {
	f := newTestFilter(t)
	person := models.Author{Handle: "maria_q", DisplayName: "María"}

	tests := []struct {
		name        string
		candidate   models.CandidateRecord
		wantInclude bool
		wantReason  models.Reason
	}{
		{
			name: "retweet rejected even with personal text",
			candidate: func() models.CandidateRecord {
				c := candidate("estoy harta de los apagones", person)
				c.IsRetweet = true
				return c
			}(),
			wantInclude: false,
			wantReason:  models.ReasonRetweet,
		},
		{
			name: "reply without signal",
			candidate: func() models.CandidateRecord {
				c := candidate("qué lindo día", person)
				c.IsReply = true
				return c
			}(),
			wantInclude: false,
			wantReason:  models.ReasonReplyWithoutSignal,
		},
		{
			name: "reply with signal is personal expression",
			candidate: func() models.CandidateRecord {
				c := candidate("no aguanto más este estrés", person)
				c.IsReply = true
				return c
			}(),
			wantInclude: true,
			wantReason:  models.ReasonPersonalExpression,
		},
		{
			name:        "institutional bypass with strong first person",
			candidate:   candidate("estoy harta de los apagones", models.Author{DisplayName: "Luz Oficial"}),
			wantInclude: true,
			wantReason:  models.ReasonPersonalExpression,
		},
		{
			name:        "institutional account rejected",
			candidate:   candidate("mañana habrá cortes en el norte", models.Author{DisplayName: "Radio Centro FM"}),
			wantInclude: false,
			wantReason:  models.ReasonInstitutionalAccount,
		},
		{
			name:        "institutional term in bio",
			candidate:   candidate("mañana habrá cortes", models.Author{DisplayName: "Centro", Bio: "Diario digital de noticias"}),
			wantInclude: false,
			wantReason:  models.ReasonInstitutionalAccount,
		},
		{
			name:        "institutional term in handle parts",
			candidate:   candidate("mañana habrá cortes", models.Author{Handle: "@quito_news"}),
			wantInclude: false,
			wantReason:  models.ReasonInstitutionalAccount,
		},
		{
			name:        "short account term does not match inside a name",
			candidate:   candidate("mañana habrá cortes", models.Author{DisplayName: "Samantha Ruiz"}),
			wantInclude: true,
			wantReason:  models.ReasonGenericRelevant,
		},
		{
			name:        "official announcement rejected",
			candidate:   candidate("Comunicado: se anuncian cortes programados", person),
			wantInclude: false,
			wantReason:  models.ReasonOfficialAnnouncement,
		},
		{
			name:        "announcement bypassed by first person",
			candidate:   candidate("comunicado de la empresa eléctrica, ya estoy cansado", person),
			wantInclude: true,
			wantReason:  models.ReasonPersonalExpression,
		},
		{
			name:        "accented personal marker",
			candidate:   candidate("Todo el barrio ESTRESADO otra vez", person),
			wantInclude: true,
			wantReason:  models.ReasonPersonalExpression,
		},
		{
			name:        "crisis and distress terms",
			candidate:   candidate("los apagones causan ansiedad en Guayaquil", person),
			wantInclude: true,
			wantReason:  models.ReasonCrisisSignal,
		},
		{
			name:        "crisis term alone is generic",
			candidate:   candidate("los apagones siguen en Guayaquil", person),
			wantInclude: true,
			wantReason:  models.ReasonGenericRelevant,
		},
		{
			name:        "permissive default",
			candidate:   candidate("hoy fui al mercado", person),
			wantInclude: true,
			wantReason:  models.ReasonGenericRelevant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			include, reason := f.Evaluate(tt.candidate)
			if include != tt.wantInclude || reason != tt.wantReason {
				t.Errorf("Evaluate() = (%v, %s), want (%v, %s)", include, reason, tt.wantInclude, tt.wantReason)
			}
		})
	}
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	f := newTestFilter(t)
	c := candidate("los cortes de luz me tienen preocupada", models.Author{DisplayName: "Ana"})

	firstInclude, firstReason := f.Evaluate(c)
	for i := 0; i < 10; i++ {
		include, reason := f.Evaluate(c)
		if include != firstInclude || reason != firstReason {
			t.Fatalf("call %d returned (%v, %s), first call returned (%v, %s)", i, include, reason, firstInclude, firstReason)
		}
	}
}

func TestLocationMatches(t *testing.T) {
	f := newTestFilter(t)

	tests := []struct {
		name   string
		record models.CandidateRecord
		want   bool
	}{
		{
			name:   "place in text",
			record: candidate("otra noche sin luz en Cuenca", models.Author{}),
			want:   true,
		},
		{
			name:   "place in bio",
			record: candidate("sin luz", models.Author{Bio: "Quiteña de corazón, vivo en Quito"}),
			want:   true,
		},
		{
			name:   "place in location",
			record: candidate("sin luz", models.Author{Location: "Guayaquil, Ecuador"}),
			want:   true,
		},
		{
			name:   "place in display name",
			record: candidate("sin luz", models.Author{DisplayName: "Pedro desde Manabí"}),
			want:   true,
		},
		{
			name:   "country code token",
			record: candidate("sin luz", models.Author{Location: "EC"}),
			want:   true,
		},
		{
			name:   "country code inside a word is ignored",
			record: candidate("sin luz, estoy en el sector", models.Author{Location: "Tecnópolis"}),
			want:   false,
		},
		{
			name:   "foreign location",
			record: candidate("muy estresado hoy", models.Author{Location: "Madrid, España"}),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.LocationMatches(tt.record); got != tt.want {
				t.Errorf("LocationMatches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify_LocationGateOverridesAcceptance(t *testing.T) {
	f := newTestFilter(t)
	c := candidate("muy estresado hoy", models.Author{DisplayName: "Lucía", Location: "Madrid, España"})

	include, reason := f.Evaluate(c)
	if !include {
		t.Fatalf("expected relevance filter to accept, got reason %s", reason)
	}

	decision := f.Classify(c)
	if decision.Include {
		t.Fatal("expected location gate to reject")
	}
	if decision.Reason != models.ReasonLocationMismatch {
		t.Errorf("reason = %s, want %s", decision.Reason, models.ReasonLocationMismatch)
	}
	if decision.LocationMatched {
		t.Error("expected LocationMatched=false")
	}
}

func TestClassify_LocationGateOverridesRejection(t *testing.T) {
	f := newTestFilter(t)
	c := candidate("retuit", models.Author{Location: "Lima"})
	c.IsRetweet = true

	if decision := f.Classify(c); decision.Reason != models.ReasonLocationMismatch {
		t.Errorf("reason = %s, want %s", decision.Reason, models.ReasonLocationMismatch)
	}
}

func TestClassify_Accepted(t *testing.T) {
	f := newTestFilter(t)
	c := candidate("estoy harta de los apagones en Quito", models.Author{DisplayName: "Ana"})

	decision := f.Classify(c)
	if !decision.Include || decision.Reason != models.ReasonPersonalExpression || !decision.LocationMatched {
		t.Errorf("Classify() = %+v", decision)
	}
}

func TestGuardsAreIndependentlyCallable(t *testing.T) {
	f := newTestFilter(t)
	guards := f.Guards()

	wantOrder := []string{"retweet", "reply", "institutional", "announcement", "personal", "crisis"}
	if len(guards) != len(wantOrder) {
		t.Fatalf("got %d guards, want %d", len(guards), len(wantOrder))
	}
	for i, name := range wantOrder {
		if guards[i].Name != name {
			t.Errorf("guard %d = %s, want %s", i, guards[i].Name, name)
		}
	}

	in := NewInput(candidate("estoy harto", models.Author{}))
	if _, _, decided := guards[0].Check(in); decided {
		t.Error("retweet guard decided on a non-retweet")
	}
	if include, reason, decided := guards[4].Check(in); !decided || !include || reason != models.ReasonPersonalExpression {
		t.Errorf("personal guard = (%v, %s, %v)", include, reason, decided)
	}
}
