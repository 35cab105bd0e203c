// Package filter decides whether a candidate post is relevant and whether it
// can be tied to the target geography. Both checks are pure functions of the
// candidate and the lexicon.
package filter

import (
	"strings"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/lexicon"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

// Decision is the combined outcome of the relevance filter and the location
// gate for one candidate.
type Decision struct {
	Include         bool
	Reason          models.Reason
	LocationMatched bool
}

// Guard is one step of the relevance policy. It returns decided=false to pass
// the candidate on to the next guard.
type Guard struct {
	Name  string
	Check func(in Input) (include bool, reason models.Reason, decided bool)
}

// Input is the lowercased view of a candidate the guards operate on.
type Input struct {
	Text     string
	Handle   string
	Name     string
	Bio      string
	Location string
	Retweet  bool
	Reply    bool
}

// NewInput lowercases the fields of c that the guards inspect.
func NewInput(c models.CandidateRecord) Input {
	return Input{
		Text:     strings.ToLower(c.Text),
		Handle:   handleWords(c.Author.Handle),
		Name:     strings.ToLower(c.Author.DisplayName),
		Bio:      strings.ToLower(c.Author.Bio),
		Location: strings.ToLower(c.Author.Location),
		Retweet:  c.IsRetweet,
		Reply:    c.IsReply,
	}
}

// handleWords splits a handle such as "@Radio_Quito" into "radio quito" so
// that account terms can match its parts.
func handleWords(handle string) string {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	return strings.ToLower(strings.ReplaceAll(handle, "_", " "))
}

// Filter evaluates candidates against an ordered list of guards.
type Filter struct {
	replySignal    substringMatcher
	strongPersonal substringMatcher
	announcement   substringMatcher
	crisis         substringMatcher
	distress       substringMatcher
	accounts       wordMatcher
	bypassWords    wordMatcher
	personal       wordMatcher
	gazetteer      wordMatcher
	guards         []Guard
}

// New compiles the lexicon's filter lists.
func New(lex *lexicon.Lexicon) *Filter {
	f := &Filter{
		replySignal:    newSubstringMatcher(lex.Filters.ReplySignalTerms),
		strongPersonal: newSubstringMatcher(lex.Filters.StrongPersonalPhrases),
		announcement:   newSubstringMatcher(lex.Filters.AnnouncementTerms),
		crisis:         newSubstringMatcher(lex.Filters.CrisisTerms),
		distress:       newSubstringMatcher(lex.Filters.DistressTerms),
		accounts:       newWordMatcher(lex.Filters.AccountTerms),
		bypassWords:    newWordMatcher(lex.Filters.AnnouncementBypassWords),
		personal:       newWordMatcher(lex.Filters.PersonalMarkers),
		gazetteer:      newWordMatcher(lex.Gazetteer),
	}

	f.guards = []Guard{
		{Name: "retweet", Check: f.rejectRetweet},
		{Name: "reply", Check: f.rejectReplyWithoutSignal},
		{Name: "institutional", Check: f.rejectInstitutional},
		{Name: "announcement", Check: f.rejectAnnouncement},
		{Name: "personal", Check: f.acceptPersonal},
		{Name: "crisis", Check: f.acceptCrisisSignal},
	}
	return f
}

// Guards returns the policy steps in evaluation order.
func (f *Filter) Guards() []Guard {
	return append([]Guard(nil), f.guards...)
}

// Evaluate runs the guards in order and returns the first decision. A
// candidate that no guard decides on is accepted as generic-relevant.
func (f *Filter) Evaluate(c models.CandidateRecord) (bool, models.Reason) {
	in := NewInput(c)
	for _, g := range f.guards {
		if include, reason, decided := g.Check(in); decided {
			return include, reason
		}
	}
	return true, models.ReasonGenericRelevant
}

// LocationMatches reports whether the text, bio, location or name of the
// author mention a gazetteer place.
func (f *Filter) LocationMatches(c models.CandidateRecord) bool {
	in := NewInput(c)
	for _, field := range []string{in.Text, in.Bio, in.Location, in.Name} {
		if f.gazetteer.match(field) {
			return true
		}
	}
	return false
}

// Classify combines Evaluate with the location gate. A location failure
// rejects the candidate whatever the relevance outcome was.
func (f *Filter) Classify(c models.CandidateRecord) Decision {
	include, reason := f.Evaluate(c)
	located := f.LocationMatches(c)
	if !located {
		return Decision{Include: false, Reason: models.ReasonLocationMismatch}
	}
	return Decision{Include: include, Reason: reason, LocationMatched: true}
}

func (f *Filter) rejectRetweet(in Input) (bool, models.Reason, bool) {
	if in.Retweet {
		return false, models.ReasonRetweet, true
	}
	return false, "", false
}

func (f *Filter) rejectReplyWithoutSignal(in Input) (bool, models.Reason, bool) {
	if in.Reply && !f.replySignal.match(in.Text) {
		return false, models.ReasonReplyWithoutSignal, true
	}
	return false, "", false
}

func (f *Filter) rejectInstitutional(in Input) (bool, models.Reason, bool) {
	institutional := f.accounts.match(in.Name) || f.accounts.match(in.Handle) || f.accounts.match(in.Bio)
	if institutional && !f.strongPersonal.match(in.Text) {
		return false, models.ReasonInstitutionalAccount, true
	}
	return false, "", false
}

func (f *Filter) rejectAnnouncement(in Input) (bool, models.Reason, bool) {
	if f.announcement.match(in.Text) && !f.bypassWords.match(in.Text) {
		return false, models.ReasonOfficialAnnouncement, true
	}
	return false, "", false
}

func (f *Filter) acceptPersonal(in Input) (bool, models.Reason, bool) {
	if f.personal.match(in.Text) {
		return true, models.ReasonPersonalExpression, true
	}
	return false, "", false
}

func (f *Filter) acceptCrisisSignal(in Input) (bool, models.Reason, bool) {
	if f.crisis.match(in.Text) && f.distress.match(in.Text) {
		return true, models.ReasonCrisisSignal, true
	}
	return false, "", false
}
