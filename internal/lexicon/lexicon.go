// Package lexicon holds the static vocabulary shared by the relevance filter
// and the query generator: the manifestation taxonomy, context pools, curated
// query combinations, filter term lists and the place-name gazetteer.
package lexicon

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// Lexicon is the full vocabulary. Term matching is case-insensitive.
type Lexicon struct {
	Taxonomy     map[models.Category][]string `yaml:"taxonomy"`
	Context      ContextPools                 `yaml:"context"`
	Combinations []Combination                `yaml:"combinations"`
	Filters      FilterTerms                  `yaml:"filters"`
	Gazetteer    []string                     `yaml:"gazetteer"`
}

// ContextPools are term pools used to compose queries. They are not
// manifestation categories and never appear on accepted records.
type ContextPools struct {
	Crisis []string `yaml:"crisis"`
	Places []string `yaml:"places"`
}

// FilterTerms configures the relevance filter.
type FilterTerms struct {
	AccountTerms            []string `yaml:"account_terms"`
	AnnouncementTerms       []string `yaml:"announcement_terms"`
	ReplySignalTerms        []string `yaml:"reply_signal_terms"`
	StrongPersonalPhrases   []string `yaml:"strong_personal_phrases"`
	AnnouncementBypassWords []string `yaml:"announcement_bypass_words"`
	PersonalMarkers         []string `yaml:"personal_markers"`
	CrisisTerms             []string `yaml:"crisis_terms"`
	DistressTerms           []string `yaml:"distress_terms"`
}

// Combination is a curated (manifestation, context) pair. In YAML it is written
// as a two element sequence.
type Combination struct {
	Manifestation string
	Context       string
}

// UnmarshalYAML decodes a combination from a [manifestation, context] pair.
func (c *Combination) UnmarshalYAML(value *yaml.Node) error {
	var pair []string
	if err := value.Decode(&pair); err != nil {
		return fmt.Errorf("combination at line %d: %w", value.Line, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("combination at line %d: want 2 terms, got %d", value.Line, len(pair))
	}
	c.Manifestation = strings.TrimSpace(pair[0])
	c.Context = strings.TrimSpace(pair[1])
	return nil
}

// MarshalYAML encodes a combination as a flow sequence.
func (c Combination) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	node.Content = []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: c.Manifestation},
		{Kind: yaml.ScalarNode, Value: c.Context},
	}
	return node, nil
}

// Default returns the embedded vocabulary.
func Default() (*Lexicon, error) {
	return Parse(defaultLexicon)
}

// Load reads a lexicon from path, or returns the embedded default when path is
// empty.
func Load(path string) (*Lexicon, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	lex, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return lex, nil
}

// Parse decodes and validates a YAML lexicon.
func Parse(raw []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(raw, &lex); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if err := lex.Validate(); err != nil {
		return nil, err
	}
	return &lex, nil
}

// Validate checks that every list the filter and the generator depend on is
// present and that taxonomy keys are known categories.
func (l *Lexicon) Validate() error {
	for category, terms := range l.Taxonomy {
		if !category.IsValid() {
			return fmt.Errorf("unknown taxonomy category %q", category)
		}
		if len(terms) == 0 {
			return fmt.Errorf("taxonomy category %q has no terms", category)
		}
	}
	for _, category := range models.Categories {
		if len(l.Taxonomy[category]) == 0 {
			return fmt.Errorf("taxonomy category %q is missing", category)
		}
	}

	required := map[string][]string{
		"context.crisis":                    l.Context.Crisis,
		"context.places":                    l.Context.Places,
		"filters.account_terms":             l.Filters.AccountTerms,
		"filters.announcement_terms":        l.Filters.AnnouncementTerms,
		"filters.reply_signal_terms":        l.Filters.ReplySignalTerms,
		"filters.strong_personal_phrases":   l.Filters.StrongPersonalPhrases,
		"filters.announcement_bypass_words": l.Filters.AnnouncementBypassWords,
		"filters.personal_markers":          l.Filters.PersonalMarkers,
		"filters.crisis_terms":              l.Filters.CrisisTerms,
		"filters.distress_terms":            l.Filters.DistressTerms,
		"gazetteer":                         l.Gazetteer,
	}
	for name, terms := range required {
		if len(terms) == 0 {
			return fmt.Errorf("%s must not be empty", name)
		}
	}

	for i, combo := range l.Combinations {
		if combo.Manifestation == "" || combo.Context == "" {
			return fmt.Errorf("combination %d has an empty term", i)
		}
	}
	return nil
}

// CategoryOf finds the manifestation category containing term. Categories are
// searched in taxonomy order so the first match wins.
func (l *Lexicon) CategoryOf(term string) (models.Category, bool) {
	needle := strings.ToLower(strings.TrimSpace(term))
	for _, category := range models.Categories {
		for _, candidate := range l.Taxonomy[category] {
			if strings.ToLower(candidate) == needle {
				return category, true
			}
		}
	}
	return "", false
}
