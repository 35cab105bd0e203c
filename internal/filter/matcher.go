package filter

import (
	"regexp"
	"sort"
	"strings"
)

// substringMatcher reports whether any term occurs anywhere in the input.
type substringMatcher struct {
	terms []string
}

func newSubstringMatcher(terms []string) substringMatcher {
	return substringMatcher{terms: normalizeTerms(terms)}
}

func (m substringMatcher) match(s string) bool {
	for _, term := range m.terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

// wordMatcher matches whole words or phrases. Boundaries are any non letter,
// non digit rune so accented words such as "estrés" are handled, which the
// ASCII-only \b of RE2 does not do.
type wordMatcher struct {
	re *regexp.Regexp
}

func newWordMatcher(terms []string) wordMatcher {
	normalized := normalizeTerms(terms)
	if len(normalized) == 0 {
		return wordMatcher{}
	}

	// Longest first so phrases win over their own prefixes.
	sort.SliceStable(normalized, func(i, j int) bool {
		return len(normalized[i]) > len(normalized[j])
	})

	alternatives := make([]string, 0, len(normalized))
	for _, term := range normalized {
		words := strings.Fields(term)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alternatives = append(alternatives, strings.Join(words, `\s+`))
	}

	pattern := `(?:^|[^\p{L}\p{N}_])(?:` + strings.Join(alternatives, "|") + `)(?:$|[^\p{L}\p{N}_])`
	return wordMatcher{re: regexp.MustCompile(pattern)}
}

func (m wordMatcher) match(s string) bool {
	if m.re == nil {
		return false
	}
	return m.re.MatchString(s)
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
