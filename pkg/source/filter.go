package source

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
	"of": true, "with": true, "by": true, "from": true, "is": true,
	"are": true, "best": true, "top": true, "vs": true, "review": true,
	"reviews": true, "my": true, "your": true, "which": true, "what": true,
}

// Matcher decides whether free text is about a query. Every significant
// query token must appear; stopwords and "best"/"review" style filler are
// ignored.
type Matcher struct {
	tokens []string
}

// NewMatcher builds a matcher for query.
func NewMatcher(query string) *Matcher {
	return &Matcher{tokens: significantTokens(query)}
}

// Matches reports whether text mentions every significant token. A query
// with no significant tokens matches nothing.
func (m *Matcher) Matches(text string) bool {
	if len(m.tokens) == 0 {
		return false
	}
	have := make(map[string]bool)
	for _, w := range significantTokens(text) {
		have[w] = true
	}
	for _, tok := range m.tokens {
		if !have[tok] {
			return false
		}
	}
	return true
}

func significantTokens(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var tokens []string
	for _, w := range words {
		if !stopwords[w] {
			tokens = append(tokens, w)
		}
	}
	return tokens
}
