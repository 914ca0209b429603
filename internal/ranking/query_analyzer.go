package ranking

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/models"
)

const (
	minTermLength   = 3
	minPhraseLength = 6
	minPhraseWords  = 2
	maxPhraseWords  = 4
)

// stopWords are dropped from key terms. Phrases may still contain them.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true,
	"and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true, "with": true, "by": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "should": true, "could": true, "may": true, "might": true, "must": true,
	"can": true, "i": true, "expect": true,
	"what": true, "how": true, "why": true, "when": true, "where": true, "which": true, "who": true,
}

// IsStopWord reports whether word is on the stop list.
func IsStopWord(word string) bool {
	return stopWords[word]
}

// QueryAnalyzer turns raw questions into key terms and phrases.
type QueryAnalyzer struct{}

// NewQueryAnalyzer creates a new QueryAnalyzer.
func NewQueryAnalyzer() *QueryAnalyzer {
	return &QueryAnalyzer{}
}

// Analyze returns the key terms and phrases of query, each deduplicated in
// first-seen order.
func (qa *QueryAnalyzer) Analyze(query string) *models.QueryTerms {
	words := Tokenize(query)
	return &models.QueryTerms{
		Terms:   keyTerms(words),
		Phrases: phrases(words),
	}
}

// ExtractKeyTerms returns the union of the filtered single tokens and all
// qualifying phrases of query.
func (qa *QueryAnalyzer) ExtractKeyTerms(query string) []string {
	return AllTerms(qa.Analyze(query))
}

// ExtractPhrases returns the 2 to 4 word windows of query longer than 5 characters.
func (qa *QueryAnalyzer) ExtractPhrases(query string) []string {
	return phrases(Tokenize(query))
}

// AllTerms returns qt.Terms followed by qt.Phrases, deduplicated.
func AllTerms(qt *models.QueryTerms) []string {
	out := make([]string, 0, len(qt.Terms)+len(qt.Phrases))
	seen := make(map[string]bool, cap(out))
	for _, list := range [][]string{qt.Terms, qt.Phrases} {
		for _, t := range list {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// Tokenize lowercases query, replaces every character that is not a letter,
// digit, underscore or whitespace with a space, and splits on whitespace.
func Tokenize(query string) []string {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, strings.ToLower(strings.TrimSpace(query)))
	return strings.Fields(normalized)
}

func keyTerms(words []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, w := range words {
		if utf8.RuneCountInString(w) < minTermLength || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func phrases(words []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for i := range words {
		for n := minPhraseWords; n <= maxPhraseWords && i+n <= len(words); n++ {
			p := strings.Join(words[i:i+n], " ")
			if utf8.RuneCountInString(p) < minPhraseLength || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// CountMatching returns how many of needles occur in text. text is lowercased
// before matching; needles are expected lowercase already.
func CountMatching(text string, needles []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, needle := range needles {
		if needle != "" && strings.Contains(lower, needle) {
			n++
		}
	}
	return n
}

// ContainsAny reports whether text contains at least one of needles.
func ContainsAny(text string, needles []string) bool {
	lower := strings.ToLower(text)
	for _, needle := range needles {
		if needle != "" && strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
