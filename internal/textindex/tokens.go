package textindex

import (
	"strings"
	"unicode"
)

// MinTermLength is the shortest token kept as a significant term.
const MinTermLength = 3

// stopWords are common words filtered out during term extraction.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "its": true, "let": true, "may": true, "who": true,
	"did": true, "get": true, "got": true, "him": true, "his": true,
	"how": true, "new": true, "now": true, "old": true, "see": true,
	"way": true, "too": true, "use": true, "does": true, "doing": true,
	"that": true, "with": true, "have": true, "this": true, "will": true,
	"your": true, "from": true, "they": true, "been": true, "said": true,
	"each": true, "which": true, "their": true, "what": true, "about": true,
	"would": true, "there": true, "when": true, "where": true, "why": true,
	"just": true, "into": true, "than": true, "then": true, "them": true,
	"these": true, "those": true, "some": true, "could": true, "should": true,
	"were": true, "here": true, "also": true, "only": true, "very": true,
	"over": true, "such": true, "any": true, "more": true, "most": true,
	"other": true, "because": true, "while": true, "after": true, "before": true,
	"being": true, "mine": true, "yours": true, "ours": true, "myself": true,
}

// IsStopWord reports whether the lowercase token is a stopword.
func IsStopWord(tok string) bool {
	return stopWords[tok]
}

// Tokenize splits text into lowercase runs of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Terms returns the significant terms of text in first-seen order,
// without duplicates. Short tokens and stopwords are dropped.
func Terms(text string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, tok := range Tokenize(text) {
		if len([]rune(tok)) < MinTermLength || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
	}
	return terms
}

// TermSet returns the significant terms of text as a set.
func TermSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Terms(text) {
		set[t] = true
	}
	return set
}

// FTSQuery converts text into an FTS5 OR query over quoted significant terms.
// Returns "" when no term survives.
func FTSQuery(text string) string {
	terms := Terms(text)
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = `"` + t + `"`
	}
	return strings.Join(parts, " OR ")
}
