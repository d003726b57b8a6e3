// Package keywords provides lexical query analysis for hybrid retrieval:
// content-term extraction from queries and substring-overlap scoring of
// document text against those terms.
package keywords

import (
	"strings"
	"unicode"
)

// stopwords excluded from extraction. Kept small on purpose: the scorer is a
// coarse lexical signal, not a search engine.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "his": {}, "has": {}, "had": {}, "how": {},
	"who": {}, "what": {}, "when": {}, "where": {}, "which": {}, "this": {},
	"that": {}, "these": {}, "those": {}, "with": {}, "from": {}, "they": {},
	"them": {}, "then": {}, "than": {}, "there": {}, "their": {}, "about": {},
	"would": {}, "could": {}, "should": {}, "does": {}, "did": {}, "have": {},
	"were": {}, "been": {}, "being": {}, "into": {}, "some": {}, "such": {},
	"only": {}, "other": {}, "more": {}, "most": {}, "over": {}, "also": {},
	"your": {}, "its": {}, "it's": {}, "will": {}, "just": {}, "very": {},
	"tell": {}, "please": {}, "give": {},
}

// Extract tokenises text into distinct content terms: lowercased, split on
// non-alphanumeric runes, stopwords and tokens shorter than 3 runes dropped.
// First-occurrence order is preserved so results are deterministic.
func Extract(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	var terms []string
	for _, tok := range fields {
		if len([]rune(tok)) < 3 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}

// Score returns the fraction of keywords appearing as case-insensitive
// substrings of docText. Empty keyword sets score 0.
func Score(keywords []string, docText string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(docText)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}
