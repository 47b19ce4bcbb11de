package retrieval

import "strings"

// Stop words ignored by lexical scoring
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		// Lowercase and trim punctuation
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))

		// Skip stop words and empty strings
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// termOverlap returns the fraction of distinct query terms that appear in the
// document, after stop word filtering. Zero when the query has no terms.
func termOverlap(document, query string) float64 {
	queryTerms := make(map[string]bool)
	for _, word := range tokenizeAndFilter(query) {
		queryTerms[word] = true
	}
	if len(queryTerms) == 0 {
		return 0
	}

	docTerms := make(map[string]bool)
	for _, word := range tokenizeAndFilter(document) {
		docTerms[word] = true
	}

	hits := 0
	for term := range queryTerms {
		if docTerms[term] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}
