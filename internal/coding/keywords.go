package coding

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "after": {}, "all": {}, "also": {}, "an": {}, "and": {},
	"any": {}, "are": {}, "as": {}, "at": {}, "be": {}, "because": {}, "been": {},
	"between": {}, "both": {}, "but": {}, "by": {}, "can": {}, "could": {},
	"did": {}, "do": {}, "does": {}, "during": {}, "each": {}, "for": {},
	"from": {}, "had": {}, "has": {}, "have": {}, "how": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "its": {}, "may": {}, "more": {}, "most": {},
	"no": {}, "not": {}, "of": {}, "on": {}, "one": {}, "or": {}, "other": {},
	"our": {}, "over": {}, "such": {}, "than": {}, "that": {}, "the": {},
	"their": {}, "them": {}, "then": {}, "there": {}, "these": {}, "they": {},
	"this": {}, "those": {}, "through": {}, "to": {}, "under": {}, "upon": {},
	"was": {}, "we": {}, "were": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "while": {}, "who": {}, "will": {}, "with": {}, "within": {},
	"would": {}, "you": {},
}

// Keywords ranks the content-bearing terms of text by frequency and returns
// the top n, lower-cased. Ties break alphabetically so the ranking is stable.
func Keywords(text string, n int) []string {
	freq := TermFrequency(text)
	if len(freq) == 0 {
		return nil
	}
	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if n > 0 && len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

// TermFrequency tokenizes on non-letter/digit boundaries and counts terms,
// skipping stopwords and tokens shorter than three runes.
func TermFrequency(text string) map[string]int {
	freq := map[string]int{}
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if len([]rune(tok)) < 3 {
			continue
		}
		if _, skip := stopwords[tok]; skip {
			continue
		}
		freq[tok]++
	}
	return freq
}

// MergeKeywordCounts sums frequency maps, used when ranking keywords across a
// whole cluster of codes.
func MergeKeywordCounts(dst map[string]int, srcs ...map[string]int) map[string]int {
	if dst == nil {
		dst = map[string]int{}
	}
	for _, src := range srcs {
		for t, c := range src {
			dst[t] += c
		}
	}
	return dst
}

// TopTerms ranks a frequency map and returns up to n terms.
func TopTerms(freq map[string]int, n int) []string {
	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if n > 0 && len(terms) > n {
		terms = terms[:n]
	}
	return terms
}
