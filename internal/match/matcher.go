// Package match provides pluggable fuzzy name matching for contact resolution.
package match

// NameMatcher scores the similarity of two names in [0, 1].
// Implementations must be symmetric and safe for concurrent use.
type NameMatcher interface {
	Similarity(a, b string) float64
}

// TrigramMatcher scores names by shared 3-character substrings over the
// normalized form, the same family of metric as Postgres pg_trgm. The
// score is the trigram overlap divided by the smaller trigram set, which
// keeps short given names ("Jon" vs "John") from being drowned out by a
// long shared surname.
type TrigramMatcher struct{}

// Similarity returns the trigram overlap score of a and b.
func (TrigramMatcher) Similarity(a, b string) float64 {
	ta := trigrams(Normalize(a))
	tb := trigrams(Normalize(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	small, large := ta, tb
	if len(tb) < len(ta) {
		small, large = tb, ta
	}

	var shared int
	for g := range small {
		if _, ok := large[g]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

// trigrams extracts the set of 3-grams from a normalized name. Each word
// is padded with two leading spaces and one trailing space, matching
// pg_trgm's extraction.
func trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range splitWords(s) {
		padded := "  " + w + " "
		for i := 0; i+3 <= len(padded); i++ {
			set[padded[i:i+3]] = struct{}{}
		}
	}
	return set
}

func splitWords(s string) []string {
	var words []string
	start := -1
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != ' ' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words = append(words, s[start:i])
			start = -1
		}
	}
	return words
}
