package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Jane Doe  ", "JANE DOE"},
		{"jon smith", "JON SMITH"},
		{"J. Smyth", "J SMYTH"},
		{"O'Brien", "OBRIEN"},
		{"Smith-Jones", "SMITH JONES"},
		{"A  &  B", "A AND B"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestSimilarityBoundary(t *testing.T) {
	m := TrigramMatcher{}

	// The acceptance threshold for contact reuse is 0.8: a close
	// given-name variant clears it, an abbreviated misspelling does not.
	assert.GreaterOrEqual(t, m.Similarity("Jon Smith", "John Smith"), 0.8)
	assert.Less(t, m.Similarity("J. Smyth", "Jon Smith"), 0.8)
}

func TestSimilarity(t *testing.T) {
	m := TrigramMatcher{}

	assert.InDelta(t, 1.0, m.Similarity("Jane Doe", "jane doe"), 1e-9)
	assert.InDelta(t, 1.0, m.Similarity("Jane Doe", "Jane  Doe "), 1e-9)
	assert.Equal(t, 0.0, m.Similarity("", "Jane"))
	assert.Equal(t, 0.0, m.Similarity("Jane", ""))
	assert.Equal(t, 0.0, m.Similarity("...", "Jane"))

	// Symmetric.
	assert.InDelta(t,
		m.Similarity("Jon Smith", "John Smith"),
		m.Similarity("John Smith", "Jon Smith"),
		1e-9)

	// Unrelated names score low.
	assert.Less(t, m.Similarity("Jane Doe", "Robert Paulson"), 0.3)
}

func TestSimilarityShortNames(t *testing.T) {
	m := TrigramMatcher{}

	// Single-token local-part-derived names still match themselves.
	assert.InDelta(t, 1.0, m.Similarity("jdoe", "JDOE"), 1e-9)
	assert.Less(t, m.Similarity("jdoe", "jsmith"), 0.8)
}
