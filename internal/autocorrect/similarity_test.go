package autocorrect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity_Identical(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Murray", "Murray"))
	assert.Equal(t, 1.0, Similarity("murray", "Murray"), "case must not matter")
}

func TestSimilarity_SingleDeletion(t *testing.T) {
	// One dropped letter in a six-letter name stays well above threshold.
	score := Similarity("Muray", "Murray")
	assert.GreaterOrEqual(t, score, Threshold)
	assert.Less(t, score, 1.0)
}

func TestSimilarity_DiacriticDrop(t *testing.T) {
	// The folded comparison makes a diacritic drop a perfect match.
	assert.Equal(t, 1.0, Similarity("Bjorn", "Bjørn"))
	assert.Equal(t, 1.0, Similarity("Francois", "François"))
	assert.Equal(t, 1.0, Similarity("Munoz", "Muñoz"))
}

func TestSimilarity_FoldingNeverPenalizes(t *testing.T) {
	// Unrelated strings stay unrelated whether folded or not.
	assert.Less(t, Similarity("Bjorn", "Washington"), Threshold)
}

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Bjørn":    "bjorn",
		"François": "francois",
		"Muñoz":    "munoz",
		"plain":    "plain",
	}
	for in, want := range cases {
		assert.Equal(t, want, Fold(in))
	}
}

func TestSimilarity_ShortStrings(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Less(t, Similarity("a", "z"), Threshold)
}
