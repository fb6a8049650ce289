// Package autocorrect repairs misspelled entity values in natural-language
// queries by matching them against known database content. Matching is pure
// string similarity over sampled values; the engine never touches the
// database directly.
package autocorrect

import (
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Threshold is the minimum similarity for an automatic correction.
// A score exactly at the threshold is accepted.
const Threshold = 0.70

// foldDiacritics strips combining marks after NFD decomposition, so that
// "Bjørn" and "Bjorn" compare equal.
var foldDiacritics = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold lowercases a string and removes diacritic marks.
func Fold(s string) string {
	folded, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		folded = s
	}
	// ø and similar are standalone letters, not combining marks.
	folded = strings.Map(func(r rune) rune {
		switch r {
		case 'ø':
			return 'o'
		case 'Ø':
			return 'O'
		case 'đ':
			return 'd'
		case 'ł':
			return 'l'
		case 'æ':
			return 'e'
		case 'ß':
			return 's'
		}
		return r
	}, folded)
	return strings.ToLower(folded)
}

// Similarity scores two strings in [0, 1]. The base score is normalized
// Levenshtein distance over the longer length; if the diacritic-folded forms
// are strictly closer, the folded score wins. Folding therefore never
// penalizes, only helps.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	base := ratio(strings.ToLower(a), strings.ToLower(b))
	folded := ratio(Fold(a), Fold(b))
	if folded > base {
		return folded
	}
	return base
}

func ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longer := la
	if lb > longer {
		longer = lb
	}
	if longer == 0 {
		return 1
	}
	dist := levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptionsWithSub)
	return 1 - float64(dist)/float64(longer)
}
