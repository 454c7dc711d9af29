// Package fuzzy provides the text canonicalization and edit-distance based
// similarity scores used to compare bank descriptions with ledger vendors.
//
// All scores are integers on a 0-100 scale. Two identical non-empty strings
// score 100; a comparison with an empty side scores 0.
package fuzzy

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var legalSuffixes = map[string]struct{}{
	"inc":  {},
	"llc":  {},
	"ltd":  {},
	"corp": {},
	"co":   {},
}

// Normalize canonicalizes a vendor or description string: it lower-cases the
// text, drops every character that is not a letter, digit, underscore or
// whitespace, removes legal-entity suffix words and trims the result.
// Whitespace runs are collapsed to a single space, so Normalize is idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	lowered := cases.Lower(language.Und).String(text)

	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, lowered)

	words := strings.Fields(stripped)
	kept := words[:0]
	for _, w := range words {
		if _, ok := legalSuffixes[w]; ok {
			continue
		}
		kept = append(kept, w)
	}

	return strings.Join(kept, " ")
}

// Ratio is the normalized Levenshtein similarity of a and b, where a
// substitution costs two edits.
func Ratio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	return ratio([]rune(a), []rune(b))
}

func ratio(a, b []rune) int {
	r := levenshtein.RatioForStrings(a, b, levenshtein.DefaultOptions)
	return int(math.Round(r * 100))
}

// TokenSortRatio compares a and b after splitting them into alphanumeric
// tokens and sorting the tokens, so word order does not matter.
func TokenSortRatio(a, b string) int {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

func sortedTokens(s string) string {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// PartialRatio is the best Ratio between the shorter string and every
// window of the same length in the longer string. A vendor name that
// appears inside a longer bank description scores 100.
func PartialRatio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}

	shorter, longer := []rune(a), []rune(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	if len(shorter) == len(longer) {
		if string(shorter) == string(longer) {
			return 100
		}
		return ratio(shorter, longer)
	}

	best := 0
	window := len(shorter)
	for start := 0; start+window <= len(longer); start++ {
		candidate := longer[start : start+window]
		if string(candidate) == string(shorter) {
			return 100
		}
		if score := ratio(shorter, candidate); score > best {
			best = score
		}
	}
	return best
}
