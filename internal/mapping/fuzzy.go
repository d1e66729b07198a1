package mapping

import (
	"github.com/hyperjump/sashikomi/internal/models"
)

// FuzzyMatchConfidence is the fixed confidence for a fuzzy hit, kept below
// the name matcher's so exact-style matches rank higher when merged.
const FuzzyMatchConfidence = 0.7

// FuzzyMatcher matches tag names to field keys by Damerau-Levenshtein
// distance over their stripped forms. An alternative Strategy demonstrating
// the pluggable contract.
type FuzzyMatcher struct {
	// MaxDistance is the largest accepted edit distance; 0 means 2.
	MaxDistance int
}

// Match implements Strategy. The closest field within MaxDistance wins; ties
// are resolved by source field order.
func (f FuzzyMatcher) Match(tag models.Tag, fields []models.Field) (string, float64) {
	maxDist := f.MaxDistance
	if maxDist == 0 {
		maxDist = 2
	}
	name := stripNonAlnum(tag.Name)
	if name == "" {
		return "", 0
	}

	best := ""
	bestDist := maxDist + 1
	for _, field := range fields {
		fk := stripNonAlnum(field.Key)
		if fk == "" {
			continue
		}
		if d := damerauLevenshtein(name, fk); d < bestDist {
			best = field.Key
			bestDist = d
		}
	}
	if best == "" {
		return "", 0
	}
	return best, FuzzyMatchConfidence
}

// damerauLevenshtein calculates the minimum number of single-character edits
// (insertions, deletions, substitutions, or adjacent transpositions) required
// to change one string into another.
func damerauLevenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Convert to runes for proper Unicode handling
	runesA := []rune(a)
	runesB := []rune(b)
	lenA := len(runesA)
	lenB := len(runesB)

	// Full matrix (needed for the transposition check)
	d := make([][]int, lenA+1)
	for i := range d {
		d[i] = make([]int, lenB+1)
	}
	for i := 0; i <= lenA; i++ {
		d[i][0] = i
	}
	for j := 0; j <= lenB; j++ {
		d[0][j] = j
	}

	for i := 1; i <= lenA; i++ {
		for j := 1; j <= lenB; j++ {
			cost := 0
			if runesA[i-1] != runesB[j-1] {
				cost = 1
			}

			del := d[i-1][j] + 1
			ins := d[i][j-1] + 1
			sub := d[i-1][j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}

			if i > 1 && j > 1 &&
				runesA[i-1] == runesB[j-2] &&
				runesA[i-2] == runesB[j-1] {
				if t := d[i-2][j-2] + cost; t < m {
					m = t
				}
			}
			d[i][j] = m
		}
	}

	return d[lenA][lenB]
}
