// Package similarity provides the string, number, and date comparison
// primitives shared by the fraud detectors. Every function is pure and total.
package similarity

import (
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DefaultSpreadFactor is the multiple of epsilon over which AmountCloseness
// decays to zero.
const DefaultSpreadFactor = 5.0

var (
	punctStripper = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	multiSpace    = regexp.MustCompile(`\s+`)
)

// Normalize lower-cases s, replaces punctuation with spaces, and collapses
// runs of whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = punctStripper.ReplaceAllString(s, " ")
	return multiSpace.ReplaceAllString(strings.TrimSpace(s), " ")
}

// TextSimilarity returns 1 - editDistance/maxLen over the normalized inputs.
// Two empty strings are identical; an empty string matches nothing else.
func TextSimilarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" && nb == "" {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	longest := max(utf8.RuneCountInString(na), utf8.RuneCountInString(nb))
	dist := levenshtein.ComputeDistance(na, nb)
	return clamp01(1 - float64(dist)/float64(longest))
}

// TokenJaccard returns the Jaccard overlap of the normalized, de-duplicated
// entries of a and b. Entries that normalize to nothing are ignored.
func TokenJaccard(a, b []string) float64 {
	sa, sb := normalizedSet(a), normalizedSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for k := range sa {
		if _, ok := sb[k]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func normalizedSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		if n := Normalize(item); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

// AmountCloseness compares two amounts with the default spread of
// DefaultSpreadFactor × epsilon.
func AmountCloseness(a, b, epsilon float64) float64 {
	return AmountClosenessSpread(a, b, epsilon, DefaultSpreadFactor*epsilon)
}

// AmountClosenessSpread returns 1 when |a-b| <= epsilon and decays linearly
// to 0 once the difference exceeds epsilon by spread.
func AmountClosenessSpread(a, b, epsilon, spread float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return 0
	}
	epsilon = math.Abs(epsilon)
	diff := math.Abs(a - b)
	if diff <= epsilon {
		return 1
	}
	if spread <= 0 {
		return 0
	}
	return clamp01(1 - (diff-epsilon)/spread)
}

// DateProximity returns 1 for the same calendar day and decays linearly to 0
// at windowDays apart.
func DateProximity(d1, d2 time.Time, windowDays int) float64 {
	days := math.Abs(float64(DaysBetween(d1, d2)))
	if days == 0 {
		return 1
	}
	if windowDays <= 0 {
		return 0
	}
	return clamp01(1 - days/float64(windowDays))
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	ya, ma, da := a.Date()
	yb, mb, db := b.Date()
	ua := time.Date(ya, ma, da, 0, 0, 0, 0, time.UTC)
	ub := time.Date(yb, mb, db, 0, 0, 0, 0, time.UTC)
	return int(math.Round(ub.Sub(ua).Hours() / 24))
}

// Clamp01 bounds v to [0,1]; NaN maps to 0.
func Clamp01(v float64) float64 {
	return clamp01(v)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
