package matching

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// NameSimilarity returns a 0..1 similarity between two account names: the
// better of normalized Levenshtein ratio and token-set overlap. Both inputs
// are normalized first; the measure is pure and deterministic.
func NameSimilarity(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	ratio := levenshtein.RatioForStrings([]rune(na), []rune(nb), levenshtein.DefaultOptions)
	overlap := tokenSetOverlap(na, nb)
	if overlap > ratio {
		return overlap
	}
	return ratio
}

// tokenSetOverlap is |A ∩ B| / |A ∪ B| over the names' word sets.
func tokenSetOverlap(a, b string) float64 {
	setA := make(map[string]struct{})
	for _, tok := range strings.Fields(a) {
		setA[tok] = struct{}{}
	}
	setB := make(map[string]struct{})
	for _, tok := range strings.Fields(b) {
		setB[tok] = struct{}{}
	}

	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// SharedTokens reports how many word tokens two names share, for evidence
// strings.
func SharedTokens(a, b string) (shared, total int) {
	setA := make(map[string]struct{})
	for _, tok := range strings.Fields(NormalizeName(a)) {
		setA[tok] = struct{}{}
	}
	tokensB := strings.Fields(NormalizeName(b))
	for _, tok := range tokensB {
		if _, ok := setA[tok]; ok {
			shared++
		}
	}
	total = len(setA)
	if len(tokensB) > total {
		total = len(tokensB)
	}
	return shared, total
}
