// Package keyword holds the canonical keyword vocabulary: the
// normalization function used as the global deduplication key, the
// difficulty/intent enumerations, and the derived green-light predicate.
package keyword

import "strings"

// Difficulty values recognized on observations.
const (
	DifficultyLow    = "low"
	DifficultyMedium = "medium"
	DifficultyHigh   = "high"
)

// Intent values recognized on observations.
const (
	IntentInformational = "informational"
	IntentNavigational  = "navigational"
	IntentCommercial    = "commercial"
	IntentTransactional = "transactional"
)

// GreenLightMinScore is the minimum score for a green-light opportunity.
const GreenLightMinScore = 80

// Normalize maps a raw keyword string to its canonical dedup key:
// surrounding whitespace trimmed, lowercased, interior whitespace runs
// collapsed to a single space. Two raw strings with the same normalized
// form are the same logical keyword, so any change here is a data
// migration, not a formatting tweak.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// CountWords returns the number of whitespace-separated words in a raw
// keyword string.
func CountWords(raw string) int {
	return len(strings.Fields(raw))
}

// IsGreenLight reports whether an observation qualifies as a green-light
// opportunity: high score, low competition. The classification is always
// derived from the canonical fields, never stored.
func IsGreenLight(score float64, difficulty string) bool {
	return score >= GreenLightMinScore && difficulty == DifficultyLow
}

// ValidDifficulty reports whether d is a recognized difficulty value.
func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyLow, DifficultyMedium, DifficultyHigh:
		return true
	}

	return false
}

// ValidIntent reports whether i is a recognized intent value.
func ValidIntent(i string) bool {
	switch i {
	case IntentInformational, IntentNavigational,
		IntentCommercial, IntentTransactional:
		return true
	}

	return false
}
