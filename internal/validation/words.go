// Package validation provides the word-count rules used to gate workshop steps.
package validation

import "strings"

// WordCount returns the number of whitespace-delimited, non-empty tokens in text.
func WordCount(text string) int {
	// strings.Fields already drops the empty tokens produced by repeated whitespace
	return len(strings.Fields(text))
}

// IsValid reports whether text has at least minWords words.
func IsValid(text string, minWords int) bool {
	return WordCount(text) >= minWords
}

// Remaining returns how many more words are needed to reach minWords, never negative.
func Remaining(text string, minWords int) int {
	if n := minWords - WordCount(text); n > 0 {
		return n
	}
	return 0
}
