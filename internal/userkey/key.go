// Package userkey generates and normalises the codes that namespace a user's stored progress.
package userkey

import (
	"math/rand/v2"
	"strings"
)

const (
	// Length is the number of characters in a user key.
	Length = 12
	// Alphabet is the set of characters a key is drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generate returns a new random key of Length characters drawn uniformly from Alphabet.
// It is not cryptographically secure and callers must not treat it as a secret.
func Generate() string {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		b.WriteByte(Alphabet[rand.IntN(len(Alphabet))])
	}
	return b.String()
}

// Normalize trims surrounding whitespace and upper-cases a code typed by a user.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether key has the shape of a generated key.
func Valid(key string) bool {
	if len(key) != Length {
		return false
	}
	for i := 0; i < len(key); i++ {
		if strings.IndexByte(Alphabet, key[i]) < 0 {
			return false
		}
	}
	return true
}

// Abbreviate returns the first six characters of key followed by an ellipsis,
// the form shown in page headers.
func Abbreviate(key string) string {
	if len(key) <= 6 {
		return key
	}
	return key[:6] + "..."
}
