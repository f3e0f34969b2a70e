package parse

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// keepRune reports whether r survives normalization: ASCII letters, digits and whitespace.
func keepRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ', r == '\t', r == '\n', r == '\r', r == '\v', r == '\f':
		return true
	}
	return false
}

// Normalize converts free text into its canonical form: lowercase, ASCII letters/digits/spaces
// only, whitespace collapsed and trimmed.
//
// Non-ASCII runes are dropped, never folded: "sold 1½" must read as slot 1, not 112.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	t := runes.Remove(runes.Predicate(func(r rune) bool { return !keepRune(r) }))
	stripped, _, err := transform.String(t, text)
	if err != nil {
		return ""
	}

	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}
