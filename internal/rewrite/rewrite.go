// Package rewrite swaps the origin base address for the mirror's base address
// inside installer scripts.
package rewrite

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/matzegebbe/replicator/internal/failure"
)

var errInvalidUTF8 = errors.New("content is not valid UTF-8")

// Text replaces every literal occurrence of origin in text with destination.
// No URL parsing or canonicalisation is applied.
func Text(text, origin, destination string) string {
	if origin == "" {
		return text
	}
	return strings.ReplaceAll(text, origin, destination)
}

// Count reports how many times origin occurs in text.
func Count(text, origin string) int {
	if origin == "" {
		return 0
	}
	return strings.Count(text, origin)
}

// Decode validates raw as UTF-8 and returns it as text, so that replacements
// never operate on a partial multi-byte sequence.
func Decode(raw []byte, source string) (string, error) {
	if !utf8.Valid(raw) {
		return "", &failure.ResolutionError{What: "text", Source: source, Err: errInvalidUTF8}
	}
	return string(raw), nil
}
