package locator

import (
	"regexp"
	"strings"

	"github.com/matzegebbe/replicator/internal/failure"
)

// originPattern matches "https://" followed by any run of characters that are
// not whitespace, double quotes or single quotes.
var originPattern = regexp.MustCompile(`https://[^\s"']+`)

// ExtractOrigin returns the first secure-origin URL embedded in an installer
// script. source names the script for error reporting.
func ExtractOrigin(text, source string) (string, error) {
	match := originPattern.FindString(text)
	if match == "" {
		return "", &failure.ResolutionError{What: "origin URL", Source: source}
	}
	match = strings.TrimRight(match, `"`)
	match = strings.TrimRight(match, `'`)
	return match, nil
}

// VerifyOrigin checks that origin appears verbatim in a second installer
// variant.
func VerifyOrigin(origin, text, source string) error {
	if !strings.Contains(text, origin) {
		return &failure.ConsistencyError{Expected: origin, Source: source}
	}
	return nil
}

// Join appends a relative path to a base address.
func Join(base, rel string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(rel, "/")
}
