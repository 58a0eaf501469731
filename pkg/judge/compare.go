package judge

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes an output string for comparison: every whitespace
// and quote character is dropped and the remainder lowercased. Submissions
// format values inconsistently ("[0,1]" vs "[0, 1]" vs "['0','1']"), so the
// comparison is deliberately insensitive to cosmetic formatting. Values that
// only differ in quoting or case normalize identically; that collision is a
// documented limitation of the platform's string-based test format.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == '\'' || r == '"' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Compare reports whether expected and actual output match after normalization.
func Compare(expected, actual string) bool {
	return Normalize(expected) == Normalize(actual)
}
