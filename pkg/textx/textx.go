// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Truncate cuts s at max characters and appends marker when a cut happened.
// Counting is by rune, not byte, so accented text keeps its full budget and
// a cut never lands inside a UTF-8 sequence.
func Truncate(s string, max int, marker string) string {
	if max < 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + marker
}

// DecodeLatin1 interprets raw bytes as ISO 8859-1 text. Every byte maps to
// the code point of the same value, so decoding never fails.
func DecodeLatin1(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
