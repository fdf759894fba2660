// Package cnj handles the unified process numbering used by Brazilian courts
// (NNNNNNN-DD.AAAA.J.TR.OOOO).
package cnj

import (
	"strings"
)

// Length is the number of digits in a unified process number.
const Length = 20

// Digits strips every non-digit character from s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize formats s as NNNNNNN-DD.AAAA.J.TR.OOOO when it carries exactly
// twenty digits. Anything else is returned unchanged.
func Normalize(s string) string {
	d := Digits(s)
	if len(d) != Length {
		return s
	}
	return d[0:7] + "-" + d[7:9] + "." + d[9:13] + "." + d[13:14] + "." + d[14:16] + "." + d[16:20]
}

// Valid reports whether s normalizes to a unified process number.
func Valid(s string) bool {
	return len(Digits(s)) == Length
}
