package declaration

import (
	"crypto/rand"
	"regexp"
	"strings"
)

// codeAlphabet leaves out characters that are easy to misread: 0 O I L 1.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// maxCodeAttempts bounds server-side regeneration on collision.
const maxCodeAttempts = 6

var clientCodePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{3,31}$`)

// rejectAbove drops bytes that would bias the modulo.
const rejectAbove = 256 - 256%len(codeAlphabet)

// GenerateTrackingCode returns a code shaped XXXX-XXXX-XXXX.
func GenerateTrackingCode() string {
	var b strings.Builder
	b.Grow(14)
	var buf [16]byte
	n := 0
	for n < 12 {
		_, _ = rand.Read(buf[:])
		for _, v := range buf {
			if int(v) >= rejectAbove || n == 12 {
				continue
			}
			if n > 0 && n%4 == 0 {
				b.WriteByte('-')
			}
			b.WriteByte(codeAlphabet[int(v)%len(codeAlphabet)])
			n++
		}
	}
	return b.String()
}

// NormalizeTrackingCode upper-cases and trims a client-supplied code.
func NormalizeTrackingCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// WellFormedTrackingCode reports whether a normalized client code may be
// stored as-is.
func WellFormedTrackingCode(code string) bool {
	return clientCodePattern.MatchString(code)
}
