package session

import (
	"math/rand/v2"
	"strings"
)

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomCode returns a six character session code.
func RandomCode() string {
	var b strings.Builder
	for range 6 {
		b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
	}
	return b.String()
}

// SanitizeCode upper-cases a session code, keeps [A-Z0-9-] and caps it
// at 32 characters.
func SanitizeCode(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
			if b.Len() == 32 {
				break
			}
		}
	}
	return b.String()
}
