package service

import (
	"regexp"
	"strings"
)

const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// maxCodeAttempts bounds the generated-code retry loop; offsets 0..99 from
// the record id are tried before giving up.
const maxCodeAttempts = 100

// encodeBase62 is a dense positional encoding of the record identifier.
// Successive ids (and successive offsets of one id) yield distinct codes.
func encodeBase62(n uint64) string {
	if n == 0 {
		return "0"
	}
	var b strings.Builder
	for n > 0 {
		b.WriteByte(base62Chars[n%62])
		n /= 62
	}
	return reverse(b.String())
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

var reservedCodes = map[string]bool{
	"s":        true,
	"login":    true,
	"register": true,
	"shorten":  true,
	"links":    true,
	"stats":    true,
	"delete":   true,
	"health":   true,
}

var codeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// ValidateCode checks a caller-supplied short code against the charset and
// the route-reserved names.
func ValidateCode(code string) bool {
	if reservedCodes[strings.ToLower(code)] {
		return false
	}
	return codeRegex.MatchString(code)
}
