package storage

import "strings"

const upperhex = "0123456789ABCDEF"

// EscapeKey percent-encodes a blob key for use as a single URL path segment.
// It keeps the same characters as JavaScript's encodeURIComponent (letters,
// digits and -_.!~*'()). "/" is encoded too, so a key always maps to exactly
// one segment.
func EscapeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if keepUnescaped(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func keepUnescaped(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	case c == '!', c == '*', c == '\'', c == '(', c == ')':
		return true
	}
	return false
}
