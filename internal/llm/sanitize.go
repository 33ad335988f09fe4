package llm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxContentRunes bounds each message's content after sanitization.
const MaxContentRunes = 10000

// SanitizeContent normalizes s to NFC, drops control characters (newline and
// tab survive) and bidirectional formatting marks, and truncates the result to
// MaxContentRunes runes.
func SanitizeContent(s string) string {
	s = norm.NFC.String(s)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if n >= MaxContentRunes {
			break
		}
		if dropRune(r) {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

func dropRune(r rune) bool {
	switch r {
	case '\n', '\t':
		return false
	case '\r':
		return true
	}
	if unicode.IsControl(r) {
		return true
	}
	// bidi embeddings/overrides/isolates and zero-width joiners used to hide text
	switch {
	case r >= 0x202A && r <= 0x202E,
		r >= 0x2066 && r <= 0x2069,
		r == 0x200B, r == 0x200E, r == 0x200F, r == 0xFEFF:
		return true
	}
	return false
}
