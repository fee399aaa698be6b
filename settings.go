package jsonfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Settings controls how a [File] serializes its value. Object keys are always
// emitted in sorted order and the output is always UTF-8 text.
type Settings struct {
	// Indent is the number of spaces per indentation level. 0 emits compact
	// single-line output.
	Indent int
	// EscapeNonASCII replaces every rune outside the ASCII range with its
	// \uXXXX escape (a surrogate pair for runes above the BMP), yielding a
	// pure-ASCII file.
	EscapeNonASCII bool
}

// DefaultSettings is used by [New] when no settings are given.
var DefaultSettings = Settings{Indent: 4}

// Marshal serializes v under s. HTML characters are not escaped. The output
// ends with a newline.
func Marshal(v any, s Settings) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if s.Indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", s.Indent))
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	b := buf.Bytes()
	if s.EscapeNonASCII {
		b = escapeNonASCII(b)
	}
	return b, nil
}

// escapeNonASCII rewrites already-encoded JSON so every non-ASCII rune is
// \u-escaped. Safe to apply to whole documents: JSON syntax is ASCII, so
// non-ASCII bytes only ever occur inside string literals.
func escapeNonASCII(b []byte) []byte {
	ascii := true
	for _, c := range b {
		if c >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return b
	}
	var out bytes.Buffer
	out.Grow(len(b))
	for _, r := range string(b) {
		switch {
		case r < utf8.RuneSelf:
			out.WriteByte(byte(r))
		case r > 0xFFFF:
			// UTF-16 surrogate pair.
			r -= 0x10000
			fmt.Fprintf(&out, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
		default:
			fmt.Fprintf(&out, `\u%04x`, r)
		}
	}
	return out.Bytes()
}
