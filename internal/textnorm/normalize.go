// Package textnorm decodes HTML-entity-escaped text scraped from job pages
// into clean UTF-8.
package textnorm

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidUTF8 is returned when input text is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("invalid utf-8")

// Normalize decodes HTML character entities and returns the result in NFC.
//
// Decoding and composition run together to a fixed point, so double-escaped
// input such as "&amp;amp;" becomes "&", and text that only spells an entity
// after composition (KELVIN SIGN composes to ASCII K) is decoded as well.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("normalize %q: %w", truncate(s), ErrInvalidUTF8)
	}

	// Terminates: NFC is idempotent and never introduces '&', so a
	// productive pass has to decode an entity, which removes an '&' or
	// shortens the string.
	out := norm.NFC.String(s)
	for strings.IndexByte(out, '&') >= 0 {
		next := norm.NFC.String(html.UnescapeString(out))
		if next == out {
			break
		}
		out = next
	}

	if !utf8.ValidString(out) {
		return "", fmt.Errorf("normalize %q: %w", truncate(s), ErrInvalidUTF8)
	}
	return out, nil
}

// NormalizeDocument normalizes every string value in doc in place, at every
// depth, including strings inside arrays. Keys are left untouched.
func NormalizeDocument(doc map[string]any) error {
	for k, v := range doc {
		nv, err := NormalizeValue(v)
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		doc[k] = nv
	}
	return nil
}

// NormalizeValue returns v with every string in it normalized. Maps and
// slices are copied, never modified; other values are returned as is.
func NormalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return Normalize(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			nv, err := NormalizeValue(item)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			nv, err := NormalizeValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}

func truncate(s string) string {
	const max = 32
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
