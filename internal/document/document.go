// Package document parses scraped JSON-LD postings and resolves dotted
// paths inside them.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/jobetl/internal/core"
	"github.com/JonMunkholm/jobetl/internal/textnorm"
)

// Document is one decoded source posting. Numbers are held as json.Number
// so they survive the round trip without reformatting.
type Document map[string]any

// Parse decodes data as a single JSON object.
// Anything else (arrays, scalars, trailing data, bad syntax, invalid UTF-8)
// is a malformed-document error.
func Parse(data []byte) (Document, error) {
	// encoding/json substitutes U+FFFD for bad bytes; check first.
	if !utf8.Valid(data) {
		return nil, core.MalformedDocument("decode posting", textnorm.ErrInvalidUTF8)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, core.MalformedDocument("decode posting", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, core.MalformedDocument("trailing data after posting", nil)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, core.MalformedDocument("posting is not a JSON object", nil)
	}
	return Document(obj), nil
}

// Resolve walks doc one key per dot-separated segment of path.
//
// The empty path is never found. A missing key, or an intermediate value
// that is not an object, stops the walk and reports not-found; no partial
// value is returned. Arrays are not indexed.
func Resolve(doc map[string]any, path string) (any, bool) {
	if path == "" || doc == nil {
		return nil, false
	}

	var cur any = doc
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := m[key]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Resolve is the method form of the package-level Resolve.
func (d Document) Resolve(path string) (any, bool) {
	return Resolve(d, path)
}
