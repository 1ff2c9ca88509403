package mapping

import (
	"fmt"

	"github.com/JonMunkholm/jobetl/internal/core"
	"github.com/JonMunkholm/jobetl/internal/document"
	"github.com/JonMunkholm/jobetl/internal/textnorm"
)

// Mapper applies a FieldMapping to source documents. It holds no state
// besides the mapping and is safe for concurrent use.
type Mapper struct {
	mapping *FieldMapping
}

// NewMapper returns a Mapper over m.
func NewMapper(m *FieldMapping) *Mapper {
	return &Mapper{mapping: m}
}

// Mapping returns the mapping the Mapper applies.
func (p *Mapper) Mapping() *FieldMapping {
	return p.mapping
}

// Map resolves every declared column against doc. Found strings are
// normalized, other found values are kept as is, and anything not found is
// nil. Every declared table and column is present in the result.
//
// The only error is text that is not valid UTF-8.
func (p *Mapper) Map(doc document.Document) (core.Tables, error) {
	out := make(core.Tables, len(p.mapping.tables))

	for _, t := range p.mapping.tables {
		row := make(core.Row, len(t.Columns))
		for _, c := range t.Columns {
			v, found := doc.Resolve(c.Path)
			if !found {
				row[c.Name] = nil
				continue
			}
			nv, err := textnorm.NormalizeValue(v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.Name, c.Name, err)
			}
			row[c.Name] = nv
		}
		out[t.Name] = row
	}

	return out, nil
}

// Placeholder returns the all-null record shape, used in place of a
// document that could not be parsed.
func (p *Mapper) Placeholder() core.Tables {
	out := make(core.Tables, len(p.mapping.tables))
	for _, t := range p.mapping.tables {
		row := make(core.Row, len(t.Columns))
		for _, c := range t.Columns {
			row[c.Name] = nil
		}
		out[t.Name] = row
	}
	return out
}
