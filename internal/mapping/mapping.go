// Package mapping declares how a JSON-LD posting maps onto the destination
// tables and applies that declaration to documents.
//
// A FieldMapping is built once, validated, and never changed afterwards.
// Table and column order is part of the mapping: the loader inserts tables
// in that order and binds columns in that order.
package mapping

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JonMunkholm/jobetl/internal/core"
)

// FieldType tells the store how to bind a column value.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldDate    FieldType = "date"
	FieldNumeric FieldType = "numeric"
	FieldInt     FieldType = "int"
)

func (t FieldType) valid() bool {
	switch t {
	case FieldText, FieldDate, FieldNumeric, FieldInt:
		return true
	}
	return false
}

// Column maps one destination column to a dotted source path.
// An empty Path means the column is intentionally unmapped and always NULL.
type Column struct {
	Name string    `yaml:"name" json:"name"`
	Path string    `yaml:"path" json:"path"`
	Type FieldType `yaml:"type,omitempty" json:"type,omitempty"`
}

// Table is one destination table and its columns, in insert order.
type Table struct {
	Name    string   `yaml:"name" json:"name"`
	Columns []Column `yaml:"columns" json:"columns"`
}

// FieldMapping is a validated, immutable mapping. The zero value is empty
// and unusable; build one with New, Default or LoadFile.
type FieldMapping struct {
	tables []Table
	index  map[string]int
}

var identRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// reserved columns are owned by the store.
var reserved = map[string]bool{"id": true, "job_id": true, "correlation_id": true}

// New validates tables and returns a FieldMapping holding a private copy.
// Columns with no Type default to FieldText.
func New(tables []Table) (*FieldMapping, error) {
	var errs []string

	m := &FieldMapping{
		tables: make([]Table, 0, len(tables)),
		index:  make(map[string]int, len(tables)),
	}

	for _, t := range tables {
		if !identRegex.MatchString(t.Name) {
			errs = append(errs, fmt.Sprintf("table %q is not a valid identifier", t.Name))
			continue
		}
		if _, dup := m.index[t.Name]; dup {
			errs = append(errs, fmt.Sprintf("table %q declared twice", t.Name))
			continue
		}
		if len(t.Columns) == 0 {
			errs = append(errs, fmt.Sprintf("table %q has no columns", t.Name))
			continue
		}

		cols := make([]Column, 0, len(t.Columns))
		seen := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			switch {
			case !identRegex.MatchString(c.Name):
				errs = append(errs, fmt.Sprintf("%s: column %q is not a valid identifier", t.Name, c.Name))
				continue
			case reserved[c.Name]:
				errs = append(errs, fmt.Sprintf("%s: column %q is reserved", t.Name, c.Name))
				continue
			case seen[c.Name]:
				errs = append(errs, fmt.Sprintf("%s: column %q declared twice", t.Name, c.Name))
				continue
			}
			seen[c.Name] = true

			if c.Type == "" {
				c.Type = FieldText
			}
			if !c.Type.valid() {
				errs = append(errs, fmt.Sprintf("%s.%s: unknown type %q", t.Name, c.Name, c.Type))
				continue
			}
			cols = append(cols, c)
		}

		m.index[t.Name] = len(m.tables)
		m.tables = append(m.tables, Table{Name: t.Name, Columns: cols})
	}

	if _, ok := m.index[core.TableJob]; !ok {
		errs = append(errs, fmt.Sprintf("table %q is required", core.TableJob))
	} else if m.index[core.TableJob] != 0 {
		errs = append(errs, fmt.Sprintf("table %q must be declared first", core.TableJob))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid mapping:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return m, nil
}

// Tables returns the table names in declaration order.
func (m *FieldMapping) Tables() []string {
	names := make([]string, len(m.tables))
	for i, t := range m.tables {
		names[i] = t.Name
	}
	return names
}

// Columns returns a copy of table's columns, or nil if the table is unknown.
func (m *FieldMapping) Columns(table string) []Column {
	i, ok := m.index[table]
	if !ok {
		return nil
	}
	return append([]Column(nil), m.tables[i].Columns...)
}

// ColumnNames returns table's column names in declaration order.
func (m *FieldMapping) ColumnNames(table string) []string {
	cols := m.Columns(table)
	if cols == nil {
		return nil
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// Definition returns a copy of the declared tables, for serialization.
func (m *FieldMapping) Definition() []Table {
	out := make([]Table, len(m.tables))
	for i, t := range m.tables {
		out[i] = Table{Name: t.Name, Columns: append([]Column(nil), t.Columns...)}
	}
	return out
}

// CheckShape reports whether tables has exactly the declared tables and
// columns. Extra or missing keys are both errors.
func (m *FieldMapping) CheckShape(tables core.Tables) error {
	if len(tables) != len(m.tables) {
		return fmt.Errorf("record shape: got %d tables, want %d", len(tables), len(m.tables))
	}
	for _, t := range m.tables {
		row, ok := tables[t.Name]
		if !ok {
			return fmt.Errorf("record shape: missing table %q", t.Name)
		}
		if len(row) != len(t.Columns) {
			return fmt.Errorf("record shape: table %q has %d columns, want %d", t.Name, len(row), len(t.Columns))
		}
		for _, c := range t.Columns {
			if _, ok := row[c.Name]; !ok {
				return fmt.Errorf("record shape: table %q missing column %q", t.Name, c.Name)
			}
		}
	}
	return nil
}
