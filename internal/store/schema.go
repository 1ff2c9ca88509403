package store

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/jobetl/internal/core"
	"github.com/JonMunkholm/jobetl/internal/mapping"
)

// Dialect selects SQL syntax differences between sinks.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) columnType(t mapping.FieldType) string {
	switch t {
	case mapping.FieldDate:
		return "DATE"
	case mapping.FieldNumeric:
		return "NUMERIC"
	case mapping.FieldInt:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (d Dialect) primaryKey() string {
	if d == DialectSQLite {
		return "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "id BIGSERIAL PRIMARY KEY"
}

func (d Dialect) correlationColumn() string {
	if d == DialectSQLite {
		return "correlation_id TEXT NOT NULL UNIQUE"
	}
	return "correlation_id UUID NOT NULL UNIQUE"
}

func (d Dialect) jobRef() string {
	if d == DialectSQLite {
		return "job_id INTEGER NOT NULL REFERENCES job(id)"
	}
	return "job_id BIGINT NOT NULL REFERENCES job(id)"
}

// Schema returns one CREATE TABLE IF NOT EXISTS statement per table in m,
// job first. job gets a unique correlation_id; every other table gets a
// job_id foreign key.
func Schema(d Dialect, m *mapping.FieldMapping) []string {
	tables := m.Tables()
	stmts := make([]string, 0, len(tables))

	for _, table := range tables {
		lines := []string{d.primaryKey()}
		if table == core.TableJob {
			lines = append(lines, d.correlationColumn())
		} else {
			lines = append(lines, d.jobRef())
		}
		for _, c := range m.Columns(table) {
			lines = append(lines, fmt.Sprintf("%s %s", c.Name, d.columnType(c.Type)))
		}

		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
			table, strings.Join(lines, ",\n    ")))
	}
	return stmts
}
