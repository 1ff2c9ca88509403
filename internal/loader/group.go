// Package loader turns normalized records into per-table row batches ready
// for insertion.
//
// Every table gets one row per record, in record order, even when the row
// is all NULL. Each row carries its record's correlation id, which the store
// uses to find the job a child row belongs to.
package loader

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JonMunkholm/jobetl/internal/core"
	"github.com/JonMunkholm/jobetl/internal/mapping"
)

// Row is one table row. Values line up with the batch's Columns.
type Row struct {
	Sequence      int
	CorrelationID uuid.UUID
	Values        []any
}

// Batch is every row destined for one table.
type Batch struct {
	Table   string
	Columns []mapping.Column
	Rows    []Row
}

// ColumnNames returns the batch's column names in bind order.
func (b Batch) ColumnNames() []string {
	names := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		names[i] = c.Name
	}
	return names
}

// Chunks splits the rows into slices of at most size rows. A size of zero
// or less returns all rows as one chunk.
func (b Batch) Chunks(size int) [][]Row {
	if len(b.Rows) == 0 {
		return nil
	}
	if size <= 0 || size >= len(b.Rows) {
		return [][]Row{b.Rows}
	}

	chunks := make([][]Row, 0, (len(b.Rows)+size-1)/size)
	for start := 0; start < len(b.Rows); start += size {
		end := min(start+size, len(b.Rows))
		chunks = append(chunks, b.Rows[start:end:end])
	}
	return chunks
}

// Batches holds one Batch per mapped table, in mapping order. The job
// batch is always first.
type Batches struct {
	Tables  []Batch
	Records int
}

// Table returns the batch for name.
func (b Batches) Table(name string) (Batch, bool) {
	for _, t := range b.Tables {
		if t.Table == name {
			return t, true
		}
	}
	return Batch{}, false
}

// Group collects records into per-table batches.
//
// Records must be in strictly increasing sequence order, have unique
// correlation ids, be in the transformed state and match m's shape. Any
// violation is an error; nothing is patched or dropped.
func Group(m *mapping.FieldMapping, records []core.Record) (Batches, error) {
	tables := m.Tables()
	out := Batches{
		Tables:  make([]Batch, len(tables)),
		Records: len(records),
	}
	for i, name := range tables {
		out.Tables[i] = Batch{
			Table:   name,
			Columns: m.Columns(name),
			Rows:    make([]Row, 0, len(records)),
		}
	}

	seen := make(map[uuid.UUID]int, len(records))
	for i, r := range records {
		if r.State != core.StateTransformed {
			return Batches{}, fmt.Errorf("record %d: state %q, want %q", r.Sequence, r.State, core.StateTransformed)
		}
		if i > 0 && r.Sequence <= records[i-1].Sequence {
			return Batches{}, fmt.Errorf("record %d: out of order after record %d", r.Sequence, records[i-1].Sequence)
		}
		if r.CorrelationID == uuid.Nil {
			return Batches{}, fmt.Errorf("record %d: missing correlation id", r.Sequence)
		}
		if prev, dup := seen[r.CorrelationID]; dup {
			return Batches{}, fmt.Errorf("record %d: correlation id %s already used by record %d", r.Sequence, r.CorrelationID, prev)
		}
		seen[r.CorrelationID] = r.Sequence

		if err := m.CheckShape(r.Tables); err != nil {
			return Batches{}, fmt.Errorf("record %d: %w", r.Sequence, err)
		}

		for t := range out.Tables {
			b := &out.Tables[t]
			src := r.Tables[b.Table]
			values := make([]any, len(b.Columns))
			for c, col := range b.Columns {
				values[c] = src[col.Name]
			}
			b.Rows = append(b.Rows, Row{
				Sequence:      r.Sequence,
				CorrelationID: r.CorrelationID,
				Values:        values,
			})
		}
	}

	for _, b := range out.Tables {
		if len(b.Rows) != len(records) {
			return Batches{}, fmt.Errorf("record shape: table %q has %d rows for %d records", b.Table, len(b.Rows), len(records))
		}
	}
	return out, nil
}
