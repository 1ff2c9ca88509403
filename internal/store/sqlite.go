package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/jobetl/internal/core"
	"github.com/JonMunkholm/jobetl/internal/loader"
	"github.com/JonMunkholm/jobetl/internal/mapping"
)

// SQLite is a Sink backed by a modernc.org/sqlite database file.
type SQLite struct {
	db        *sql.DB
	batchSize int
}

// OpenSQLite opens the database at dsn with foreign keys enforced.
func OpenSQLite(ctx context.Context, dsn string, batchSize int) (*SQLite, error) {
	db, err := sql.Open("sqlite", withForeignKeys(dsn))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLite{db: db, batchSize: batchSize}, nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// DB exposes the underlying handle.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() {
	s.db.Close()
}

// Migrate creates the destination tables.
func (s *SQLite) Migrate(ctx context.Context, m *mapping.FieldMapping) error {
	for _, stmt := range Schema(DialectSQLite, m) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Load inserts b in one transaction. Each job insert's LastInsertId is
// recorded under the row's correlation id and used as job_id for children.
func (s *SQLite) Load(ctx context.Context, b loader.Batches) (Result, error) {
	res := Result{Rows: make(map[string]int, len(b.Tables))}

	jobs, ok := b.Table(core.TableJob)
	if !ok {
		return res, core.LoadError("batches have no job table", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, core.LoadError("begin transaction", err)
	}
	defer tx.Rollback() // No-op if already committed

	ids, err := s.insertJobs(ctx, tx, jobs)
	if err != nil {
		return res, err
	}
	res.Jobs = len(ids)
	res.Rows[jobs.Table] = len(ids)

	for _, batch := range b.Tables {
		if batch.Table == core.TableJob {
			continue
		}
		n, err := s.insertChildren(ctx, tx, batch, ids)
		if err != nil {
			return res, err
		}
		res.Rows[batch.Table] = n
	}

	if err := tx.Commit(); err != nil {
		return res, core.LoadError("commit transaction", err)
	}
	return res, nil
}

func (s *SQLite) insertJobs(ctx context.Context, tx *sql.Tx, jobs loader.Batch) (map[uuid.UUID]int64, error) {
	stmt, err := tx.PrepareContext(ctx, insertSQL(jobs.Table, append([]string{"correlation_id"}, jobs.ColumnNames()...)))
	if err != nil {
		return nil, core.LoadError("prepare job insert", err)
	}
	defer stmt.Close()

	ids := make(map[uuid.UUID]int64, len(jobs.Rows))
	for _, chunk := range jobs.Chunks(s.batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, row := range chunk {
			args := append([]any{row.CorrelationID.String()}, sqliteValues(jobs.Columns, row.Values)...)
			r, err := stmt.ExecContext(ctx, args...)
			if err != nil {
				return nil, core.LoadError(fmt.Sprintf("insert job %d", row.Sequence), err)
			}
			id, err := r.LastInsertId()
			if err != nil {
				return nil, core.LoadError("read job id", err)
			}
			ids[row.CorrelationID] = id
		}
	}
	return ids, nil
}

func (s *SQLite) insertChildren(ctx context.Context, tx *sql.Tx, batch loader.Batch, ids map[uuid.UUID]int64) (int, error) {
	if len(batch.Rows) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(batch.Table, append([]string{"job_id"}, batch.ColumnNames()...)))
	if err != nil {
		return 0, core.LoadError(fmt.Sprintf("prepare %s insert", batch.Table), err)
	}
	defer stmt.Close()

	var n int
	for _, chunk := range batch.Chunks(s.batchSize) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		for _, row := range chunk {
			jobID, ok := ids[row.CorrelationID]
			if !ok {
				return 0, core.LoadError(fmt.Sprintf("%s row %d: no job for correlation id %s", batch.Table, row.Sequence, row.CorrelationID), nil)
			}
			args := append([]any{jobID}, sqliteValues(batch.Columns, row.Values)...)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return 0, core.LoadError(fmt.Sprintf("insert %s %d", batch.Table, row.Sequence), err)
			}
			n++
		}
	}
	return n, nil
}

// Counts returns the row count of each mapped table.
func (s *SQLite) Counts(ctx context.Context, m *mapping.FieldMapping) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, table := range m.Tables() {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

func insertSQL(table string, cols []string) string {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// sqliteValues converts row values to driver values by column type, using
// the same parsing rules as the Postgres sink.
func sqliteValues(cols []mapping.Column, values []any) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = sqliteValue(c.Type, values[i])
	}
	return out
}

func sqliteValue(t mapping.FieldType, v any) any {
	switch t {
	case mapping.FieldDate:
		d := core.ToPgDate(v)
		if !d.Valid {
			return nil
		}
		return d.Time.Format("2006-01-02")
	case mapping.FieldNumeric:
		n := core.ToPgNumeric(v)
		if !n.Valid {
			return nil
		}
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case mapping.FieldInt:
		i := core.ToPgInt4(v)
		if !i.Valid {
			return nil
		}
		return int64(i.Int32)
	default:
		s := core.ToPgText(v)
		if !s.Valid {
			return nil
		}
		return s.String
	}
}
