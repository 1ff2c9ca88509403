package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/jobetl/internal/config"
	"github.com/JonMunkholm/jobetl/internal/core"
	"github.com/JonMunkholm/jobetl/internal/loader"
	"github.com/JonMunkholm/jobetl/internal/mapping"
)

// Postgres is a Sink backed by a pgx connection pool.
type Postgres struct {
	pool      *pgxpool.Pool
	batchSize int
}

// OpenPostgres parses cfg, applies the pool settings and verifies the
// connection.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig, batchSize int) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgres(pool, batchSize), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool, batchSize int) *Postgres {
	return &Postgres{pool: pool, batchSize: batchSize}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// Migrate creates the destination tables.
func (p *Postgres) Migrate(ctx context.Context, m *mapping.FieldMapping) error {
	for _, stmt := range Schema(DialectPostgres, m) {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Load inserts b in one transaction. Job rows are inserted in chunks with
// RETURNING so their ids can be matched back by correlation id; child rows
// are streamed with COPY.
func (p *Postgres) Load(ctx context.Context, b loader.Batches) (Result, error) {
	res := Result{Rows: make(map[string]int, len(b.Tables))}

	jobs, ok := b.Table(core.TableJob)
	if !ok {
		return res, core.LoadError("batches have no job table", nil)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return res, core.LoadError("begin transaction", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	ids, err := p.insertJobs(ctx, tx, jobs)
	if err != nil {
		return res, err
	}
	res.Jobs = len(ids)
	res.Rows[jobs.Table] = len(ids)

	for _, batch := range b.Tables {
		if batch.Table == core.TableJob {
			continue
		}
		n, err := p.copyChildren(ctx, tx, batch, ids)
		if err != nil {
			return res, err
		}
		res.Rows[batch.Table] = n
	}

	if err := tx.Commit(ctx); err != nil {
		return res, core.LoadError("commit transaction", err)
	}
	return res, nil
}

func (p *Postgres) insertJobs(ctx context.Context, tx pgx.Tx, jobs loader.Batch) (map[uuid.UUID]int64, error) {
	ids := make(map[uuid.UUID]int64, len(jobs.Rows))
	cols := append([]string{"correlation_id"}, jobs.ColumnNames()...)

	for _, chunk := range jobs.Chunks(jobChunkSize(p.batchSize, len(cols))) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		args := make([]any, 0, len(chunk)*len(cols))
		tuples := make([]string, 0, len(chunk))
		for _, row := range chunk {
			marks := make([]string, len(cols))
			for i := range cols {
				marks[i] = fmt.Sprintf("$%d", len(args)+i+1)
			}
			tuples = append(tuples, "("+strings.Join(marks, ", ")+")")

			args = append(args, core.ToPgUUID(row.CorrelationID))
			args = append(args, pgValues(jobs.Columns, row.Values)...)
		}

		sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s RETURNING id, correlation_id",
			pgx.Identifier{jobs.Table}.Sanitize(), joinIdents(cols), strings.Join(tuples, ", "))

		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return nil, core.LoadError("insert jobs", err)
		}
		for rows.Next() {
			var id int64
			var cid pgtype.UUID
			if err := rows.Scan(&id, &cid); err != nil {
				rows.Close()
				return nil, core.LoadError("scan job id", err)
			}
			ids[uuid.UUID(cid.Bytes)] = id
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, core.LoadError("insert jobs", err)
		}
	}

	if len(ids) != len(jobs.Rows) {
		return nil, core.LoadError(fmt.Sprintf("inserted %d jobs for %d rows", len(ids), len(jobs.Rows)), nil)
	}
	return ids, nil
}

// maxBindParams is the most parameters one Postgres statement may carry.
const maxBindParams = 65535

// jobChunkSize caps batch so a multi-row insert of ncols columns stays
// within maxBindParams.
func jobChunkSize(batch, ncols int) int {
	if ncols <= 0 {
		return batch
	}
	return max(1, min(batch, maxBindParams/ncols))
}

func (p *Postgres) copyChildren(ctx context.Context, tx pgx.Tx, batch loader.Batch, ids map[uuid.UUID]int64) (int, error) {
	if len(batch.Rows) == 0 {
		return 0, nil
	}
	cols := append([]string{"job_id"}, batch.ColumnNames()...)

	src := pgx.CopyFromSlice(len(batch.Rows), func(i int) ([]any, error) {
		row := batch.Rows[i]
		jobID, ok := ids[row.CorrelationID]
		if !ok {
			return nil, fmt.Errorf("%s row %d: no job for correlation id %s", batch.Table, row.Sequence, row.CorrelationID)
		}
		return append([]any{jobID}, pgValues(batch.Columns, row.Values)...), nil
	})

	n, err := tx.CopyFrom(ctx, pgx.Identifier{batch.Table}, cols, src)
	if err != nil {
		return 0, core.LoadError(fmt.Sprintf("copy %s", batch.Table), err)
	}
	return int(n), nil
}

// Counts returns the row count of each mapped table.
func (p *Postgres) Counts(ctx context.Context, m *mapping.FieldMapping) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, table := range m.Tables() {
		var n int64
		sql := "SELECT COUNT(*) FROM " + pgx.Identifier{table}.Sanitize()
		if err := p.pool.QueryRow(ctx, sql).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

// pgValues converts row values to pgtype values by column type.
func pgValues(cols []mapping.Column, values []any) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		switch c.Type {
		case mapping.FieldDate:
			out[i] = core.ToPgDate(values[i])
		case mapping.FieldNumeric:
			out[i] = core.ToPgNumeric(values[i])
		case mapping.FieldInt:
			out[i] = core.ToPgInt4(values[i])
		default:
			out[i] = core.ToPgText(values[i])
		}
	}
	return out
}

func joinIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pgx.Identifier{n}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
