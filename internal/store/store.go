// Package store writes grouped batches into the relational destination.
//
// Two sinks are provided, Postgres (pgx) and SQLite (modernc). Both load a
// run inside one transaction: job rows first, then every child table, with
// each child's job_id resolved from its correlation id.
package store

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/jobetl/internal/config"
	"github.com/JonMunkholm/jobetl/internal/loader"
	"github.com/JonMunkholm/jobetl/internal/mapping"
)

// Sink is a relational destination for loaded batches.
type Sink interface {
	// Migrate creates every table in m that does not exist yet.
	Migrate(ctx context.Context, m *mapping.FieldMapping) error

	// Load inserts b atomically. On error nothing is committed.
	Load(ctx context.Context, b loader.Batches) (Result, error)

	// Counts returns the row count of each table in m.
	Counts(ctx context.Context, m *mapping.FieldMapping) (map[string]int64, error)

	Ping(ctx context.Context) error
	Close()
}

// Result reports what one Load inserted.
type Result struct {
	Jobs int            `json:"jobs"`
	Rows map[string]int `json:"rows"`
}

// Open connects to the sink selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, batchSize int) (Sink, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg, batchSize)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.URL, batchSize)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
