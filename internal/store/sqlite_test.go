package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/jobetl/internal/core"
	"github.com/JonMunkholm/jobetl/internal/document"
	"github.com/JonMunkholm/jobetl/internal/loader"
	"github.com/JonMunkholm/jobetl/internal/mapping"
)

func openTestSQLite(t *testing.T, m *mapping.FieldMapping) *SQLite {
	t.Helper()
	ctx := context.Background()

	s, err := OpenSQLite(ctx, "file:"+filepath.Join(t.TempDir(), "jobs.db"), 2)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Migrate(ctx, m))
	return s
}

func batchesFor(t *testing.T, m *mapping.FieldMapping, docs ...string) loader.Batches {
	t.Helper()
	p := mapping.NewMapper(m)

	records := make([]core.Record, len(docs))
	for i, raw := range docs {
		doc, err := document.Parse([]byte(raw))
		require.NoError(t, err)
		tables, err := p.Map(doc)
		require.NoError(t, err)
		records[i] = core.Record{
			Sequence:      i,
			CorrelationID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(raw)),
			State:         core.StateTransformed,
			Tables:        tables,
		}
	}

	b, err := loader.Group(m, records)
	require.NoError(t, err)
	return b
}

func TestSQLite_Load(t *testing.T) {
	ctx := context.Background()
	m := mapping.Default()
	s := openTestSQLite(t, m)

	b := batchesFor(t, m,
		`{"title":"First","hiringOrganization":{"name":"Acme"},"estimatedSalary":{"value":{"minValue":100}}}`,
		`{}`,
		`{"title":"Third","hiringOrganization":{"name":"Globex"},"datePosted":"2024-01-02"}`,
	)

	res, err := s.Load(ctx, b)
	require.NoError(t, err)
	require.Equal(t, 3, res.Jobs)
	for _, table := range m.Tables() {
		require.Equal(t, 3, res.Rows[table], table)
	}

	counts, err := s.Counts(ctx, m)
	require.NoError(t, err)
	for _, table := range m.Tables() {
		require.Equal(t, int64(3), counts[table], table)
	}

	// Each company row hangs off the job that came from the same record.
	rows, err := s.DB().QueryContext(ctx, `
		SELECT j.title, c.name
		FROM company c JOIN job j ON j.id = c.job_id
		ORDER BY j.id`)
	require.NoError(t, err)
	defer rows.Close()

	type pair struct{ title, company sql.NullString }
	var got []pair
	for rows.Next() {
		var p pair
		require.NoError(t, rows.Scan(&p.title, &p.company))
		got = append(got, p)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []pair{
		{sql.NullString{String: "First", Valid: true}, sql.NullString{String: "Acme", Valid: true}},
		{sql.NullString{}, sql.NullString{}},
		{sql.NullString{String: "Third", Valid: true}, sql.NullString{String: "Globex", Valid: true}},
	}, got)

	var minValue sql.NullFloat64
	require.NoError(t, s.DB().QueryRowContext(ctx, `
		SELECT s.min_value FROM salary s JOIN job j ON j.id = s.job_id WHERE j.title = 'First'`).Scan(&minValue))
	require.Equal(t, 100.0, minValue.Float64)

	var posted string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT date_posted FROM job WHERE title = 'Third'`).Scan(&posted))
	require.Contains(t, posted, "2024-01-02")
}

func TestSQLite_LoadIsAtomic(t *testing.T) {
	ctx := context.Background()
	m := mapping.Default()
	s := openTestSQLite(t, m)

	b := batchesFor(t, m, `{"title":"Only"}`)
	_, err := s.Load(ctx, b)
	require.NoError(t, err)

	// Same correlation ids again: the unique constraint fails the job
	// insert and nothing from the second load is kept.
	_, err = s.Load(ctx, b)
	require.Error(t, err)
	require.True(t, core.IsKind(err, core.KindLoad))

	counts, err := s.Counts(ctx, m)
	require.NoError(t, err)
	for _, table := range m.Tables() {
		require.Equal(t, int64(1), counts[table], table)
	}
}

func TestSQLite_LoadUnknownJob(t *testing.T) {
	ctx := context.Background()
	m := mapping.Default()
	s := openTestSQLite(t, m)

	b := batchesFor(t, m, `{"title":"a"}`, `{"title":"b"}`)
	for i := range b.Tables {
		if b.Tables[i].Table == core.TableCompany {
			b.Tables[i].Rows[1].CorrelationID = uuid.New()
		}
	}

	_, err := s.Load(ctx, b)
	require.ErrorContains(t, err, "no job for correlation id")

	counts, err := s.Counts(ctx, m)
	require.NoError(t, err)
	require.Equal(t, int64(0), counts[core.TableJob])
}

func TestSQLite_MissingTables(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, "file:"+filepath.Join(t.TempDir(), "empty.db"), 10)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(ctx, batchesFor(t, mapping.Default(), `{}`))
	require.Error(t, err)
	require.Equal(t, "DB008", core.MapError(err).Code)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	m := mapping.Default()
	s := openTestSQLite(t, m)
	require.NoError(t, s.Migrate(context.Background(), m))
}

func TestResult_JSON(t *testing.T) {
	data, err := json.Marshal(Result{Jobs: 2, Rows: map[string]int{"job": 2}})
	require.NoError(t, err)
	require.JSONEq(t, `{"jobs":2,"rows":{"job":2}}`, string(data))
}
