package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMappingCommand(t *testing.T) {
	t.Setenv("MAPPING_FILE", "")
	t.Setenv("LOG_LEVEL", "error")

	out, err := execute(t, "mapping")
	require.NoError(t, err)
	require.Contains(t, out, "hiringOrganization.name")
	require.Contains(t, out, "name: job")
}

func TestRunCommand_SQLite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "jobs.csv")
	require.NoError(t, os.WriteFile(src, []byte("id,context\n1,\"{\"\"title\"\":\"\"Engineer\"\"}\"\n"), 0o644))

	t.Setenv("SOURCE_CSV_PATH", src)
	t.Setenv("STAGING_DIR", filepath.Join(dir, "staging"))
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:"+filepath.Join(dir, "jobs.db"))
	t.Setenv("MAPPING_FILE", "")
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")
	t.Setenv("LOG_LEVEL", "error")

	out, err := execute(t, "run", "--migrate")
	require.NoError(t, err)
	require.Contains(t, out, "load")
	require.Contains(t, out, "records=1")

	out, err = execute(t, "transform")
	require.NoError(t, err)
	require.Contains(t, out, "transformed 1 records (0 placeholders)")
}

func TestMissingMappingFile(t *testing.T) {
	t.Setenv("MAPPING_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	t.Setenv("LOG_LEVEL", "error")

	_, err := execute(t, "mapping")
	require.ErrorContains(t, err, "mapping file")
}
