package extract

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/jobetl/internal/core"
)

func collect(t *testing.T, input string, opts Options) ([]core.Extracted, Stats, error) {
	t.Helper()
	var out []core.Extracted
	stats, err := Read(context.Background(), strings.NewReader(input), "jobs.csv", opts, func(e core.Extracted) error {
		out = append(out, e)
		return nil
	})
	return out, stats, err
}

func TestRead(t *testing.T) {
	input := "id,context\n" +
		"1,\"{\"\"title\"\":\"\"Engineer\"\"}\"\n" +
		"2,\"{\"\"title\"\":\"\"Designer\"\"}\"\n"

	got, stats, err := collect(t, input, Options{Column: "context"})
	require.NoError(t, err)
	require.Equal(t, Stats{Rows: 2, Extracted: 2}, stats)
	require.Len(t, got, 2)

	require.Equal(t, 0, got[0].Sequence)
	require.Equal(t, 1, got[1].Sequence)
	require.Equal(t, `{"title":"Engineer"}`, string(got[0].Payload))
	require.Equal(t, CorrelationID("jobs.csv", 2, []byte(`{"title":"Engineer"}`)), got[0].CorrelationID)
	require.Equal(t, CorrelationID("jobs.csv", 3, []byte(`{"title":"Designer"}`)), got[1].CorrelationID)
	require.NotEqual(t, got[0].CorrelationID, got[1].CorrelationID)
}

func TestRead_SkipsBOM(t *testing.T) {
	input := "\xEF\xBB\xBFcontext\n{}\n"

	got, _, err := collect(t, input, Options{Column: "context"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestRead_DropsRows(t *testing.T) {
	input := "id,context\n" +
		"1,{}\n" +
		"2,\n" +
		",{}\n" +
		"4,{}\n"

	t.Run("drop incomplete", func(t *testing.T) {
		got, stats, err := collect(t, input, Options{Column: "context", DropIncomplete: true})
		require.NoError(t, err)
		require.Equal(t, Stats{Rows: 4, Dropped: 2, Extracted: 2}, stats)
		require.Equal(t, 0, got[0].Sequence)
		require.Equal(t, 3, got[1].Sequence)
	})

	t.Run("keep incomplete", func(t *testing.T) {
		got, stats, err := collect(t, input, Options{Column: "context"})
		require.NoError(t, err)
		require.Equal(t, Stats{Rows: 4, Dropped: 1, Extracted: 3}, stats)
		require.Equal(t, []int{0, 2, 3}, []int{got[0].Sequence, got[1].Sequence, got[2].Sequence})
	})
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  string
	}{
		{name: "empty", input: "", code: "SRC002"},
		{name: "missing column", input: "id,body\n1,{}\n", code: "SRC001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := collect(t, tt.input, Options{Column: "context"})
			require.Error(t, err)
			require.Equal(t, tt.code, core.MapError(err).Code, err.Error())
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestRead_ReadFailure(t *testing.T) {
	r := io.MultiReader(strings.NewReader("context\n{}\n"), failingReader{})

	stats, err := Read(context.Background(), r, "jobs.csv", Options{Column: "context"}, func(core.Extracted) error {
		return nil
	})
	require.Error(t, err)
	require.Equal(t, 1, stats.Extracted)
	require.Equal(t, "SRC004", core.MapError(err).Code)
}

func TestRead_EmitError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Read(context.Background(), strings.NewReader("context\n{}\n"), "jobs.csv", Options{Column: "context"}, func(core.Extracted) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestRead_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Read(ctx, strings.NewReader("context\n{}\n"), "jobs.csv", Options{Column: "context"}, func(core.Extracted) error {
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.csv")
	require.NoError(t, os.WriteFile(path, []byte("context\n{}\n{}\n"), 0o644))

	var n int
	stats, err := File(context.Background(), path, Options{Column: "context"}, func(core.Extracted) error {
		n++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2, stats.Extracted)

	_, err = File(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), Options{Column: "context"}, nil)
	require.Equal(t, "SRC003", core.MapError(err).Code)
}

func TestCorrelationID_Deterministic(t *testing.T) {
	p := []byte(`{"title":"Engineer"}`)
	require.Equal(t, CorrelationID("/a/jobs.csv", 7, p), CorrelationID("/b/jobs.csv", 7, p))
	require.NotEqual(t, CorrelationID("jobs.csv", 7, p), CorrelationID("jobs.csv", 8, p))
	require.NotEqual(t, CorrelationID("jobs.csv", 7, p), CorrelationID("other.csv", 7, p))
	require.Equal(t, 5, int(CorrelationID("jobs.csv", 7, p).Version()))
}

func TestCorrelationID_NextExportGetsNewIDs(t *testing.T) {
	monday := CorrelationID("jobs.csv", 2, []byte(`{"title":"Engineer"}`))
	tuesday := CorrelationID("jobs.csv", 2, []byte(`{"title":"Designer"}`))
	require.NotEqual(t, monday, tuesday)

	// Line and payload are separated, so shifting digits across them
	// does not collide.
	require.NotEqual(t, CorrelationID("jobs.csv", 1, []byte("2{}")), CorrelationID("jobs.csv", 12, []byte("{}")))
}

func TestPayload(t *testing.T) {
	tests := []struct {
		name string
		cell string
		want string
	}{
		{
			name: "json object",
			cell: `  {"title":"Engineer"}  `,
			want: `{"title":"Engineer"}`,
		},
		{
			name: "plain text untouched",
			cell: "not json",
			want: "not json",
		},
		{
			name: "html with job posting",
			cell: `<html><head>
				<script type="application/ld+json">{"@type":"Organization","name":"Acme"}</script>
				<script type="application/ld+json">{"@type":"JobPosting","title":"Engineer"}</script>
				</head></html>`,
			want: `{"@type":"JobPosting","title":"Engineer"}`,
		},
		{
			name: "html with graph",
			cell: `<script type="application/ld+json">{"@graph":[{"@type":"WebPage"},{"@type":"JobPosting","title":"Dev"}]}</script>`,
			want: `{"@type":"JobPosting","title":"Dev"}`,
		},
		{
			name: "html with type array",
			cell: `<script type="application/ld+json">[{"@type":["Thing","JobPosting"],"title":"Ops"}]</script>`,
			want: `{"@type":["Thing","JobPosting"],"title":"Ops"}`,
		},
		{
			name: "html without posting falls back to first block",
			cell: `<script type="application/ld+json">{"@type":"Organization"}</script>`,
			want: `{"@type":"Organization"}`,
		},
		{
			name: "html without json-ld",
			cell: `<p>nothing here</p>`,
			want: `<p>nothing here</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, string(Payload(tt.cell)))
		})
	}
}
