// Package extract reads the scraped CSV export and yields one raw JSON-LD
// payload per row.
package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/jobetl/internal/core"
)

// Namespace seeds the UUIDv5 correlation ids handed out at extraction.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/JonMunkholm/jobetl/record"))

// Options controls which rows are extracted.
type Options struct {
	// Column is the header of the payload column.
	Column string
	// DropIncomplete skips rows with any empty cell, not just an empty
	// payload.
	DropIncomplete bool
}

// Stats summarizes one extraction.
type Stats struct {
	Rows      int
	Dropped   int
	Extracted int
}

// CorrelationID derives the stable id of the record at line of source
// holding payload. Re-extracting the same file gives the same ids, while a
// later export with other postings at the same lines gives new ones.
func CorrelationID(source string, line int, payload []byte) uuid.UUID {
	name := make([]byte, 0, len(source)+len(payload)+16)
	name = append(name, filepath.Base(source)...)
	name = append(name, ':')
	name = strconv.AppendInt(name, int64(line), 10)
	name = append(name, ':')
	name = append(name, payload...)
	return uuid.NewSHA1(Namespace, name)
}

// File extracts every kept row of the CSV at path, calling emit for each in
// file order. Sequence numbers are the zero-based data-row index, so
// dropped rows leave gaps.
func File(ctx context.Context, path string, opts Options, emit func(core.Extracted) error) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, core.InvalidInput("open source", err)
	}
	defer f.Close()

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	counter := &countingReader{r: f, total: size}

	return Read(ctx, counter, path, opts, emit)
}

// Read is File over an already open reader. name feeds the correlation ids.
func Read(ctx context.Context, r io.Reader, name string, opts Options, emit func(core.Extracted) error) (Stats, error) {
	var stats Stats

	cr := csv.NewReader(skipBOM(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return stats, core.InvalidInput("empty source", fmt.Errorf("%s has no header row", name))
	}
	if err != nil {
		return stats, core.InvalidInput("invalid csv", err)
	}

	col := -1
	for i, h := range header {
		if strings.TrimSpace(h) == opts.Column {
			col = i
			break
		}
	}
	if col < 0 {
		return stats, core.InvalidInput(fmt.Sprintf("payload column %q not in header", opts.Column), nil)
	}

	counter, _ := r.(*countingReader)
	for seq := 0; ; seq++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, core.InvalidInput("invalid csv", err)
		}
		stats.Rows++
		line, _ := cr.FieldPos(0)

		if !keep(row, len(header), col, opts.DropIncomplete) {
			stats.Dropped++
			continue
		}

		rec := core.Extracted{
			Sequence:      seq,
			CorrelationID: CorrelationID(name, line, []byte(row[col])),
			Payload:       Payload(row[col]),
		}
		if err := emit(rec); err != nil {
			return stats, err
		}
		stats.Extracted++

		if counter != nil && stats.Rows%1000 == 0 {
			slog.Debug("extract progress", "rows", stats.Rows, "percent", counter.progress())
		}
	}

	return stats, nil
}

func keep(row []string, width, col int, dropIncomplete bool) bool {
	if col >= len(row) || strings.TrimSpace(row[col]) == "" {
		return false
	}
	if !dropIncomplete {
		return true
	}
	if len(row) < width {
		return false
	}
	for _, cell := range row {
		if strings.TrimSpace(cell) == "" {
			return false
		}
	}
	return true
}
