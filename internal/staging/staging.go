// Package staging stores the per-record artifacts handed from one pipeline
// stage to the next.
//
// Each stage owns one directory and writes one file per record, named
//
//	enrg<sequence>_<correlation id>.<ext>
//
// with the sequence zero-padded to eight digits. Listing parses the sequence
// back out of the name and sorts by it, so record order never depends on
// directory enumeration order.
package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/jobetl/internal/core"
)

const (
	prefix     = "enrg"
	tempPrefix = ".enrg"

	extExtracted   = ".txt"
	extTransformed = ".json"
)

var nameRegex = regexp.MustCompile(`^enrg(\d{8,})_([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})\.(txt|json)$`)

// Artifact identifies one staged file.
type Artifact struct {
	Sequence      int
	CorrelationID uuid.UUID
	Path          string
}

// FS is a Store backed by a directory tree: <root>/extracted and
// <root>/transformed.
type FS struct {
	root string
}

// NewFS returns an FS rooted at root. Directories are created on Reset.
func NewFS(root string) *FS {
	return &FS{root: root}
}

// Root returns the staging root directory.
func (s *FS) Root() string {
	return s.root
}

// Dir returns the directory holding stage's output.
func (s *FS) Dir(stage core.Stage) string {
	switch stage {
	case core.StageExtract:
		return filepath.Join(s.root, "extracted")
	case core.StageTransform:
		return filepath.Join(s.root, "transformed")
	default:
		return ""
	}
}

func extFor(stage core.Stage) string {
	if stage == core.StageExtract {
		return extExtracted
	}
	return extTransformed
}

// FileName returns the artifact name for a record.
func FileName(seq int, id uuid.UUID, ext string) string {
	return fmt.Sprintf("%s%08d_%s%s", prefix, seq, id, ext)
}

// ParseName extracts the sequence and correlation id from an artifact name.
func ParseName(name string) (int, uuid.UUID, error) {
	m := nameRegex.FindStringSubmatch(name)
	if m == nil {
		return 0, uuid.Nil, fmt.Errorf("invalid artifact name %q", name)
	}
	seq, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("invalid artifact name %q: %w", name, err)
	}
	id, err := uuid.Parse(m[2])
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("invalid artifact name %q: %w", name, err)
	}
	return seq, id, nil
}

// Reset empties stage's directory of artifacts, creating it if needed.
// Files that do not belong to the staging scheme are left alone.
func (s *FS) Reset(ctx context.Context, stage core.Stage) error {
	dir := s.Dir(stage)
	if dir == "" {
		return core.StagingError(fmt.Sprintf("stage %q has no staging directory", stage), nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.StagingError("create staging dir", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return core.StagingError("read staging dir", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := e.Name()
		if e.IsDir() || !(strings.HasPrefix(name, prefix) || strings.HasPrefix(name, tempPrefix)) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return core.StagingError("clear staging dir", err)
		}
	}
	return nil
}

// List returns stage's artifacts sorted by sequence. Files with the stage's
// extension and a name outside the scheme are an error, as are two files
// with the same sequence.
func (s *FS) List(ctx context.Context, stage core.Stage) ([]Artifact, error) {
	dir := s.Dir(stage)
	if dir == "" {
		return nil, core.StagingError(fmt.Sprintf("stage %q has no staging directory", stage), nil)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, core.StagingError("read staging dir", err)
	}

	ext := extFor(stage)
	var out []Artifact
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ext {
			continue
		}
		seq, id, err := ParseName(name)
		if err != nil {
			return nil, core.StagingError(dir, err)
		}
		out = append(out, Artifact{Sequence: seq, CorrelationID: id, Path: filepath.Join(dir, name)})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	for i := 1; i < len(out); i++ {
		if out[i].Sequence == out[i-1].Sequence {
			return nil, core.StagingError(fmt.Sprintf("duplicate sequence %d in %s", out[i].Sequence, dir), nil)
		}
	}
	return out, nil
}

// WriteExtracted stages one raw payload.
func (s *FS) WriteExtracted(ctx context.Context, e core.Extracted) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.Dir(core.StageExtract), FileName(e.Sequence, e.CorrelationID, extExtracted))
	return writeAtomic(path, e.Payload)
}

// ReadExtracted reads a payload staged by WriteExtracted.
func (s *FS) ReadExtracted(a Artifact) (core.Extracted, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return core.Extracted{}, core.StagingError("read extracted artifact", err)
	}
	return core.Extracted{
		Sequence:      a.Sequence,
		CorrelationID: a.CorrelationID,
		Payload:       data,
	}, nil
}

// WriteTransformed stages one normalized record as indented JSON. Map keys
// are emitted sorted, so equal records produce identical bytes.
func (s *FS) WriteTransformed(ctx context.Context, r core.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return core.StagingError(fmt.Sprintf("encode record %d", r.Sequence), err)
	}
	data = append(data, '\n')

	path := filepath.Join(s.Dir(core.StageTransform), FileName(r.Sequence, r.CorrelationID, extTransformed))
	return writeAtomic(path, data)
}

// ReadTransformed reads a record staged by WriteTransformed. The sequence
// and correlation id in the file must agree with its name.
func (s *FS) ReadTransformed(a Artifact) (core.Record, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return core.Record{}, core.StagingError("read transformed artifact", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var r core.Record
	if err := dec.Decode(&r); err != nil {
		return core.Record{}, core.StagingError(fmt.Sprintf("decode %s", filepath.Base(a.Path)), err)
	}
	if r.Sequence != a.Sequence || r.CorrelationID != a.CorrelationID {
		return core.Record{}, core.StagingError(fmt.Sprintf("%s: contents do not match artifact name", filepath.Base(a.Path)), nil)
	}
	return r, nil
}

// writeAtomic writes data next to path and renames it into place, so a
// reader never sees a partial artifact.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*.tmp")
	if err != nil {
		return core.StagingError("create temp artifact", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return core.StagingError("write artifact", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return core.StagingError("sync artifact", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return core.StagingError("close artifact", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return core.StagingError("rename artifact", err)
	}
	return nil
}
