package pipeline

import (
	"log/slog"
	"sync/atomic"
)

// Stats counts records through a run. Counters are atomic so the status
// server can read them while a run is in progress.
type Stats struct {
	extracted    atomic.Int64
	dropped      atomic.Int64
	transformed  atomic.Int64
	placeholders atomic.Int64
	loaded       atomic.Int64
}

// Extracted returns the number of rows staged by extract.
func (s *Stats) Extracted() int64 { return s.extracted.Load() }

// Dropped returns the number of CSV rows skipped as incomplete.
func (s *Stats) Dropped() int64 { return s.dropped.Load() }

// Transformed returns the number of records staged by transform.
func (s *Stats) Transformed() int64 { return s.transformed.Load() }

// Placeholders returns how many transformed records are all-null
// placeholders for unparseable payloads.
func (s *Stats) Placeholders() int64 { return s.placeholders.Load() }

// Loaded returns the number of records delivered to the store.
func (s *Stats) Loaded() int64 { return s.loaded.Load() }

// Snapshot copies the counters.
func (s *Stats) Snapshot() Counts {
	return Counts{
		Extracted:    s.Extracted(),
		Dropped:      s.Dropped(),
		Transformed:  s.Transformed(),
		Placeholders: s.Placeholders(),
		Loaded:       s.Loaded(),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s *Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("extracted", s.Extracted()),
		slog.Int64("dropped", s.Dropped()),
		slog.Int64("transformed", s.Transformed()),
		slog.Int64("placeholders", s.Placeholders()),
		slog.Int64("loaded", s.Loaded()),
	)
}

// Counts is a point-in-time copy of Stats.
type Counts struct {
	Extracted    int64 `json:"extracted"`
	Dropped      int64 `json:"dropped"`
	Transformed  int64 `json:"transformed"`
	Placeholders int64 `json:"placeholders"`
	Loaded       int64 `json:"loaded"`
}
