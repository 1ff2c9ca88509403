package web

import (
	"time"

	"github.com/JonMunkholm/jobetl/internal/pipeline"
)

//go:generate templ generate

type countRow struct {
	label string
	n     int64
}

func countRows(c pipeline.Counts) []countRow {
	return []countRow{
		{"extracted", c.Extracted},
		{"dropped", c.Dropped},
		{"transformed", c.Transformed},
		{"placeholders", c.Placeholders},
		{"loaded", c.Loaded},
	}
}

func roundDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
