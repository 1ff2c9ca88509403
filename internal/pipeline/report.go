package pipeline

import (
	"time"

	"github.com/JonMunkholm/jobetl/internal/core"
	"github.com/JonMunkholm/jobetl/internal/store"
)

// Status is the outcome of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// StageReport describes one stage of a run.
type StageReport struct {
	Stage    core.Stage    `json:"stage"`
	Attempts int           `json:"attempts"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Report describes a whole run.
type Report struct {
	RunID      string        `json:"run_id"`
	Status     Status        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	Stages     []StageReport `json:"stages"`
	Counts     Counts        `json:"counts"`
	Load       *store.Result `json:"load,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
}

func (r Report) clone() Report {
	r.Stages = append([]StageReport(nil), r.Stages...)
	if r.Load != nil {
		l := *r.Load
		rows := make(map[string]int, len(l.Rows))
		for k, v := range l.Rows {
			rows[k] = v
		}
		l.Rows = rows
		r.Load = &l
	}
	return r
}
