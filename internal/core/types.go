package core

import (
	"fmt"

	"github.com/google/uuid"
)

// Destination table names.
const (
	TableJob        = "job"
	TableCompany    = "company"
	TableEducation  = "education"
	TableExperience = "experience"
	TableSalary     = "salary"
	TableLocation   = "location"
)

// Stage identifies one step of the pipeline.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageLoad      Stage = "load"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageExtract, StageTransform, StageLoad}

// State is the lifecycle position of a single record.
type State string

const (
	StateExtracted   State = "extracted"
	StateTransformed State = "transformed"
	StateLoaded      State = "loaded"
)

// Next returns the state that follows s.
// Returns false if s is terminal or unknown.
func (s State) Next() (State, bool) {
	switch s {
	case StateExtracted:
		return StateTransformed, true
	case StateTransformed:
		return StateLoaded, true
	default:
		return "", false
	}
}

// Advance moves the record to to, rejecting anything but the next state.
func (r *Record) Advance(to State) error {
	next, ok := r.State.Next()
	if !ok || next != to {
		return fmt.Errorf("record %d: invalid state transition %s -> %s", r.Sequence, r.State, to)
	}
	r.State = to
	return nil
}

// Row is one table's sub-record: column name to value. A nil value is NULL.
type Row map[string]any

// Tables is the multi-table body of a normalized record.
type Tables map[string]Row

// Record is the normalized, fixed-shape result of mapping one source document.
type Record struct {
	Sequence      int       `json:"sequence"`
	CorrelationID uuid.UUID `json:"correlation_id"`
	State         State     `json:"state"`

	// Placeholder is set when the source document could not be parsed and
	// the record was replaced by an all-null row set. Reason says why.
	Placeholder bool   `json:"placeholder,omitempty"`
	Reason      string `json:"reason,omitempty"`

	Tables Tables `json:"tables"`
}

// Extracted is the raw payload of one CSV row after extraction.
type Extracted struct {
	Sequence      int
	CorrelationID uuid.UUID
	Payload       []byte
}
