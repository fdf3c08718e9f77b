package assembly

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/tags"
)

// Stage names a step of an assembly run.
type Stage string

const (
	StageTemplate       Stage = "template"
	StageNumbering      Stage = "numbering"
	StageMaturity       Stage = "maturity"
	StageCusip          Stage = "cusip"
	StageAcknowledgment Stage = "acknowledgment"
	StageJoin           Stage = "join"
	StageDatedDate      Stage = "dated_date"
	StageMetadata       Stage = "metadata"
	StageFill           Stage = "fill"
	StagePackage        Stage = "package"
)

// ErrNoBonds is returned when the schedules join to an empty set.
var ErrNoBonds = errors.New("no bonds to assemble: the schedules have no valid joined rows")

// ErrNoDatedDate is returned when neither the schedule nor the run metadata
// supplies a dated date.
var ErrNoDatedDate = errors.New("no dated date: add a dated date column or supply one with the run metadata")

// ValidationError stops a run at a named stage. Err is the typed cause
// (e.g. *schedule.StructuralError, *tags.IncompleteError, *bond.JoinError).
type ValidationError struct {
	Stage Stage
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func fail(stage Stage, err error) error {
	return &ValidationError{Stage: stage, Err: err}
}

// UnacknowledgedError is returned when schedules contain invalid rows and
// the caller has not confirmed that assembly may use only the valid ones.
type UnacknowledgedError struct {
	MaturityInvalid int
	CusipInvalid    int
}

func (e *UnacknowledgedError) Error() string {
	return fmt.Sprintf("%d maturity and %d CUSIP rows are invalid; acknowledge them to continue with the valid rows only",
		e.MaturityInvalid, e.CusipInvalid)
}

// DatedDateError reports conflicting dated dates.
type DatedDateError struct {
	Dates []string
}

func (e *DatedDateError) Error() string {
	return "dated date must be the same for every bond, found: " + strings.Join(e.Dates, ", ")
}

// MetadataError lists assigned tags that have no value for this run.
type MetadataError struct {
	Missing []tags.Tag
}

func (e *MetadataError) Error() string {
	names := make([]string, len(e.Missing))
	for i, t := range e.Missing {
		names[i] = string(t)
	}
	return "template uses tags with no value for this run: " + strings.Join(names, ", ")
}
