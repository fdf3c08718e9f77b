package tags

import (
	"fmt"
	"strings"
)

// Completeness is the result of checking required tag coverage.
type Completeness struct {
	Complete bool  `json:"complete"`
	Missing  []Tag `json:"missing"`
}

// IncompleteError is returned by Require when required tags are unassigned.
type IncompleteError struct {
	Missing []Tag
}

func (e *IncompleteError) Error() string {
	names := make([]string, len(e.Missing))
	for i, t := range e.Missing {
		names[i] = string(t)
	}
	return "template is missing required tags: " + strings.Join(names, ", ")
}

// MalformedError reports a tag map whose assignments are inconsistent
// with its own text.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "malformed tag map: " + e.Reason
}

// Validate reports which required tags have no assignment.
func Validate(tm *TagMap) Completeness {
	assigned := make(map[Tag]bool)
	if tm != nil {
		for _, a := range tm.Assignments {
			assigned[a.Tag] = true
		}
	}
	res := Completeness{Missing: []Tag{}}
	for _, t := range RequiredTags() {
		if !assigned[t] {
			res.Missing = append(res.Missing, t)
		}
	}
	res.Complete = len(res.Missing) == 0
	return res
}

// Check verifies that every assignment names a known tag, lies inside the
// text, matches the text it claims to cover, and overlaps no other.
func Check(tm *TagMap) error {
	if tm == nil {
		return &MalformedError{Reason: "no tag map supplied"}
	}
	for i, a := range tm.Assignments {
		if !a.Tag.Known() {
			return &MalformedError{Reason: fmt.Sprintf("assignment %d has unknown tag %q", i, a.Tag)}
		}
		if err := tm.checkSpan(a.Offset, a.Length, i); err != nil {
			return &MalformedError{Reason: fmt.Sprintf("assignment %d (%s): %v", i, a.Tag, err)}
		}
		if a.Text != "" && tm.Text[a.Offset:a.End()] != a.Text {
			return &MalformedError{Reason: fmt.Sprintf("assignment %d (%s) expects %q at offset %d, template has %q",
				i, a.Tag, a.Text, a.Offset, tm.Text[a.Offset:a.End()])}
		}
	}
	return nil
}

// Require is the assembly gate: the map must be well formed and every
// required tag assigned.
func Require(tm *TagMap) error {
	if err := Check(tm); err != nil {
		return err
	}
	if c := Validate(tm); !c.Complete {
		return &IncompleteError{Missing: c.Missing}
	}
	return nil
}
