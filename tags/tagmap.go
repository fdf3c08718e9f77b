package tags

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/formats"
)

var (
	// ErrFinalized is returned by any mutation of a finalized TagMap.
	ErrFinalized = errors.New("tag map is finalized")
	// ErrUnknownTag is returned when assigning a name outside the vocabulary.
	ErrUnknownTag = errors.New("unknown tag")
	// ErrInvalidSpan is returned for spans outside the text, empty spans,
	// spans that split a character, and spans that overlap an assignment.
	ErrInvalidSpan = errors.New("invalid tag span")
	// ErrNoMatch is returned when an assignment target cannot be found.
	ErrNoMatch = errors.New("no matching text")
)

// Assignment places a tag on the text span [Offset, Offset+Length).
type Assignment struct {
	Tag    Tag    `json:"tag"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	Text   string `json:"text"`
}

// End returns the exclusive end offset.
func (a Assignment) End() int { return a.Offset + a.Length }

// Span is a candidate blank in an untagged template.
type Span struct {
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	Text   string `json:"text"`
}

// Placeholder is a {{...}} placeholder whose name is not in the vocabulary.
type Placeholder struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// TagMap records a template's identity and the position of every tag in
// its extracted text. It is created by Scan, changed only through the
// assignment methods, and frozen by Finalize.
type TagMap struct {
	TemplateID  uuid.UUID     `json:"template_id"`
	Filename    string        `json:"filename"`
	Size        int64         `json:"size"`
	Hash        string        `json:"hash"`
	Format      string        `json:"format"`
	Text        string        `json:"text"`
	Assignments []Assignment  `json:"assignments"`
	Candidates  []Span        `json:"candidates,omitempty"`
	Unknown     []Placeholder `json:"unknown,omitempty"`
	Finalized   bool          `json:"finalized"`
}

// Assign places tag on [offset, offset+length) of the template text.
func (tm *TagMap) Assign(tag Tag, offset, length int) error {
	if tm.Finalized {
		return ErrFinalized
	}
	if !tag.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	if err := tm.checkSpan(offset, length, -1); err != nil {
		return err
	}
	tm.Assignments = append(tm.Assignments, Assignment{
		Tag:    tag,
		Offset: offset,
		Length: length,
		Text:   tm.Text[offset : offset+length],
	})
	sortAssignments(tm.Assignments)
	return nil
}

// AssignText places tag on the n-th (zero-based) occurrence of text.
// This is how a selection made in a rendered preview is mapped back.
func (tm *TagMap) AssignText(tag Tag, text string, occurrence int) error {
	if text == "" || occurrence < 0 {
		return fmt.Errorf("%w: empty selection", ErrNoMatch)
	}
	from := 0
	for i := 0; ; i++ {
		idx := strings.Index(tm.Text[from:], text)
		if idx < 0 {
			return fmt.Errorf("%w: occurrence %d of %q", ErrNoMatch, occurrence, text)
		}
		if i == occurrence {
			return tm.Assign(tag, from+idx, len(text))
		}
		from += idx + len(text)
	}
}

// AssignCandidate places tag on the candidate blank at index.
func (tm *TagMap) AssignCandidate(tag Tag, index int) error {
	if index < 0 || index >= len(tm.Candidates) {
		return fmt.Errorf("%w: candidate %d", ErrNoMatch, index)
	}
	c := tm.Candidates[index]
	return tm.Assign(tag, c.Offset, c.Length)
}

// Unassign removes the assignment starting at offset.
func (tm *TagMap) Unassign(offset int) error {
	if tm.Finalized {
		return ErrFinalized
	}
	for i, a := range tm.Assignments {
		if a.Offset == offset {
			tm.Assignments = append(tm.Assignments[:i], tm.Assignments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: no assignment at offset %d", ErrNoMatch, offset)
}

// Finalize freezes the map. It is called when assembly begins.
func (tm *TagMap) Finalize() {
	tm.Finalized = true
}

// Assigned returns the assignments for tag in offset order.
func (tm *TagMap) Assigned(tag Tag) []Assignment {
	var out []Assignment
	for _, a := range tm.Assignments {
		if a.Tag == tag {
			out = append(out, a)
		}
	}
	return out
}

// Tags returns the distinct assigned tags in offset order.
func (tm *TagMap) Tags() []Tag {
	seen := make(map[Tag]bool)
	var out []Tag
	for _, a := range tm.Assignments {
		if !seen[a.Tag] {
			seen[a.Tag] = true
			out = append(out, a.Tag)
		}
	}
	return out
}

// Clone returns a deep copy.
func (tm *TagMap) Clone() *TagMap {
	c := *tm
	c.Assignments = append([]Assignment(nil), tm.Assignments...)
	c.Candidates = append([]Span(nil), tm.Candidates...)
	c.Unknown = append([]Placeholder(nil), tm.Unknown...)
	return &c
}

// checkSpan validates a span against the text and existing assignments,
// ignoring the assignment at index skip.
func (tm *TagMap) checkSpan(offset, length, skip int) error {
	end := offset + length
	if offset < 0 || length <= 0 || end > len(tm.Text) {
		return fmt.Errorf("%w: [%d,%d) outside text of %d bytes", ErrInvalidSpan, offset, end, len(tm.Text))
	}
	if !utf8.RuneStart(tm.Text[offset]) || (end < len(tm.Text) && !utf8.RuneStart(tm.Text[end])) {
		return fmt.Errorf("%w: [%d,%d) splits a character", ErrInvalidSpan, offset, end)
	}
	if b := formats.Boundaries(tm.Format); b != "" && strings.ContainsAny(tm.Text[offset:end], b) {
		return fmt.Errorf("%w: [%d,%d) crosses a paragraph or tab", ErrInvalidSpan, offset, end)
	}
	for i, a := range tm.Assignments {
		if i == skip {
			continue
		}
		if offset < a.End() && a.Offset < end {
			return fmt.Errorf("%w: [%d,%d) overlaps %s at [%d,%d)", ErrInvalidSpan, offset, end, a.Tag, a.Offset, a.End())
		}
	}
	return nil
}

func sortAssignments(as []Assignment) {
	sort.SliceStable(as, func(i, j int) bool { return as[i].Offset < as[j].Offset })
}
