// Package drafts persists in-progress workflow state so a user can leave
// and resume: the uploaded files, the tag map and the current step. The
// pipeline never reads drafts directly; callers load one and build a fresh
// assembly request from it.
package drafts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/bond"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/fill"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/tags"
)

// ErrNotFound is returned when a draft does not exist.
var ErrNotFound = errors.New("draft not found")

// Step is the workflow position a draft was saved at.
type Step string

const (
	StepTemplate  Step = "template"
	StepTagging   Step = "tagging"
	StepSchedules Step = "schedules"
	StepReview    Step = "review"
	StepAssemble  Step = "assemble"
)

// Valid reports whether s is a known step. The empty step is valid and
// means StepTemplate.
func (s Step) Valid() bool {
	switch s {
	case "", StepTemplate, StepTagging, StepSchedules, StepReview, StepAssemble:
		return true
	}
	return false
}

// Upload is a stored input file.
type Upload struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Draft is the saved state of one workflow.
type Draft struct {
	ID        uuid.UUID             `json:"id"`
	Owner     string                `json:"owner"`
	Step      Step                  `json:"step"`
	Template  *Upload               `json:"template,omitempty"`
	Maturity  *Upload               `json:"maturity,omitempty"`
	Cusip     *Upload               `json:"cusip,omitempty"`
	TagMap    *tags.TagMap          `json:"tag_map,omitempty"`
	Numbering *bond.NumberingConfig `json:"numbering,omitempty"`
	Metadata  *fill.Metadata        `json:"metadata,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Summary lists a draft without its payload.
type Summary struct {
	ID        uuid.UUID `json:"id"`
	Owner     string    `json:"owner"`
	Step      Step      `json:"step"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a draft backend. Implementations must be safe for concurrent use.
type Store interface {
	// Save inserts or replaces d. A zero ID is replaced with a new one;
	// CreatedAt is kept on update and UpdatedAt is always set.
	Save(ctx context.Context, d *Draft) error
	Load(ctx context.Context, id uuid.UUID) (*Draft, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns the owner's drafts, most recently updated first.
	List(ctx context.Context, owner string) ([]Summary, error)
	// PurgeBefore deletes drafts last updated before t.
	PurgeBefore(ctx context.Context, t time.Time) (int, error)
	Close() error
}

// stamp prepares d for saving.
func stamp(d *Draft, now time.Time) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Step == "" {
		d.Step = StepTemplate
	}
}

// Summary returns the listing view of d.
func (d *Draft) Summary() Summary {
	return Summary{ID: d.ID, Owner: d.Owner, Step: d.Step, UpdatedAt: d.UpdatedAt}
}
