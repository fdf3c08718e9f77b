package bond

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// DefaultPrefix labels registered serial bonds ("R-01", "R-02", ...).
const DefaultPrefix = "R-"

// NumberingConfig overrides the default numbering for one run.
type NumberingConfig struct {
	// StartingNumber is the first sequence number; 0 means 1.
	StartingNumber int `json:"starting_number,omitempty" yaml:"starting_number"`
	// Prefix replaces DefaultPrefix when non-nil. An empty string is a
	// valid prefix and yields bare numbers.
	Prefix *string `json:"prefix,omitempty" yaml:"prefix"`
}

// ErrStartingNumber is returned for a negative starting number.
var ErrStartingNumber = errors.New("starting number must be 1 or greater")

func (c NumberingConfig) start() int {
	if c.StartingNumber == 0 {
		return 1
	}
	return c.StartingNumber
}

func (c NumberingConfig) prefix() string {
	if c.Prefix == nil {
		return DefaultPrefix
	}
	return *c.Prefix
}

// Validate checks the config before a run starts.
func (c NumberingConfig) Validate() error {
	if c.StartingNumber < 0 {
		return ErrStartingNumber
	}
	return nil
}

// Sort orders bonds canonically: maturity date, then series as the join
// key compares it, then CUSIP. The input slice is sorted in place.
func Sort(bonds []JoinedBond) {
	sort.SliceStable(bonds, func(i, j int) bool {
		a, b := bonds[i], bonds[j]
		if !a.MaturityDate.Equal(b.MaturityDate) {
			return a.MaturityDate.Before(b.MaturityDate)
		}
		if sa, sb := a.Key().Series, b.Key().Series; sa != sb {
			return sa < sb
		}
		return a.CUSIP < b.CUSIP
	})
}

// AssignNumbers returns a copy of joined in canonical order with sequence
// numbers and labels filled in. Numbers start at cfg.StartingNumber (default
// 1) and increase by one with no gaps. Labels are the prefix followed by the
// sequence zero-padded to the width of the last number in the run. The
// input is not modified, so repeated calls give identical results.
func AssignNumbers(joined []JoinedBond, cfg NumberingConfig) ([]JoinedBond, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	out := make([]JoinedBond, len(joined))
	copy(out, joined)
	Sort(out)

	if len(out) == 0 {
		return out, nil
	}

	first := cfg.start()
	width := len(strconv.Itoa(first + len(out) - 1))
	prefix := cfg.prefix()
	for i := range out {
		seq := first + i
		out[i].Sequence = seq
		out[i].Label = fmt.Sprintf("%s%0*d", prefix, width, seq)
	}
	return out, nil
}

// Or fills the fields c leaves unset from def.
func (c NumberingConfig) Or(def NumberingConfig) NumberingConfig {
	if c.StartingNumber == 0 {
		c.StartingNumber = def.StartingNumber
	}
	if c.Prefix == nil {
		c.Prefix = def.Prefix
	}
	return c
}
