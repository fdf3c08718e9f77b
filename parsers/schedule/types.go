// Package schedule parses the two tabular inputs of a bond run: the
// maturity schedule (dates, principal, coupon) and the CUSIP assignment
// schedule. Rows are validated independently; a bad row is reported and
// the rest of the file is still parsed.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Schedule names used in errors.
const (
	Maturity = "maturity"
	Cusip    = "cusip"
)

// MaturityRow is one validated row of the maturity schedule.
type MaturityRow struct {
	Row          int             `json:"row"`
	MaturityDate time.Time       `json:"maturity_date"`
	Principal    int64           `json:"principal"`
	Rate         decimal.Decimal `json:"rate"`
	DatedDate    time.Time       `json:"dated_date,omitempty"` // zero when not supplied
	Series       string          `json:"series,omitempty"`
}

// CusipRow is one validated row of the CUSIP schedule.
type CusipRow struct {
	Row          int       `json:"row"`
	CUSIP        string    `json:"cusip"`
	MaturityDate time.Time `json:"maturity_date"`
	Series       string    `json:"series,omitempty"`
}

// RowError describes why a single row was rejected. MaturityDate and
// Series carry the row's join key when its maturity date was readable;
// MaturityDate is zero otherwise.
type RowError struct {
	Row          int               `json:"row"`
	Field        string            `json:"field"`
	Reason       string            `json:"reason"`
	Raw          map[string]string `json:"raw,omitempty"`
	MaturityDate time.Time         `json:"-"`
	Series       string            `json:"-"`
}

// Keyed reports whether the rejected row's join key is known.
func (e RowError) Keyed() bool { return !e.MaturityDate.IsZero() }

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
}

// Summary counts the rows seen by a parse.
type Summary struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// MaturityResult is the outcome of ParseMaturity.
type MaturityResult struct {
	Valid   []MaturityRow `json:"valid"`
	Invalid []RowError    `json:"invalid"`
	Summary Summary       `json:"summary"`
}

// CusipResult is the outcome of ParseCusip.
type CusipResult struct {
	Valid   []CusipRow `json:"valid"`
	Invalid []RowError `json:"invalid"`
	Summary Summary    `json:"summary"`
}

// StructuralError means the file could not be used at all: it was not
// readable as a table, or a required column is absent. No rows are
// returned alongside it.
type StructuralError struct {
	Schedule string
	Missing  []string
	Err      error
}

func (e *StructuralError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s schedule: missing required column(s): %s", e.Schedule, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s schedule: %v", e.Schedule, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }
