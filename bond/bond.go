// Package bond joins the maturity and CUSIP schedules into bond records and
// assigns their deterministic numbering and order.
package bond

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical date form used in keys and manifests.
const DateLayout = "2006-01-02"

// JoinedBond is one fully resolved bond: a maturity row paired with exactly
// one CUSIP row sharing its key.
type JoinedBond struct {
	Sequence       int             `json:"sequence"`
	Label          string          `json:"label"`
	CUSIP          string          `json:"cusip"`
	MaturityDate   time.Time       `json:"maturity_date"`
	DatedDate      time.Time       `json:"dated_date"`
	Principal      int64           `json:"principal"`
	PrincipalWords string          `json:"principal_words"`
	Rate           decimal.Decimal `json:"rate"`
	Series         string          `json:"series,omitempty"`

	// Source rows, kept for error messages.
	MaturityRow int `json:"maturity_row"`
	CusipRow    int `json:"cusip_row"`
}

// Key is the composite join key: maturity date plus optional series.
type Key struct {
	Maturity string `json:"maturity"` // YYYY-MM-DD
	Series   string `json:"series,omitempty"`
}

// KeyOf builds the join key. Series labels compare case-insensitively and
// ignore surrounding whitespace; an empty label means "no series".
func KeyOf(maturity time.Time, series string) Key {
	return Key{
		Maturity: maturity.Format(DateLayout),
		Series:   strings.ToUpper(strings.TrimSpace(series)),
	}
}

func (k Key) String() string {
	if k.Series == "" {
		return k.Maturity
	}
	return fmt.Sprintf("%s/%s", k.Maturity, k.Series)
}

// Key returns the bond's join key.
func (b JoinedBond) Key() Key {
	return KeyOf(b.MaturityDate, b.Series)
}
