package bond

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/parsers/schedule"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/words"
)

// AmbiguousKey reports a key matched by more than one row on either side.
// None of the involved rows are joined.
type AmbiguousKey struct {
	Key      Key                    `json:"key"`
	Maturity []schedule.MaturityRow `json:"maturity"`
	Cusip    []schedule.CusipRow    `json:"cusip"`
}

// DuplicateCUSIP reports one CUSIP assigned on more than one row. A CUSIP
// identifies a single maturity, so none of these rows are joined.
type DuplicateCUSIP struct {
	CUSIP string              `json:"cusip"`
	Rows  []schedule.CusipRow `json:"rows"`
}

// JoinResult is the output of Join.
type JoinResult struct {
	Joined            []JoinedBond           `json:"joined"`
	UnmatchedMaturity []schedule.MaturityRow `json:"unmatched_maturity"`
	UnmatchedCusip    []schedule.CusipRow    `json:"unmatched_cusip"`
	Ambiguous         []AmbiguousKey         `json:"ambiguous"`
	DuplicateCUSIP    []DuplicateCUSIP       `json:"duplicate_cusip"`
}

// Complete reports whether every input row was joined.
func (r *JoinResult) Complete() bool {
	return len(r.UnmatchedMaturity) == 0 && len(r.UnmatchedCusip) == 0 &&
		len(r.Ambiguous) == 0 && len(r.DuplicateCUSIP) == 0
}

// Err returns a *JoinError describing every join problem, or nil.
func (r *JoinResult) Err() error {
	if r.Complete() {
		return nil
	}
	return &JoinError{
		UnmatchedMaturity: r.UnmatchedMaturity,
		UnmatchedCusip:    r.UnmatchedCusip,
		Ambiguous:         r.Ambiguous,
		DuplicateCUSIP:    r.DuplicateCUSIP,
	}
}

// JoinError lists the rows that could not be paired. The rows are returned
// to the caller for correction, never dropped.
type JoinError struct {
	UnmatchedMaturity []schedule.MaturityRow
	UnmatchedCusip    []schedule.CusipRow
	Ambiguous         []AmbiguousKey
	DuplicateCUSIP    []DuplicateCUSIP
}

func (e *JoinError) Error() string {
	var parts []string
	for _, m := range e.UnmatchedMaturity {
		parts = append(parts, fmt.Sprintf("maturity row %d (%s) has no CUSIP", m.Row, KeyOf(m.MaturityDate, m.Series)))
	}
	for _, c := range e.UnmatchedCusip {
		parts = append(parts, fmt.Sprintf("CUSIP row %d (%s, %s) has no maturity", c.Row, c.CUSIP, KeyOf(c.MaturityDate, c.Series)))
	}
	for _, a := range e.Ambiguous {
		parts = append(parts, fmt.Sprintf("key %s matches %d maturity and %d CUSIP rows", a.Key, len(a.Maturity), len(a.Cusip)))
	}
	for _, d := range e.DuplicateCUSIP {
		rows := make([]string, len(d.Rows))
		for i, c := range d.Rows {
			rows[i] = strconv.Itoa(c.Row)
		}
		parts = append(parts, fmt.Sprintf("CUSIP %s appears on rows %s", d.CUSIP, strings.Join(rows, ", ")))
	}
	return "schedules do not join: " + strings.Join(parts, "; ")
}

// Join pairs maturity rows with CUSIP rows on (maturity date, series).
// Each key must resolve to exactly one row per side. Joined bonds follow the
// maturity schedule's input order and carry no sequence numbers yet; see
// AssignNumbers. Nothing is inferred: a row without a partner is reported.
func Join(maturities []schedule.MaturityRow, cusips []schedule.CusipRow) (*JoinResult, error) {
	byKeyM := make(map[Key][]schedule.MaturityRow)
	var keyOrder []Key
	for _, m := range maturities {
		k := KeyOf(m.MaturityDate, m.Series)
		if _, seen := byKeyM[k]; !seen {
			keyOrder = append(keyOrder, k)
		}
		byKeyM[k] = append(byKeyM[k], m)
	}
	res := &JoinResult{
		Joined:            []JoinedBond{},
		UnmatchedMaturity: []schedule.MaturityRow{},
		UnmatchedCusip:    []schedule.CusipRow{},
		Ambiguous:         []AmbiguousKey{},
		DuplicateCUSIP:    []DuplicateCUSIP{},
	}

	// Rows sharing a CUSIP are reported once and take no further part.
	byCUSIP := make(map[string][]schedule.CusipRow)
	var cusipOrder []string
	for _, c := range cusips {
		if _, seen := byCUSIP[c.CUSIP]; !seen {
			cusipOrder = append(cusipOrder, c.CUSIP)
		}
		byCUSIP[c.CUSIP] = append(byCUSIP[c.CUSIP], c)
	}
	for _, id := range cusipOrder {
		if rows := byCUSIP[id]; len(rows) > 1 {
			res.DuplicateCUSIP = append(res.DuplicateCUSIP, DuplicateCUSIP{CUSIP: id, Rows: rows})
		}
	}

	byKeyC := make(map[Key][]schedule.CusipRow)
	for _, c := range cusips {
		if len(byCUSIP[c.CUSIP]) > 1 {
			continue
		}
		k := KeyOf(c.MaturityDate, c.Series)
		byKeyC[k] = append(byKeyC[k], c)
	}
	ambiguous := make(map[Key]bool)

	for _, k := range keyOrder {
		ms, cs := byKeyM[k], byKeyC[k]
		switch {
		case len(ms) > 1 || len(cs) > 1:
			ambiguous[k] = true
			res.Ambiguous = append(res.Ambiguous, AmbiguousKey{Key: k, Maturity: ms, Cusip: cs})
		case len(cs) == 0:
			res.UnmatchedMaturity = append(res.UnmatchedMaturity, ms[0])
		default:
			b, err := pair(ms[0], cs[0])
			if err != nil {
				return nil, err
			}
			res.Joined = append(res.Joined, b)
		}
	}

	// CUSIP-side leftovers, in CUSIP input order.
	for _, c := range cusips {
		if len(byCUSIP[c.CUSIP]) > 1 {
			continue
		}
		k := KeyOf(c.MaturityDate, c.Series)
		if _, ok := byKeyM[k]; ok {
			continue
		}
		if len(byKeyC[k]) > 1 {
			if !ambiguous[k] {
				ambiguous[k] = true
				res.Ambiguous = append(res.Ambiguous, AmbiguousKey{Key: k, Cusip: byKeyC[k]})
			}
			continue
		}
		res.UnmatchedCusip = append(res.UnmatchedCusip, c)
	}
	return res, nil
}

func pair(m schedule.MaturityRow, c schedule.CusipRow) (JoinedBond, error) {
	inWords, err := words.Dollars(m.Principal)
	if err != nil {
		return JoinedBond{}, fmt.Errorf("maturity row %d: %w", m.Row, err)
	}
	return JoinedBond{
		CUSIP:          c.CUSIP,
		MaturityDate:   m.MaturityDate,
		DatedDate:      m.DatedDate,
		Principal:      m.Principal,
		PrincipalWords: inWords,
		Rate:           m.Rate,
		Series:         m.Series,
		MaturityRow:    m.Row,
		CusipRow:       c.Row,
	}, nil
}

// Orphans are valid rows left without a partner because the partner row on
// the other schedule was rejected and the caller chose to continue without
// it.
type Orphans struct {
	Maturity []schedule.MaturityRow `json:"maturity"`
	Cusip    []schedule.CusipRow    `json:"cusip"`
}

// Count returns the number of orphaned rows.
func (o Orphans) Count() int { return len(o.Maturity) + len(o.Cusip) }

// Excuse moves unmatched rows that are explained by rejected rows of the
// other schedule out of r and returns them. A rejected row whose maturity
// date was readable explains one unmatched row with the same key. Rejected
// rows without a readable date explain the rest of that side only when
// there are at least as many of them as unmatched rows left. Ambiguous keys
// and duplicate CUSIPs are never excused.
func (r *JoinResult) Excuse(rejectedMaturity, rejectedCusip []schedule.RowError) Orphans {
	var o Orphans
	r.UnmatchedCusip, o.Cusip = excuse(r.UnmatchedCusip, rejectedMaturity, func(c schedule.CusipRow) Key {
		return KeyOf(c.MaturityDate, c.Series)
	})
	r.UnmatchedMaturity, o.Maturity = excuse(r.UnmatchedMaturity, rejectedCusip, func(m schedule.MaturityRow) Key {
		return KeyOf(m.MaturityDate, m.Series)
	})
	return o
}

func excuse[T any](unmatched []T, rejected []schedule.RowError, keyOf func(T) Key) (kept, excused []T) {
	byKey := make(map[Key]int)
	unkeyed := 0
	for _, e := range rejected {
		if !e.Keyed() {
			unkeyed++
			continue
		}
		byKey[KeyOf(e.MaturityDate, e.Series)]++
	}

	kept, excused = []T{}, []T{}
	for _, u := range unmatched {
		if k := keyOf(u); byKey[k] > 0 {
			byKey[k]--
			excused = append(excused, u)
			continue
		}
		kept = append(kept, u)
	}
	if len(kept) > 0 && len(kept) <= unkeyed {
		excused = append(excused, kept...)
		kept = []T{}
	}
	return kept, excused
}
