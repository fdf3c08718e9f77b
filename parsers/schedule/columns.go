// columns.go resolves loosely named spreadsheet headers onto the canonical
// schedule columns.

package schedule

import (
	"strings"
	"unicode"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/parsers/tabular"
)

// Column is a canonical schedule column.
type Column string

const (
	ColMaturityDate Column = "maturity_date"
	ColPrincipal    Column = "principal"
	ColRate         Column = "rate"
	ColDatedDate    Column = "dated_date"
	ColSeries       Column = "series"
	ColCUSIP        Column = "cusip"
)

// synonyms lists accepted header spellings per column. Entries are compared
// after fold, so "Maturity Date", "maturity_date" and "MATURITY-DATE" are
// the same header.
var synonyms = map[Column][]string{
	ColMaturityDate: {"maturity date", "maturity", "maturity dt", "due date", "maturing", "maturity date (mm/dd/yyyy)"},
	ColPrincipal:    {"principal", "principal amount", "amount", "par", "par amount", "par value", "principal amt"},
	ColRate:         {"rate", "coupon", "coupon rate", "interest rate", "rate (%)", "coupon (%)"},
	ColDatedDate:    {"dated date", "dated", "issue date", "date of issue"},
	ColSeries:       {"series", "series label", "series name"},
	ColCUSIP:        {"cusip", "cusip number", "cusip no", "cusip #", "cusip id", "cusip9"},
}

// fold lower-cases a header and strips separators and punctuation.
func fold(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var folded = func() map[string]Column {
	m := make(map[string]Column)
	for col, names := range synonyms {
		for _, n := range names {
			m[fold(n)] = col
		}
	}
	return m
}()

// columnIndex maps canonical columns to their position in a table header.
type columnIndex map[Column]int

// resolve locates the wanted columns in the header. The first header that
// matches a column wins. Required columns that cannot be found are
// returned in the order given.
func resolve(t *tabular.Table, required, optional []Column) (columnIndex, []string) {
	idx := make(columnIndex)
	for i, h := range t.Header {
		col, ok := folded[fold(h)]
		if !ok {
			continue
		}
		if _, seen := idx[col]; !seen {
			idx[col] = i
		}
	}

	var missing []string
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			missing = append(missing, string(col))
		}
	}

	wanted := make(map[Column]bool, len(required)+len(optional))
	for _, c := range append(append([]Column{}, required...), optional...) {
		wanted[c] = true
	}
	for col := range idx {
		if !wanted[col] {
			delete(idx, col)
		}
	}
	return idx, missing
}

// cell returns the trimmed value of col in row, or "" when the column is
// not present in the table.
func (ci columnIndex) cell(row tabular.Row, col Column) string {
	i, ok := ci[col]
	if !ok {
		return ""
	}
	return strings.TrimSpace(row.Cells[i])
}

func (ci columnIndex) has(col Column) bool {
	_, ok := ci[col]
	return ok
}
