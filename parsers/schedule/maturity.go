package schedule

import (
	"time"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/parsers/tabular"
)

var (
	maturityRequired = []Column{ColMaturityDate, ColPrincipal, ColRate}
	maturityOptional = []Column{ColDatedDate, ColSeries}
)

// ParseMaturity reads a maturity schedule from spreadsheet or delimited
// text bytes. A missing required column or an unreadable file is returned
// as a *StructuralError; everything else is reported per row.
func ParseMaturity(data []byte, filename string) (*MaturityResult, error) {
	t, err := tabular.Read(data, filename)
	if err != nil {
		return nil, &StructuralError{Schedule: Maturity, Err: err}
	}
	return MaturityFromTable(t)
}

// MaturityFromTable validates an already normalized table.
func MaturityFromTable(t *tabular.Table) (*MaturityResult, error) {
	cols, missing := resolve(t, maturityRequired, maturityOptional)
	if len(missing) > 0 {
		return nil, &StructuralError{Schedule: Maturity, Missing: missing}
	}

	res := &MaturityResult{Valid: []MaturityRow{}, Invalid: []RowError{}}
	for _, row := range t.Rows {
		mr, rerr := maturityRow(t, cols, row)
		if rerr != nil {
			res.Invalid = append(res.Invalid, *rerr)
			continue
		}
		res.Valid = append(res.Valid, mr)
	}
	res.Summary = Summary{
		Total:   len(t.Rows),
		Valid:   len(res.Valid),
		Invalid: len(res.Invalid),
	}
	return res, nil
}

// maturityRow validates a single row. The first failing field is reported.
func maturityRow(t *tabular.Table, cols columnIndex, row tabular.Row) (MaturityRow, *RowError) {
	series := NormalizeSeries(cols.cell(row, ColSeries))
	var maturity time.Time
	fail := func(col Column, err error) (MaturityRow, *RowError) {
		return MaturityRow{}, &RowError{
			Row:          row.Line,
			Field:        string(col),
			Reason:       reasonOf(err),
			Raw:          t.Record(row),
			MaturityDate: maturity,
			Series:       series,
		}
	}

	maturity, err := ParseDate(cols.cell(row, ColMaturityDate))
	if err != nil {
		maturity = time.Time{}
		return fail(ColMaturityDate, err)
	}
	principal, err := ParsePrincipal(cols.cell(row, ColPrincipal))
	if err != nil {
		return fail(ColPrincipal, err)
	}
	rate, err := ParseRate(cols.cell(row, ColRate))
	if err != nil {
		return fail(ColRate, err)
	}

	mr := MaturityRow{
		Row:          row.Line,
		MaturityDate: maturity,
		Principal:    principal,
		Rate:         rate,
		Series:       series,
	}
	// Dated date is optional per row; the run can supply it instead.
	if raw := cols.cell(row, ColDatedDate); raw != "" {
		dated, err := ParseDate(raw)
		if err != nil {
			return fail(ColDatedDate, err)
		}
		mr.DatedDate = dated
	}
	return mr, nil
}
