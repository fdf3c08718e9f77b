package schedule

import (
	"time"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/parsers/tabular"
)

var (
	cusipRequired = []Column{ColCUSIP, ColMaturityDate}
	cusipOptional = []Column{ColSeries}
)

// ParseCusip reads a CUSIP assignment schedule. Error handling mirrors
// ParseMaturity.
func ParseCusip(data []byte, filename string) (*CusipResult, error) {
	t, err := tabular.Read(data, filename)
	if err != nil {
		return nil, &StructuralError{Schedule: Cusip, Err: err}
	}
	return CusipFromTable(t)
}

// CusipFromTable validates an already normalized table.
func CusipFromTable(t *tabular.Table) (*CusipResult, error) {
	cols, missing := resolve(t, cusipRequired, cusipOptional)
	if len(missing) > 0 {
		return nil, &StructuralError{Schedule: Cusip, Missing: missing}
	}

	res := &CusipResult{Valid: []CusipRow{}, Invalid: []RowError{}}
	for _, row := range t.Rows {
		series := NormalizeSeries(cols.cell(row, ColSeries))
		maturity, dateErr := ParseDate(cols.cell(row, ColMaturityDate))
		if dateErr != nil {
			maturity = time.Time{}
		}
		fail := func(col Column, err error) {
			res.Invalid = append(res.Invalid, RowError{
				Row:          row.Line,
				Field:        string(col),
				Reason:       reasonOf(err),
				Raw:          t.Record(row),
				MaturityDate: maturity,
				Series:       series,
			})
		}

		cusip, err := ParseCUSIP(cols.cell(row, ColCUSIP))
		if err != nil {
			fail(ColCUSIP, err)
			continue
		}
		if dateErr != nil {
			fail(ColMaturityDate, dateErr)
			continue
		}
		res.Valid = append(res.Valid, CusipRow{
			Row:          row.Line,
			CUSIP:        cusip,
			MaturityDate: maturity,
			Series:       series,
		})
	}
	res.Summary = Summary{
		Total:   len(t.Rows),
		Valid:   len(res.Valid),
		Invalid: len(res.Invalid),
	}
	return res, nil
}
