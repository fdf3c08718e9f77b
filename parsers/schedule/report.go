package schedule

import (
	"sort"
	"strconv"
	"strings"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/parsers/tabular"
)

// WriteReport renders rejected rows as an xlsx workbook a user can fix
// their schedule against. Raw values are flattened into one column, keys
// sorted so the report is stable.
func WriteReport(maturity, cusip []RowError) ([]byte, error) {
	header := []string{"Schedule", "Row", "Field", "Reason", "Values"}
	rows := make([][]string, 0, len(maturity)+len(cusip))
	add := func(schedule string, errs []RowError) {
		for _, e := range errs {
			rows = append(rows, []string{
				schedule,
				strconv.Itoa(e.Row),
				e.Field,
				e.Reason,
				flatten(e.Raw),
			})
		}
	}
	add(Maturity, maturity)
	add(Cusip, cusip)
	return tabular.WriteXLSX(header, rows)
}

func flatten(raw map[string]string) string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+raw[k])
	}
	return strings.Join(parts, "; ")
}
