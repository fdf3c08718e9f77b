// Package tabular normalizes spreadsheet and delimited-text uploads into a
// single header-plus-rows table that the schedule parsers consume.
package tabular

import (
	"errors"
	"strings"
)

// ErrEmpty is returned when the input holds no header row.
var ErrEmpty = errors.New("no header row found")

// ErrLegacyExcel is returned for binary .xls (OLE2) workbooks.
var ErrLegacyExcel = errors.New("legacy .xls workbooks are not supported; save as .xlsx or .csv")

// Table is a normalized tabular document: one header row followed by data
// rows. Every data row has exactly len(Header) cells.
type Table struct {
	Header []string
	Rows   []Row
	// HeaderLine is the 1-based source row of the header.
	HeaderLine int
	// Source names the reader that produced the table ("xlsx" or "csv").
	Source string
	// Sheet is the worksheet the rows came from (xlsx only).
	Sheet string
}

// Row is a single data row with its 1-based position in the source file,
// so errors can point at the line a user sees in their spreadsheet.
type Row struct {
	Line  int
	Cells []string
}

// Record returns the row as a header -> value map.
func (t *Table) Record(r Row) map[string]string {
	rec := make(map[string]string, len(t.Header))
	for i, h := range t.Header {
		if h == "" {
			continue
		}
		rec[h] = r.Cells[i]
	}
	return rec
}

// blank reports whether every cell in row is empty after trimming.
func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// build turns raw rows into a Table. Leading blank rows are skipped, the
// first non-blank row becomes the header, and blank data rows are dropped
// while the remaining rows keep their original line numbers. lines[i] is the
// 1-based source line of raw[i]; nil means raw is dense from line 1.
func build(raw [][]string, lines []int, source, sheet string) (*Table, error) {
	lineOf := func(i int) int {
		if lines == nil {
			return i + 1
		}
		return lines[i]
	}

	start := -1
	for i, row := range raw {
		if !blank(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrEmpty
	}

	header := make([]string, len(raw[start]))
	for i, h := range raw[start] {
		header[i] = strings.TrimSpace(h)
	}
	// Drop trailing unnamed header cells; spreadsheets often carry them.
	for len(header) > 0 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}
	if len(header) == 0 {
		return nil, ErrEmpty
	}

	t := &Table{
		Header:     header,
		HeaderLine: lineOf(start),
		Source:     source,
		Sheet:      sheet,
	}
	for i := start + 1; i < len(raw); i++ {
		if blank(raw[i]) {
			continue
		}
		cells := make([]string, len(header))
		for j := range header {
			if j < len(raw[i]) {
				cells[j] = strings.TrimSpace(raw[i][j])
			}
		}
		t.Rows = append(t.Rows, Row{Line: lineOf(i), Cells: cells})
	}
	return t, nil
}
