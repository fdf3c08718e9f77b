package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ToCSV writes the table back out as comma-separated text, header first.
func (t *Table) ToCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range t.Rows {
		if err := w.Write(row.Cells); err != nil {
			return nil, fmt.Errorf("failed to write CSV row %d: %w", row.Line, err)
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

// ToXLSX writes the table into a single-sheet workbook with a bold header.
func (t *Table) ToXLSX() ([]byte, error) {
	return WriteXLSX(t.Header, rowsOf(t))
}

// WriteXLSX renders header and rows into an in-memory workbook. It is shared
// by the table export and the schedule error report.
func WriteXLSX(header []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Sheet1"

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, name := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return nil, fmt.Errorf("failed to write header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, style); err != nil {
			return nil, fmt.Errorf("failed to style header cell %s: %w", cell, err)
		}
	}

	for rowIdx, row := range rows {
		for colIdx, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellStr(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}

	// Approximate auto-fit from the header width.
	for i, name := range header {
		colName, _ := excelize.ColumnNumberToName(i + 1)
		width := float64(len(name) + 4)
		if width < 12 {
			width = 12
		}
		f.SetColWidth(sheetName, colName, colName, width)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func rowsOf(t *Table) [][]string {
	out := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Cells
	}
	return out
}
