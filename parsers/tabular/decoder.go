// decoder.go detects the upload format and reads delimited text or XLSX
// workbooks into a Table.

package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// utf8BOM is stripped from the start of delimited text exported by Excel.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Read detects the file type (XLSX or delimited text) and parses accordingly.
// Content is checked first; the filename extension is only a fallback for
// inputs too short to sniff.
func Read(data []byte, filename string) (*Table, error) {
	switch {
	case isXLSX(data):
		return ReadXLSX(data)
	case isOLE2(data):
		return nil, ErrLegacyExcel
	case len(data) < 4 && strings.EqualFold(filepath.Ext(filename), ".xlsx"):
		return nil, fmt.Errorf("failed to open Excel file: file is truncated")
	}
	return ReadDelimited(data)
}

// ReadDelimited parses CSV-like text. The delimiter is sniffed from the
// header line among comma, tab, semicolon and pipe.
func ReadDelimited(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // allow ragged rows
	reader.TrimLeadingSpace = true

	// encoding/csv skips empty lines, so record each row's line explicitly.
	var raw [][]string
	var lines []int
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read delimited text: %w", err)
		}
		line, _ := reader.FieldPos(0)
		raw = append(raw, row)
		lines = append(lines, line)
	}
	return build(raw, lines, "csv", "")
}

// ReadXLSX parses the first non-empty worksheet of an Excel workbook.
func ReadXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	for _, name := range sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read Excel rows from %q: %w", name, err)
		}
		t, err := build(rows, nil, "xlsx", name)
		if err == ErrEmpty {
			continue
		}
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, ErrEmpty
}

// sniffDelimiter counts candidate delimiters outside quotes on the first
// non-empty line and picks the most frequent, defaulting to comma.
func sniffDelimiter(data []byte) rune {
	line := data
	for len(line) > 0 {
		idx := bytes.IndexByte(line, '\n')
		var cur []byte
		if idx < 0 {
			cur, line = line, nil
		} else {
			cur, line = line[:idx], line[idx+1:]
		}
		if len(bytes.TrimSpace(cur)) > 0 {
			line = cur
			break
		}
	}

	best, bestCount := ',', 0
	for _, d := range []rune{',', '\t', ';', '|'} {
		n, quoted := 0, false
		for _, r := range string(line) {
			switch {
			case r == '"':
				quoted = !quoted
			case r == d && !quoted:
				n++
			}
		}
		if n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// isXLSX checks for the ZIP local file header (PK\x03\x04) that starts
// every XLSX package.
func isXLSX(data []byte) bool {
	return len(data) >= 4 && data[0] == 0x50 && data[1] == 0x4B && data[2] == 0x03 && data[3] == 0x04
}

// isOLE2 checks for the compound document header used by .xls.
func isOLE2(data []byte) bool {
	return len(data) >= 4 && data[0] == 0xD0 && data[1] == 0xCF && data[2] == 0x11 && data[3] == 0xE0
}
