package schedule

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDate(t *testing.T) {
	want := date(2030, time.August, 1)
	for _, input := range []string{
		"2030-08-01",
		"8/1/2030",
		"08/01/2030",
		"8/1/30",
		"2030/8/1",
		"August 1, 2030",
		"Aug 1, 2030",
		"1-Aug-2030",
		"01-Aug-30",
		"08-01-30",
		"20300801",
		"2030-08-01T00:00:00Z",
		"47696", // Excel serial for 2030-08-01
	} {
		got, err := ParseDate(input)
		if err != nil {
			t.Errorf("ParseDate(%q): %v", input, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %s, want %s", input, got.Format("2006-01-02"), want.Format("2006-01-02"))
		}
	}
}

func TestParseDateRejects(t *testing.T) {
	tests := []struct {
		input  string
		reason string
	}{
		{"", ReasonMissing},
		{"soon", ReasonDate},
		{"2030-13-01", ReasonDate},
		{"2030-02-30", ReasonDate},
		{"0", ReasonDateRange},
		{"1/1/1850", ReasonDateRange},
	}
	for _, tt := range tests {
		_, err := ParseDate(tt.input)
		if err == nil {
			t.Errorf("ParseDate(%q) succeeded, want %q", tt.input, tt.reason)
			continue
		}
		if got := reasonOf(err); got != tt.reason {
			t.Errorf("ParseDate(%q) reason = %q, want %q", tt.input, got, tt.reason)
		}
	}
}

func TestParsePrincipal(t *testing.T) {
	tests := []struct {
		input  string
		want   int64
		reason string
	}{
		{"125000", 125000, ""},
		{"$125,000", 125000, ""},
		{"125,000.00", 125000, ""},
		{" 1 000 000 ", 1000000, ""},
		{"125000.50", 0, ReasonPrincipalWhole},
		{"0", 0, ReasonPrincipalSign},
		{"-5000", 0, ReasonPrincipalSign},
		{"lots", 0, ReasonPrincipalNaN},
		{"", 0, ReasonMissing},
		{"99999999999999999999", 0, ReasonPrincipalLarge},
	}
	for _, tt := range tests {
		got, err := ParsePrincipal(tt.input)
		if tt.reason != "" {
			if err == nil || reasonOf(err) != tt.reason {
				t.Errorf("ParsePrincipal(%q) error = %v, want %q", tt.input, err, tt.reason)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParsePrincipal(%q) = %d, %v; want %d", tt.input, got, err, tt.want)
		}
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		reason string
	}{
		{"5", "5", ""},
		{"5.125%", "5.125", ""},
		{" 3.00 % ", "3", ""},
		{"0", "0", ""},
		{"-1", "", ReasonRateSign},
		{"five", "", ReasonRate},
	}
	for _, tt := range tests {
		got, err := ParseRate(tt.input)
		if tt.reason != "" {
			if err == nil || reasonOf(err) != tt.reason {
				t.Errorf("ParseRate(%q) error = %v, want %q", tt.input, err, tt.reason)
			}
			continue
		}
		if err != nil || got.String() != tt.want {
			t.Errorf("ParseRate(%q) = %s, %v; want %s", tt.input, got, err, tt.want)
		}
	}
}

func TestParseCUSIP(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"123456ab7", "123456AB7", true},
		{" 123456AB7 ", "123456AB7", true},
		{"123456AB", "", false},
		{"123456AB78", "", false},
		{"123456-B7", "", false},
		{"123 456AB", "", false},
	}
	for _, tt := range tests {
		got, err := ParseCUSIP(tt.input)
		if tt.ok != (err == nil) || got != tt.want {
			t.Errorf("ParseCUSIP(%q) = %q, %v", tt.input, got, err)
		}
	}
}

func TestParseMaturityColumnSynonyms(t *testing.T) {
	input := "MATURITY_DATE,Par Amount,Coupon (%),Issue Date,Series Label\n" +
		"8/1/2030,\"$125,000\",5.00%,6/15/2025,2025A\n"
	res, err := ParseMaturity([]byte(input), "m.csv")
	if err != nil {
		t.Fatalf("ParseMaturity: %v", err)
	}
	if res.Summary != (Summary{Total: 1, Valid: 1}) {
		t.Fatalf("summary = %+v", res.Summary)
	}
	row := res.Valid[0]
	if row.Row != 2 || row.Principal != 125000 || row.Rate.String() != "5" || row.Series != "2025A" {
		t.Errorf("unexpected row %+v", row)
	}
	if !row.DatedDate.Equal(date(2025, time.June, 15)) {
		t.Errorf("dated date = %s", row.DatedDate)
	}
}

func TestParseMaturityMissingColumns(t *testing.T) {
	_, err := ParseMaturity([]byte("Maturity,Notes\n2030-08-01,x\n"), "m.csv")
	var se *StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StructuralError", err)
	}
	if strings.Join(se.Missing, ",") != "principal,rate" {
		t.Errorf("missing = %v", se.Missing)
	}
}

func TestParseUnreadableIsStructural(t *testing.T) {
	_, err := ParseCusip([]byte{0x50, 0x4B, 0x03, 0x04, 0xFF}, "c.xlsx")
	var se *StructuralError
	if !errors.As(err, &se) || se.Schedule != Cusip {
		t.Fatalf("error = %v, want cusip *StructuralError", err)
	}
}

func TestParseMaturityContainsRowFailures(t *testing.T) {
	var b strings.Builder
	b.WriteString("Maturity Date,Principal,Rate\n")
	for i := 0; i < 10; i++ {
		d := fmt.Sprintf("%d-08-01", 2030+i)
		if i == 3 || i == 7 {
			d = "not a date"
		}
		fmt.Fprintf(&b, "%s,%d,4.5\n", d, 100000+i*5000)
	}

	res, err := ParseMaturity([]byte(b.String()), "m.csv")
	if err != nil {
		t.Fatalf("ParseMaturity: %v", err)
	}
	if len(res.Valid) != 8 || len(res.Invalid) != 2 {
		t.Fatalf("valid=%d invalid=%d, want 8 and 2", len(res.Valid), len(res.Invalid))
	}
	if res.Summary != (Summary{Total: 10, Valid: 8, Invalid: 2}) {
		t.Errorf("summary = %+v", res.Summary)
	}
	for i, e := range res.Invalid {
		wantRow := []int{5, 9}[i]
		if e.Row != wantRow || e.Field != string(ColMaturityDate) || e.Reason != ReasonDate {
			t.Errorf("invalid[%d] = %+v", i, e)
		}
		if e.Raw["Rate"] != "4.5" {
			t.Errorf("invalid[%d] raw = %v", i, e.Raw)
		}
	}
	// Input order preserved.
	for i := 1; i < len(res.Valid); i++ {
		if res.Valid[i].Row <= res.Valid[i-1].Row {
			t.Fatalf("rows out of order at %d", i)
		}
	}
}

func TestRowErrorsKeepJoinKey(t *testing.T) {
	mat, err := ParseMaturity([]byte("Maturity Date,Principal,Rate,Series\n2031-08-01,-5,4.5,2025a\nsoon,1000,4.5,2025A\n"), "m.csv")
	if err != nil {
		t.Fatalf("ParseMaturity: %v", err)
	}
	if len(mat.Invalid) != 2 {
		t.Fatalf("invalid = %d, want 2", len(mat.Invalid))
	}
	if e := mat.Invalid[0]; !e.Keyed() || !e.MaturityDate.Equal(date(2031, time.August, 1)) || e.Series != "2025a" {
		t.Errorf("bad principal row key = %v %q", e.MaturityDate, e.Series)
	}
	if mat.Invalid[1].Keyed() {
		t.Errorf("unparseable date row has key %v", mat.Invalid[1].MaturityDate)
	}

	cus, err := ParseCusip([]byte("CUSIP,Maturity\nBAD,8/1/2032\n123456AB1,later\n"), "c.csv")
	if err != nil {
		t.Fatalf("ParseCusip: %v", err)
	}
	if len(cus.Invalid) != 2 {
		t.Fatalf("invalid = %d, want 2", len(cus.Invalid))
	}
	if e := cus.Invalid[0]; e.Field != string(ColCUSIP) || !e.MaturityDate.Equal(date(2032, time.August, 1)) {
		t.Errorf("bad CUSIP row = %+v", e)
	}
	if e := cus.Invalid[1]; e.Field != string(ColMaturityDate) || e.Keyed() {
		t.Errorf("bad date row = %+v", e)
	}
}

func TestParseCusipFromXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"CUSIP No.", "Maturity", "Series"},
		{"64966QAB1", "2030-08-01", "A"},
		{"BAD", "2031-08-01", "A"},
		{"64966QAC9", "", "A"},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}

	res, err := ParseCusip(buf.Bytes(), "cusips.xlsx")
	if err != nil {
		t.Fatalf("ParseCusip: %v", err)
	}
	if len(res.Valid) != 1 || res.Valid[0].CUSIP != "64966QAB1" || res.Valid[0].Series != "A" {
		t.Fatalf("valid = %+v", res.Valid)
	}
	if len(res.Invalid) != 2 {
		t.Fatalf("invalid = %+v", res.Invalid)
	}
	if res.Invalid[0].Reason != ReasonCUSIP || res.Invalid[1].Reason != ReasonMissing {
		t.Errorf("reasons = %q, %q", res.Invalid[0].Reason, res.Invalid[1].Reason)
	}
}

func TestWriteReport(t *testing.T) {
	data, err := WriteReport(
		[]RowError{{Row: 4, Field: "principal", Reason: ReasonPrincipalWhole, Raw: map[string]string{"b": "2", "a": "1"}}},
		[]RowError{{Row: 2, Field: "cusip", Reason: ReasonCUSIP}},
	)
	if err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := f.GetRows("Sheet1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[1][0] != Maturity || got[1][4] != "a=1; b=2" || got[2][0] != Cusip {
		t.Fatalf("report rows = %v", got)
	}
}
