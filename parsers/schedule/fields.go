// fields.go holds the per-field typed validation applied to raw cells.

package schedule

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Row-level rejection reasons.
const (
	ReasonMissing        = "missing value"
	ReasonDate           = "unparseable date"
	ReasonDateRange      = "date is out of range"
	ReasonPrincipalWhole = "principal amount is not a whole number"
	ReasonPrincipalSign  = "principal amount must be positive"
	ReasonPrincipalLarge = "principal amount is too large"
	ReasonPrincipalNaN   = "principal amount is not a number"
	ReasonRate           = "rate is not a number"
	ReasonRateSign       = "rate must not be negative"
	ReasonCUSIP          = "CUSIP is not 9 alphanumeric characters"
)

// dateLayouts are tried in order. Slash and dash numeric forms are read
// month-first, as US schedules are written.
var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"1/2/06",
	"2006/1/2",
	"1-2-2006",
	"01-02-06",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Jan. 2, 2006",
	"2 January 2006",
	"2-Jan-2006",
	"2-Jan-06",
	"20060102",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Excel serial day numbers for 1900-01-01 and 9999-12-31.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

type fieldError struct{ reason string }

func (e fieldError) Error() string { return e.reason }

func reject(reason string) error { return fieldError{reason: reason} }

// reasonOf extracts the user-facing reason from a field error.
func reasonOf(err error) string {
	var fe fieldError
	if errors.As(err, &fe) {
		return fe.reason
	}
	return err.Error()
}

// ParseDate reads a schedule date. Whole numbers in the Excel serial range
// are treated as serial dates, which is how unformatted date cells come
// through from some exports. The result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, reject(ReasonMissing)
	}

	if n, err := strconv.Atoi(s); err == nil && len(s) < 8 {
		if n < minExcelSerial || n > maxExcelSerial {
			return time.Time{}, reject(ReasonDateRange)
		}
		t, err := excelize.ExcelDateToTime(float64(n), false)
		if err != nil {
			return time.Time{}, reject(ReasonDate)
		}
		return checkRange(dateOnly(t))
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return checkRange(dateOnly(t))
		}
	}
	return time.Time{}, reject(ReasonDate)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func checkRange(t time.Time) (time.Time, error) {
	if t.Year() < 1900 || t.Year() > 2199 {
		return time.Time{}, reject(ReasonDateRange)
	}
	return t, nil
}

// ParsePrincipal reads a whole-dollar amount. Currency symbols, thousands
// separators and a zero fractional part ("125,000.00") are accepted;
// fractional cents are rejected, never rounded.
func ParsePrincipal(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, reject(ReasonMissing)
	}
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, reject(ReasonPrincipalNaN)
	}
	if !d.IsInteger() {
		return 0, reject(ReasonPrincipalWhole)
	}
	if d.Sign() <= 0 {
		return 0, reject(ReasonPrincipalSign)
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, reject(ReasonPrincipalLarge)
	}
	return d.IntPart(), nil
}

// ParseRate reads a coupon rate expressed in percent ("5", "5.125%").
func ParseRate(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, reject(ReasonMissing)
	}
	cleaned := strings.TrimSpace(strings.TrimSuffix(s, "%"))
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, reject(ReasonRate)
	}
	if d.Sign() < 0 {
		return decimal.Zero, reject(ReasonRateSign)
	}
	return d, nil
}

var cusipRe = regexp.MustCompile(`^[A-Z0-9]{9}$`)

// ParseCUSIP upper-cases and checks a CUSIP. Only surrounding whitespace is
// forgiven; embedded spaces or dashes are format errors.
func ParseCUSIP(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", reject(ReasonMissing)
	}
	if !cusipRe.MatchString(s) {
		return "", reject(ReasonCUSIP)
	}
	return s, nil
}

// NormalizeSeries trims a series label. Case is kept for display; the
// joiner compares labels case-insensitively.
func NormalizeSeries(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
