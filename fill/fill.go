// Package fill substitutes bond values into a tagged template.
package fill

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/bond"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/formats"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/tags"
)

// DisplayDate is the date form written into certificates.
const DisplayDate = "January 2, 2006"

// ErrEmptyDocument is returned when a format produces no bytes.
var ErrEmptyDocument = errors.New("filled document is empty")

// Metadata holds run-level values that are the same on every certificate.
type Metadata struct {
	IssuerName           string `json:"issuer_name,omitempty" yaml:"issuer_name"`
	BondTitle            string `json:"bond_title,omitempty" yaml:"bond_title"`
	InterestPaymentDates string `json:"interest_payment_dates,omitempty" yaml:"interest_payment_dates"`
	RegisteredOwner      string `json:"registered_owner,omitempty" yaml:"registered_owner"`
	// DatedDate is used when the maturity schedule has no dated date column.
	DatedDate string `json:"dated_date,omitempty" yaml:"dated_date"`
}

// Field returns the metadata value that fills tag, if tag is a metadata tag.
func (m Metadata) Field(tag tags.Tag) (string, bool) {
	switch tag {
	case tags.IssuerName:
		return m.IssuerName, true
	case tags.BondTitle:
		return m.BondTitle, true
	case tags.InterestPaymentDates:
		return m.InterestPaymentDates, true
	case tags.RegisteredOwner:
		return m.RegisteredOwner, true
	}
	return "", false
}

// TagSubstitutionError is returned when an assigned tag has no value for a
// bond. The assembly gates make this unreachable for validated input.
type TagSubstitutionError struct {
	Tag  tags.Tag
	Bond string
}

func (e *TagSubstitutionError) Error() string {
	return fmt.Sprintf("no value for tag %s on bond %s", e.Tag, e.Bond)
}

// FormatPrincipal renders whole dollars with thousands separators: $125,000.
func FormatPrincipal(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

// FormatRate renders a percent rate with three decimals: 5.000%.
func FormatRate(r decimal.Decimal) string {
	return r.StringFixed(3) + "%"
}

// Values returns the substitution value of every tag the bond can fill.
// Tags without a value are absent from the map.
func Values(b bond.JoinedBond, meta Metadata) map[tags.Tag]string {
	v := make(map[tags.Tag]string)
	set := func(t tags.Tag, s string) {
		if s != "" {
			v[t] = s
		}
	}
	set(tags.CUSIP, b.CUSIP)
	if b.Principal > 0 {
		set(tags.PrincipalAmount, FormatPrincipal(b.Principal))
	}
	set(tags.PrincipalWords, b.PrincipalWords)
	if !b.MaturityDate.IsZero() {
		set(tags.MaturityDate, b.MaturityDate.Format(DisplayDate))
	}
	if !b.DatedDate.IsZero() {
		set(tags.DatedDate, b.DatedDate.Format(DisplayDate))
	}
	set(tags.CouponRate, FormatRate(b.Rate))
	set(tags.BondNumber, b.Label)
	set(tags.Series, b.Series)
	for _, d := range tags.Vocabulary() {
		if s, ok := meta.Field(d.Tag); ok {
			set(d.Tag, s)
		}
	}
	return v
}

func bondName(b bond.JoinedBond) string {
	if b.Label != "" {
		return b.Label
	}
	return b.CUSIP
}

// Document fills one certificate. Every assignment in tm is replaced at its
// exact span; the rest of the template is kept as is. template is not
// modified.
func Document(template []byte, tm *tags.TagMap, b bond.JoinedBond, meta Metadata) ([]byte, error) {
	f, err := formats.Lookup(tm.Format)
	if err != nil {
		return nil, err
	}
	values := Values(b, meta)
	reps := make([]formats.Replacement, 0, len(tm.Assignments))
	for _, a := range tm.Assignments {
		val, ok := values[a.Tag]
		if !ok {
			return nil, &TagSubstitutionError{Tag: a.Tag, Bond: bondName(b)}
		}
		reps = append(reps, formats.Replacement{Offset: a.Offset, Length: a.Length, Value: val})
	}
	out, err := f.Fill(template, reps)
	if err != nil {
		return nil, fmt.Errorf("failed to fill bond %s: %w", bondName(b), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("bond %s: %w", bondName(b), ErrEmptyDocument)
	}
	return out, nil
}

// All fills every bond in parallel with at most workers goroutines
// (runtime.NumCPU when workers <= 0). docs[i] belongs to bonds[i]. The
// first failure cancels the remaining work and no documents are returned.
func All(ctx context.Context, template []byte, tm *tags.TagMap, bonds []bond.JoinedBond, meta Metadata, workers int) ([][]byte, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	docs := make([][]byte, len(bonds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range bonds {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := Document(template, tm, bonds[i], meta)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}
