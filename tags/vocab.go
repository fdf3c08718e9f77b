// Package tags defines the certificate tag vocabulary and the TagMap that
// records where each tag sits in a template's text.
package tags

import (
	"strings"
)

// Tag names a placeholder in a certificate template.
type Tag string

// Required tags. Assembly refuses a template that lacks any of these.
const (
	CUSIP           Tag = "CUSIP"
	PrincipalAmount Tag = "PRINCIPAL_AMOUNT"
	PrincipalWords  Tag = "PRINCIPAL_WORDS"
	MaturityDate    Tag = "MATURITY_DATE"
	DatedDate       Tag = "DATED_DATE"
	CouponRate      Tag = "COUPON_RATE"
	BondNumber      Tag = "BOND_NUMBER"
)

// Optional descriptive tags, filled from run metadata or the bond series.
const (
	IssuerName           Tag = "ISSUER_NAME"
	BondTitle            Tag = "BOND_TITLE"
	Series               Tag = "SERIES"
	InterestPaymentDates Tag = "INTEREST_PAYMENT_DATES"
	RegisteredOwner      Tag = "REGISTERED_OWNER"
)

// Definition describes one vocabulary entry.
type Definition struct {
	Tag         Tag    `json:"tag"`
	Label       string `json:"label"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

var vocabulary = []Definition{
	{CUSIP, "CUSIP", true, "Nine-character CUSIP identifier"},
	{PrincipalAmount, "Principal Amount", true, "Principal in figures, e.g. $125,000"},
	{PrincipalWords, "Principal in Words", true, "Principal in words, e.g. One Hundred Twenty-Five Thousand Dollars"},
	{MaturityDate, "Maturity Date", true, "Maturity date of the bond"},
	{DatedDate, "Dated Date", true, "Dated (issue) date of the series"},
	{CouponRate, "Interest Rate", true, "Coupon rate, e.g. 5.000%"},
	{BondNumber, "Bond Number", true, "Certificate number, e.g. R-01"},
	{IssuerName, "Issuer Name", false, "Name of the issuer"},
	{BondTitle, "Bond Title", false, "Title of the bond issue"},
	{Series, "Series", false, "Series label"},
	{InterestPaymentDates, "Interest Payment Dates", false, "Interest payment dates"},
	{RegisteredOwner, "Registered Owner", false, "Registered owner, e.g. Cede & Co."},
}

// Vocabulary returns every known tag, required tags first.
func Vocabulary() []Definition {
	out := make([]Definition, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// RequiredTags returns the required tags in vocabulary order.
func RequiredTags() []Tag {
	var out []Tag
	for _, d := range vocabulary {
		if d.Required {
			out = append(out, d.Tag)
		}
	}
	return out
}

// Parse resolves a tag name, ignoring case and surrounding whitespace.
// Inner spaces and hyphens are read as underscores, so "bond number"
// resolves to BondNumber.
func Parse(name string) (Tag, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	t := Tag(name)
	return t, t.Known()
}

// Known reports whether t is in the vocabulary.
func (t Tag) Known() bool {
	_, ok := definition(t)
	return ok
}

// Required reports whether t must be assigned before assembly.
func (t Tag) Required() bool {
	d, ok := definition(t)
	return ok && d.Required
}

func definition(t Tag) (Definition, bool) {
	for _, d := range vocabulary {
		if d.Tag == t {
			return d, true
		}
	}
	return Definition{}, false
}
