package tags

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/formats"
	_ "github.com/MuniFlow-io/V1MuniLanding-sub001/formats/text"
)

// paragraphs is a text format whose line breaks and tabs are structural,
// like a Word document's.
type paragraphs struct{}

func (paragraphs) Name() string { return "paragraphs" }
func (paragraphs) Extensions() []string { return []string{".para"} }
func (paragraphs) Match([]byte) bool { return false }
func (paragraphs) Text(data []byte) (string, error) { return string(data), nil }
func (paragraphs) Fill([]byte, []formats.Replacement) ([]byte, error) { return nil, nil }
func (paragraphs) Boundaries() string { return "\n\t" }

func init() {
	formats.Register(paragraphs{})
}

const fullTemplate = `Bond No. {{BOND_NUMBER}}  CUSIP {{ cusip }}
Principal {{PRINCIPAL_AMOUNT}} ({{Principal Words}})
Maturing {{MATURITY_DATE}}, dated {{DATED_DATE}}, at {{COUPON_RATE}}
Issued by {{ISSUER_NAME}} {{FOOTNOTE}}
`

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Tag
		ok   bool
	}{
		{"CUSIP", CUSIP, true},
		{" bond_number ", BondNumber, true},
		{"principal words", PrincipalWords, true},
		{"interest-payment-dates", InterestPaymentDates, true},
		{"FOOTNOTE", "FOOTNOTE", false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
	assert.Len(t, RequiredTags(), 7)
	assert.True(t, CUSIP.Required())
	assert.False(t, IssuerName.Required())
}

func TestScanPlaceholders(t *testing.T) {
	tm, err := Scan("cert.txt", []byte(fullTemplate))
	require.NoError(t, err)

	assert.Equal(t, "Plain text", tm.Format)
	assert.Equal(t, int64(len(fullTemplate)), tm.Size)
	assert.Equal(t, Hash([]byte(fullTemplate)), tm.Hash)
	assert.Equal(t, []Tag{BondNumber, CUSIP, PrincipalAmount, PrincipalWords, MaturityDate, DatedDate, CouponRate, IssuerName}, tm.Tags())

	cusip := tm.Assigned(CUSIP)
	require.Len(t, cusip, 1)
	assert.Equal(t, "{{ cusip }}", cusip[0].Text)
	assert.Equal(t, strings.Index(fullTemplate, "{{ cusip }}"), cusip[0].Offset)

	require.Len(t, tm.Unknown, 1)
	assert.Equal(t, "FOOTNOTE", tm.Unknown[0].Name)

	assert.True(t, Validate(tm).Complete)
	assert.NoError(t, Require(tm))

	again, err := Scan("renamed.txt", []byte(fullTemplate))
	require.NoError(t, err)
	assert.Equal(t, tm.TemplateID, again.TemplateID)
}

func TestScanBlankTemplate(t *testing.T) {
	src := "Bond No. ____  CUSIP _________\nOwner: __ (too short)\n"
	tm, err := Scan("blank.txt", []byte(src))
	require.NoError(t, err)
	assert.Empty(t, tm.Assignments)
	require.Len(t, tm.Candidates, 2)
	assert.Equal(t, "____", tm.Candidates[0].Text)

	c := Validate(tm)
	assert.False(t, c.Complete)
	assert.Equal(t, RequiredTags(), c.Missing)

	require.NoError(t, tm.AssignCandidate(BondNumber, 0))
	require.NoError(t, tm.AssignCandidate(CUSIP, 1))
	assert.Equal(t, []Tag{PrincipalAmount, PrincipalWords, MaturityDate, DatedDate, CouponRate}, Validate(tm).Missing)

	var inc *IncompleteError
	require.True(t, errors.As(Require(tm), &inc))
	assert.Len(t, inc.Missing, 5)
	assert.Contains(t, inc.Error(), "PRINCIPAL_AMOUNT")
}

func TestAssignRules(t *testing.T) {
	tm, err := Scan("t.txt", []byte("Pay to the order of Cede & Co. on the date Cede & Co. names"))
	require.NoError(t, err)

	require.NoError(t, tm.AssignText(RegisteredOwner, "Cede & Co.", 1))
	a := tm.Assigned(RegisteredOwner)
	require.Len(t, a, 1)
	assert.Equal(t, 43, a[0].Offset)

	assert.ErrorIs(t, tm.AssignText(RegisteredOwner, "Cede & Co.", 2), ErrNoMatch)
	assert.ErrorIs(t, tm.Assign(IssuerName, 45, 3), ErrInvalidSpan, "overlap")
	assert.ErrorIs(t, tm.Assign(IssuerName, 50, 100), ErrInvalidSpan, "out of range")
	assert.ErrorIs(t, tm.Assign(IssuerName, 0, 0), ErrInvalidSpan, "empty")
	assert.ErrorIs(t, tm.Assign("NOPE", 0, 3), ErrUnknownTag)

	require.NoError(t, tm.AssignText(RegisteredOwner, "Cede & Co.", 0))
	assert.Equal(t, 20, tm.Assignments[0].Offset, "assignments stay in offset order")

	require.NoError(t, tm.Unassign(43))
	assert.Len(t, tm.Assignments, 1)
	assert.ErrorIs(t, tm.Unassign(43), ErrNoMatch)
}

func TestAssignRejectsSplitRune(t *testing.T) {
	tm, err := Scan("t.txt", []byte("Año ___"))
	require.NoError(t, err)
	assert.ErrorIs(t, tm.Assign(BondTitle, 2, 1), ErrInvalidSpan)
	assert.NoError(t, tm.Assign(BondTitle, 1, 2))
}

func TestSpansStayInsideOneParagraph(t *testing.T) {
	tm, err := Scan("cert.para", []byte("No. {{BOND_NUMBER\n}} CUSIP {{CUSIP}}\nOwner:\tCede & Co."))
	require.NoError(t, err)
	assert.Equal(t, []Tag{CUSIP}, tm.Tags(), "placeholder broken by a paragraph is not a tag")

	assert.ErrorIs(t, tm.AssignText(RegisteredOwner, "Owner:\tCede", 0), ErrInvalidSpan)
	assert.ErrorIs(t, tm.AssignText(IssuerName, "BOND_NUMBER\n", 0), ErrInvalidSpan)
	assert.NoError(t, tm.AssignText(RegisteredOwner, "Cede & Co.", 0))

	// A plain text template keeps line breaks editable.
	plain, err := Scan("cert.txt", []byte("Owner:\tCede & Co."))
	require.NoError(t, err)
	assert.NoError(t, plain.AssignText(RegisteredOwner, "Owner:\tCede", 0))
}

func TestFinalizedIsImmutable(t *testing.T) {
	tm, err := Scan("t.txt", []byte("Bond ____ of ____"))
	require.NoError(t, err)
	require.NoError(t, tm.AssignCandidate(BondNumber, 0))
	tm.Finalize()

	assert.ErrorIs(t, tm.AssignCandidate(CUSIP, 1), ErrFinalized)
	assert.ErrorIs(t, tm.Assign(CUSIP, 13, 4), ErrFinalized)
	assert.ErrorIs(t, tm.Unassign(5), ErrFinalized)
	assert.Len(t, tm.Assignments, 1)
}

func TestBindRejectsTampering(t *testing.T) {
	data := []byte(fullTemplate)
	tm, err := Scan("cert.txt", data)
	require.NoError(t, err)

	bound, err := Bind(tm, "cert.txt", data)
	require.NoError(t, err)
	assert.Equal(t, tm.Assignments, bound.Assignments)

	_, err = Bind(tm, "cert.txt", append([]byte("x"), data...))
	assert.ErrorIs(t, err, ErrTemplateChanged)

	shifted := tm.Clone()
	shifted.Assignments[0].Offset++
	_, err = Bind(shifted, "cert.txt", data)
	var mal *MalformedError
	require.True(t, errors.As(err, &mal), "got %v", err)

	forged := tm.Clone()
	forged.Text = "something else"
	bound, err = Bind(forged, "cert.txt", data)
	require.NoError(t, err)
	assert.Equal(t, fullTemplate, bound.Text, "text is re-extracted, never trusted")

	_, err = Bind(nil, "cert.txt", data)
	assert.True(t, errors.As(err, &mal))

	overlap := tm.Clone()
	overlap.Assignments = append(overlap.Assignments, Assignment{Tag: Series, Offset: 9, Length: 4})
	assert.True(t, errors.As(Require(overlap), &mal))
}

func TestPreview(t *testing.T) {
	tm, err := Scan("t.txt", []byte("No. {{BOND_NUMBER}}\nOwner <b>____</b>"))
	require.NoError(t, err)
	got := tm.Preview()
	assert.Contains(t, got, `<mark data-tag="BOND_NUMBER" data-offset="4">{{BOND_NUMBER}}</mark><br>`)
	assert.Contains(t, got, `&lt;b&gt;<span class="blank" data-candidate="0">____</span>&lt;/b&gt;`)

	require.NoError(t, tm.AssignCandidate(RegisteredOwner, 0))
	assert.NotContains(t, tm.Preview(), `class="blank"`)
}
