// Package archive packages filled certificates into a single zip with a
// manifest. Identical input always produces byte-identical output.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/bond"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/formats"
)

// ManifestName is the manifest member name inside the archive.
const ManifestName = "manifest.json"

var (
	ErrNoDocuments     = errors.New("no documents to package")
	ErrMissingDocument = errors.New("document is missing or empty")
	ErrDuplicateName   = errors.New("duplicate archive member name")
)

// epoch is the member timestamp when no dated date is known. Zip cannot
// represent times before 1980.
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Entry is one filled certificate.
type Entry struct {
	Bond bond.JoinedBond
	Data []byte
}

// ManifestEntry describes one archive member.
type ManifestEntry struct {
	Sequence     int    `json:"sequence"`
	Label        string `json:"label"`
	CUSIP        string `json:"cusip"`
	MaturityDate string `json:"maturity_date"`
	Principal    int64  `json:"principal"`
	Rate         string `json:"rate"`
	Series       string `json:"series,omitempty"`
	File         string `json:"file"`
}

// Manifest summarises the archive contents.
type Manifest struct {
	Count        int             `json:"count"`
	DatedDate    string          `json:"dated_date,omitempty"`
	Series       []string        `json:"series"`
	TemplateHash string          `json:"template_hash,omitempty"`
	Bonds        []ManifestEntry `json:"bonds"`
}

// Options control member naming and metadata.
type Options struct {
	// Ext is appended to each member name, e.g. ".docx".
	Ext          string
	TemplateHash string
	DatedDate    time.Time
}

// MemberName returns the archive member name for a bond label.
func MemberName(label, ext string) string {
	return formats.SanitizeFilename(label) + ext
}

// Build writes every entry, in the given order, followed by the manifest.
// Any empty document or name collision fails the whole archive.
func Build(entries []Entry, opts Options) ([]byte, *Manifest, error) {
	if len(entries) == 0 {
		return nil, nil, ErrNoDocuments
	}

	m := &Manifest{
		Count:        len(entries),
		Series:       []string{},
		TemplateHash: opts.TemplateHash,
	}
	if !opts.DatedDate.IsZero() {
		m.DatedDate = opts.DatedDate.Format(bond.DateLayout)
	}

	names := map[string]bool{ManifestName: true}
	series := make(map[string]bool)
	for _, e := range entries {
		b := e.Bond
		if len(e.Data) == 0 {
			return nil, nil, fmt.Errorf("%w: bond %s", ErrMissingDocument, b.Label)
		}
		name := MemberName(b.Label, opts.Ext)
		if names[name] {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		names[name] = true
		if b.Series != "" && !series[b.Series] {
			series[b.Series] = true
			m.Series = append(m.Series, b.Series)
		}
		m.Bonds = append(m.Bonds, ManifestEntry{
			Sequence:     b.Sequence,
			Label:        b.Label,
			CUSIP:        b.CUSIP,
			MaturityDate: b.MaturityDate.Format(bond.DateLayout),
			Principal:    b.Principal,
			Rate:         b.Rate.String(),
			Series:       b.Series,
			File:         name,
		})
	}
	sort.Strings(m.Series)

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	modified := epoch
	if opts.DatedDate.After(epoch) {
		modified = opts.DatedDate
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		return nil
	}
	for i, e := range entries {
		if err := write(m.Bonds[i].File, e.Data); err != nil {
			return nil, nil, err
		}
	}
	if err := write(ManifestName, manifest); err != nil {
		return nil, nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), m, nil
}
