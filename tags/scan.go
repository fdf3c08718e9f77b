package tags

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/formats"
)

// ErrTemplateChanged is returned when template bytes no longer match the
// hash recorded in a TagMap.
var ErrTemplateChanged = errors.New("template does not match tag map")

var (
	placeholderRe = regexp.MustCompile(`\{\{ *([A-Za-z][A-Za-z0-9_ \-]*?) *\}\}`)
	blankRe       = regexp.MustCompile(`_{3,}`)
)

// Scan detects the template format, extracts its text and records every
// placeholder. {{TAG}} placeholders with vocabulary names become
// assignments; other {{...}} names are listed as unknown. Runs of three or
// more underscores outside any placeholder become candidate blanks.
func Scan(filename string, data []byte) (*TagMap, error) {
	f := formats.Detect(filename, data)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", formats.ErrUnsupportedFormat, filename)
	}
	text, err := f.Text(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", filename, err)
	}

	hash := Hash(data)
	tm := &TagMap{
		TemplateID: TemplateID(hash),
		Filename:   filename,
		Size:       int64(len(data)),
		Hash:       hash,
		Format:     f.Name(),
		Text:       text,
	}

	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[loc[2]:loc[3]]
		if tag, ok := Parse(name); ok {
			tm.Assignments = append(tm.Assignments, Assignment{
				Tag:    tag,
				Offset: loc[0],
				Length: loc[1] - loc[0],
				Text:   text[loc[0]:loc[1]],
			})
			continue
		}
		tm.Unknown = append(tm.Unknown, Placeholder{Name: name, Offset: loc[0], Length: loc[1] - loc[0]})
	}

	for _, loc := range blankRe.FindAllStringIndex(text, -1) {
		if tm.checkSpan(loc[0], loc[1]-loc[0], -1) != nil {
			continue
		}
		if insidePlaceholder(tm.Unknown, loc[0]) {
			continue
		}
		tm.Candidates = append(tm.Candidates, Span{Offset: loc[0], Length: loc[1] - loc[0], Text: text[loc[0]:loc[1]]})
	}
	return tm, nil
}

func insidePlaceholder(ps []Placeholder, offset int) bool {
	for _, p := range ps {
		if offset >= p.Offset && offset < p.Offset+p.Length {
			return true
		}
	}
	return false
}

// Hash returns the hex SHA-256 of template bytes.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var templateNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("bondgen:template"))

// TemplateID derives a stable identifier from a template hash, so the same
// file scanned twice gets the same ID.
func TemplateID(hash string) uuid.UUID {
	return uuid.NewSHA1(templateNamespace, []byte(hash))
}

// VerifyTemplate reports whether data is the template tm was built from.
func VerifyTemplate(tm *TagMap, data []byte) error {
	if tm.Size != int64(len(data)) || tm.Hash != Hash(data) {
		return fmt.Errorf("%w: %s", ErrTemplateChanged, tm.Filename)
	}
	return nil
}

// Bind checks a TagMap received from outside (a draft or a client upload)
// against the template bytes and returns a copy whose text is re-extracted
// from data. Assignments are checked against the fresh text, so a payload
// edited out of band is rejected rather than trusted.
func Bind(tm *TagMap, filename string, data []byte) (*TagMap, error) {
	if tm == nil {
		return nil, &MalformedError{Reason: "no tag map supplied"}
	}
	if err := VerifyTemplate(tm, data); err != nil {
		return nil, err
	}

	f := formats.Detect(filename, data)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", formats.ErrUnsupportedFormat, filename)
	}
	if tm.Format != "" && tm.Format != f.Name() {
		return nil, &MalformedError{Reason: fmt.Sprintf("tag map format %q does not match template format %q", tm.Format, f.Name())}
	}
	text, err := f.Text(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", filename, err)
	}

	out := tm.Clone()
	out.Text = text
	out.Format = f.Name()
	out.TemplateID = TemplateID(tm.Hash)
	if err := Check(out); err != nil {
		return nil, err
	}
	return out, nil
}
