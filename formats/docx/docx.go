// Package docx implements the WordprocessingML (.docx) template format.
// It is automatically registered with the formats registry on import.
//
// The text model is the concatenation of every <w:t> run in
// word/document.xml, with a newline after each paragraph and a tab for
// each <w:tab/>. Word often splits one visible word across several runs,
// so a tag span may cover more than one <w:t>; the value is written into
// the first run and the covered text is removed from the others. Run
// properties and every other part of the package are left untouched.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/formats"
)

// DocumentPart is the main document part inside the package.
const DocumentPart = "word/document.xml"

func init() {
	formats.Register(&converter{})
}

type converter struct{}

func (c *converter) Name() string {
	return "Word document (.docx)"
}

// Boundaries lists the virtual paragraph and tab characters of the text
// model.
func (c *converter) Boundaries() string {
	return "\n\t"
}

func (c *converter) Extensions() []string {
	return []string{".docx"}
}

// Match checks for a ZIP package that carries a Word document part.
func (c *converter) Match(data []byte) bool {
	if len(data) < 4 || data[0] != 0x50 || data[1] != 0x4B || data[2] != 0x03 || data[3] != 0x04 {
		return false
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if f.Name == DocumentPart {
			return true
		}
	}
	return false
}

func (c *converter) Text(data []byte) (string, error) {
	doc, err := readDocument(data)
	if err != nil {
		return "", err
	}
	return parse(doc).text, nil
}

func (c *converter) Fill(data []byte, reps []formats.Replacement) ([]byte, error) {
	doc, err := readDocument(data)
	if err != nil {
		return nil, err
	}
	m := parse(doc)
	sorted, err := formats.SortReplacements(reps, len(m.text))
	if err != nil {
		return nil, err
	}
	filled, err := m.apply(doc, sorted)
	if err != nil {
		return nil, err
	}
	return rewrite(data, filled)
}

// readDocument returns the raw bytes of word/document.xml.
func readDocument(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open docx package: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != DocumentPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", DocumentPart, err)
		}
		defer rc.Close()
		doc, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", DocumentPart, err)
		}
		return doc, nil
	}
	return nil, errors.New("docx package has no " + DocumentPart)
}

// rewrite copies the package, swapping in a new document part. Unchanged
// entries are copied raw, so their compressed bytes are identical.
func rewrite(data, document []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open docx package: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		if f.Name != DocumentPart {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("failed to copy %s: %w", f.Name, err)
			}
			continue
		}
		fh := f.FileHeader
		fh.Method = zip.Deflate
		w, err := zw.CreateHeader(&fh)
		if err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", DocumentPart, err)
		}
		if _, err := w.Write(document); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", DocumentPart, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize docx package: %w", err)
	}
	return buf.Bytes(), nil
}

// tokenRe finds text runs, tabs and paragraph ends in document order.
// Group 1 is the <w:t> opening tag, group 2 its escaped content. Empty
// self-closing runs (<w:t/>, <w:t xml:space="preserve"/>) carry no text and
// do not match.
var tokenRe = regexp.MustCompile(`(<w:t(?:\s(?:[^>]*[^/>])?)?>)([^<]*)</w:t>|<w:tab/>|</w:p>`)

// segment is a stretch of the text model. Virtual segments (tabs and
// paragraph breaks) have no editable XML behind them.
type segment struct {
	start, end int    // range in the text model
	raw        string // unescaped content
	virtual    bool

	openStart, openEnd int // <w:t ...> tag in the XML
	bodyStart, bodyEnd int // escaped content in the XML
}

type model struct {
	text     string
	segments []segment
}

func parse(doc []byte) model {
	var b strings.Builder
	var segs []segment
	for _, loc := range tokenRe.FindAllSubmatchIndex(doc, -1) {
		start := b.Len()
		switch {
		case loc[2] >= 0:
			raw := html.UnescapeString(string(doc[loc[4]:loc[5]]))
			b.WriteString(raw)
			segs = append(segs, segment{
				start: start, end: b.Len(), raw: raw,
				openStart: loc[2], openEnd: loc[3],
				bodyStart: loc[4], bodyEnd: loc[5],
			})
		case bytes.Equal(doc[loc[0]:loc[1]], []byte("<w:tab/>")):
			b.WriteByte('\t')
			segs = append(segs, segment{start: start, end: b.Len(), virtual: true})
		default:
			b.WriteByte('\n')
			segs = append(segs, segment{start: start, end: b.Len(), virtual: true})
		}
	}
	return model{text: b.String(), segments: segs}
}

// apply rewrites the document XML with the replacements. A replacement may
// span several runs but never a tab or paragraph break.
func (m model) apply(doc []byte, reps []formats.Replacement) ([]byte, error) {
	edited := make(map[int]string)
	for _, r := range reps {
		first := true
		for i, s := range m.segments {
			if s.end <= r.Offset || s.start >= r.End() {
				continue
			}
			if s.virtual {
				return nil, fmt.Errorf("tag at offset %d crosses a paragraph or tab boundary", r.Offset)
			}
			cur, ok := edited[i]
			if !ok {
				cur = s.raw
			}
			// Offsets within cur stay valid: replacements are sorted and
			// earlier edits to this run end at or before r.Offset, but they
			// may have changed its length, so measure from the run's end.
			tailLen := s.end - min(r.End(), s.end)
			localStart := len(cur) - (s.end - max(r.Offset, s.start))
			localEnd := len(cur) - tailLen
			insert := ""
			if first {
				insert = r.Value
				first = false
			}
			edited[i] = cur[:localStart] + insert + cur[localEnd:]
		}
	}

	var out bytes.Buffer
	last := 0
	for i, s := range m.segments {
		content, ok := edited[i]
		if !ok {
			continue
		}
		out.Write(doc[last:s.openStart])
		out.WriteString(openTag(string(doc[s.openStart:s.openEnd]), content))
		if err := xml.EscapeText(&out, []byte(content)); err != nil {
			return nil, err
		}
		last = s.bodyEnd
	}
	out.Write(doc[last:])
	return out.Bytes(), nil
}

// openTag makes sure runs with edge whitespace keep it when Word loads the
// document.
func openTag(tag, content string) string {
	if strings.Contains(tag, "xml:space=") || strings.TrimSpace(content) == content {
		return tag
	}
	return strings.TrimSuffix(tag, ">") + ` xml:space="preserve">`
}
