// Package formats defines the Format interface and a registry for
// pluggable certificate template formats. To add a new format, create a
// package that implements Format and calls Register from its init
// function. The registry auto-detects formats by content (magic bytes)
// first and falls back to file extension matching.
package formats

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupportedFormat is returned when no registered format accepts a file.
var ErrUnsupportedFormat = errors.New("unsupported template format")

// Replacement substitutes Value for the text span [Offset, Offset+Length)
// of a document's extracted text.
type Replacement struct {
	Offset int
	Length int
	Value  string
}

// End returns the exclusive end offset of the span.
func (r Replacement) End() int { return r.Offset + r.Length }

// Format handles detection, text extraction and substitution for one
// template document format. Offsets are byte offsets into the string
// returned by Text.
type Format interface {
	// Name returns a human-readable format name.
	Name() string

	// Extensions returns file extensions this format handles, including
	// the leading dot. The first entry names generated documents.
	Extensions() []string

	// Match returns true if data begins with recognized magic bytes.
	Match(data []byte) bool

	// Text extracts the document text that tags are positioned against.
	Text(data []byte) (string, error)

	// Fill returns a new document with every replacement applied. data is
	// never modified. Replacements must not overlap.
	Fill(data []byte, reps []Replacement) ([]byte, error)
}

// Bounded is implemented by formats whose text model holds characters that
// stand for document structure (paragraph ends, tabs) rather than editable
// text. No replacement may cover one of them.
type Bounded interface {
	Boundaries() string
}

// Boundaries returns the structural characters of the named format, or ""
// when every character of its text is editable.
func Boundaries(name string) string {
	f, err := Lookup(name)
	if err != nil {
		return ""
	}
	if b, ok := f.(Bounded); ok {
		return b.Boundaries()
	}
	return ""
}

var registry []Format

// Register adds a format to the global registry. Call this from an init
// function in your format package.
func Register(f Format) {
	registry = append(registry, f)
}

// Detect identifies the correct format for a file. It checks content
// (magic bytes) first, then falls back to extension matching.
func Detect(filename string, data []byte) Format {
	for _, f := range registry {
		if f.Match(data) {
			return f
		}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range registry {
		for _, e := range f.Extensions() {
			if ext == e {
				return f
			}
		}
	}
	return nil
}

// Lookup finds a registered format by name.
func Lookup(name string) (Format, error) {
	for _, f := range registry {
		if f.Name() == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// All returns every registered format.
func All() []Format {
	return registry
}

// SortReplacements orders replacements by offset and rejects overlapping
// or out-of-range spans against a text of length n.
func SortReplacements(reps []Replacement, n int) ([]Replacement, error) {
	out := make([]Replacement, len(reps))
	copy(out, reps)
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	for i, r := range out {
		if r.Offset < 0 || r.Length <= 0 || r.End() > n {
			return nil, fmt.Errorf("replacement [%d,%d) is outside the document text (%d bytes)", r.Offset, r.End(), n)
		}
		if i > 0 && r.Offset < out[i-1].End() {
			return nil, fmt.Errorf("replacements [%d,%d) and [%d,%d) overlap", out[i-1].Offset, out[i-1].End(), r.Offset, r.End())
		}
	}
	return out, nil
}

// Splice applies sorted, validated replacements to text.
func Splice(text string, reps []Replacement, escape func(string) string) string {
	var b strings.Builder
	last := 0
	for _, r := range reps {
		b.WriteString(text[last:r.Offset])
		if escape != nil {
			b.WriteString(escape(r.Value))
		} else {
			b.WriteString(r.Value)
		}
		last = r.End()
	}
	b.WriteString(text[last:])
	return b.String()
}

// SanitizeFilename replaces characters that are unsafe in file paths
// and strips control characters to prevent header injection.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1 // drop control characters
		}
		return r
	}, name)
	for _, c := range []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"} {
		name = strings.ReplaceAll(name, c, "_")
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		name = "unnamed"
	}
	return name
}
