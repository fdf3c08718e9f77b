// Package text implements the plain text, HTML and RTF template formats.
// For all three the extracted text is the raw file content, so tag
// offsets point straight into the source bytes. Values are escaped for
// the target markup when substituted. The formats register themselves
// with the formats registry on import.
package text

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/formats"
)

func init() {
	formats.Register(&converter{
		name:   "HTML document",
		exts:   []string{".html", ".htm"},
		match:  isHTML,
		escape: html.EscapeString,
	})
	formats.Register(&converter{
		name:   "Rich Text Format",
		exts:   []string{".rtf"},
		match:  isRTF,
		escape: escapeRTF,
	})
	formats.Register(&converter{
		name: "Plain text",
		exts: []string{".txt", ".text", ".md"},
	})
}

type converter struct {
	name   string
	exts   []string
	match  func([]byte) bool
	escape func(string) string
}

func (c *converter) Name() string {
	return c.name
}

func (c *converter) Extensions() []string {
	return c.exts
}

func (c *converter) Match(data []byte) bool {
	if c.match == nil {
		return false
	}
	return c.match(data)
}

func (c *converter) Text(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s template is not valid UTF-8", c.name)
	}
	return string(data), nil
}

func (c *converter) Fill(data []byte, reps []formats.Replacement) ([]byte, error) {
	text, err := c.Text(data)
	if err != nil {
		return nil, err
	}
	sorted, err := formats.SortReplacements(reps, len(text))
	if err != nil {
		return nil, err
	}
	return []byte(formats.Splice(text, sorted, c.escape)), nil
}

// isHTML sniffs a doctype or <html> root after optional BOM and whitespace.
func isHTML(data []byte) bool {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) > 64 {
		data = data[:64]
	}
	lower := bytes.ToLower(data)
	return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html"))
}

func isRTF(data []byte) bool {
	return bytes.HasPrefix(data, []byte(`{\rtf`))
}

// escapeRTF escapes RTF control characters and writes non-ASCII runes as
// \uN? escapes so values survive any code page.
func escapeRTF(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\\' || r == '{' || r == '}':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r > 0x7f:
			units := []rune{r}
			if r > 0xffff {
				hi, lo := utf16.EncodeRune(r)
				units = []rune{hi, lo}
			}
			for _, u := range units {
				n := int(u)
				if n > 0x7fff {
					n -= 0x10000 // RTF \u takes a signed 16-bit value
				}
				fmt.Fprintf(&b, `\u%d?`, n)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
