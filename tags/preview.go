package tags

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// Preview renders the template text as HTML with assigned tags wrapped in
// <mark data-tag> and unassigned candidate blanks in <span class="blank">.
// The markup is what the upload page shows when a draft is resumed.
func (tm *TagMap) Preview() string {
	type mark struct {
		start, end int
		open       string
		close      string
	}
	var marks []mark
	for _, a := range tm.Assignments {
		marks = append(marks, mark{a.Offset, a.End(),
			fmt.Sprintf(`<mark data-tag="%s" data-offset="%d">`, html.EscapeString(string(a.Tag)), a.Offset), "</mark>"})
	}
	for i, c := range tm.Candidates {
		if tm.checkSpan(c.Offset, c.Length, -1) != nil {
			continue // now covered by an assignment
		}
		marks = append(marks, mark{c.Offset, c.Offset + c.Length,
			fmt.Sprintf(`<span class="blank" data-candidate="%d">`, i), "</span>"})
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].start < marks[j].start })

	var b strings.Builder
	b.WriteString(`<div class="template-preview">`)
	last := 0
	for _, m := range marks {
		if m.start < last || m.end > len(tm.Text) {
			continue
		}
		writeText(&b, tm.Text[last:m.start])
		b.WriteString(m.open)
		writeText(&b, tm.Text[m.start:m.end])
		b.WriteString(m.close)
		last = m.end
	}
	writeText(&b, tm.Text[last:])
	b.WriteString(`</div>`)
	return b.String()
}

func writeText(b *strings.Builder, s string) {
	b.WriteString(strings.ReplaceAll(html.EscapeString(s), "\n", "<br>\n"))
}
