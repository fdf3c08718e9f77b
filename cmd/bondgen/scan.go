package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/tags"
)

var scanCmd = &cobra.Command{
	Use:   "scan <template>",
	Short: "Find tags in a template and build a tag map",
	Long: `Scan lists the {{TAG}} placeholders and blank lines found in a template
and reports which required tags are still missing.

Templates without placeholders can be tagged from the command line:
--assign TAG=text tags the first occurrence of text (TAG=text@2 the third),
--blank TAG=N tags candidate blank N. Save the result with -o and pass it
to 'bondgen assemble --tagmap'.`,
	Example: `  bondgen scan cert.docx
  bondgen scan cert.docx --assign "CUSIP=XXXXXXXXX" --blank BOND_NUMBER=0 -o cert.tags.json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.Bool("json", false, "print the tag map as JSON")
	f.StringP("output", "o", "", "write the tag map JSON to this file")
	f.String("tagmap", "", "start from a saved tag map instead of the template's placeholders")
	f.StringArray("assign", nil, "TAG=text[@occurrence] assignment (repeatable)")
	f.StringArray("blank", nil, "TAG=index candidate blank assignment (repeatable)")
}

func runScan(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	out := cmd.OutOrStdout()

	tmpl, err := readUpload(args[0])
	if err != nil {
		return err
	}
	tmPath, _ := f.GetString("tagmap")
	saved, err := loadTagMap(tmPath)
	if err != nil {
		return err
	}
	var tm *tags.TagMap
	if saved != nil {
		tm, err = tags.Bind(saved, tmpl.Name, tmpl.Data)
	} else {
		tm, err = tags.Scan(tmpl.Name, tmpl.Data)
	}
	if err != nil {
		return err
	}

	assigns, _ := f.GetStringArray("assign")
	for _, a := range assigns {
		tag, text, n, err := parseAssign(a)
		if err != nil {
			return err
		}
		if err := tm.AssignText(tag, text, n); err != nil {
			return fmt.Errorf("--assign %s: %w", a, err)
		}
	}
	blanks, _ := f.GetStringArray("blank")
	for _, b := range blanks {
		tag, idx, err := parseBlank(b)
		if err != nil {
			return err
		}
		if err := tm.AssignCandidate(tag, idx); err != nil {
			return fmt.Errorf("--blank %s: %w", b, err)
		}
	}

	data, err := json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return err
	}
	if asJSON, _ := f.GetBool("json"); asJSON {
		fmt.Fprintln(out, string(data))
	} else {
		printTagMap(out, tm)
	}
	if output, _ := f.GetString("output"); output != "" {
		if _, err := writeFile(out, filepath.Dir(output), filepath.Base(output), append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func printTagMap(w io.Writer, tm *tags.TagMap) {
	fmt.Fprintln(w, styles.Title.Render(tm.Filename))
	fmt.Fprintf(w, "Format:      %s (%s)\n", tm.Format, humanSize(int(tm.Size)))
	fmt.Fprintf(w, "Template ID: %s\n", tm.TemplateID)

	rows := make([][]string, len(tm.Assignments))
	for i, a := range tm.Assignments {
		rows[i] = []string{string(a.Tag), strconv.Itoa(a.Offset), strconv.Quote(a.Text)}
	}
	fmt.Fprintln(w, grid([]string{"Tag", "Offset", "Text"}, rows))

	if len(tm.Candidates) > 0 {
		rows = make([][]string, len(tm.Candidates))
		for i, c := range tm.Candidates {
			rows[i] = []string{strconv.Itoa(i), strconv.Itoa(c.Offset), around(tm.Text, c.Offset, c.Length)}
		}
		fmt.Fprintln(w, styles.Muted.Render("Candidate blanks (assign with --blank TAG=N):"))
		fmt.Fprintln(w, grid([]string{"N", "Offset", "Context"}, rows))
	}
	for _, u := range tm.Unknown {
		fmt.Fprintln(w, styles.Warning.Render("Unknown placeholder: ")+u.Name)
	}

	c := tags.Validate(tm)
	if c.Complete {
		fmt.Fprintln(w, styles.Success.Render("All required tags assigned"))
		return
	}
	names := make([]string, len(c.Missing))
	for i, t := range c.Missing {
		names[i] = string(t)
	}
	fmt.Fprintln(w, styles.Error.Render("Missing required tags: ")+strings.Join(names, ", "))
}

// around returns the blank with up to 20 bytes of text on each side,
// on one line.
func around(text string, offset, length int) string {
	start, end := offset-20, offset+length+20
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	s := strings.ToValidUTF8(text[start:end], "")
	return strings.Join(strings.Fields(s), " ")
}

// parseAssign reads TAG=text[@n].
func parseAssign(s string) (tags.Tag, string, int, error) {
	name, text, ok := strings.Cut(s, "=")
	if !ok || text == "" {
		return "", "", 0, fmt.Errorf("--assign %q: want TAG=text", s)
	}
	tag, known := tags.Parse(name)
	if !known {
		return "", "", 0, fmt.Errorf("--assign %q: %w", s, tags.ErrUnknownTag)
	}
	n := 0
	if i := strings.LastIndex(text, "@"); i > 0 {
		if v, err := strconv.Atoi(text[i+1:]); err == nil && v >= 0 {
			text, n = text[:i], v
		}
	}
	return tag, text, n, nil
}

// parseBlank reads TAG=index.
func parseBlank(s string) (tags.Tag, int, error) {
	name, idx, ok := strings.Cut(s, "=")
	if !ok {
		return "", 0, fmt.Errorf("--blank %q: want TAG=index", s)
	}
	tag, known := tags.Parse(name)
	if !known {
		return "", 0, fmt.Errorf("--blank %q: %w", s, tags.ErrUnknownTag)
	}
	n, err := strconv.Atoi(idx)
	if err != nil {
		return "", 0, fmt.Errorf("--blank %q: invalid index", s)
	}
	return tag, n, nil
}
