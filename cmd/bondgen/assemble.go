package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/assembly"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/bond"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/fill"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Generate one certificate per bond and package them as a zip",
	Example: `  bondgen assemble --template cert.docx --maturity maturity.xlsx --cusip cusips.csv
  bondgen assemble --template cert.docx --maturity m.csv --cusip c.csv --prefix 2025A- --start 1 -o out.zip`,
	Args: cobra.NoArgs,
	RunE: runAssemble,
}

func init() {
	f := assembleCmd.Flags()
	f.String("template", "", "certificate template (.docx, .html, .rtf, .txt)")
	f.String("maturity", "", "maturity schedule (.xlsx or .csv)")
	f.String("cusip", "", "CUSIP schedule (.xlsx or .csv)")
	f.String("tagmap", "", "tag map JSON from 'bondgen scan --json'")
	f.String("metadata", "", "YAML file with run metadata and numbering")
	f.Int("start", 0, "first bond number (default from config)")
	f.String("prefix", "", "bond label prefix (default from config)")
	f.Bool("acknowledge", false, "continue when schedules contain invalid rows")
	f.StringP("output", "o", "", "output zip path (default <template>-certificates.zip)")
	for _, name := range []string{"template", "maturity", "cusip"} {
		_ = assembleCmd.MarkFlagRequired(name)
	}
}

func runAssemble(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	out := cmd.OutOrStdout()

	req := assembly.Request{}
	var err error
	for _, in := range []struct {
		flag string
		dst  *assembly.Upload
	}{
		{"template", &req.Template},
		{"maturity", &req.Maturity},
		{"cusip", &req.Cusip},
	} {
		path, _ := f.GetString(in.flag)
		if *in.dst, err = readUpload(path); err != nil {
			return err
		}
	}

	tmPath, _ := f.GetString("tagmap")
	if req.TagMap, err = loadTagMap(tmPath); err != nil {
		return err
	}
	metaPath, _ := f.GetString("metadata")
	rf, err := loadRunFile(metaPath)
	if err != nil {
		return err
	}
	req.Metadata = rf.Metadata
	req.AcknowledgeInvalidRows, _ = f.GetBool("acknowledge")

	var numbering bond.NumberingConfig
	if f.Changed("start") {
		numbering.StartingNumber, _ = f.GetInt("start")
	}
	if f.Changed("prefix") {
		prefix, _ := f.GetString("prefix")
		numbering.Prefix = &prefix
	}
	if rf.Numbering != nil {
		numbering = numbering.Or(*rf.Numbering)
	}
	req.Numbering = numbering.Or(defaultNumbering())

	res, err := assembly.New(log, cfg.Assembly.Workers).Run(cmd.Context(), req)
	if err != nil {
		explain(out, err)
		return err
	}

	printBonds(out, res.Bonds)
	printOrphans(out, res.Orphaned)

	output, _ := f.GetString("output")
	if output == "" {
		_, err = writeFile(out, ".", res.Filename, res.Archive)
		return err
	}
	_, err = writeFile(out, filepath.Dir(output), filepath.Base(output), res.Archive)
	return err
}

// printBonds lists the certificates in the archive.
func printBonds(w io.Writer, bonds []bond.JoinedBond) {
	rows := make([][]string, len(bonds))
	for i, b := range bonds {
		rows[i] = []string{
			b.Label,
			b.CUSIP,
			b.MaturityDate.Format(fill.DisplayDate),
			fill.FormatPrincipal(b.Principal),
			fill.FormatRate(b.Rate),
			b.Series,
		}
	}
	fmt.Fprintln(w, grid([]string{"Bond", "CUSIP", "Maturity", "Principal", "Rate", "Series"}, rows))
	fmt.Fprintln(w, styles.Success.Render(fmt.Sprintf("%d certificates generated", len(bonds))))
}

// printOrphans lists valid rows left out with their invalid partners.
func printOrphans(w io.Writer, o bond.Orphans) {
	if o.Count() == 0 {
		return
	}
	var rows [][]string
	for _, m := range o.Maturity {
		rows = append(rows, []string{"maturity", fmt.Sprint(m.Row), bond.KeyOf(m.MaturityDate, m.Series).String(), ""})
	}
	for _, c := range o.Cusip {
		rows = append(rows, []string{"cusip", fmt.Sprint(c.Row), bond.KeyOf(c.MaturityDate, c.Series).String(), c.CUSIP})
	}
	fmt.Fprintln(w, styles.Warning.Render(fmt.Sprintf("%d rows left out because their partner row is invalid:", o.Count())))
	fmt.Fprintln(w, grid([]string{"Schedule", "Row", "Key", "CUSIP"}, rows))
}

// explain prints the details of a refused run.
func explain(w io.Writer, err error) {
	var ve *assembly.ValidationError
	if !errors.As(err, &ve) {
		return
	}
	fmt.Fprintln(w, styles.Error.Render("Assembly stopped at stage "+string(ve.Stage)))
	var ue *assembly.UnacknowledgedError
	if errors.As(err, &ue) {
		fmt.Fprintln(w, styles.Muted.Render("Run 'bondgen validate' to list the rows, or pass --acknowledge to use only the valid rows."))
	}
	var je *bond.JoinError
	if errors.As(err, &je) {
		var rows [][]string
		for _, m := range je.UnmatchedMaturity {
			rows = append(rows, []string{"maturity", fmt.Sprint(m.Row), bond.KeyOf(m.MaturityDate, m.Series).String(), "no CUSIP"})
		}
		for _, c := range je.UnmatchedCusip {
			rows = append(rows, []string{"cusip", fmt.Sprint(c.Row), bond.KeyOf(c.MaturityDate, c.Series).String(), "no maturity"})
		}
		for _, a := range je.Ambiguous {
			rows = append(rows, []string{"both", "", a.Key.String(), fmt.Sprintf("%d maturity / %d CUSIP rows", len(a.Maturity), len(a.Cusip))})
		}
		for _, d := range je.DuplicateCUSIP {
			for _, c := range d.Rows {
				rows = append(rows, []string{"cusip", fmt.Sprint(c.Row), bond.KeyOf(c.MaturityDate, c.Series).String(), "duplicate CUSIP " + d.CUSIP})
			}
		}
		fmt.Fprintln(w, grid([]string{"Schedule", "Row", "Key", "Problem"}, rows))
	}
}
