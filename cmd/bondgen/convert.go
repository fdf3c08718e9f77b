package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/parsers/tabular"
)

var convertCmd = &cobra.Command{
	Use:   "convert <input> <output.csv|output.xlsx>",
	Short: "Convert a schedule between .xlsx and .csv",
	Long: `Convert normalizes a schedule the same way assembly reads it: leading
blank rows are skipped, the first non-blank row is the header and blank
rows are dropped. Dates and amounts keep the text the spreadsheet shows.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := readUpload(args[0])
		if err != nil {
			return err
		}
		t, err := tabular.Read(in.Data, in.Name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", in.Name, err)
		}

		var data []byte
		switch ext := strings.ToLower(filepath.Ext(args[1])); ext {
		case ".csv":
			data, err = t.ToCSV()
		case ".xlsx":
			data, err = t.ToXLSX()
		default:
			return fmt.Errorf("unsupported output type %q: use .csv or .xlsx", ext)
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d rows from %s\n", in.Name, len(t.Rows), t.Source)
		_, err = writeFile(out, filepath.Dir(args[1]), filepath.Base(args[1]), data)
		return err
	},
}
