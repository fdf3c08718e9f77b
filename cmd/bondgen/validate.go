package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/bond"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/parsers/schedule"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the maturity and CUSIP schedules and how they join",
	Example: `  bondgen validate --maturity maturity.xlsx --cusip cusips.csv
  bondgen validate --maturity m.csv --cusip c.csv --report errors.xlsx`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	f := validateCmd.Flags()
	f.String("maturity", "", "maturity schedule (.xlsx or .csv)")
	f.String("cusip", "", "CUSIP schedule (.xlsx or .csv)")
	f.String("report", "", "write invalid rows to this .xlsx file")
	_ = validateCmd.MarkFlagRequired("maturity")
	_ = validateCmd.MarkFlagRequired("cusip")
}

func runValidate(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	out := cmd.OutOrStdout()

	matPath, _ := f.GetString("maturity")
	cusPath, _ := f.GetString("cusip")
	mf, err := readUpload(matPath)
	if err != nil {
		return err
	}
	cf, err := readUpload(cusPath)
	if err != nil {
		return err
	}
	mat, err := schedule.ParseMaturity(mf.Data, mf.Name)
	if err != nil {
		return err
	}
	cus, err := schedule.ParseCusip(cf.Data, cf.Name)
	if err != nil {
		return err
	}

	summarize(out, "Maturity schedule", mf.Name, mat.Summary, mat.Invalid)
	summarize(out, "CUSIP schedule", cf.Name, cus.Summary, cus.Invalid)

	res, err := bond.Join(mat.Valid, cus.Valid)
	if err != nil {
		return err
	}
	if res.Complete() {
		fmt.Fprintln(out, styles.Success.Render(fmt.Sprintf("Join: %d bonds, every row paired", len(res.Joined))))
	} else {
		fmt.Fprintln(out, styles.Error.Render(res.Err().Error()))
	}

	if report, _ := f.GetString("report"); report != "" {
		data, err := schedule.WriteReport(mat.Invalid, cus.Invalid)
		if err != nil {
			return err
		}
		if _, err := writeFile(out, filepath.Dir(report), filepath.Base(report), data); err != nil {
			return err
		}
	}

	if mat.Summary.Invalid > 0 || cus.Summary.Invalid > 0 || !res.Complete() {
		return fmt.Errorf("schedules are not ready for assembly")
	}
	return nil
}

func summarize(w io.Writer, title, name string, s schedule.Summary, invalid []schedule.RowError) {
	fmt.Fprintf(w, "%s %s\n", styles.Title.Render(title), styles.Muted.Render(name))
	fmt.Fprintf(w, "  %d rows, %d valid, %d invalid\n", s.Total, s.Valid, s.Invalid)
	if len(invalid) == 0 {
		return
	}
	rows := make([][]string, len(invalid))
	for i, e := range invalid {
		rows[i] = []string{strconv.Itoa(e.Row), e.Field, e.Reason}
	}
	fmt.Fprintln(w, grid([]string{"Row", "Field", "Reason"}, rows))
}
