// Package assembly runs the certificate pipeline end to end: template
// gate, schedule parsing, join, numbering, filling and packaging. Every
// gate must pass before any document is produced.
package assembly

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/archive"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/bond"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/fill"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/formats"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/parsers/schedule"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/tags"
)

// Upload is a named input file.
type Upload struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Request carries everything one run needs. TagMap may be nil, in which
// case the template's own {{TAG}} placeholders are used.
type Request struct {
	Template  Upload
	Maturity  Upload
	Cusip     Upload
	TagMap    *tags.TagMap
	Numbering bond.NumberingConfig
	Metadata  fill.Metadata
	// AcknowledgeInvalidRows confirms that invalid schedule rows may be
	// left out. Without it any invalid row stops the run.
	AcknowledgeInvalidRows bool
}

// Result is a finished run.
type Result struct {
	Filename string            `json:"filename"`
	Archive  []byte            `json:"-"`
	Manifest *archive.Manifest `json:"manifest"`
	Bonds    []bond.JoinedBond `json:"bonds"`
	// Orphaned lists valid rows left out because their partner row was
	// invalid and the run was acknowledged.
	Orphaned bond.Orphans `json:"orphaned"`
}

// Assembler runs requests. It holds no per-run state and is safe for
// concurrent use.
type Assembler struct {
	log     *zap.Logger
	workers int
}

// New returns an Assembler. A nil logger disables logging; workers <= 0
// fills with one goroutine per CPU.
func New(log *zap.Logger, workers int) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{log: log, workers: workers}
}

// Run executes the pipeline. On any error no archive is returned; the
// error is a *ValidationError naming the failed stage.
func (a *Assembler) Run(ctx context.Context, req Request) (*Result, error) {
	log := a.log.With(zap.String("template", req.Template.Name))

	tm, err := templateMap(req)
	if err != nil {
		return nil, fail(StageTemplate, err)
	}
	if err := tags.Require(tm); err != nil {
		return nil, fail(StageTemplate, err)
	}
	tm.Finalize()
	log.Debug("template accepted", zap.String("format", tm.Format), zap.Int("assignments", len(tm.Assignments)))

	if err := req.Numbering.Validate(); err != nil {
		return nil, fail(StageNumbering, err)
	}

	mat, err := schedule.ParseMaturity(req.Maturity.Data, req.Maturity.Name)
	if err != nil {
		return nil, fail(StageMaturity, err)
	}
	cus, err := schedule.ParseCusip(req.Cusip.Data, req.Cusip.Name)
	if err != nil {
		return nil, fail(StageCusip, err)
	}
	log.Debug("schedules parsed",
		zap.Int("maturity_valid", mat.Summary.Valid), zap.Int("maturity_invalid", mat.Summary.Invalid),
		zap.Int("cusip_valid", cus.Summary.Valid), zap.Int("cusip_invalid", cus.Summary.Invalid))

	if err := acknowledge(mat, cus, req.AcknowledgeInvalidRows); err != nil {
		return nil, fail(StageAcknowledgment, err)
	}

	joined, orphans, err := join(mat, cus, req.AcknowledgeInvalidRows)
	if err != nil {
		return nil, fail(StageJoin, err)
	}
	if n := orphans.Count(); n > 0 {
		log.Warn("rows left out with their invalid partners", zap.Int("orphaned", n))
	}

	dated, err := resolveDatedDate(joined, req.Metadata)
	if err != nil {
		return nil, fail(StageDatedDate, err)
	}
	for i := range joined {
		joined[i].DatedDate = dated
	}

	if err := checkMetadata(tm, joined, req.Metadata); err != nil {
		return nil, fail(StageMetadata, err)
	}

	numbered, err := bond.AssignNumbers(joined, req.Numbering)
	if err != nil {
		return nil, fail(StageNumbering, err)
	}

	docs, err := fill.All(ctx, req.Template.Data, tm, numbered, req.Metadata, a.workers)
	if err != nil {
		return nil, fail(StageFill, err)
	}

	entries := make([]archive.Entry, len(numbered))
	for i, b := range numbered {
		entries[i] = archive.Entry{Bond: b, Data: docs[i]}
	}
	data, manifest, err := archive.Build(entries, archive.Options{
		Ext:          extension(req.Template.Name, tm.Format),
		TemplateHash: tm.Hash,
		DatedDate:    dated,
	})
	if err != nil {
		return nil, fail(StagePackage, err)
	}

	log.Info("assembly complete",
		zap.Int("bonds", len(numbered)),
		zap.String("dated_date", manifest.DatedDate),
		zap.Int("archive_bytes", len(data)))

	return &Result{
		Filename: ArchiveName(req.Template.Name),
		Archive:  data,
		Manifest: manifest,
		Bonds:    numbered,
		Orphaned: orphans,
	}, nil
}

// ArchiveName derives the download name from the template name.
func ArchiveName(template string) string {
	base := strings.TrimSuffix(filepath.Base(template), filepath.Ext(template))
	if base == "" || base == "." {
		base = "bonds"
	}
	return formats.SanitizeFilename(base) + "-certificates.zip"
}

// templateMap scans the template, or binds a caller-supplied map to it.
func templateMap(req Request) (*tags.TagMap, error) {
	if len(req.Template.Data) == 0 {
		return nil, fmt.Errorf("%w: template is empty", formats.ErrUnsupportedFormat)
	}
	if req.TagMap == nil {
		return tags.Scan(req.Template.Name, req.Template.Data)
	}
	return tags.Bind(req.TagMap, req.Template.Name, req.Template.Data)
}

func acknowledge(mat *schedule.MaturityResult, cus *schedule.CusipResult, ok bool) error {
	if ok || (mat.Summary.Invalid == 0 && cus.Summary.Invalid == 0) {
		return nil
	}
	return &UnacknowledgedError{MaturityInvalid: mat.Summary.Invalid, CusipInvalid: cus.Summary.Invalid}
}

// join pairs the valid rows. When invalid rows were acknowledged, rows
// orphaned by them are set aside instead of failing the join.
func join(mat *schedule.MaturityResult, cus *schedule.CusipResult, acknowledged bool) ([]bond.JoinedBond, bond.Orphans, error) {
	res, err := bond.Join(mat.Valid, cus.Valid)
	if err != nil {
		return nil, bond.Orphans{}, err
	}
	var orphans bond.Orphans
	if acknowledged {
		orphans = res.Excuse(mat.Invalid, cus.Invalid)
	}
	if err := res.Err(); err != nil {
		return nil, orphans, err
	}
	if len(res.Joined) == 0 {
		return nil, orphans, ErrNoBonds
	}
	return res.Joined, orphans, nil
}

// resolveDatedDate finds the single dated date of the run. Rows with a
// blank dated date take the common value; metadata supplies it when the
// schedule has none and must agree when both are present.
func resolveDatedDate(bonds []bond.JoinedBond, meta fill.Metadata) (time.Time, error) {
	seen := make(map[string]time.Time)
	for _, b := range bonds {
		if !b.DatedDate.IsZero() {
			seen[b.DatedDate.Format(bond.DateLayout)] = b.DatedDate
		}
	}

	if strings.TrimSpace(meta.DatedDate) != "" {
		d, err := schedule.ParseDate(meta.DatedDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("metadata dated date %q: %w", meta.DatedDate, err)
		}
		seen[d.Format(bond.DateLayout)] = d
	}

	switch len(seen) {
	case 0:
		return time.Time{}, ErrNoDatedDate
	case 1:
		for _, d := range seen {
			return d, nil
		}
	}
	dates := make([]string, 0, len(seen))
	for k := range seen {
		dates = append(dates, k)
	}
	sort.Strings(dates)
	return time.Time{}, &DatedDateError{Dates: dates}
}

// checkMetadata requires a value for every assigned tag that is not taken
// from the schedules.
func checkMetadata(tm *tags.TagMap, bonds []bond.JoinedBond, meta fill.Metadata) error {
	var missing []tags.Tag
	for _, t := range tm.Tags() {
		if v, ok := meta.Field(t); ok && strings.TrimSpace(v) == "" {
			missing = append(missing, t)
		}
		if t == tags.Series {
			for _, b := range bonds {
				if b.Series == "" {
					missing = append(missing, t)
					break
				}
			}
		}
	}
	if len(missing) > 0 {
		return &MetadataError{Missing: missing}
	}
	return nil
}

// extension keeps the template's own extension when the format accepts it.
func extension(name, format string) string {
	ext := strings.ToLower(filepath.Ext(name))
	f, err := formats.Lookup(format)
	if err != nil {
		return ext
	}
	for _, e := range f.Extensions() {
		if e == ext {
			return ext
		}
	}
	return f.Extensions()[0]
}
