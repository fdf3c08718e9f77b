package assembly

import (
	"errors"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/bond"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/parsers/schedule"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/tags"
)

// Problem is one reason a run would be refused.
type Problem struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// Report is what Preflight found. It lists every problem at once instead
// of stopping at the first.
type Report struct {
	Template     *tags.TagMap             `json:"template,omitempty"`
	Completeness *tags.Completeness       `json:"completeness,omitempty"`
	Maturity     *schedule.MaturityResult `json:"maturity,omitempty"`
	Cusip        *schedule.CusipResult    `json:"cusip,omitempty"`
	Join         *bond.JoinResult         `json:"join,omitempty"`
	Orphaned     *bond.Orphans            `json:"orphaned,omitempty"`
	Bonds        []bond.JoinedBond        `json:"bonds,omitempty"`
	DatedDate    string                   `json:"dated_date,omitempty"`
	Problems     []Problem                `json:"problems"`
	Ready        bool                     `json:"ready"`
}

func (r *Report) add(stage Stage, err error) {
	r.Problems = append(r.Problems, Problem{Stage: stage, Message: err.Error()})
}

// Preflight checks a request without producing documents. Bonds in the
// report are numbered as Run would number them when the joined set is
// complete.
func (a *Assembler) Preflight(req Request) *Report {
	r := &Report{Problems: []Problem{}}

	tm, err := templateMap(req)
	if err != nil {
		r.add(StageTemplate, err)
	} else {
		r.Template = tm
		c := tags.Validate(tm)
		r.Completeness = &c
		if err := tags.Require(tm); err != nil {
			r.add(StageTemplate, err)
		}
	}

	if err := req.Numbering.Validate(); err != nil {
		r.add(StageNumbering, err)
	}

	mat, err := schedule.ParseMaturity(req.Maturity.Data, req.Maturity.Name)
	if err != nil {
		r.add(StageMaturity, err)
	} else {
		r.Maturity = mat
	}
	cus, err := schedule.ParseCusip(req.Cusip.Data, req.Cusip.Name)
	if err != nil {
		r.add(StageCusip, err)
	} else {
		r.Cusip = cus
	}

	if mat != nil && cus != nil {
		if err := acknowledge(mat, cus, req.AcknowledgeInvalidRows); err != nil {
			r.add(StageAcknowledgment, err)
		}
		a.preflightJoin(r, tm, req)
	}

	r.Ready = len(r.Problems) == 0
	return r
}

func (a *Assembler) preflightJoin(r *Report, tm *tags.TagMap, req Request) {
	res, err := bond.Join(r.Maturity.Valid, r.Cusip.Valid)
	if err != nil {
		r.add(StageJoin, err)
		return
	}
	r.Join = res
	if req.AcknowledgeInvalidRows {
		o := res.Excuse(r.Maturity.Invalid, r.Cusip.Invalid)
		r.Orphaned = &o
	}
	if err := res.Err(); err != nil {
		r.add(StageJoin, err)
	}
	if len(res.Joined) == 0 {
		if res.Complete() {
			r.add(StageJoin, ErrNoBonds)
		}
		return
	}

	joined := res.Joined
	dated, err := resolveDatedDate(joined, req.Metadata)
	if err != nil {
		r.add(StageDatedDate, err)
	} else {
		r.DatedDate = dated.Format(bond.DateLayout)
		joined = make([]bond.JoinedBond, len(res.Joined))
		for i, b := range res.Joined {
			b.DatedDate = dated
			joined[i] = b
		}
	}

	if tm != nil {
		if err := checkMetadata(tm, joined, req.Metadata); err != nil {
			r.add(StageMetadata, err)
		}
	}

	numbered, err := bond.AssignNumbers(joined, req.Numbering)
	if err != nil && !errors.Is(err, bond.ErrStartingNumber) {
		r.add(StageNumbering, err)
	}
	r.Bonds = numbered
}
