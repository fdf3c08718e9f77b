package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/assembly"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/bond"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/drafts"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/fill"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/formats"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/parsers/schedule"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/parsers/tabular"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/tags"
)

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Failure is the data of a 422 response.
type Failure struct {
	Stage  assembly.Stage `json:"stage,omitempty"`
	Detail interface{}    `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, APIResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{Success: false, Error: msg})
}

// writeFailure maps a pipeline or store error to a status code.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var ve *assembly.ValidationError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, APIResponse{
			Error: err.Error(),
			Data:  Failure{Stage: ve.Stage, Detail: detail(ve.Err)},
		})
	case errors.Is(err, drafts.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case isInputError(err):
		writeJSON(w, http.StatusUnprocessableEntity, APIResponse{Error: err.Error(), Data: Failure{Detail: detail(err)}})
	default:
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// isInputError reports errors caused by the uploaded content.
func isInputError(err error) bool {
	var (
		se *schedule.StructuralError
		ie *tags.IncompleteError
		me *tags.MalformedError
		je *bond.JoinError
	)
	return errors.As(err, &se) || errors.As(err, &ie) || errors.As(err, &me) || errors.As(err, &je) ||
		errors.Is(err, formats.ErrUnsupportedFormat) || errors.Is(err, tags.ErrTemplateChanged) ||
		errors.Is(err, tabular.ErrLegacyExcel) || errors.Is(err, tabular.ErrEmpty)
}

// detail returns the structured part of a typed error.
func detail(err error) interface{} {
	var (
		se  *schedule.StructuralError
		ie  *tags.IncompleteError
		je  *bond.JoinError
		ue  *assembly.UnacknowledgedError
		de  *assembly.DatedDateError
		mde *assembly.MetadataError
		te  *fill.TagSubstitutionError
	)
	switch {
	case errors.As(err, &se):
		return map[string]interface{}{"schedule": se.Schedule, "missing_columns": se.Missing}
	case errors.As(err, &ie):
		return map[string]interface{}{"missing_tags": ie.Missing}
	case errors.As(err, &je):
		return map[string]interface{}{
			"unmatched_maturity": je.UnmatchedMaturity,
			"unmatched_cusip":    je.UnmatchedCusip,
			"ambiguous":          je.Ambiguous,
			"duplicate_cusip":    je.DuplicateCUSIP,
		}
	case errors.As(err, &ue):
		return map[string]interface{}{"maturity_invalid": ue.MaturityInvalid, "cusip_invalid": ue.CusipInvalid}
	case errors.As(err, &de):
		return map[string]interface{}{"dated_dates": de.Dates}
	case errors.As(err, &mde):
		return map[string]interface{}{"missing_metadata": mde.Missing}
	case errors.As(err, &te):
		return map[string]interface{}{"tag": te.Tag, "bond": te.Bond}
	}
	return nil
}
