package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/assembly"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/bond"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/fill"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/formats"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/parsers/schedule"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/tags"
)

// errMissingFile is returned when a required multipart file is absent.
var errMissingFile = errors.New("missing file")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.opts.Version,
	})
}

// FormatInfo describes a registered template format.
type FormatInfo struct {
	Name       string   `json:"name"`
	Extensions []string `json:"extensions"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	list := []FormatInfo{}
	for _, f := range formats.All() {
		list = append(list, FormatInfo{Name: f.Name(), Extensions: f.Extensions()})
	}
	mode := "api_key"
	if s.resolver.Open() {
		mode = "open"
	}
	writeData(w, http.StatusOK, map[string]interface{}{
		"name":       "bondgen",
		"version":    s.opts.Version,
		"formats":    list,
		"auth":       mode,
		"max_upload": s.opts.MaxUploadBytes,
	})
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, tags.Vocabulary())
}

// ScanResponse is the body of POST /api/v1/templates/scan.
type ScanResponse struct {
	TagMap       *tags.TagMap      `json:"tag_map"`
	Completeness tags.Completeness `json:"completeness"`
	Preview      string            `json:"preview"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(w, r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tmpl, err := formFile(r, "template")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tm, err := tags.Scan(tmpl.Name, tmpl.Data)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ScanResponse{
		TagMap:       tm,
		Completeness: tags.Validate(tm),
		Preview:      tm.Preview(),
	})
}

// ScheduleReport is the body of POST /api/v1/schedules/validate.
type ScheduleReport struct {
	Maturity *schedule.MaturityResult `json:"maturity"`
	Cusip    *schedule.CusipResult    `json:"cusip"`
	Join     *bond.JoinResult         `json:"join"`
}

// handleValidateSchedules parses both schedules and joins their valid rows.
// With ?report=xlsx the invalid rows are returned as a workbook instead.
func (s *Server) handleValidateSchedules(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(w, r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mf, err := formFile(r, "maturity")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cf, err := formFile(r, "cusip")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mat, err := schedule.ParseMaturity(mf.Data, mf.Name)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	cus, err := schedule.ParseCusip(cf.Data, cf.Name)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	if r.URL.Query().Get("report") == "xlsx" {
		data, err := schedule.WriteReport(mat.Invalid, cus.Invalid)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="schedule-errors.xlsx"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	join, err := bond.Join(mat.Valid, cus.Valid)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ScheduleReport{Maturity: mat, Cusip: cus, Join: join})
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	req, err := s.readRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeData(w, http.StatusOK, s.asm.Preflight(req))
}

func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	req, err := s.readRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.assemble(w, r, req)
}

// assemble runs req and streams the archive.
func (s *Server) assemble(w http.ResponseWriter, r *http.Request, req assembly.Request) {
	res, err := s.asm.Run(r.Context(), req)
	if err != nil {
		s.log.Info("assembly refused", zap.String("subject", subject(r)), zap.Error(err))
		s.writeFailure(w, r, err)
		return
	}
	s.log.Info("assembly served",
		zap.String("subject", subject(r)),
		zap.String("file", res.Filename),
		zap.Int("bonds", len(res.Bonds)),
		zap.Int("orphaned", res.Orphaned.Count()))

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Archive)))
	w.Header().Set("X-Bond-Count", strconv.Itoa(len(res.Bonds)))
	w.Header().Set("X-Orphaned-Rows", strconv.Itoa(res.Orphaned.Count()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Archive)
}

// readRequest builds an assembly request from a multipart form with files
// template, maturity and cusip and optional JSON fields tagmap, numbering
// and metadata. acknowledge=true accepts invalid schedule rows.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request) (assembly.Request, error) {
	var req assembly.Request
	if err := s.parseForm(w, r); err != nil {
		return req, err
	}
	var err error
	if req.Template, err = formFile(r, "template"); err != nil {
		return req, err
	}
	if req.Maturity, err = formFile(r, "maturity"); err != nil {
		return req, err
	}
	if req.Cusip, err = formFile(r, "cusip"); err != nil {
		return req, err
	}

	var (
		tm        *tags.TagMap
		numbering bond.NumberingConfig
		meta      fill.Metadata
	)
	if err := formJSON(r, "tagmap", &tm); err != nil {
		return req, err
	}
	if err := formJSON(r, "numbering", &numbering); err != nil {
		return req, err
	}
	if err := formJSON(r, "metadata", &meta); err != nil {
		return req, err
	}
	req.TagMap = tm
	req.Numbering = numbering.Or(s.opts.Numbering)
	req.Metadata = meta
	req.AcknowledgeInvalidRows, _ = strconv.ParseBool(r.FormValue("acknowledge"))
	return req, nil
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		return fmt.Errorf("invalid multipart form: %w", err)
	}
	return nil
}

// formFile reads one uploaded file.
func formFile(r *http.Request, field string) (assembly.Upload, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return assembly.Upload{}, fmt.Errorf("%w: %s", errMissingFile, field)
		}
		return assembly.Upload{}, fmt.Errorf("reading %s: %w", field, err)
	}
	defer f.Close()
	return readPart(f, hdr)
}

func readPart(f multipart.File, hdr *multipart.FileHeader) (assembly.Upload, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return assembly.Upload{}, fmt.Errorf("reading %s: %w", hdr.Filename, err)
	}
	return assembly.Upload{Name: hdr.Filename, Data: data}, nil
}

// formJSON decodes an optional JSON form value into v.
func formJSON(r *http.Request, field string, v interface{}) error {
	raw := r.FormValue(field)
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	return nil
}
