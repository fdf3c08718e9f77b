package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/assembly"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/drafts"
)

var errIncompleteDraft = errors.New("draft is missing an upload")

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	list, err := s.drafts.List(r.Context(), subject(r))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.decodeDraft(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.ID = uuid.Nil
	d.Owner = subject(r)
	if err := s.drafts.Save(r.Context(), d); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, d.Summary())
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := s.ownedDraft(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, d)
}

func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.ownedDraft(w, r)
	if !ok {
		return
	}
	d, err := s.decodeDraft(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.ID = existing.ID
	d.Owner = existing.Owner
	d.CreatedAt = existing.CreatedAt
	if err := s.drafts.Save(r.Context(), d); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeData(w, http.StatusOK, d.Summary())
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := s.ownedDraft(w, r)
	if !ok {
		return
	}
	if err := s.drafts.Delete(r.Context(), d.ID); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAssembleDraft runs the pipeline on a saved draft's uploads and
// settings. ?acknowledge=true accepts invalid schedule rows.
func (s *Server) handleAssembleDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := s.ownedDraft(w, r)
	if !ok {
		return
	}
	if d.Template == nil || d.Maturity == nil || d.Cusip == nil {
		writeError(w, http.StatusUnprocessableEntity, errIncompleteDraft.Error())
		return
	}
	req := assembly.Request{
		Template: assembly.Upload(*d.Template),
		Maturity: assembly.Upload(*d.Maturity),
		Cusip:    assembly.Upload(*d.Cusip),
		TagMap:   d.TagMap,
	}
	if d.Numbering != nil {
		req.Numbering = d.Numbering.Or(s.opts.Numbering)
	} else {
		req.Numbering = s.opts.Numbering
	}
	if d.Metadata != nil {
		req.Metadata = *d.Metadata
	}
	req.AcknowledgeInvalidRows, _ = strconv.ParseBool(r.URL.Query().Get("acknowledge"))
	s.assemble(w, r, req)
}

// ownedDraft loads the {id} draft. Drafts of other owners are reported as
// not found.
func (s *Server) ownedDraft(w http.ResponseWriter, r *http.Request) (*drafts.Draft, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid draft id")
		return nil, false
	}
	d, err := s.drafts.Load(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return nil, false
	}
	if d.Owner != subject(r) {
		writeError(w, http.StatusNotFound, drafts.ErrNotFound.Error())
		return nil, false
	}
	return d, true
}

func (s *Server) decodeDraft(w http.ResponseWriter, r *http.Request) (*drafts.Draft, error) {
	var d drafts.Draft
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes))
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if !d.Step.Valid() {
		return nil, fmt.Errorf("unknown step %q", d.Step)
	}
	if d.Numbering != nil {
		if err := d.Numbering.Validate(); err != nil {
			return nil, err
		}
	}
	return &d, nil
}
