package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/datasheets/internal/core"
)

// multipartOverhead is the allowance for form boundaries and headers on top
// of the configured maximum file size.
const multipartOverhead = 1 << 20

// multipartMemory is how much of an upload is buffered in memory before the
// rest spills to a temporary file.
const multipartMemory = 8 << 20

var errNoFile = errors.New("no file provided")

// handleHealth reports liveness and the run slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"runs":   s.service.RunLimiterStatus(),
	})
}

// handleListDatasheets lists runs, newest first. The scope query parameter
// selects not_deleted (default), deleted or all.
func (s *Server) handleListDatasheets(w http.ResponseWriter, r *http.Request) {
	scope := core.ParseRunScope(r.URL.Query().Get("scope"))

	runs, err := s.service.ListRuns(r.Context(), scope)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if runs == nil {
		runs = []core.ImportRun{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scope":      scope,
		"datasheets": runs,
	})
}

// handleCreateDatasheet stores an uploaded datasheet as a new run. The file
// is read from the "file" form field. With perform=true the run is processed
// before responding.
func (s *Server) handleCreateDatasheet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w: %w", core.ErrFileTooLarge, err)
		} else {
			err = fmt.Errorf("%w: %w", errNoFile, err)
		}
		s.respondError(w, r, err, statusFor(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		err = fmt.Errorf("%w: %w", errNoFile, err)
		s.respondError(w, r, err, statusFor(err))
		return
	}
	defer file.Close()

	run, err := s.service.CreateRun(r.Context(), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	if !boolParam(r, "perform") {
		writeJSON(w, http.StatusCreated, run)
		return
	}

	performed, err := s.service.PerformRun(r.Context(), run.ID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, performed)
}

// handleGetDatasheet returns a single run, deleted or not.
func (s *Server) handleGetDatasheet(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	run, err := s.service.GetRun(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handlePerformDatasheet processes a run. By default the request waits for
// the pass and returns the run with its counters; with async=true the run is
// started in the background and 202 is returned.
func (s *Server) handlePerformDatasheet(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	if boolParam(r, "async") {
		if err := s.service.StartRun(r.Context(), id); err != nil {
			s.respondError(w, r, err, statusFor(err))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     id.String(),
			"status": "started",
		})
		return
	}

	run, err := s.service.PerformRun(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleDeleteDatasheet soft deletes a run.
func (s *Server) handleDeleteDatasheet(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	run, err := s.service.DeleteRun(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunStatus reports the run limiter's slot usage.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.RunLimiterStatus())
}

// runID parses the {id} URL parameter. Malformed ids cannot name a run and
// are reported as not found.
func runID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", core.ErrRunNotFound, raw)
	}
	return id, nil
}

// boolParam reads a boolean form or query value. Missing and malformed
// values are false.
func boolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.FormValue(name))
	return err == nil && v
}
