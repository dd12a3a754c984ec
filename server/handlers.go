package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hazyhaar/redline/docedit"
	"github.com/hazyhaar/redline/kit"
	"github.com/hazyhaar/redline/obs"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// errorEnvelope is the wire shape of every failure response.
type errorEnvelope struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
	TraceID string   `json:"trace_id,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"in_flight":   s.pipeline.Admission().InFlight(),
		"max_session": s.pipeline.Admission().Capacity(),
	})
}

// uploadRequest is the decoded multipart payload shared by edit and
// validate.
type uploadRequest struct {
	doc    []byte
	edits  []docedit.EditOp
	author string
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeUpload(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result, err := s.pipeline.Edit(r.Context(), req.doc, req.edits, req.author)
	if err != nil {
		s.recordEvent(r, req, errorCode(err), nil, start)
		s.writePipelineError(w, r, err)
		return
	}
	s.recordEvent(r, req, "ok", result, start)

	h := w.Header()
	h.Set("Content-Type", docxContentType)
	h.Set("Content-Disposition", `attachment; filename="edited.docx"`)
	h.Set("X-Redline-Applied", fmt.Sprint(result.Summary.Applied))
	h.Set("X-Redline-Skipped", fmt.Sprint(result.Summary.Skipped))
	h.Set("X-Redline-Failed", fmt.Sprint(result.Summary.Failed))
	h.Set("X-Redline-Warnings", fmt.Sprint(result.Summary.Warnings))
	w.WriteHeader(http.StatusOK)
	w.Write(result.Doc)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeUpload(w, r)
	if !ok {
		return
	}

	start := time.Now()
	report, err := s.pipeline.Validate(r.Context(), req.doc, req.edits)
	if err != nil {
		s.recordEvent(r, req, errorCode(err), nil, start)
		s.writePipelineError(w, r, err)
		return
	}
	s.recordEvent(r, req, "dry_run", nil, start)
	writeJSON(w, http.StatusOK, report)
}

// decodeUpload parses the multipart form: "file" (the document), "edits"
// (JSON batch or markdown edit list), optional "author". On failure it
// writes the error response and returns ok=false.
func (s *Server) decodeUpload(w http.ResponseWriter, r *http.Request) (*uploadRequest, bool) {
	// Multipart parts spool to memory up to this threshold; the outer
	// MaxBody middleware is the real cap.
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "too_large",
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), nil)
			return nil, false
		}
		writeError(w, r, http.StatusBadRequest, "bad_request", "malformed multipart body", nil)
		return nil, false
	}
	defer r.MultipartForm.RemoveAll()

	doc, err := formFile(r, "file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error(), nil)
		return nil, false
	}

	rawEdits := []byte(r.FormValue("edits"))
	if len(rawEdits) == 0 {
		writeError(w, r, http.StatusBadRequest, "bad_request", `missing "edits" field`, nil)
		return nil, false
	}

	req := &uploadRequest{doc: doc, author: r.FormValue("author")}
	if docedit.IsJSONBatch(rawEdits) {
		batch, err := docedit.DecodeEditBatch(rawEdits)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_request", "invalid edit batch", []string{err.Error()})
			return nil, false
		}
		req.edits = batch.Edits
		if req.author == "" {
			req.author = batch.Author
		}
	} else {
		edits, issues, err := docedit.ParseMarkdownEdits(rawEdits)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_request", "invalid markdown edit list", []string{err.Error()})
			return nil, false
		}
		if len(issues) > 0 {
			writeError(w, r, http.StatusBadRequest, "bad_request", "malformed markdown edit items", issues)
			return nil, false
		}
		req.edits = edits
	}

	if req.author == "" {
		req.author = "redline"
	}
	return req, true
}

func formFile(r *http.Request, field string) ([]byte, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, fmt.Errorf("missing %q file field", field)
		}
		return nil, fmt.Errorf("read %q file field", field)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// errorCode maps pipeline sentinels to envelope codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, docedit.ErrInvalidFormat):
		return "invalid_format"
	case errors.Is(err, docedit.ErrCorruptArchive):
		return "corrupt_archive"
	case errors.Is(err, docedit.ErrBombSuspected):
		return "bomb_suspected"
	case errors.Is(err, docedit.ErrOverloaded):
		return "overloaded"
	case errors.Is(err, docedit.ErrUnparseable):
		return "unparseable_document"
	default:
		return "internal"
	}
}

// writePipelineError converts a pipeline failure into the caller-visible
// envelope. Internal detail never leaks: unknown errors get a generic
// message, and only the sanitized sentinel text is exposed otherwise.
func (s *Server) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorCode(err)
	status := http.StatusBadRequest
	message := err.Error()
	switch code {
	case "overloaded":
		status = http.StatusServiceUnavailable
		message = "service is at capacity, retry later"
	case "unparseable_document":
		status = http.StatusUnprocessableEntity
		message = "archive is structurally valid but not an editable document"
	case "internal":
		status = http.StatusInternalServerError
		message = "internal error"
		s.cfg.Logger.Error("pipeline failure", "error", err, "trace_id", kit.GetTraceID(r.Context()))
	}
	writeError(w, r, status, code, message, nil)
}

func (s *Server) recordEvent(r *http.Request, req *uploadRequest, outcome string, result *docedit.Result, start time.Time) {
	if s.recorder == nil {
		return
	}
	ev := obs.EditEvent{
		TraceID:  kit.GetTraceID(r.Context()),
		Outcome:  outcome,
		DocBytes: len(req.doc),
		Edits:    len(req.edits),
		Duration: time.Since(start),
	}
	if result != nil {
		ev.Applied = result.Summary.Applied
		ev.Skipped = result.Summary.Skipped
		ev.Failed = result.Summary.Failed
		ev.Warnings = result.Summary.Warnings
		ev.Repacked = result.Repacked
	}
	s.recorder.Record(ev)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details []string) {
	writeJSON(w, status, errorEnvelope{
		Code:    code,
		Message: message,
		Details: details,
		TraceID: kit.GetTraceID(r.Context()),
	})
}
