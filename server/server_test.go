package server

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/redline/docedit"
	"github.com/hazyhaar/redline/wordml"
)

const testDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Overview</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Original body text.</w:t></w:r></w:p>
</w:body>
</w:document>`

func testDocx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := map[string]string{
		"[Content_Types].xml": `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"word/document.xml":   testDocumentXML,
	}
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	pipeline := docedit.NewPipeline(docedit.Config{Logger: cfg.Logger}, wordml.Factory{})
	return New(cfg, pipeline, nil).Routes()
}

// multipartUpload builds the edit request body.
func multipartUpload(t *testing.T, doc []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if doc != nil {
		fw, err := mw.CreateFormFile("file", "input.docx")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(doc); err != nil {
			t.Fatal(err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, mw.FormDataContentType()
}

func decodeErrorEnvelope(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env
}

func TestHealthz(t *testing.T) {
	h := testServer(t, Config{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body: %v", body)
	}
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Fatal("missing trace id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing security headers")
	}
}

func TestAuth(t *testing.T) {
	h := testServer(t, Config{AuthToken: "secret-token"})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret-token", http.StatusUnauthorized},
		{"valid", "Bearer secret-token", http.StatusBadRequest}, // passes auth, fails multipart parse
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/documents/edit", strings.NewReader("x"))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status: got %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusUnauthorized {
				if env := decodeErrorEnvelope(t, rec); env.Code != "unauthorized" {
					t.Fatalf("envelope: %+v", env)
				}
			}
		})
	}
}

func TestAuth_HealthzIsPublic(t *testing.T) {
	h := testServer(t, Config{AuthToken: "secret-token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestEdit_JSONBatch(t *testing.T) {
	h := testServer(t, Config{})
	body, ctype := multipartUpload(t, testDocx(t), map[string]string{
		"edits":  `{"edits": [{"op": "replace", "block_id": "b2", "text": "Revised body text."}]}`,
		"author": "Reviewer",
	})
	req := httptest.NewRequest("POST", "/v1/documents/edit", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Redline-Applied") != "1" {
		t.Fatalf("applied header: %q", rec.Header().Get("X-Redline-Applied"))
	}
	if got := rec.Header().Get("Content-Type"); got != docxContentType {
		t.Fatalf("content type: %q", got)
	}

	// Returned document is a valid archive with the tracked change inside.
	out := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	if err != nil {
		t.Fatalf("returned document unreadable: %v", err)
	}
	var doc string
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, _ := f.Open()
			data, _ := io.ReadAll(rc)
			rc.Close()
			doc = string(data)
		}
	}
	if !strings.Contains(doc, "Revised body text.") || !strings.Contains(doc, `w:author="Reviewer"`) {
		t.Fatal("tracked change missing from returned document")
	}
}

func TestEdit_MarkdownEditList(t *testing.T) {
	h := testServer(t, Config{})
	body, ctype := multipartUpload(t, testDocx(t), map[string]string{
		"edits": "- [b2] replace: Markdown revision.\n- [b9] delete\n",
	})
	req := httptest.NewRequest("POST", "/v1/documents/edit", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Redline-Applied") != "1" {
		t.Fatalf("applied: %q", rec.Header().Get("X-Redline-Applied"))
	}
	if rec.Header().Get("X-Redline-Skipped") != "1" {
		t.Fatalf("skipped: %q", rec.Header().Get("X-Redline-Skipped"))
	}
}

func TestEdit_Rejections(t *testing.T) {
	h := testServer(t, Config{})

	tests := []struct {
		name   string
		doc    []byte
		fields map[string]string
		status int
		code   string
	}{
		{
			name:   "missing file",
			fields: map[string]string{"edits": `{"edits": []}`},
			status: http.StatusBadRequest,
			code:   "bad_request",
		},
		{
			name:   "missing edits",
			doc:    []byte("PK\x03\x04whatever"),
			fields: map[string]string{},
			status: http.StatusBadRequest,
			code:   "bad_request",
		},
		{
			name:   "invalid json batch",
			doc:    []byte("PK\x03\x04whatever"),
			fields: map[string]string{"edits": `{"edits": [{"op": "merge", "block_id": "b1"}]}`},
			status: http.StatusBadRequest,
			code:   "bad_request",
		},
		{
			name:   "not a zip",
			doc:    []byte("plain text pretending to be docx"),
			fields: map[string]string{"edits": `{"edits": []}`},
			status: http.StatusBadRequest,
			code:   "invalid_format",
		},
		{
			name:   "zip without document",
			doc:    func() []byte { b, _ := emptyZip(); return b }(),
			fields: map[string]string{"edits": `{"edits": []}`},
			status: http.StatusUnprocessableEntity,
			code:   "unparseable_document",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ctype := multipartUpload(t, tt.doc, tt.fields)
			req := httptest.NewRequest("POST", "/v1/documents/edit", body)
			req.Header.Set("Content-Type", ctype)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status: got %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			env := decodeErrorEnvelope(t, rec)
			if env.Code != tt.code {
				t.Fatalf("code: got %q, want %q", env.Code, tt.code)
			}
			if env.TraceID == "" {
				t.Fatal("error envelope missing trace id")
			}
		})
	}
}

func emptyZip() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("mimetype")
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte("application/epub+zip")); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func TestEdit_TooLarge(t *testing.T) {
	h := testServer(t, Config{MaxUploadBytes: 1024})
	body, ctype := multipartUpload(t, bytes.Repeat([]byte("PK\x03\x04"), 2048), map[string]string{
		"edits": `{"edits": []}`,
	})
	req := httptest.NewRequest("POST", "/v1/documents/edit", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got %d", rec.Code)
	}
	if env := decodeErrorEnvelope(t, rec); env.Code != "too_large" {
		t.Fatalf("envelope: %+v", env)
	}
}

func TestValidate_DryRun(t *testing.T) {
	h := testServer(t, Config{})
	doc := testDocx(t)
	body, ctype := multipartUpload(t, doc, map[string]string{
		"edits": `{"edits": [
			{"op": "replace", "block_id": "b2", "text": "ok"},
			{"op": "delete", "block_id": "b99"}
		]}`,
	})
	req := httptest.NewRequest("POST", "/v1/documents/validate", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var report docedit.Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Valid {
		t.Fatal("report should be invalid")
	}
	if report.Summary.ValidEdits != 1 || report.Summary.InvalidEdits != 1 {
		t.Fatalf("summary: %+v", report.Summary)
	}

	// Dry run must not alter the upload: re-run against the same bytes.
	body2, ctype2 := multipartUpload(t, doc, map[string]string{
		"edits": `{"edits": [{"op": "replace", "block_id": "b2", "text": "ok"}]}`,
	})
	req2 := httptest.NewRequest("POST", "/v1/documents/validate", body2)
	req2.Header.Set("Content-Type", ctype2)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("second validate: %d", rec2.Code)
	}
}
