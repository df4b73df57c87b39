package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/emmi-yeo/vendor-intelligence/internal/agent"
	"github.com/emmi-yeo/vendor-intelligence/internal/errs"
	"github.com/emmi-yeo/vendor-intelligence/internal/guardrail"
	"github.com/emmi-yeo/vendor-intelligence/internal/router"
	"github.com/emmi-yeo/vendor-intelligence/internal/schema"
	"github.com/emmi-yeo/vendor-intelligence/internal/storage"
)

// --- mocks ---

type mockSearcher struct {
	got  agent.Request
	resp *agent.Response
	err  error
}

func (m *mockSearcher) Run(_ context.Context, req agent.Request) (*agent.Response, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	if m.resp != nil {
		return m.resp, nil
	}
	return &agent.Response{ID: "r1", Mode: router.StructuredOnly}, nil
}

type staticSchemas struct {
	s   *schema.Schema
	err error
}

func (s staticSchemas) Snapshot() (*schema.Schema, error) { return s.s, s.err }

func testSchema() *schema.Schema {
	return &schema.Schema{
		Database: "vendordb",
		Tables: []schema.Table{
			{Name: "Vendors", Columns: []schema.Column{{Name: "VendorID"}, {Name: "Name"}}},
		},
	}
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func serve(h http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	h.ServeHTTP(rr, req)
	return rr
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error.Type
}

// --- tests ---

func TestHealth(t *testing.T) {
	h := NewHandler(Deps{Agent: &mockSearcher{}, Schemas: staticSchemas{s: testSchema()}})
	rr := serve(h, http.MethodGet, "/health", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
}

func TestSearch_JSON(t *testing.T) {
	s := &mockSearcher{}
	h := NewHandler(Deps{Agent: s, Schemas: staticSchemas{s: testSchema()}})

	rr := serve(h, http.MethodPost, "/v1/search", `{"query":"  Rank vendors  ","document_text":"Must hold CIDB"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if s.got.Query != "Rank vendors" {
		t.Errorf("query = %q", s.got.Query)
	}
	if s.got.Document == nil || s.got.Document.Text != "Must hold CIDB" {
		t.Errorf("document = %+v", s.got.Document)
	}
	var resp agent.Response
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Mode != router.StructuredOnly {
		t.Errorf("mode = %q", resp.Mode)
	}
}

func TestSearch_JSONWithoutDocument(t *testing.T) {
	s := &mockSearcher{}
	h := NewHandler(Deps{Agent: s, Schemas: staticSchemas{s: testSchema()}})

	serve(h, http.MethodPost, "/v1/search", `{"query":"List vendors"}`)
	if s.got.Document != nil {
		t.Errorf("document = %+v, want nil", s.got.Document)
	}
}

func multipartSearch(t *testing.T, query, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("query", query)
	if filename != "" {
		hdr := make(textproto.MIMEHeader)
		hdr["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="document"; filename=%q`, filename)}
		hdr["Content-Type"] = []string{contentType}
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(content)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/search", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSearch_MultipartDocument(t *testing.T) {
	s := &mockSearcher{}
	h := NewHandler(Deps{Agent: s, Schemas: staticSchemas{s: testSchema()}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, multipartSearch(t, "Summarize", "tender.html", "text/html",
		[]byte(`<html><body><h1>Tender</h1><p>CIDB G7 required</p><script>x()</script></body></html>`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if s.got.Document == nil || s.got.Document.Name != "tender.html" {
		t.Fatalf("document = %+v", s.got.Document)
	}
	if !strings.Contains(s.got.Document.Text, "CIDB G7 required") || strings.Contains(s.got.Document.Text, "x()") {
		t.Errorf("extracted text = %q", s.got.Document.Text)
	}
}

func TestSearch_UnsupportedDocument(t *testing.T) {
	s := &mockSearcher{}
	h := NewHandler(Deps{Agent: s, Schemas: staticSchemas{s: testSchema()}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, multipartSearch(t, "Summarize", "tender.docx", "application/octet-stream", []byte("PK")))

	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rr.Code)
	}
	if s.got.Query != "" {
		t.Error("agent invoked for an unsupported document")
	}
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantType string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, "invalid_request_error"},
		{"empty query", `{"query":""}`, agent.ErrEmptyQuery, http.StatusBadRequest, "invalid_request_error"},
		{"planning", `{"query":"q"}`, fmt.Errorf("%w: routing: bad mode", errs.ErrPlanning), http.StatusBadGateway, "planning_error"},
		{"other", `{"query":"q"}`, fmt.Errorf("boom"), http.StatusInternalServerError, "unexpected_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(Deps{Agent: &mockSearcher{err: tt.err}, Schemas: staticSchemas{s: testSchema()}})
			rr := serve(h, http.MethodPost, "/v1/search", tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if got := errorType(t, rr); got != tt.wantType {
				t.Errorf("error type = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	h := NewHandler(Deps{Agent: &mockSearcher{}, Schemas: staticSchemas{s: testSchema()}})

	tests := []struct {
		name      string
		body      string
		wantValid bool
		wantCheck string
	}{
		{"valid", `{"sql":"SELECT TOP 10 Name FROM Vendors","allowed_tables":["Vendors"]}`, true, ""},
		{"forbidden", `{"sql":"SELECT TOP 10 Name FROM Vendors WHERE 1=1 OR DELETE","allowed_tables":["Vendors"]}`, false, guardrail.CheckKeywords},
		{"unauthorized", `{"sql":"SELECT TOP 10 Salary FROM Employees","allowed_tables":["Vendors"]}`, false, guardrail.CheckTables},
		{"row cap off", `{"sql":"SELECT Name FROM Vendors","allowed_tables":["Vendors"],"enforce_row_cap":false}`, true, ""},
		{"row cap on", `{"sql":"SELECT Name FROM Vendors","allowed_tables":["Vendors"]}`, false, guardrail.CheckRowLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, http.MethodPost, "/v1/validate", tt.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
			}
			var v guardrail.Verdict
			if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
				t.Fatal(err)
			}
			if v.Valid != tt.wantValid || v.Check != tt.wantCheck {
				t.Errorf("verdict = %+v", v)
			}
		})
	}

	if rr := serve(h, http.MethodPost, "/v1/validate", `{"allowed_tables":["Vendors"]}`); rr.Code != http.StatusBadRequest {
		t.Errorf("missing sql: status = %d, want 400", rr.Code)
	}
}

func TestSchema(t *testing.T) {
	h := NewHandler(Deps{Agent: &mockSearcher{}, Schemas: staticSchemas{s: testSchema()}})
	rr := serve(h, http.MethodGet, "/v1/schema", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var s schema.Schema
	json.NewDecoder(rr.Body).Decode(&s)
	if s.Database != "vendordb" || len(s.Tables) != 1 {
		t.Errorf("schema = %+v", s)
	}

	h = NewHandler(Deps{Agent: &mockSearcher{}, Schemas: staticSchemas{err: schema.ErrNotLoaded}})
	if rr := serve(h, http.MethodGet, "/v1/schema", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unloaded schema: status = %d, want 503", rr.Code)
	}
}

func TestRuns(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		store.SaveRun(storage.Run{ID: fmt.Sprintf("run-%d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute), Query: "q", Mode: "both"})
	}
	h := NewHandler(Deps{Agent: &mockSearcher{}, Schemas: staticSchemas{s: testSchema()}, Runs: store})

	rr := serve(h, http.MethodGet, "/v1/runs?limit=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var runs []storage.Run
	json.NewDecoder(rr.Body).Decode(&runs)
	if len(runs) != 2 || runs[0].ID != "run-2" {
		t.Errorf("runs = %+v", runs)
	}

	if rr := serve(h, http.MethodGet, "/v1/runs?limit=abc", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d", rr.Code)
	}
	if rr := serve(h, http.MethodGet, "/v1/runs/run-1", ""); rr.Code != http.StatusOK {
		t.Errorf("get run: status = %d", rr.Code)
	}
	if rr := serve(h, http.MethodGet, "/v1/runs/missing", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing run: status = %d", rr.Code)
	}

	h = NewHandler(Deps{Agent: &mockSearcher{}, Schemas: staticSchemas{s: testSchema()}})
	if rr := serve(h, http.MethodGet, "/v1/runs", ""); rr.Code != http.StatusNotFound {
		t.Errorf("runs disabled: status = %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewHandler(Deps{Agent: &mockSearcher{}, Schemas: staticSchemas{s: testSchema()}})
	serve(h, http.MethodGet, "/health", "")

	rr := serve(h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "vendorintel_http_requests_total") {
		t.Error("metrics output missing vendorintel_http_requests_total")
	}
}
