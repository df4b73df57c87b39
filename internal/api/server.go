package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/emmi-yeo/vendor-intelligence/internal/agent"
	"github.com/emmi-yeo/vendor-intelligence/internal/docs"
	"github.com/emmi-yeo/vendor-intelligence/internal/errs"
	"github.com/emmi-yeo/vendor-intelligence/internal/guardrail"
	"github.com/emmi-yeo/vendor-intelligence/internal/metrics"
	"github.com/emmi-yeo/vendor-intelligence/internal/schema"
	"github.com/emmi-yeo/vendor-intelligence/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxUploadSize      = 20 << 20 // 20MB
	defaultRunsLimit   = 20
)

// Searcher answers vendor-search requests.
type Searcher interface {
	Run(ctx context.Context, req agent.Request) (*agent.Response, error)
}

// SchemaSource provides the current schema snapshot.
type SchemaSource interface {
	Snapshot() (*schema.Schema, error)
}

// RunStore lists audit records.
type RunStore interface {
	ListRuns(f storage.RunFilter) ([]storage.Run, error)
	GetRun(id string) (storage.Run, error)
}

// Deps holds the HTTP handler's collaborators. Runs may be nil, in which
// case the runs endpoints report 404.
type Deps struct {
	Agent   Searcher
	Schemas SchemaSource
	Runs    RunStore
}

type SearchRequest struct {
	Query        string `json:"query"`
	DocumentName string `json:"document_name,omitempty"`
	DocumentText string `json:"document_text,omitempty"`
}

type ValidateRequest struct {
	SQL           string   `json:"sql"`
	AllowedTables []string `json:"allowed_tables"`
	EnforceRowCap *bool    `json:"enforce_row_cap,omitempty"`
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware())

	r.Get("/health", handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", handleSearch(deps))
		r.Post("/validate", handleValidate)
		r.Get("/schema", handleSchema(deps))
		r.Get("/runs", handleListRuns(deps))
		r.Get("/runs/{id}", handleGetRun(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, status, err := decodeSearch(w, r)
		if err != nil {
			errType := "invalid_request_error"
			if status == http.StatusUnsupportedMediaType {
				errType = "unsupported_media_type"
			}
			httpError(w, status, errType, "%v", err)
			return
		}

		resp, err := deps.Agent.Run(r.Context(), req)
		switch {
		case errors.Is(err, agent.ErrEmptyQuery):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		case errors.Is(err, errs.ErrPlanning):
			httpError(w, http.StatusBadGateway, errs.Kind(err), "%v", err)
			return
		case err != nil:
			slog.Error("api: search failed", "error", err)
			httpError(w, http.StatusInternalServerError, errs.Kind(err), "%v", err)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// decodeSearch reads a JSON body or a multipart form with a "query" field
// and an optional "document" file.
func decodeSearch(w http.ResponseWriter, r *http.Request) (agent.Request, int, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mt == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return agent.Request{}, http.StatusBadRequest, fmt.Errorf("invalid multipart body: %v", err)
		}
		req := agent.Request{Query: strings.TrimSpace(r.FormValue("query"))}

		file, header, err := r.FormFile("document")
		if errors.Is(err, http.ErrMissingFile) {
			return req, 0, nil
		}
		if err != nil {
			return agent.Request{}, http.StatusBadRequest, fmt.Errorf("reading document: %v", err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return agent.Request{}, http.StatusBadRequest, fmt.Errorf("reading document: %v", err)
		}
		text, err := docs.Text(header.Filename, header.Header.Get("Content-Type"), data)
		if errors.Is(err, docs.ErrUnsupported) {
			return agent.Request{}, http.StatusUnsupportedMediaType, err
		}
		if err != nil {
			return agent.Request{}, http.StatusUnprocessableEntity, fmt.Errorf("extracting document text: %v", err)
		}
		req.Document = &agent.Document{Name: header.Filename, Text: text}
		return req, 0, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var body SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return agent.Request{}, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err)
	}
	req := agent.Request{Query: strings.TrimSpace(body.Query)}
	if body.DocumentText != "" {
		req.Document = &agent.Document{Name: body.DocumentName, Text: body.DocumentText}
	}
	return req, 0, nil
}

func handleValidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if req.SQL == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "sql is required")
		return
	}

	enforce := true
	if req.EnforceRowCap != nil {
		enforce = *req.EnforceRowCap
	}
	writeJSON(w, http.StatusOK, guardrail.Validate(req.SQL, req.AllowedTables, enforce))
}

func handleSchema(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Schemas.Snapshot()
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "schema unavailable: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Runs == nil {
			httpError(w, http.StatusNotFound, "not_found", "run history is disabled")
			return
		}

		limit := defaultRunsLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = n
		}

		runs, err := deps.Runs.ListRuns(storage.RunFilter{
			Mode:  r.URL.Query().Get("mode"),
			Stage: r.URL.Query().Get("stage"),
			Limit: limit,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing runs: %v", err)
			return
		}
		if runs == nil {
			runs = []storage.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleGetRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Runs == nil {
			httpError(w, http.StatusNotFound, "not_found", "run history is disabled")
			return
		}
		run, err := deps.Runs.GetRun(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting run: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encoding response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
