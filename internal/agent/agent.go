// Package agent answers vendor-search requests. It routes each request to the
// structured pipeline, the document retrieval pipeline, or both, and ranks
// structured rows against retrieved requirements when both produce output.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/emmi-yeo/vendor-intelligence/internal/errs"
	"github.com/emmi-yeo/vendor-intelligence/internal/retrieval"
	"github.com/emmi-yeo/vendor-intelligence/internal/router"
	"github.com/emmi-yeo/vendor-intelligence/internal/scoring"
	"github.com/emmi-yeo/vendor-intelligence/internal/sqlagent"
	"github.com/emmi-yeo/vendor-intelligence/internal/storage"
	"github.com/emmi-yeo/vendor-intelligence/internal/telemetry"
)

// ErrEmptyQuery is returned when a request has no query text.
var ErrEmptyQuery = errors.New("query is required")

// Steps named in StepError.
const (
	StepRetrieval = "retrieval"
	StepScoring   = "scoring"
)

type Decider interface {
	Decide(ctx context.Context, query string, hasDocument bool) (router.Decision, error)
}

type StructuredRunner interface {
	Run(ctx context.Context, query string, hasDocument bool) sqlagent.Outcome
}

type Retriever interface {
	Run(ctx context.Context, text, query string) (retrieval.Result, error)
}

type Ranker interface {
	Score(ctx context.Context, columns []string, rows [][]any, chunks []string) (*scoring.Ranking, error)
}

// Recorder persists the audit record of a request.
type Recorder interface {
	SaveRun(r storage.Run) error
}

// Document is an uploaded requirement document after text extraction.
type Document struct {
	Name string
	Text string
}

// Request is one vendor-search request. A nil Document means nothing was
// uploaded.
type Request struct {
	Query    string
	Document *Document
}

// StepError reports a retrieval or scoring failure. The step produced no
// output; the rest of the response stands.
type StepError struct {
	Step    string `json:"step"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Response is the caller-facing result of a request.
type Response struct {
	ID              string            `json:"id"`
	Mode            router.Mode       `json:"mode"`
	Decision        router.Decision   `json:"hybrid_plan"`
	Structured      *sqlagent.View    `json:"structured_result,omitempty"`
	Retrieval       *retrieval.Result `json:"retrieval_result,omitempty"`
	Ranked          []scoring.Record  `json:"ranked_result,omitempty"`
	RequirementText string            `json:"requirement_text_used,omitempty"`
	Errors          []StepError       `json:"errors,omitempty"`
	DurationMs      int64             `json:"duration_ms"`
}

// Config holds the agent's collaborators. Recorder may be nil.
type Config struct {
	Router     Decider
	Structured StructuredRunner
	Retrieval  Retriever
	Scorer     Ranker
	Recorder   Recorder
}

// Agent orchestrates one request end to end.
type Agent struct {
	cfg Config
}

func New(cfg Config) *Agent {
	return &Agent{cfg: cfg}
}

// Run answers req. Only routing failures and an empty query are returned as
// errors; every later failure is reported inside the Response.
func (a *Agent) Run(ctx context.Context, req Request) (resp *Response, err error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	start := time.Now()
	id := uuid.NewString()
	log := slog.With("request_id", id)
	hasDocument := req.Document != nil

	ctx, span := telemetry.Start(ctx, "agent.run",
		attribute.String("request_id", id),
		attribute.Bool("has_document", hasDocument))
	defer func() { telemetry.End(span, err) }()

	decision, err := a.cfg.Router.Decide(ctx, req.Query, hasDocument)
	if err != nil {
		log.Warn("agent: routing failed", "stage", "routing", "error", err)
		a.record(log, storage.Run{
			ID: id, CreatedAt: start, Query: req.Query, HasDocument: hasDocument,
			Error: err.Error(), DurationMs: time.Since(start).Milliseconds(),
		})
		return nil, err
	}
	span.SetAttributes(attribute.String("mode", string(decision.Mode)))
	log.Info("agent: routed", "mode", decision.Mode)

	resp = &Response{ID: id, Mode: decision.Mode, Decision: decision}

	var (
		outcome    *sqlagent.Outcome
		retrieved  *retrieval.Result
		retrievErr error
	)

	// The two paths share no data, so they run side by side and join before
	// scoring. Neither returns an error to the group.
	var g errgroup.Group
	if decision.Mode.RunsStructured() {
		g.Go(func() error {
			o := a.cfg.Structured.Run(ctx, req.Query, hasDocument)
			outcome = &o
			return nil
		})
	}
	if decision.Mode.RunsRetrieval() {
		if hasDocument {
			g.Go(func() error {
				r, err := a.cfg.Retrieval.Run(ctx, req.Document.Text, req.Query)
				if err != nil {
					retrievErr = err
					return nil
				}
				retrieved = &r
				return nil
			})
		} else {
			log.Info("agent: retrieval skipped, no document uploaded")
		}
	}
	_ = g.Wait()

	if outcome != nil {
		v := outcome.View()
		resp.Structured = &v
	}
	if retrievErr != nil {
		log.Warn("agent: retrieval failed", "stage", StepRetrieval, "error", retrievErr)
		resp.Errors = append(resp.Errors, stepError(StepRetrieval, retrievErr))
	}
	resp.Retrieval = retrieved

	if outcome != nil && outcome.HasRows() && retrieved != nil && len(retrieved.Retrieved) > 0 {
		ranking, err := a.cfg.Scorer.Score(ctx, outcome.Execution.Columns, outcome.Execution.Rows, retrieved.Texts())
		switch {
		case err != nil:
			log.Warn("agent: scoring failed", "stage", StepScoring, "error", err)
			resp.Errors = append(resp.Errors, stepError(StepScoring, err))
		case ranking != nil:
			resp.Ranked = ranking.Records
			resp.RequirementText = ranking.RequirementText
		}
	}

	resp.DurationMs = time.Since(start).Milliseconds()
	a.record(log, runRecord(resp, req, start))
	return resp, nil
}

func (a *Agent) record(log *slog.Logger, r storage.Run) {
	if a.cfg.Recorder == nil {
		return
	}
	if err := a.cfg.Recorder.SaveRun(r); err != nil {
		log.Warn("agent: failed to save run", "error", err)
	}
}

func stepError(step string, err error) StepError {
	return StepError{Step: step, Kind: errs.Kind(err), Message: err.Error()}
}

func runRecord(resp *Response, req Request, start time.Time) storage.Run {
	r := storage.Run{
		ID:          resp.ID,
		CreatedAt:   start,
		Query:       req.Query,
		HasDocument: req.Document != nil,
		Mode:        string(resp.Mode),
		RankedCount: len(resp.Ranked),
		DurationMs:  resp.DurationMs,
	}
	if s := resp.Structured; s != nil {
		r.SQL = s.SQL
		r.Stage = s.Stage
		r.Reason = s.Reason
		r.Error = s.Error
		r.RowCount = s.RowCount
	}
	if resp.Retrieval != nil {
		r.ChunkCount = resp.Retrieval.TotalChunks
	}
	if r.Error == "" && len(resp.Errors) > 0 {
		r.Error = resp.Errors[0].Message
	}
	return r
}
