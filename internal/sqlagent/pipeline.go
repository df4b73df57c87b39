package sqlagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/emmi-yeo/vendor-intelligence/internal/errs"
	"github.com/emmi-yeo/vendor-intelligence/internal/guardrail"
	"github.com/emmi-yeo/vendor-intelligence/internal/metrics"
	"github.com/emmi-yeo/vendor-intelligence/internal/schema"
	"github.com/emmi-yeo/vendor-intelligence/internal/telemetry"
)

// Failure stages reported in Outcome.Stage.
const (
	StagePlanning   = "planning_failed"
	StageGeneration = "generation_failed"
	StageValidation = "validation_failed"
	StageExecution  = "execution_failed"
	StageUnexpected = "unexpected_error"
)

// Outcome modes.
const (
	ModeSQL           = "sql"
	ModeRetrievalOnly = "retrieval_only"
)

type state int

const (
	statePlanning state = iota
	stateGenerating
	stateValidating
	stateExecuting
	stateDone
)

func (s state) String() string {
	switch s {
	case statePlanning:
		return "planning"
	case stateGenerating:
		return "generating"
	case stateValidating:
		return "validating"
	case stateExecuting:
		return "executing"
	default:
		return "done"
	}
}

// Outcome is the discriminated result of one pipeline run. On failure Stage
// is set along with Reason (validation) or Error (everything else).
type Outcome struct {
	Success    bool               `json:"success"`
	Mode       string             `json:"mode,omitempty"`
	Stage      string             `json:"stage,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Error      string             `json:"error,omitempty"`
	Plan       *Plan              `json:"plan,omitempty"`
	SQL        string             `json:"sql,omitempty"`
	Validation *guardrail.Verdict `json:"validation,omitempty"`
	Execution  *Result            `json:"execution,omitempty"`
}

// Err maps a failed outcome onto the error taxonomy. It returns nil on success.
func (o Outcome) Err() error {
	if o.Success {
		return nil
	}
	switch o.Stage {
	case StagePlanning:
		return fmt.Errorf("%w: %s", errs.ErrPlanning, o.Error)
	case StageGeneration:
		return fmt.Errorf("%w: %s", errs.ErrGeneration, o.Error)
	case StageValidation:
		return fmt.Errorf("%w: %s", errs.ErrValidation, o.Reason)
	case StageExecution:
		return fmt.Errorf("%w: %s", errs.ErrExecution, o.Error)
	default:
		return fmt.Errorf("%w: %s", errs.ErrUnexpected, o.Error)
	}
}

// SchemaSource provides the current schema snapshot.
type SchemaSource interface {
	Snapshot() (*schema.Schema, error)
}

// QueryRunner executes validated SQL.
type QueryRunner interface {
	Execute(ctx context.Context, query string, maxRows int) Result
}

// PipelineConfig holds the structured pipeline's collaborators and limits.
type PipelineConfig struct {
	Schemas   SchemaSource
	Planner   *Planner
	Generator *Generator
	Runner    QueryRunner
	MaxRows   int
	// SkipRowCap disables the guardrail's row-limit clause check. The
	// executor's cap still applies.
	SkipRowCap bool
}

// Pipeline runs plan, generate, validate and execute for one query.
type Pipeline struct {
	cfg PipelineConfig
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = defaultMaxRows
	}
	return &Pipeline{cfg: cfg}
}

// Run executes the pipeline. It never panics and never returns an error:
// every failure is reported as a tagged Outcome.
func (p *Pipeline) Run(ctx context.Context, query string, hasDocument bool) (out Outcome) {
	ctx, span := telemetry.Start(ctx, "sqlagent.run")
	cur := statePlanning

	defer func() {
		if r := recover(); r != nil {
			slog.Error("sqlagent: panic in pipeline", "state", cur.String(), "panic", r)
			out = Outcome{Stage: StageUnexpected, Error: fmt.Sprintf("panic during %s: %v", cur, r)}
		}
		label := out.Stage
		if out.Success {
			label = out.Mode
		}
		metrics.StructuredOutcomesTotal.WithLabelValues(label).Inc()
		span.SetAttributes(attribute.String("outcome", label))
		telemetry.End(span, out.Err())
	}()

	snap, err := p.cfg.Schemas.Snapshot()
	if err != nil {
		slog.Error("sqlagent: schema unavailable", "error", err)
		return Outcome{Stage: StageUnexpected, Error: err.Error()}
	}

	plan, err := p.cfg.Planner.Plan(ctx, query, snap.Summary(), hasDocument)
	if err != nil {
		return failed(cur, err, Outcome{})
	}

	if plan.RequiresRetrieval && len(plan.Tables) == 0 {
		return Outcome{Success: true, Mode: ModeRetrievalOnly, Plan: &plan}
	}

	cur = stateGenerating
	gen, err := p.cfg.Generator.Generate(ctx, plan, snap.Relevant(plan.Tables))
	if err != nil {
		return failed(cur, err, Outcome{Plan: &plan})
	}

	cur = stateValidating
	verdict := guardrail.Validate(gen.SQL, plan.Tables, !p.cfg.SkipRowCap)
	if !verdict.Valid {
		slog.Info("sqlagent: query rejected", "reason", verdict.Reason, "check", verdict.Check)
		return Outcome{Stage: StageValidation, Reason: verdict.Reason, Plan: &plan, SQL: gen.SQL, Validation: &verdict}
	}

	cur = stateExecuting
	res := p.cfg.Runner.Execute(ctx, gen.SQL, p.cfg.MaxRows)
	if !res.Success {
		return Outcome{Stage: StageExecution, Error: res.Error, Plan: &plan, SQL: gen.SQL, Validation: &verdict, Execution: &res}
	}

	cur = stateDone
	return Outcome{Success: true, Mode: ModeSQL, Plan: &plan, SQL: gen.SQL, Validation: &verdict, Execution: &res}
}

// failed tags err with the stage it occurred in. Errors outside the expected
// taxonomy for that stage are reported as unexpected.
func failed(s state, err error, base Outcome) Outcome {
	base.Error = err.Error()
	switch {
	case s == statePlanning && errors.Is(err, errs.ErrPlanning):
		base.Stage = StagePlanning
	case s == stateGenerating && errors.Is(err, errs.ErrGeneration):
		base.Stage = StageGeneration
	default:
		slog.Error("sqlagent: unexpected failure", "state", s.String(), "error", err)
		base.Stage = StageUnexpected
	}
	return base
}
