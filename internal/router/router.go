// Package router decides which pipelines serve a vendor-search request.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emmi-yeo/vendor-intelligence/internal/errs"
	"github.com/emmi-yeo/vendor-intelligence/internal/metrics"
	"github.com/emmi-yeo/vendor-intelligence/internal/reasoning"
)

const temperature = 0.2

// Mode selects which pipelines run for a request.
type Mode string

const (
	StructuredOnly Mode = "structured_only"
	RetrievalOnly  Mode = "retrieval_only"
	Both           Mode = "both"
)

// ParseMode returns the Mode named by s. Surrounding whitespace and case are
// ignored; any other value is an error.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case StructuredOnly, RetrievalOnly, Both:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// RunsStructured reports whether the structured pipeline runs in this mode.
func (m Mode) RunsStructured() bool { return m == StructuredOnly || m == Both }

// RunsRetrieval reports whether the retrieval pipeline runs in this mode.
func (m Mode) RunsRetrieval() bool { return m == RetrievalOnly || m == Both }

// Decision is the router's output.
type Decision struct {
	Mode      Mode     `json:"mode"`
	Steps     []string `json:"steps"`
	Reasoning []string `json:"reasoning"`
}

// Reasoner is the JSON reasoning capability the router delegates to.
type Reasoner interface {
	CallJSON(ctx context.Context, system, user string, temperature float64, out any) error
}

// Router classifies requests into a Mode.
type Router struct {
	reasoner Reasoner
}

// New creates a Router backed by the given reasoner.
func New(r Reasoner) *Router {
	return &Router{reasoner: r}
}

type rawDecision struct {
	Mode      string            `json:"mode"`
	Steps     reasoning.Strings `json:"execution_steps"`
	Reasoning reasoning.Strings `json:"reasoning"`
}

// Decide classifies query. Reasoning failures and unknown modes are returned
// wrapped in errs.ErrPlanning; no default mode is substituted.
func (r *Router) Decide(ctx context.Context, query string, hasDocument bool) (Decision, error) {
	var raw rawDecision
	if err := r.reasoner.CallJSON(ctx, systemPrompt, buildUserPrompt(query, hasDocument), temperature, &raw); err != nil {
		slog.Warn("router: decision failed", "error", err)
		return Decision{}, fmt.Errorf("%w: routing: %v", errs.ErrPlanning, err)
	}

	mode, err := ParseMode(raw.Mode)
	if err != nil {
		slog.Warn("router: invalid mode", "mode", raw.Mode)
		return Decision{}, fmt.Errorf("%w: routing: %v", errs.ErrPlanning, err)
	}

	metrics.RouterDecisionsTotal.WithLabelValues(string(mode)).Inc()
	return Decision{Mode: mode, Steps: raw.Steps, Reasoning: raw.Reasoning}, nil
}
