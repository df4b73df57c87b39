package sqlagent

import (
	"strings"

	"github.com/emmi-yeo/vendor-intelligence/internal/reasoning"
)

// Plan is the structured intent produced by the planner. Table names are not
// verified here; the guardrail enforces them downstream.
type Plan struct {
	Intent            string         `json:"intent"`
	Tables            []string       `json:"tables"`
	Columns           []string       `json:"columns"`
	Filters           map[string]any `json:"filters"`
	Aggregation       *Aggregation   `json:"aggregation,omitempty"`
	RequiresRetrieval bool           `json:"requires_retrieval"`
	Reasoning         []string       `json:"reasoning"`
}

type Aggregation struct {
	Type   string `json:"type"`
	Column string `json:"column"`
}

// rawPlan is the shape the planner prompt asks the model for.
type rawPlan struct {
	Intent       string            `json:"intent"`
	Tables       reasoning.Strings `json:"tables"`
	Columns      reasoning.Strings `json:"columns"`
	Filters      map[string]any    `json:"filters"`
	Aggregations *Aggregation      `json:"aggregations"`
	RequiresRAG  bool              `json:"requires_rag"`
	Reasoning    reasoning.Strings `json:"reasoning"`
}

func (r rawPlan) plan() Plan {
	p := Plan{
		Intent:            r.Intent,
		Tables:            dedupeFold(r.Tables),
		Columns:           r.Columns,
		Filters:           r.Filters,
		RequiresRetrieval: r.RequiresRAG,
		Reasoning:         r.Reasoning,
	}
	if p.Filters == nil {
		p.Filters = map[string]any{}
	}
	if a := r.Aggregations; a != nil && strings.TrimSpace(a.Type) != "" {
		p.Aggregation = a
	}
	return p
}

// dedupeFold drops blank and case-insensitively repeated names, keeping the
// first spelling.
func dedupeFold(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		k := strings.ToLower(n)
		if n == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, n)
	}
	return out
}
