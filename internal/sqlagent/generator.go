package sqlagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emmi-yeo/vendor-intelligence/internal/errs"
	"github.com/emmi-yeo/vendor-intelligence/internal/reasoning"
	"github.com/emmi-yeo/vendor-intelligence/internal/schema"
)

// Generated is untrusted query text; it must pass the guardrail before use.
type Generated struct {
	SQL        string   `json:"sql"`
	TablesUsed []string `json:"tables_used"`
	Notes      []string `json:"notes,omitempty"`
}

type rawGenerated struct {
	SQL        string            `json:"sql"`
	TablesUsed reasoning.Strings `json:"tables_used"`
	Notes      reasoning.Strings `json:"notes"`
}

// Generator produces SQL text for a Plan.
type Generator struct {
	reasoner Reasoner
	system   string
}

// NewGenerator creates a Generator that instructs the model to write SQL for
// dialect d capped at rowLimit rows.
func NewGenerator(r Reasoner, d Dialect, rowLimit int) *Generator {
	return &Generator{reasoner: r, system: generatorSystemPrompt(d, rowLimit)}
}

// Generate requests SQL for plan. Only the metadata in tables is shown to the
// model, never the full schema. Failures wrap errs.ErrGeneration.
func (g *Generator) Generate(ctx context.Context, plan Plan, tables []schema.Table) (Generated, error) {
	planJSON, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return Generated{}, fmt.Errorf("%w: encoding plan: %v", errs.ErrGeneration, err)
	}
	tablesJSON, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return Generated{}, fmt.Errorf("%w: encoding schema: %v", errs.ErrGeneration, err)
	}
	user := fmt.Sprintf("Structured Plan:\n%s\n\nRelevant Schema Metadata:\n%s\n\nGenerate SQL now.", planJSON, tablesJSON)

	var raw rawGenerated
	if err := g.reasoner.CallJSON(ctx, g.system, user, generatorTemperature, &raw); err != nil {
		slog.Warn("generator: request failed", "error", err)
		return Generated{}, fmt.Errorf("%w: %v", errs.ErrGeneration, err)
	}

	sql := strings.TrimSpace(raw.SQL)
	if sql == "" {
		return Generated{}, fmt.Errorf("%w: model returned no SQL", errs.ErrGeneration)
	}
	return Generated{SQL: sql, TablesUsed: raw.TablesUsed, Notes: raw.Notes}, nil
}
