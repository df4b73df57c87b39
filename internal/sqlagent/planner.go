package sqlagent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emmi-yeo/vendor-intelligence/internal/errs"
)

const (
	plannerTemperature   = 0.2
	generatorTemperature = 0.1
)

// Reasoner is the JSON reasoning capability used for planning and generation.
type Reasoner interface {
	CallJSON(ctx context.Context, system, user string, temperature float64, out any) error
}

// Planner turns a query and schema summary into a Plan.
type Planner struct {
	reasoner Reasoner
}

func NewPlanner(r Reasoner) *Planner {
	return &Planner{reasoner: r}
}

// Plan requests a structured plan. Failures wrap errs.ErrPlanning.
func (p *Planner) Plan(ctx context.Context, query, schemaSummary string, hasDocument bool) (Plan, error) {
	var raw rawPlan
	err := p.reasoner.CallJSON(ctx, plannerSystemPrompt, buildPlannerPrompt(query, schemaSummary, hasDocument), plannerTemperature, &raw)
	if err != nil {
		slog.Warn("planner: plan request failed", "error", err)
		return Plan{}, fmt.Errorf("%w: %v", errs.ErrPlanning, err)
	}
	return raw.plan(), nil
}
