package sqlagent

import "github.com/emmi-yeo/vendor-intelligence/internal/guardrail"

// View is the caller-facing form of an Outcome, with execution fields
// flattened to the top level.
type View struct {
	Success        bool               `json:"success"`
	Mode           string             `json:"mode,omitempty"`
	Stage          string             `json:"stage,omitempty"`
	Reason         string             `json:"reason,omitempty"`
	Error          string             `json:"error,omitempty"`
	Plan           *Plan              `json:"plan,omitempty"`
	SQL            string             `json:"sql,omitempty"`
	Validation     *guardrail.Verdict `json:"validation,omitempty"`
	Columns        []string           `json:"columns,omitempty"`
	Rows           [][]any            `json:"rows,omitempty"`
	RowCount       int                `json:"row_count"`
	ElapsedSeconds float64            `json:"elapsed_seconds"`
}

// View flattens o.
func (o Outcome) View() View {
	v := View{
		Success:    o.Success,
		Mode:       o.Mode,
		Stage:      o.Stage,
		Reason:     o.Reason,
		Error:      o.Error,
		Plan:       o.Plan,
		SQL:        o.SQL,
		Validation: o.Validation,
	}
	if o.Execution != nil {
		v.Columns = o.Execution.Columns
		v.Rows = o.Execution.Rows
		v.RowCount = o.Execution.RowCount
		v.ElapsedSeconds = o.Execution.ElapsedSeconds
	}
	return v
}

// HasRows reports whether o executed successfully and returned rows.
func (o Outcome) HasRows() bool {
	return o.Success && o.Execution != nil && len(o.Execution.Rows) > 0
}
