// Package schema holds the structured store's table metadata and renders the
// views of it that the planner and generator consume.
package schema

import (
	"fmt"
	"strings"
)

// Schema is the metadata snapshot for one database.
type Schema struct {
	Database string  `json:"database" yaml:"database"`
	Tables   []Table `json:"tables" yaml:"tables"`
}

// Table describes one table.
type Table struct {
	Name        string       `json:"name" yaml:"name"`
	Columns     []Column     `json:"columns" yaml:"columns"`
	PrimaryKeys []string     `json:"primary_keys,omitempty" yaml:"primary_keys,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty"`
	Indexes     []Index      `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// Column describes one column.
type Column struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
}

type ForeignKey struct {
	Name             string `json:"fk_name,omitempty" yaml:"fk_name,omitempty"`
	Column           string `json:"column" yaml:"column"`
	ReferencesTable  string `json:"references_table" yaml:"references_table"`
	ReferencesColumn string `json:"references_column" yaml:"references_column"`
}

type Index struct {
	Name   string `json:"index_name" yaml:"index_name"`
	Column string `json:"column" yaml:"column"`
}

// TableSummary is the compact table view handed to the planner.
type TableSummary struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}

// Summaries returns one TableSummary per table, in schema order.
func (s *Schema) Summaries() []TableSummary {
	out := make([]TableSummary, len(s.Tables))
	for i, t := range s.Tables {
		cols := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			cols[j] = c.Name
		}
		out[i] = TableSummary{Table: t.Name, Columns: cols}
	}
	return out
}

// Summary renders the schema as one "Table: X | Columns: a, b" line per table.
func (s *Schema) Summary() string {
	var sb strings.Builder
	for i, ts := range s.Summaries() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "Table: %s | Columns: %s", ts.Table, strings.Join(ts.Columns, ", "))
	}
	return sb.String()
}

// Relevant returns the metadata of the named tables only, in schema order.
// Names match case-insensitively; unknown names are ignored.
func (s *Schema) Relevant(names []string) []Table {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(n)] = true
	}
	var out []Table
	for _, t := range s.Tables {
		if want[strings.ToLower(t.Name)] {
			out = append(out, t)
		}
	}
	return out
}

// HasTable reports whether a table with the given name exists.
func (s *Schema) HasTable(name string) bool {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

// TableNames returns every table name in schema order.
func (s *Schema) TableNames() []string {
	out := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		out[i] = t.Name
	}
	return out
}
