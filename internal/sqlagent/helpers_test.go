package sqlagent

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/emmi-yeo/vendor-intelligence/internal/schema"
)

// scriptedReasoner answers planner and generator prompts with canned JSON.
type scriptedReasoner struct {
	planReply string
	genReply  string
	planErr   error
	genErr    error
	panicOn   string // "plan" or "generate"

	genCalls int
	genUser  string
}

func (s *scriptedReasoner) CallJSON(_ context.Context, system, user string, _ float64, out any) error {
	if system == plannerSystemPrompt {
		if s.panicOn == "plan" {
			panic("planner exploded")
		}
		if s.planErr != nil {
			return s.planErr
		}
		return json.Unmarshal([]byte(s.planReply), out)
	}
	s.genCalls++
	s.genUser = user
	if s.panicOn == "generate" {
		panic("generator exploded")
	}
	if s.genErr != nil {
		return s.genErr
	}
	return json.Unmarshal([]byte(s.genReply), out)
}

type staticSchemas struct {
	s   *schema.Schema
	err error
}

func (s staticSchemas) Snapshot() (*schema.Schema, error) { return s.s, s.err }

func vendorSchema() *schema.Schema {
	return &schema.Schema{
		Database: "vendordb",
		Tables: []schema.Table{
			{Name: "Vendors", Columns: []schema.Column{{Name: "VendorID"}, {Name: "Name"}, {Name: "State"}, {Name: "Certification"}}},
			{Name: "Invoices", Columns: []schema.Column{{Name: "InvoiceID"}, {Name: "VendorID"}, {Name: "Amount"}}},
			{Name: "Employees", Columns: []schema.Column{{Name: "EmployeeID"}, {Name: "Salary"}}},
		},
	}
}

// newVendorDB creates a SQLite database with a populated Vendors table and
// returns its DSN.
func newVendorDB(t *testing.T, rows int) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "vendors.db")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE Vendors (VendorID INTEGER PRIMARY KEY, Name TEXT, State TEXT, Certification TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	states := []string{"Selangor", "Johor", "Penang"}
	for i := 1; i <= rows; i++ {
		_, err := db.Exec(`INSERT INTO Vendors (VendorID, Name, State, Certification) VALUES (?, ?, ?, ?)`,
			i, "Vendor "+string(rune('A'+(i-1)%26)), states[i%len(states)], "CIDB")
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	return dsn
}
