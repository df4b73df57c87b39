package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/emmi-yeo/vendor-intelligence/internal/docs"
	"github.com/emmi-yeo/vendor-intelligence/internal/errs"
	"github.com/emmi-yeo/vendor-intelligence/internal/retrieval"
	"github.com/emmi-yeo/vendor-intelligence/internal/router"
	"github.com/emmi-yeo/vendor-intelligence/internal/schema"
	"github.com/emmi-yeo/vendor-intelligence/internal/scoring"
	"github.com/emmi-yeo/vendor-intelligence/internal/sqlagent"
	"github.com/emmi-yeo/vendor-intelligence/internal/storage"
)

// --- stub reasoning capability, dispatching on the system prompt ---

type stubReasoner struct {
	mode      string
	plan      string
	sql       string
	routeErr  error
	mu        sync.Mutex
	callsSeen []string
}

func (s *stubReasoner) CallJSON(_ context.Context, system, _ string, _ float64, out any) error {
	var reply string
	var kind string
	switch {
	case strings.HasPrefix(system, "You are the routing step"):
		kind = "route"
		if s.routeErr != nil {
			return s.routeErr
		}
		reply = `{"mode":"` + s.mode + `","execution_steps":["run"],"reasoning":"test"}`
	case strings.HasPrefix(system, "You are a database query planning"):
		kind = "plan"
		reply = s.plan
	default:
		kind = "generate"
		reply = `{"sql":` + mustJSON(s.sql) + `,"tables_used":["Vendors"]}`
	}
	s.mu.Lock()
	s.callsSeen = append(s.callsSeen, kind)
	s.mu.Unlock()
	return json.Unmarshal([]byte(reply), out)
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// --- stub embedding capability: term counts ---

type termEmbedder struct {
	err error
}

var terms = []string{"cidb", "selangor", "iso", "johor", "safety"}

func (e termEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		v := make([]float32, len(terms))
		for j, term := range terms {
			v[j] = float32(strings.Count(t, term))
		}
		out[i] = v
	}
	return out, nil
}

type countingRunner struct {
	inner StructuredRunner
	mu    sync.Mutex
	calls int
}

func (c *countingRunner) Run(ctx context.Context, query string, hasDocument bool) sqlagent.Outcome {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Run(ctx, query, hasDocument)
}

func newVendorDB(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "vendors.db")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE Vendors (VendorID INTEGER PRIMARY KEY, Name TEXT, State TEXT, Certification TEXT)`,
		`INSERT INTO Vendors VALUES (1, 'Alpha Build', 'Johor', 'ISO 9001')`,
		`INSERT INTO Vendors VALUES (2, 'Beta Works', 'Selangor', 'CIDB G7')`,
		`INSERT INTO Vendors VALUES (3, 'Gamma Corp', 'Selangor', 'CIDB G7 ISO 45001 safety')`,
		`INSERT INTO Vendors VALUES (4, 'Delta Eng', 'Penang', NULL)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("%s: %v", s, err)
		}
	}
	return dsn
}

func vendorSchema() *schema.Schema {
	return &schema.Schema{
		Database: "vendordb",
		Tables: []schema.Table{
			{Name: "Vendors", Columns: []schema.Column{{Name: "VendorID"}, {Name: "Name"}, {Name: "State"}, {Name: "Certification"}}},
			{Name: "Invoices", Columns: []schema.Column{{Name: "InvoiceID"}, {Name: "VendorID"}, {Name: "Amount"}}},
		},
	}
}

type harness struct {
	agent      *Agent
	reasoner   *stubReasoner
	structured *countingRunner
	store      *storage.Store
}

func newHarness(t *testing.T, r *stubReasoner, emb termEmbedder) *harness {
	t.Helper()
	cache := schema.NewCache("")
	cache.Set(vendorSchema())

	d, err := sqlagent.DialectFor("sqlite")
	if err != nil {
		t.Fatal(err)
	}
	structured := &countingRunner{inner: sqlagent.NewPipeline(sqlagent.PipelineConfig{
		Schemas:   cache,
		Planner:   sqlagent.NewPlanner(r),
		Generator: sqlagent.NewGenerator(r, d, 50),
		Runner:    sqlagent.NewExecutor(sqlagent.ExecutorConfig{Driver: "sqlite", DSN: newVendorDB(t)}),
		MaxRows:   100,
	})}

	chunker, err := docs.NewChunker(500, 100)
	if err != nil {
		t.Fatal(err)
	}

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	a := New(Config{
		Router:     router.New(r),
		Structured: structured,
		Retrieval:  retrieval.NewPipeline(chunker, emb, 3),
		Scorer:     scoring.NewScorer(emb),
		Recorder:   store,
	})
	return &harness{agent: a, reasoner: r, structured: structured, store: store}
}

const requirementDoc = `Tender 42 requirements. Contractors must hold a valid CIDB registration.
Work sites are in Selangor. An ISO 45001 safety management certificate is preferred.
Submission closes in March.`

const selangorPlan = `{"intent":"filter vendors","tables":["Vendors"],"columns":["Name","State","Certification"],"filters":{"State":"Selangor"},"requires_rag":false,"reasoning":["filter"]}`

func TestRun_StructuredOnly(t *testing.T) {
	h := newHarness(t, &stubReasoner{
		mode: "structured_only",
		plan: selangorPlan,
		sql:  "SELECT Name, State, Certification FROM Vendors WHERE State = 'Selangor' AND Certification LIKE 'CIDB%' LIMIT 50",
	}, termEmbedder{})

	resp, err := h.agent.Run(context.Background(), Request{Query: "List vendors in Selangor with CIDB certification"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Mode != router.StructuredOnly {
		t.Errorf("mode = %q", resp.Mode)
	}
	s := resp.Structured
	if s == nil || !s.Success {
		t.Fatalf("structured result = %+v", s)
	}
	if s.Validation == nil || !s.Validation.Valid {
		t.Errorf("validation = %+v", s.Validation)
	}
	if s.RowCount != 2 {
		t.Errorf("row_count = %d, want 2", s.RowCount)
	}
	for _, c := range s.Columns {
		if c == "match_score" {
			t.Error("structured-only result has a match_score column")
		}
	}
	if resp.Retrieval != nil || resp.Ranked != nil {
		t.Errorf("unexpected retrieval/ranking: %+v %+v", resp.Retrieval, resp.Ranked)
	}

	run, err := h.store.GetRun(resp.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Mode != "structured_only" || run.RowCount != 2 || !strings.HasPrefix(run.SQL, "SELECT") {
		t.Errorf("audit run = %+v", run)
	}
}

func TestRun_RetrievalOnly(t *testing.T) {
	h := newHarness(t, &stubReasoner{mode: "retrieval_only"}, termEmbedder{})

	resp, err := h.agent.Run(context.Background(), Request{
		Query:    "Summarize the attached requirements",
		Document: &Document{Name: "tender.txt", Text: requirementDoc},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Mode != router.RetrievalOnly {
		t.Errorf("mode = %q", resp.Mode)
	}
	if h.structured.calls != 0 {
		t.Errorf("structured pipeline invoked %d times", h.structured.calls)
	}
	if resp.Structured != nil {
		t.Errorf("structured result = %+v, want nil", resp.Structured)
	}
	r := resp.Retrieval
	if r == nil || r.TotalChunks == 0 || len(r.Retrieved) == 0 || len(r.Retrieved) > 3 {
		t.Fatalf("retrieval result = %+v", r)
	}
	for _, kind := range h.reasoner.callsSeen {
		if kind != "route" {
			t.Errorf("reasoner called for %q", kind)
		}
	}
}

func TestRun_BothRanksRows(t *testing.T) {
	h := newHarness(t, &stubReasoner{
		mode: "both",
		plan: `{"intent":"rank vendors","tables":["Vendors"],"columns":["Name","State","Certification"],"filters":{},"requires_rag":true,"reasoning":["rank"]}`,
		sql:  "SELECT Name, State, Certification FROM Vendors LIMIT 50",
	}, termEmbedder{})

	resp, err := h.agent.Run(context.Background(), Request{
		Query:    "Rank vendors against these requirements",
		Document: &Document{Name: "tender.txt", Text: requirementDoc},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Mode != router.Both {
		t.Fatalf("mode = %q", resp.Mode)
	}
	if len(resp.Errors) != 0 {
		t.Fatalf("errors = %+v", resp.Errors)
	}
	if len(resp.Ranked) != 4 {
		t.Fatalf("ranked %d rows, want 4", len(resp.Ranked))
	}
	for i := 1; i < len(resp.Ranked); i++ {
		if resp.Ranked[i-1].MatchScore < resp.Ranked[i].MatchScore {
			t.Errorf("not sorted descending at %d", i)
		}
	}
	if name, _ := resp.Ranked[0].Get("Name"); name != "Gamma Corp" {
		t.Errorf("top vendor = %v, want Gamma Corp", name)
	}
	if resp.RequirementText == "" {
		t.Error("requirement_text_used is empty")
	}

	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Ranked []map[string]any `json:"ranked_result"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, row := range decoded.Ranked {
		if _, ok := row["match_score"]; !ok {
			t.Errorf("ranked row without match_score: %v", row)
		}
	}
}

func TestRun_RoutingFailureIsSurfaced(t *testing.T) {
	h := newHarness(t, &stubReasoner{routeErr: errors.New("provider down")}, termEmbedder{})

	_, err := h.agent.Run(context.Background(), Request{Query: "anything"})
	if !errors.Is(err, errs.ErrPlanning) {
		t.Fatalf("err = %v, want ErrPlanning", err)
	}
	runs, _ := h.store.ListRuns(storage.RunFilter{})
	if len(runs) != 1 || runs[0].Error == "" {
		t.Errorf("audit runs = %+v", runs)
	}
}

func TestRun_UnknownModeIsNotDefaulted(t *testing.T) {
	h := newHarness(t, &stubReasoner{mode: "sql_only"}, termEmbedder{})

	_, err := h.agent.Run(context.Background(), Request{Query: "List vendors"})
	if !errors.Is(err, errs.ErrPlanning) {
		t.Fatalf("err = %v, want ErrPlanning", err)
	}
	if h.structured.calls != 0 {
		t.Error("structured pipeline ran after a failed routing decision")
	}
}

func TestRun_ValidationRejectionSkipsScoring(t *testing.T) {
	h := newHarness(t, &stubReasoner{
		mode: "both",
		plan: selangorPlan,
		sql:  "SELECT Name FROM Vendors; DROP TABLE Vendors",
	}, termEmbedder{})

	resp, err := h.agent.Run(context.Background(), Request{
		Query:    "Rank vendors",
		Document: &Document{Text: requirementDoc},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := resp.Structured
	if s == nil || s.Stage != sqlagent.StageValidation || s.Reason != "Multiple SQL statements detected." {
		t.Fatalf("structured = %+v", s)
	}
	if resp.Retrieval == nil {
		t.Error("retrieval result missing")
	}
	if resp.Ranked != nil {
		t.Error("rows ranked after a rejected query")
	}
	run, _ := h.store.GetRun(resp.ID)
	if run.Stage != sqlagent.StageValidation || run.Reason != s.Reason {
		t.Errorf("audit run = %+v", run)
	}
}

func TestRun_EmbeddingFailureAbortsRetrievalOnly(t *testing.T) {
	h := newHarness(t, &stubReasoner{
		mode: "both",
		plan: selangorPlan,
		sql:  "SELECT Name, State FROM Vendors WHERE State = 'Selangor' LIMIT 50",
	}, termEmbedder{err: errors.New("embedding quota exceeded")})

	resp, err := h.agent.Run(context.Background(), Request{
		Query:    "Rank vendors",
		Document: &Document{Text: requirementDoc},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Structured == nil || !resp.Structured.Success {
		t.Errorf("structured result should stand: %+v", resp.Structured)
	}
	if resp.Retrieval != nil || resp.Ranked != nil {
		t.Error("retrieval or ranking present after embedding failure")
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Step != StepRetrieval || resp.Errors[0].Kind != "embedding_error" {
		t.Errorf("errors = %+v", resp.Errors)
	}
}

func TestRun_RetrievalWithoutDocumentIsSkipped(t *testing.T) {
	h := newHarness(t, &stubReasoner{mode: "retrieval_only"}, termEmbedder{})

	resp, err := h.agent.Run(context.Background(), Request{Query: "Summarize"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Retrieval != nil || resp.Structured != nil {
		t.Errorf("response = %+v", resp)
	}
}

func TestRun_EmptyQuery(t *testing.T) {
	h := newHarness(t, &stubReasoner{}, termEmbedder{})
	if _, err := h.agent.Run(context.Background(), Request{}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
}
