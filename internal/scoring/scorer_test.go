package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/emmi-yeo/vendor-intelligence/internal/errs"
)

// termEmbedder counts occurrences of each term in the lowercased text.
type termEmbedder struct {
	terms []string
	calls [][]string
	err   error
}

func (e *termEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls = append(e.calls, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		v := make([]float32, len(e.terms))
		for j, term := range e.terms {
			v[j] = float32(strings.Count(t, term))
		}
		out[i] = v
	}
	return out, nil
}

var vendorColumns = []string{"VendorName", "State", "Certification"}

func vendorRows() [][]any {
	return [][]any{
		{"Alpha Build", "Johor", "ISO 9001"},
		{"Beta Works", "Selangor", "CIDB G7"},
		{"Gamma Corp", "Penang", nil},
		{"Delta Eng", "Selangor", "CIDB G7"},
	}
}

func TestScore_RanksDescending(t *testing.T) {
	emb := &termEmbedder{terms: []string{"cidb", "selangor", "iso"}}
	s := NewScorer(emb)

	r, err := s.Score(context.Background(), vendorColumns, vendorRows(), []string{"Must hold CIDB", "based in Selangor"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if r.RequirementText != "Must hold CIDB based in Selangor" {
		t.Errorf("requirement text = %q", r.RequirementText)
	}
	if len(r.Records) != 4 {
		t.Fatalf("got %d records, want 4", len(r.Records))
	}
	for i := 1; i < len(r.Records); i++ {
		if r.Records[i-1].MatchScore < r.Records[i].MatchScore {
			t.Errorf("records not descending at %d: %v < %v", i, r.Records[i-1].MatchScore, r.Records[i].MatchScore)
		}
	}
	// Beta and Delta tie; Beta came first.
	if name, _ := r.Records[0].Get("vendorname"); name != "Beta Works" {
		t.Errorf("first = %v, want Beta Works", name)
	}
	if name, _ := r.Records[1].Get("VendorName"); name != "Delta Eng" {
		t.Errorf("second = %v, want Delta Eng", name)
	}
	if len(emb.calls) != 2 || len(emb.calls[0]) != 1 || len(emb.calls[1]) != 4 {
		t.Errorf("embed calls = %v, want one requirement call then one batch of 4", emb.calls)
	}
}

func TestScore_Idempotent(t *testing.T) {
	s := NewScorer(&termEmbedder{terms: []string{"cidb", "selangor", "iso"}})
	chunks := []string{"ISO 9001 and CIDB"}

	a, err := s.Score(context.Background(), vendorColumns, vendorRows(), chunks)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Score(context.Background(), vendorColumns, vendorRows(), chunks)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Records {
		if a.Records[i].MatchScore != b.Records[i].MatchScore || a.Records[i].Values[0] != b.Records[i].Values[0] {
			t.Errorf("record %d differs between runs: %+v vs %+v", i, a.Records[i], b.Records[i])
		}
	}
}

func TestScore_NoOpWithoutInput(t *testing.T) {
	emb := &termEmbedder{terms: []string{"x"}}
	s := NewScorer(emb)
	if r, err := s.Score(context.Background(), vendorColumns, nil, []string{"x"}); r != nil || err != nil {
		t.Errorf("no rows: got %v, %v", r, err)
	}
	if r, err := s.Score(context.Background(), vendorColumns, vendorRows(), nil); r != nil || err != nil {
		t.Errorf("no chunks: got %v, %v", r, err)
	}
	if len(emb.calls) != 0 {
		t.Errorf("embedder called %d times, want 0", len(emb.calls))
	}
}

func TestScore_EmbeddingFailure(t *testing.T) {
	s := NewScorer(&termEmbedder{err: errors.New("rate limited")})
	_, err := s.Score(context.Background(), vendorColumns, vendorRows(), []string{"x"})
	if !errors.Is(err, errs.ErrEmbedding) {
		t.Fatalf("err = %v, want ErrEmbedding", err)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.IsNaN(got) || math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
			if rev := Cosine(tt.b, tt.a); rev != got {
				t.Errorf("Cosine not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestRank_StableOnTies(t *testing.T) {
	recs := []Record{
		{Values: []any{"a"}, MatchScore: 0.5},
		{Values: []any{"b"}, MatchScore: 0.9},
		{Values: []any{"c"}, MatchScore: 0.5},
		{Values: []any{"d"}, MatchScore: 0.9},
		{Values: []any{"e"}, MatchScore: 0.5},
	}
	Rank(recs)
	var got []string
	for _, r := range recs {
		got = append(got, r.Values[0].(string))
	}
	if strings.Join(got, "") != "bdace" {
		t.Errorf("order = %v, want [b d a c e]", got)
	}
}

func TestRowText(t *testing.T) {
	got := RowText(vendorColumns, []any{"Gamma Corp", "Penang", nil})
	want := "VendorName: Gamma Corp | State: Penang | Certification: NULL"
	if got != want {
		t.Errorf("RowText = %q, want %q", got, want)
	}
}

func TestRecord_MarshalJSONKeepsColumnOrder(t *testing.T) {
	r := Record{Columns: []string{"Zeta", "Alpha"}, Values: []any{"z", 1}, MatchScore: 0.25}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"Zeta":"z","Alpha":1,"match_score":0.25}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}
