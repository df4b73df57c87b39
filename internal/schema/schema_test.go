package schema

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func vendorSchema() *Schema {
	return &Schema{
		Database: "vendordb",
		Tables: []Table{
			{
				Name:        "Vendors",
				Columns:     []Column{{Name: "VendorID", Type: "int"}, {Name: "Name", Type: "nvarchar"}, {Name: "State", Type: "nvarchar", Nullable: true}},
				PrimaryKeys: []string{"VendorID"},
			},
			{
				Name:    "Certifications",
				Columns: []Column{{Name: "CertID"}, {Name: "VendorID"}, {Name: "CertName"}},
				ForeignKeys: []ForeignKey{
					{Name: "FK_Cert_Vendor", Column: "VendorID", ReferencesTable: "Vendors", ReferencesColumn: "VendorID"},
				},
			},
			{Name: "Spend", Columns: []Column{{Name: "VendorID"}, {Name: "Amount"}}},
		},
	}
}

func TestSummary(t *testing.T) {
	want := "Table: Vendors | Columns: VendorID, Name, State\n" +
		"Table: Certifications | Columns: CertID, VendorID, CertName\n" +
		"Table: Spend | Columns: VendorID, Amount"
	if got := vendorSchema().Summary(); got != want {
		t.Errorf("Summary() =\n%s\nwant\n%s", got, want)
	}
}

func TestRelevant_ScopesToNamedTables(t *testing.T) {
	got := vendorSchema().Relevant([]string{"certifications", "VENDORS", "Unknown"})
	if len(got) != 2 {
		t.Fatalf("got %d tables, want 2", len(got))
	}
	if got[0].Name != "Vendors" || got[1].Name != "Certifications" {
		t.Errorf("order = [%s %s], want schema order", got[0].Name, got[1].Name)
	}
	if len(vendorSchema().Relevant(nil)) != 0 {
		t.Error("Relevant(nil) should be empty")
	}
}

func TestHasTable(t *testing.T) {
	s := vendorSchema()
	if !s.HasTable("spend") {
		t.Error("HasTable(spend) = false")
	}
	if s.HasTable("Users") {
		t.Error("HasTable(Users) = true")
	}
}

func TestSaveLoad_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"schema_cache.json", "schema.yaml"} {
		path := filepath.Join(dir, "nested", name)
		if err := Save(path, vendorSchema()); err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		if got.Database != "vendordb" || len(got.Tables) != 3 {
			t.Errorf("%s: got %+v", name, got)
		}
		if got.Tables[1].ForeignKeys[0].ReferencesTable != "Vendors" {
			t.Errorf("%s: foreign key lost: %+v", name, got.Tables[1].ForeignKeys)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, []byte(`{"database":"x","tables":[]}`), 0o644)
	if _, err := Load(empty); err == nil {
		t.Error("expected error for schema without tables")
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"tables":`), 0o644)
	if _, err := Load(bad); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestCache_ReloadKeepsSnapshotOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	c := NewCache(path)
	if _, err := c.Snapshot(); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("Snapshot before load: err = %v, want ErrNotLoaded", err)
	}

	if err := Save(path, vendorSchema()); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	first, _ := c.Snapshot()

	os.WriteFile(path, []byte("garbage"), 0o644)
	if err := c.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	cur, _ := c.Snapshot()
	if cur != first {
		t.Error("failed reload replaced the snapshot")
	}
}

func TestCache_ConcurrentReaders(t *testing.T) {
	c := NewCache("")
	c.Set(vendorSchema())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s, err := c.Snapshot()
				if err != nil || len(s.Tables) != 3 {
					t.Errorf("snapshot = %v, %v", s, err)
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		c.Set(vendorSchema())
	}
	wg.Wait()
}
