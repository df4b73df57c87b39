package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	if err := Save(path, vendorSchema()); err != nil {
		t.Fatal(err)
	}

	c := NewCache(path)
	w := NewWatcher(c, time.Hour)

	reloaded, err := w.RunOnce()
	if err != nil || !reloaded {
		t.Fatalf("first RunOnce = %v, %v; want true, nil", reloaded, err)
	}
	if reloaded, _ := w.RunOnce(); reloaded {
		t.Error("unchanged file was reloaded")
	}

	s := vendorSchema()
	s.Tables = append(s.Tables, Table{Name: "Contracts", Columns: []Column{{Name: "ContractID"}}})
	if err := Save(path, s); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	reloaded, err = w.RunOnce()
	if err != nil || !reloaded {
		t.Fatalf("RunOnce after change = %v, %v; want true, nil", reloaded, err)
	}
	snap, err := c.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !snap.HasTable("Contracts") {
		t.Error("new table missing after reload")
	}
}

func TestWatcher_BadFileKeepsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	if err := Save(path, vendorSchema()); err != nil {
		t.Fatal(err)
	}
	c := NewCache(path)
	w := NewWatcher(c, time.Hour)
	if _, err := w.RunOnce(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Minute)
	os.Chtimes(path, future, future)

	if _, err := w.RunOnce(); err == nil {
		t.Fatal("expected error for corrupt schema file")
	}
	snap, err := c.Snapshot()
	if err != nil || !snap.HasTable("Vendors") {
		t.Errorf("previous snapshot lost: %v", err)
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	w := NewWatcher(NewCache(filepath.Join(t.TempDir(), "absent.json")), 0)
	if w.poll != time.Minute {
		t.Errorf("default poll = %v, want 1m", w.poll)
	}
	if _, err := w.RunOnce(); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	if err := Save(path, vendorSchema()); err != nil {
		t.Fatal(err)
	}
	c := NewCache(path)
	w := NewWatcher(c, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, err := c.Snapshot(); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher never loaded the schema")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
