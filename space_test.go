package fdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ecmwf/fdb-sub005/schema"
)

func archiveOne(t *testing.T, dir string, sch *schema.Schema) {
	t.Helper()
	a := NewArchiver(sch, sch.Registry, ArchiverConfig{Root: dir})
	k := testKey(t, sch.Registry, map[string]string{
		"class": "od", "stream": "oper", "date": "20260101", "time": "00",
		"domain": "g", "type": "an", "levtype": "sfc", "param": "129",
	})
	if err := a.Archive(k, []byte("payload")); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPurgeReportsActiveFiles(t *testing.T) {
	root := t.TempDir()
	sch := testSchema()
	archiveOne(t, root, sch)

	entries, err := os.ReadDir(root)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one database dir, got %v %v", entries, err)
	}
	dbDir := filepath.Join(root, entries[0].Name())

	report, err := Purge(dbDir, nil, false)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if report.OrphanFiles != 0 {
		t.Errorf("OrphanFiles = %d, want 0", report.OrphanFiles)
	}
	if report.ActiveFiles == 0 {
		t.Errorf("ActiveFiles = 0, want at least index+data")
	}
}

func TestPurgeDoitRemovesOrphan(t *testing.T) {
	root := t.TempDir()
	sch := testSchema()
	archiveOne(t, root, sch)

	entries, _ := os.ReadDir(root)
	dbDir := filepath.Join(root, entries[0].Name())

	orphanPath := filepath.Join(dbDir, "stray.junk")
	if err := os.WriteFile(orphanPath, []byte("junk"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	report, err := Purge(dbDir, nil, true)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if report.OrphanFiles != 1 {
		t.Fatalf("OrphanFiles = %d, want 1", report.OrphanFiles)
	}
	if _, err := os.Stat(orphanPath); !os.IsNotExist(err) {
		t.Error("expected stray.junk to be deleted")
	}
}

func TestWipeMakesDatabaseEmptyToReaders(t *testing.T) {
	root := t.TempDir()
	sch := testSchema()
	archiveOne(t, root, sch)

	entries, _ := os.ReadDir(root)
	dbDir := filepath.Join(root, entries[0].Name())

	if _, err := Wipe(dbDir, false, []byte("secret")); err != nil {
		t.Fatalf("Wipe: %v", err)
	}

	r, err := NewRetriever(sch, sch.Registry, RetrieverConfig{Root: root})
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	req := &schema.Request{Values: map[string][]string{
		"class": {"od"}, "stream": {"oper"}, "date": {"20260101"}, "time": {"00"},
		"domain": {"g"}, "type": {"an"}, "levtype": {"sfc"}, "param": {"129"},
	}}
	matches, err := r.Retrieve(req, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches after wipe, want 0", len(matches))
	}
}

func TestWipeDoitDeletesFiles(t *testing.T) {
	root := t.TempDir()
	sch := testSchema()
	archiveOne(t, root, sch)

	entries, _ := os.ReadDir(root)
	dbDir := filepath.Join(root, entries[0].Name())

	if _, err := Wipe(dbDir, true, nil); err != nil {
		t.Fatalf("Wipe: %v", err)
	}

	// toc and the .wiped marker are deliberately not removed: toc keeps
	// the durable TOC_WIPE record and the marker keeps giving readers an
	// O(1) empty result without replaying it (spec.md §8).
	remaining, err := os.ReadDir(dbDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range remaining {
		if e.Name() != "toc" && e.Name() != ".wiped" {
			t.Errorf("unexpected surviving file %q after doit wipe", e.Name())
		}
	}
	if len(remaining) != 2 {
		t.Errorf("got %d files remaining after doit wipe, want 2 (toc, .wiped)", len(remaining))
	}
}

func TestMoveIsNotImplemented(t *testing.T) {
	if err := Move("a", "b"); err == nil {
		t.Fatal("expected error")
	}
}
