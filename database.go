// Database lifecycle and directory layout (spec.md §3, §6): grounded on
// the teacher's db.go (Open/Close, Config zeroed-default pattern, crash
// detection before first use) generalised from a single document-store
// file to a directory of toc/schema/index/data files.
package fdb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ecmwf/fdb-sub005/key"
	"github.com/ecmwf/fdb-sub005/schema"
	"github.com/ecmwf/fdb-sub005/toc"
)

// State is a database directory's lifecycle stage (spec.md §4.5 "State
// machine of a database directory").
type State int

const (
	StateEmpty State = iota
	StateLive
	StateWiped
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLive:
		return "live"
	case StateWiped:
		return "wiped"
	default:
		return "unknown"
	}
}

// Database is one catalogue database directory: a TOC log, a frozen
// schema snapshot, zero or more index B-trees, and zero or more data
// files (spec.md §3).
type Database struct {
	mu sync.Mutex

	Dir    string
	DbKey  *key.Key
	State  State
	Schema *schema.Schema
}

func tocPath(dir string) string    { return filepath.Join(dir, "toc") }
func schemaPath(dir string) string { return filepath.Join(dir, "schema") }

// indexPath returns the path of the B-tree file for an index whose
// fingerprint digest (hex-encoded) is digestHex.
func indexPath(dir, digestHex string) string {
	return filepath.Join(dir, digestHex+".index")
}

// axisPath returns the sidecar file holding an index's serialised axis.
// spec.md doesn't fix this file's name; it is an implementation detail
// of how this package persists §4.2's per-index observed-value sets
// across process restarts.
func axisPath(dir, digestHex string) string {
	return filepath.Join(dir, digestHex+".axis")
}

func dataPath(dir, name string) string {
	return filepath.Join(dir, name+".data")
}

// filesPath is the sidecar holding the database's FileStore (the
// path<->id bijection referenced by FieldRef.FileID, spec.md §4.3, §6),
// persisted the same way the axis sidecar persists an index's observed
// values: a plain file next to toc, rewritten whole on Flush.
func filesPath(dir string) string { return filepath.Join(dir, ".files") }

// wipeMarkerPath is touched by Wipe before the grace period so a
// concurrent retriever can immediately treat the database as empty
// (spec.md §8 "Wipe finality: readers return empty results even before
// physical deletion completes") without waiting to replay the TOC.
func wipeMarkerPath(dir string) string { return filepath.Join(dir, ".wiped") }

// openExisting loads an already-created database directory: its frozen
// schema snapshot and current lifecycle state, by replaying the TOC.
func openExisting(dir string, reg *key.Registry) (*Database, error) {
	frozen, err := os.ReadFile(schemaPath(dir))
	if err != nil {
		return nil, fmt.Errorf("fdb: read frozen schema for %s: %w", dir, err)
	}
	sch, err := schema.LoadSchema(frozen, reg)
	if err != nil {
		return nil, fmt.Errorf("fdb: load frozen schema for %s: %w", dir, err)
	}

	db := &Database{Dir: dir, Schema: sch, State: StateEmpty}

	if _, err := os.Stat(wipeMarkerPath(dir)); err == nil {
		db.State = StateWiped
		return db, nil
	}

	records, err := toc.NewReader().ReadAll(tocPath(dir))
	if err != nil {
		return nil, fmt.Errorf("fdb: replay toc for %s: %w", dir, err)
	}
	for _, rec := range records {
		switch rec.Tag {
		case toc.TagInit:
			db.State = StateLive
		case toc.TagWipe:
			db.State = StateWiped
		}
	}
	return db, nil
}

// createDatabase makes a brand new database directory: mkdir, freeze the
// live schema, and append TOC_INIT. Returns the Database and the open
// Writer the caller (Archiver) keeps for subsequent TOC_INDEX appends.
func createDatabase(dir string, dbKey *key.Key, sch *schema.Schema, fdbVersion uint32) (*Database, *toc.Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("fdb: mkdir %s: %w", dir, err)
	}

	def, err := schema.Snapshot(sch)
	if err != nil {
		return nil, nil, fmt.Errorf("fdb: snapshot schema for %s: %w", dir, err)
	}
	frozen, err := schema.Freeze(def)
	if err != nil {
		return nil, nil, fmt.Errorf("fdb: freeze schema for %s: %w", dir, err)
	}
	if err := os.WriteFile(schemaPath(dir), frozen, 0644); err != nil {
		return nil, nil, fmt.Errorf("fdb: write frozen schema for %s: %w", dir, err)
	}

	w, err := toc.NewWriter(tocPath(dir), fdbVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("fdb: open toc writer for %s: %w", dir, err)
	}
	if err := w.Append(toc.TagInit, [32]byte{}, nil); err != nil {
		w.Close()
		return nil, nil, fmt.Errorf("fdb: append TOC_INIT for %s: %w", dir, err)
	}
	if err := w.Flush(); err != nil {
		w.Close()
		return nil, nil, fmt.Errorf("fdb: flush TOC_INIT for %s: %w", dir, err)
	}

	return &Database{Dir: dir, DbKey: dbKey, Schema: sch, State: StateLive}, w, nil
}
