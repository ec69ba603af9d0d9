// Archiver is the per-writer state machine that routes archived messages
// to databases, indexes, and data files (spec.md §4.6). Grounded on the
// teacher's set.go (the write path: normalise, locate, append, record)
// and db.go's Config zeroed-default convention, generalised from a
// single document store to the multi-database/multi-index routing the
// schema decomposition drives.
package fdb

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/ecmwf/fdb-sub005/axis"
	"github.com/ecmwf/fdb-sub005/btree"
	"github.com/ecmwf/fdb-sub005/fieldref"
	"github.com/ecmwf/fdb-sub005/filestore"
	"github.com/ecmwf/fdb-sub005/key"
	"github.com/ecmwf/fdb-sub005/schema"
	"github.com/ecmwf/fdb-sub005/toc"
)

// ArchiverConfig configures an Archiver. Zero values fall back to
// defaults, matching the teacher's Config convention (jpl-au-folio
// db.go: "if config.X == 0 { config.X = default }").
type ArchiverConfig struct {
	// Root is the directory under which database directories are
	// created, one per distinct database-key fingerprint.
	Root string

	// FdbVersion is stamped into every TOC record this archiver writes.
	FdbVersion uint32

	// HashAlgorithm selects the digest used to pack fingerprints into
	// fixed-size B-tree keys (key.AlgXXHash3 by default).
	HashAlgorithm int

	// Strict enables spec.md §4.1 duplicate-key rejection within one
	// archiver's session.
	Strict bool

	Logger *zap.Logger
}

func (c *ArchiverConfig) setDefaults() {
	if c.FdbVersion == 0 {
		c.FdbVersion = 1
	}
	if c.HashAlgorithm == 0 {
		c.HashAlgorithm = key.AlgXXHash3
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// archiveIndex is one open B-tree index within an archiveDB.
type archiveIndex struct {
	digestHex string
	relPath   string
	tree      *btree.Tree
	axis      *axis.IndexAxis
	dirty     bool
}

// archiveDB is one open database directory on the write side.
type archiveDB struct {
	db      *Database
	writer  *toc.Writer
	files   *filestore.FileStore
	indexes map[string]*archiveIndex // keyed by digestHex
}

// dataHandle is one open append-mode data file, shared by every index
// that happens to route records into it (spec.md §4.6: "handles:
// Map<DataPath, AppendHandle>").
type dataHandle struct {
	path   string
	file   *os.File
	offset int64
}

// Archiver routes archive(key, bytes) calls to the right database,
// index, and data file, and commits them durably on Flush (spec.md
// §4.6).
type Archiver struct {
	mu sync.Mutex

	root     string
	schema   *schema.Schema
	registry *key.Registry
	session  *key.Session
	cfg      ArchiverConfig

	databases map[string]*archiveDB // keyed by database digestHex
	handles   map[string]*dataHandle
	prev      *key.Key // spec.md §9: "previous key" locality hint, explicit state

	poisoned error
}

// NewArchiver returns an Archiver rooted at cfg.Root, decomposing keys
// against sch.
func NewArchiver(sch *schema.Schema, reg *key.Registry, cfg ArchiverConfig) *Archiver {
	cfg.setDefaults()
	return &Archiver{
		root:      cfg.Root,
		schema:    sch,
		registry:  reg,
		session:   key.NewSession(cfg.Strict),
		cfg:       cfg,
		databases: make(map[string]*archiveDB),
		handles:   make(map[string]*dataHandle),
	}
}

func (a *Archiver) digestHex(fingerprint string) string {
	d := key.Digest(fingerprint, a.cfg.HashAlgorithm)
	return hex.EncodeToString(d[:])
}

// Archive decomposes k via the schema, routes it to the right database
// and index, appends payload to that index's data file, and records the
// resulting FieldRef in the index's B-tree (spec.md §4.6 steps 1-6).
func (a *Archiver) Archive(k *key.Key, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.poisoned != nil {
		return fmt.Errorf("%w: %v", ErrPoisoned, a.poisoned)
	}

	decomposed, err := a.schema.Decompose(k)
	if err != nil {
		return err
	}

	dbFingerprint := decomposed.Database.Fingerprint(decomposed.DatabaseOrder())
	dbDigest := a.digestHex(dbFingerprint)
	adb, err := a.getOrCreateDatabase(dbDigest, decomposed.Database)
	if err != nil {
		return err
	}

	idxFingerprint := decomposed.Index.Fingerprint(decomposed.IndexOrder())
	idxDigest := a.digestHex(idxFingerprint)
	aidx, err := a.getOrCreateIndex(adb, idxDigest)
	if err != nil {
		return err
	}

	datumFingerprint := decomposed.Datum.Fingerprint(decomposed.DatumOrder())
	if err := a.session.Mark(dbFingerprint + "/" + idxFingerprint + "/" + datumFingerprint); err != nil {
		return err
	}

	// One data file per index: the simplest routing that satisfies
	// spec.md §4.6's "data-path(key)" without inventing a second
	// key-decomposition axis the spec does not define.
	handle, err := a.getOrCreateHandle(adb, idxDigest)
	if err != nil {
		return err
	}

	n, err := handle.file.Write(payload)
	if err != nil {
		return fmt.Errorf("fdb: write payload: %w", err)
	}
	offset := handle.offset
	handle.offset += int64(n)

	fileID, err := adb.files.Insert(handle.path)
	if err != nil {
		return fmt.Errorf("fdb: file store insert: %w", err)
	}

	ref := fieldref.FieldRef{
		FileID: fileID,
		Offset: uint64(offset),
		Length: uint64(n),
		Kind:   fieldref.KindLocal,
	}

	digest := key.Digest(datumFingerprint, a.cfg.HashAlgorithm)
	if _, err := aidx.tree.Set(btree.Key(digest), btree.Value(ref.Encode())); err != nil {
		return fmt.Errorf("fdb: btree set: %w", err)
	}
	aidx.axis.Insert(decomposed.Datum)
	aidx.dirty = true

	a.prev = k.Clone()
	return nil
}

func (a *Archiver) getOrCreateDatabase(digestHex string, dbKey *key.Key) (*archiveDB, error) {
	if adb, ok := a.databases[digestHex]; ok {
		return adb, nil
	}

	dir := filepath.Join(a.root, digestHex)
	var db *Database
	var writer *toc.Writer
	var err error

	if _, statErr := os.Stat(dir); statErr == nil {
		db, err = openExisting(dir, a.registry)
		if err != nil {
			return nil, err
		}
		if db.State == StateWiped {
			return nil, fmt.Errorf("%w: database %s is wiped", ErrWrongState, dir)
		}
		writer, err = toc.NewWriter(tocPath(dir), a.cfg.FdbVersion)
		if err != nil {
			return nil, err
		}
	} else {
		db, writer, err = createDatabase(dir, dbKey, a.schema, a.cfg.FdbVersion)
		if err != nil {
			return nil, err
		}
	}

	files := filestore.New(dir, false)
	if raw, err := os.ReadFile(filesPath(dir)); err == nil {
		if loaded, err := filestore.Decode(raw, dir, false); err == nil {
			files = loaded
		}
	}

	adb := &archiveDB{
		db:      db,
		writer:  writer,
		files:   files,
		indexes: make(map[string]*archiveIndex),
	}
	a.databases[digestHex] = adb
	return adb, nil
}

func (a *Archiver) getOrCreateIndex(adb *archiveDB, digestHex string) (*archiveIndex, error) {
	if aidx, ok := adb.indexes[digestHex]; ok {
		return aidx, nil
	}

	path := indexPath(adb.db.Dir, digestHex)
	tree, err := btree.Open(path, false)
	if err != nil {
		return nil, fmt.Errorf("fdb: open index %s: %w", path, err)
	}

	ax := axis.New()
	if existing, err := os.ReadFile(axisPath(adb.db.Dir, digestHex)); err == nil {
		if loaded, err := axis.Decode(existing); err == nil {
			ax = loaded
		}
	}

	aidx := &archiveIndex{
		digestHex: digestHex,
		relPath:   digestHex + ".index",
		tree:      tree,
		axis:      ax,
	}
	adb.indexes[digestHex] = aidx
	return aidx, nil
}

func (a *Archiver) getOrCreateHandle(adb *archiveDB, name string) (*dataHandle, error) {
	path := dataPath(adb.db.Dir, name)
	if h, ok := a.handles[path]; ok {
		return h, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("fdb: open data file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	h := &dataHandle{path: path, file: f, offset: info.Size()}
	a.handles[path] = h
	return h, nil
}

// Flush commits every open handle and dirty index durably (spec.md
// §4.6: "for each open handle fsync+close; for each dirty index
// btree.flush then append TOC_INDEX... clear caches"). Flush is
// idempotent: calling it with nothing dirty is a cheap no-op. Any I/O
// failure poisons the archiver (spec.md §7).
func (a *Archiver) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.flushLocked(); err != nil {
		a.poisoned = err
		return err
	}
	return nil
}

func (a *Archiver) flushLocked() error {
	for path, h := range a.handles {
		if err := h.file.Sync(); err != nil {
			return fmt.Errorf("fdb: fsync %s: %w", path, err)
		}
		if err := h.file.Close(); err != nil {
			return fmt.Errorf("fdb: close %s: %w", path, err)
		}
		delete(a.handles, path)
	}

	for _, adb := range a.databases {
		for _, aidx := range adb.indexes {
			if !aidx.dirty {
				continue
			}
			if err := aidx.tree.Flush(); err != nil {
				return fmt.Errorf("fdb: flush index %s: %w", aidx.relPath, err)
			}
			axBytes, err := aidx.axis.Encode()
			if err != nil {
				return fmt.Errorf("fdb: encode axis %s: %w", aidx.relPath, err)
			}
			if err := os.WriteFile(axisPath(adb.db.Dir, aidx.digestHex), axBytes, 0644); err != nil {
				return fmt.Errorf("fdb: write axis %s: %w", aidx.relPath, err)
			}

			var metadata [32]byte
			d, err := hex.DecodeString(aidx.digestHex)
			if err == nil {
				copy(metadata[:], d)
			}
			if err := adb.writer.Append(toc.TagIndex, metadata, []byte(aidx.relPath)); err != nil {
				return fmt.Errorf("fdb: append TOC_INDEX for %s: %w", aidx.relPath, err)
			}
			aidx.dirty = false
		}
		if err := adb.writer.Flush(); err != nil {
			return fmt.Errorf("fdb: flush toc for %s: %w", adb.db.Dir, err)
		}

		filesBytes, err := adb.files.Encode()
		if err != nil {
			return fmt.Errorf("fdb: encode file store for %s: %w", adb.db.Dir, err)
		}
		if err := os.WriteFile(filesPath(adb.db.Dir), filesBytes, 0644); err != nil {
			return fmt.Errorf("fdb: write file store for %s: %w", adb.db.Dir, err)
		}
	}
	return nil
}

// Close flushes pending writes and releases every open file handle
// (TOC writers, B-tree files). Best-effort: it keeps going after the
// first error so every handle gets a chance to close, matching spec.md
// §7's "destruction best-effort releases locks and closes file
// descriptors regardless."
func (a *Archiver) Close() error {
	flushErr := a.Flush()

	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	if flushErr != nil {
		firstErr = flushErr
	}
	for _, adb := range a.databases {
		for _, aidx := range adb.indexes {
			if err := aidx.tree.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := adb.writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
