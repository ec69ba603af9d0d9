// Retriever is the per-reader state machine that expands a request,
// selects matching indexes, and streams a composite data handle (spec.md
// §4.7). Grounded on the teacher's get.go/search.go (locate a record,
// then read its bytes) and scan.go's sequential-read discipline,
// generalised from a single-file binary search to schema-driven
// multi-database/multi-index fan-out with an LRU of opened databases.
package fdb

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ecmwf/fdb-sub005/axis"
	"github.com/ecmwf/fdb-sub005/btree"
	"github.com/ecmwf/fdb-sub005/fieldref"
	"github.com/ecmwf/fdb-sub005/filestore"
	"github.com/ecmwf/fdb-sub005/key"
	"github.com/ecmwf/fdb-sub005/schema"
	"github.com/ecmwf/fdb-sub005/toc"
)

// Notifier receives a wind-conversion signal: a derivative field built
// from U/V components rather than read verbatim (spec.md §4.7).
// Retrieve accepts a Notifier but never calls it, since it only returns
// stored fields and builds no derived ones.
type Notifier interface {
	WindConversion(k *key.Key)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(k *key.Key)

func (f NotifierFunc) WindConversion(k *key.Key) { f(k) }

// RetrieverConfig configures a Retriever.
type RetrieverConfig struct {
	Root          string
	HashAlgorithm int
	// CacheSize bounds the LRU of opened databases (default 32).
	CacheSize int
	Logger    *zap.Logger
}

func (c *RetrieverConfig) setDefaults() {
	if c.HashAlgorithm == 0 {
		c.HashAlgorithm = key.AlgXXHash3
	}
	if c.CacheSize == 0 {
		c.CacheSize = 32
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// readIndex is one read-only opened B-tree index plus its axis, used to
// prune and then query during a retrieval.
type readIndex struct {
	digestHex string
	relPath   string
	tree      *btree.Tree
	axis      *axis.IndexAxis
	cleared   bool
}

// readDB is one opened database directory on the read side, cached in
// the Retriever's LRU keyed by database digest. The TOC is read once at
// open and no TOC handle is kept; eviction closes the B-tree handles.
type readDB struct {
	db      *Database
	files   *filestore.FileStore
	indexes map[string]*readIndex
}

func (r *readDB) Close() {
	for _, idx := range r.indexes {
		idx.tree.Close()
	}
}

// Retriever answers retrieve(request, notifier) by expanding the request
// against the schema, consulting the LRU of opened databases, and
// streaming a composite reader over every matching field (spec.md §4.7).
type Retriever struct {
	mu sync.Mutex

	root     string
	schema   *schema.Schema
	registry *key.Registry
	cfg      RetrieverConfig

	cache *lru.Cache[string, *readDB]
}

// NewRetriever returns a Retriever rooted at cfg.Root, expanding requests
// against sch.
func NewRetriever(sch *schema.Schema, reg *key.Registry, cfg RetrieverConfig) (*Retriever, error) {
	cfg.setDefaults()
	cache, err := lru.NewWithEvict[string, *readDB](cfg.CacheSize, func(_ string, db *readDB) {
		db.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("fdb: new retriever cache: %w", err)
	}
	return &Retriever{
		root:     cfg.Root,
		schema:   sch,
		registry: reg,
		cfg:      cfg,
		cache:    cache,
	}, nil
}

func (r *Retriever) digestHex(fingerprint string) string {
	d := key.Digest(fingerprint, r.cfg.HashAlgorithm)
	return hex.EncodeToString(d[:])
}

// Match is one resolved field: the datum key that produced it and its
// physical location.
type Match struct {
	Datum    *key.Key
	Location fieldref.Location
}

// Retrieve expands req via the schema (spec.md §4.7 steps 1-4), returning
// every matching Match in schema-declared keyword order (deterministic,
// stable across runs, per spec.md §4.7 step 5). notifier may be nil; it
// is not signalled. A candidate database with no directory on disk
// contributes no matches rather than an error.
func (r *Retriever) Retrieve(req *schema.Request, notifier Notifier) ([]Match, error) {
	indexKeys, err := r.schema.ExpandIndexes(req)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, ik := range indexKeys {
		dbFingerprint := ik.Database.Fingerprint(ik.DatabaseOrder())
		dbDigest := r.digestHex(dbFingerprint)

		rdb, err := r.open(dbDigest)
		if err != nil {
			if err == ErrDatabaseNotFound {
				continue
			}
			return nil, err
		}
		if rdb.db.State != StateLive {
			continue
		}

		idxFingerprint := ik.Index.Fingerprint(ik.IndexOrder())
		idxDigest := r.digestHex(idxFingerprint)
		idx, ok := rdb.indexes[idxDigest]
		if !ok || idx.cleared {
			continue
		}

		datums, err := r.schema.ExpandDatums(ik, req, idx.axis.Values)
		if err != nil {
			return nil, err
		}

		for _, datum := range datums {
			fingerprint := datum.Fingerprint(ik.DatumOrder())
			digest := key.Digest(fingerprint, r.cfg.HashAlgorithm)
			val, found, err := idx.tree.Get(btree.Key(digest))
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			ref := fieldref.Decode([fieldref.Size]byte(val))
			loc := fieldref.Location{Ref: ref}
			if ref.Kind == fieldref.KindLocal || ref.Kind == fieldref.KindAdoptedForeign {
				path, ok := rdb.files.Get(ref.FileID)
				if ok {
					loc.Path = path
				}
			}
			matches = append(matches, Match{Datum: datum, Location: loc})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Datum.String() < matches[j].Datum.String()
	})

	return matches, nil
}

// open returns the cached readDB for dbDigest, opening it from disk on a
// cache miss.
func (r *Retriever) open(dbDigest string) (*readDB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rdb, ok := r.cache.Get(dbDigest); ok {
		return rdb, nil
	}

	dir := filepath.Join(r.root, dbDigest)
	if _, err := os.Stat(dir); err != nil {
		return nil, ErrDatabaseNotFound
	}

	db, err := openExisting(dir, r.registry)
	if err != nil {
		return nil, err
	}

	files := filestore.New(dir, true)
	if raw, err := os.ReadFile(filesPath(dir)); err == nil {
		if loaded, err := filestore.Decode(raw, dir, true); err == nil {
			files = loaded
		}
	}

	rdb := &readDB{db: db, files: files, indexes: make(map[string]*readIndex)}

	if db.State == StateLive {
		if err := r.loadIndexes(rdb); err != nil {
			return nil, err
		}
	}

	r.cache.Add(dbDigest, rdb)
	return rdb, nil
}

// loadIndexes replays dir's TOC to discover which indexes exist and
// whether any have been cleared (spec.md §4.7 step 2: "respecting
// TOC_CLEAR and TOC_WIPE").
func (r *Retriever) loadIndexes(rdb *readDB) error {
	records, err := toc.NewReader().ReadAll(tocPath(rdb.db.Dir))
	if err != nil {
		return err
	}

	for _, rec := range records {
		switch rec.Tag {
		case toc.TagIndex:
			digestHex := hex.EncodeToString(rec.Metadata[:])
			relPath := trimNulBytes(rec.Payload)
			path := filepath.Join(rdb.db.Dir, relPath)
			tree, err := btree.Open(path, true)
			if err != nil {
				return fmt.Errorf("fdb: open index %s: %w", path, err)
			}
			ax := axis.New()
			if raw, err := os.ReadFile(axisPath(rdb.db.Dir, digestHex)); err == nil {
				if loaded, err := axis.Decode(raw); err == nil {
					ax = loaded
				}
			}
			rdb.indexes[digestHex] = &readIndex{digestHex: digestHex, relPath: relPath, tree: tree, axis: ax}
		case toc.TagClear:
			digestHex := hex.EncodeToString(rec.Metadata[:])
			if idx, ok := rdb.indexes[digestHex]; ok {
				idx.cleared = true
			}
		}
	}
	return nil
}

func trimNulBytes(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// CompositeReader concatenates partial reads from every Match's data
// file in order, matching spec.md §4.7 step 5 ("a composite data handle
// that, when read, concatenates partial reads... in declared-schema
// keyword order").
type CompositeReader struct {
	matches []Match
	idx     int
	cur     io.ReadCloser
}

// Open returns a CompositeReader over matches. Matches already carry the
// order Retrieve produced; the caller decides whether that order is
// schema-stable (it is, by construction of Retrieve).
func Open(matches []Match) *CompositeReader {
	return &CompositeReader{matches: matches}
}

func (c *CompositeReader) Read(p []byte) (int, error) {
	for {
		if c.cur == nil {
			if c.idx >= len(c.matches) {
				return 0, io.EOF
			}
			m := c.matches[c.idx]
			c.idx++
			if m.Location.Path == "" {
				if m.Location.Ref.Kind == fieldref.KindRemote {
					return 0, fmt.Errorf("%w: remote field %s", ErrNotImplemented, m.Datum.String())
				}
				return 0, fmt.Errorf("fdb: match %s has no readable local path (kind=%v)", m.Datum.String(), m.Location.Ref.Kind)
			}
			f, err := os.Open(m.Location.Path)
			if err != nil {
				return 0, fmt.Errorf("fdb: open data file %s: %w", m.Location.Path, err)
			}
			c.cur = &sectionReadCloser{
				SectionReader: io.NewSectionReader(f, int64(m.Location.Ref.Offset), int64(m.Location.Ref.Length)),
				f:             f,
			}
		}

		n, err := c.cur.Read(p)
		if err == io.EOF {
			c.cur.Close()
			c.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Close releases the currently open section reader, if any.
func (c *CompositeReader) Close() error {
	if c.cur != nil {
		return c.cur.Close()
	}
	return nil
}

// sectionReadCloser pairs an io.SectionReader with the *os.File it reads
// from, so Close actually releases the descriptor.
type sectionReadCloser struct {
	*io.SectionReader
	f *os.File
}

func (s *sectionReadCloser) Close() error { return s.f.Close() }
