// Package filestore implements the bidirectional path<->id table fdb uses
// to compress absolute paths into compact integer ids for the B-tree's
// fixed FieldRef records (spec.md §4.3, §6).
package filestore

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore is a bijection between live file ids and live paths, scoped
// to one database directory. Inserted paths are stored relative to the
// database directory when they share its prefix, absolute otherwise.
type FileStore struct {
	dir      string
	readOnly bool

	mu     sync.RWMutex
	nextID uint32
	byID   map[uint32]string
	byPath map[string]uint32
}

// New returns an empty FileStore rooted at dir.
func New(dir string, readOnly bool) *FileStore {
	return &FileStore{
		dir:      dir,
		readOnly: readOnly,
		nextID:   1, // 0 is reserved as "no file" in FieldRef
		byID:     make(map[uint32]string),
		byPath:   make(map[string]uint32),
	}
}

// relativize stores path relative to the store's directory when
// possible, matching spec.md §4.3: "paths are stored relative to the
// database directory if they share its prefix, else absolutely."
func (fs *FileStore) relativize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("filestore: %w", err)
	}
	rel, err := filepath.Rel(fs.dir, abs)
	if err == nil && !strings.HasPrefix(rel, "..") {
		return rel, nil
	}
	return abs, nil
}

// Insert records path and returns its id, allocating a new one if path
// has not been seen before. Insert is idempotent: re-inserting an
// already-known path returns its existing id. Read-only stores reject
// Insert for paths not already present.
func (fs *FileStore) Insert(path string) (uint32, error) {
	stored, err := fs.relativize(path)
	if err != nil {
		return 0, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if id, ok := fs.byPath[stored]; ok {
		return id, nil
	}
	if fs.readOnly {
		return 0, fmt.Errorf("filestore: insert %q: %w", path, ErrReadOnly)
	}

	id := fs.nextID
	fs.nextID++
	fs.byID[id] = stored
	fs.byPath[stored] = id
	return id, nil
}

// Get returns the absolute path for id.
func (fs *FileStore) Get(id uint32) (string, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	stored, ok := fs.byID[id]
	if !ok {
		return "", false
	}
	if filepath.IsAbs(stored) {
		return stored, true
	}
	return filepath.Join(fs.dir, stored), true
}

// Len returns the number of path/id pairs.
func (fs *FileStore) Len() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.byID)
}

// Each calls fn for every (id, absolute path) pair, in ascending id
// order is not guaranteed.
func (fs *FileStore) Each(fn func(id uint32, path string)) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	for id, stored := range fs.byID {
		path := stored
		if !filepath.IsAbs(path) {
			path = filepath.Join(fs.dir, stored)
		}
		fn(id, path)
	}
}
