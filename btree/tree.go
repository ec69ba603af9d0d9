package btree

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/edsrzf/mmap-go"

	"github.com/ecmwf/fdb-sub005/internal/flock"
)

// Tree is an open on-disk B-tree index file.
type Tree struct {
	path     string
	readOnly bool

	mu     sync.Mutex
	file   *os.File
	lock   *flock.Lock
	meta   *meta
	leaves map[uint32]*leaf // every leaf loaded or created so far; Flush writes the dirty ones and keeps all cached
	mm     mmap.MMap        // non-nil once Preload has mapped the file read-only
	closed bool
}

// Open opens or creates the B-tree file at path.
func Open(path string, readOnly bool) (*Tree, error) {
	flags := os.O_RDWR | os.O_CREATE
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("btree: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	t := &Tree{
		path:     path,
		readOnly: readOnly,
		file:     f,
		lock:     flock.New(path + ".lock"),
		leaves:   make(map[uint32]*leaf),
	}

	if info.Size() == 0 {
		if readOnly {
			f.Close()
			return nil, fmt.Errorf("btree: %s does not exist", path)
		}
		t.meta = newMeta()
		if err := t.writeMeta(); err != nil {
			f.Close()
			return nil, err
		}
		return t, nil
	}

	if err := t.readMeta(); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

func (t *Tree) readMeta() error {
	first := make([]byte, PageSize)
	if _, err := t.file.ReadAt(first, 0); err != nil {
		return fmt.Errorf("btree: read meta page: %w", err)
	}
	m, err := decodeMeta(first, func(extra int) ([]byte, error) {
		pages := (extra + PageSize - 1) / PageSize
		buf := make([]byte, pages*PageSize)
		if _, err := t.file.ReadAt(buf, PageSize); err != nil {
			return nil, err
		}
		return buf, nil
	})
	if err != nil {
		return err
	}
	t.meta = m
	return nil
}

func (t *Tree) writeMeta() error {
	buf := t.meta.encode()
	_, err := t.file.WriteAt(buf, 0)
	return err
}

func (t *Tree) pageOffset(pageID uint32) int64 {
	return int64(t.meta.metaPageCount())*PageSize + int64(pageID-1)*PageSize
}

func (t *Tree) loadLeaf(pageID uint32) (*leaf, error) {
	if l, ok := t.leaves[pageID]; ok {
		return l, nil
	}

	buf := make([]byte, PageSize)
	off := t.pageOffset(pageID)
	if t.mm != nil && int64(len(t.mm)) >= off+PageSize {
		copy(buf, t.mm[off:off+PageSize])
	} else {
		if _, err := t.file.ReadAt(buf, off); err != nil {
			return nil, fmt.Errorf("btree: read leaf page %d: %w", pageID, err)
		}
	}

	l, err := decodeLeaf(pageID, buf)
	if err != nil {
		return nil, err
	}
	t.leaves[pageID] = l
	return l, nil
}

func (t *Tree) writeLeaf(l *leaf) error {
	buf := l.encode()
	off := t.pageOffset(l.pageID)
	if _, err := t.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("btree: write leaf page %d: %w", l.pageID, err)
	}
	l.dirty = false
	return nil
}

// Get performs a point lookup, returning the value and whether key was
// found.
func (t *Tree) Get(key Key) (Value, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return Value{}, false, ErrClosed
	}

	idx := t.meta.locate(key)
	if idx < 0 {
		return Value{}, false, nil
	}
	l, err := t.loadLeaf(t.meta.dir[idx].PageID)
	if err != nil {
		return Value{}, false, err
	}
	i, found := l.search(key)
	if !found {
		return Value{}, false, nil
	}
	return l.records[i].Value, true, nil
}

// Set inserts or updates key -> value, returning whether key already
// existed (spec.md §4.4).
func (t *Tree) Set(key Key, value Value) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false, ErrClosed
	}
	if t.readOnly {
		return false, ErrReadOnly
	}

	if len(t.meta.dir) == 0 {
		pageID := t.meta.nextPageID
		t.meta.nextPageID++
		l := newLeaf(pageID)
		existed := l.insert(key, value)
		t.leaves[pageID] = l
		t.meta.insertDir(l.minKey(), pageID)
		t.invalidateMmap()
		return existed, nil
	}

	idx := t.meta.locate(key)
	if idx < 0 {
		idx = 0
	}
	l, err := t.loadLeaf(t.meta.dir[idx].PageID)
	if err != nil {
		return false, err
	}

	_, found := l.search(key)
	if !found && l.full() {
		newPageID := t.meta.nextPageID
		t.meta.nextPageID++
		upper := l.split(newPageID)
		t.leaves[newPageID] = upper
		t.meta.insertDir(upper.minKey(), newPageID)

		target := l
		if !key.Less(upper.minKey()) {
			target = upper
		}
		existed := target.insert(key, value)
		t.meta.dir[idx].MinKey = l.minKey()
		t.invalidateMmap()
		return existed, nil
	}

	existed := l.insert(key, value)
	if !found {
		t.meta.dir[idx].MinKey = l.minKey()
	}
	t.invalidateMmap()
	return existed, nil
}

// invalidateMmap drops the active mmap so subsequent reads fall back to
// ReadAt until the next Preload, since the file has grown or a page the
// mapping covers may now be stale.
func (t *Tree) invalidateMmap() {
	if t.mm != nil {
		t.mm.Unmap()
		t.mm = nil
	}
}

// Visit performs an in-order walk over every (key, value) pair via the
// directory's sorted leaf order (spec.md §4.4: "range(\"\",\"\\xFF\")").
func (t *Tree) Visit(fn func(Key, Value) bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}

	for _, entry := range t.meta.dir {
		l, err := t.loadLeaf(entry.PageID)
		if err != nil {
			return err
		}
		for _, rec := range l.records {
			if !fn(rec.Key, rec.Value) {
				return nil
			}
		}
	}
	return nil
}

// Len returns the total number of records across all leaves.
func (t *Tree) Len() (int, error) {
	n := 0
	err := t.Visit(func(Key, Value) bool { n++; return true })
	return n, err
}

// Flush writes every dirty leaf and the meta page, then fsyncs.
func (t *Tree) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.readOnly {
		return nil
	}

	for _, l := range t.leaves {
		if l.dirty {
			if err := t.writeLeaf(l); err != nil {
				return err
			}
		}
	}
	if err := t.writeMeta(); err != nil {
		return err
	}
	return t.file.Sync()
}

// Sync fsyncs the backing file without rewriting the meta/leaf caches.
func (t *Tree) Sync() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	return t.file.Sync()
}

// Preload maps the file read-only into memory so Get/Visit avoid a
// ReadAt syscall per page (spec.md §5 hints at heavy concurrent reader
// traffic against a mostly-append file — mmap is the idiomatic fit the
// pack uses for hot read paths).
func (t *Tree) Preload() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.mm != nil {
		return nil
	}

	info, err := t.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	mm, err := mmap.Map(t.file, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("btree: mmap preload: %w", err)
	}
	t.mm = mm
	return nil
}

// Lock acquires the tree's advisory file lock. timeout <= 0 blocks
// indefinitely; a positive timeout retries with exponential backoff
// (spec.md §5) and returns flock.ErrTimeout if it elapses.
func (t *Tree) Lock(mode flock.Mode, timeout time.Duration) error {
	return t.lock.Lock(mode, timeout)
}

// Unlock releases the tree's advisory file lock.
func (t *Tree) Unlock() error {
	return t.lock.Unlock()
}

// Close flushes pending writes, unmaps any preload mapping, and closes
// the backing file and lock.
func (t *Tree) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	var firstErr error
	if !t.readOnly {
		if err := t.Flush(); err != nil {
			firstErr = err
		}
	}
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	if t.mm != nil {
		t.mm.Unmap()
		t.mm = nil
	}
	if err := t.lock.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := t.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
