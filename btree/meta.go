package btree

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

var metaMagic = [4]byte{'F', 'B', 'T', '1'}

const dirEntrySize = KeySize + 4          // minKey + pageID
const metaFixedHeader = 4 + 2 + 4 + 4 + 4 // magic+version+leafCount+nextPageID+dirCount

// dirEntry is one directory slot: the smallest key stored in a leaf page,
// and that leaf's page id. The directory is kept fully in memory and
// rewritten to the meta region on every flush — acceptable per spec.md
// §4.6 ("writers hold the lock for the entire flush() window").
type dirEntry struct {
	MinKey Key
	PageID uint32
}

// meta is the B-tree's header: which pages hold leaves, and the next
// free page id to hand out on split. It spans as many contiguous pages
// at the start of the file as its directory needs.
type meta struct {
	version    uint16
	nextPageID uint32
	dir        []dirEntry // kept sorted by MinKey
}

func newMeta() *meta {
	return &meta{version: 1, nextPageID: 1} // page 0 is reserved for meta
}

// metaPageCount returns how many PageSize pages the meta region occupies
// for the current directory size.
func (m *meta) metaPageCount() int {
	total := metaFixedHeader + len(m.dir)*dirEntrySize
	pages := total / PageSize
	if total%PageSize != 0 {
		pages++
	}
	if pages < 1 {
		pages = 1
	}
	return pages
}

func (m *meta) encode() []byte {
	pages := m.metaPageCount()
	buf := make([]byte, pages*PageSize)
	copy(buf[0:4], metaMagic[:])
	binary.LittleEndian.PutUint16(buf[4:6], m.version)
	binary.LittleEndian.PutUint32(buf[6:10], m.nextPageID)
	binary.LittleEndian.PutUint32(buf[10:14], uint32(len(m.dir)))
	off := metaFixedHeader
	for _, e := range m.dir {
		copy(buf[off:off+KeySize], e.MinKey[:])
		binary.LittleEndian.PutUint32(buf[off+KeySize:off+dirEntrySize], e.PageID)
		off += dirEntrySize
	}
	return buf
}

// decodeMeta parses the leading page(s) of a B-tree file. It first reads
// one page to learn the directory count, then re-reads the full meta
// region if the directory spans more than one page.
func decodeMeta(firstPage []byte, readMore func(extra int) ([]byte, error)) (*meta, error) {
	if len(firstPage) < metaFixedHeader {
		return nil, fmt.Errorf("btree: meta page too short")
	}
	if !bytes.Equal(firstPage[0:4], metaMagic[:]) {
		return nil, fmt.Errorf("%w: bad meta magic", ErrCorrupt)
	}
	m := &meta{
		version:    binary.LittleEndian.Uint16(firstPage[4:6]),
		nextPageID: binary.LittleEndian.Uint32(firstPage[6:10]),
	}
	count := int(binary.LittleEndian.Uint32(firstPage[10:14]))

	full := firstPage
	needed := metaFixedHeader + count*dirEntrySize
	if needed > len(full) {
		more, err := readMore(needed - len(full))
		if err != nil {
			return nil, fmt.Errorf("btree: read extended meta: %w", err)
		}
		full = append(append([]byte(nil), full...), more...)
	}

	m.dir = make([]dirEntry, count)
	off := metaFixedHeader
	for i := 0; i < count; i++ {
		copy(m.dir[i].MinKey[:], full[off:off+KeySize])
		m.dir[i].PageID = binary.LittleEndian.Uint32(full[off+KeySize : off+dirEntrySize])
		off += dirEntrySize
	}
	return m, nil
}

// locate returns the index into dir of the leaf that should contain key:
// the last entry whose MinKey <= key.
func (m *meta) locate(key Key) int {
	if len(m.dir) == 0 {
		return -1
	}
	lo, hi := 0, len(m.dir)
	for lo < hi {
		mid := (lo + hi) / 2
		if m.dir[mid].MinKey.Less(key) || m.dir[mid].MinKey == key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// insertDir inserts or updates a directory entry, keeping dir sorted.
func (m *meta) insertDir(minKey Key, pageID uint32) {
	lo, hi := 0, len(m.dir)
	for lo < hi {
		mid := (lo + hi) / 2
		if m.dir[mid].MinKey.Less(minKey) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(m.dir) && m.dir[lo].MinKey == minKey {
		m.dir[lo].PageID = pageID
		return
	}
	m.dir = append(m.dir, dirEntry{})
	copy(m.dir[lo+1:], m.dir[lo:])
	m.dir[lo] = dirEntry{MinKey: minKey, PageID: pageID}
}
