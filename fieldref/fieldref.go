// Package fieldref implements FieldLocation (the polymorphic in-memory
// location of an archived field) and FieldRef, its packed 32-byte B-tree
// leaf representation (spec.md §3, §9: "Polymorphic FieldLocation becomes
// a tagged sum type with an explicit discriminator byte").
package fieldref

import (
	"encoding/binary"
	"fmt"
)

// Kind discriminates the variants of FieldLocation.
type Kind uint8

const (
	// KindLocal is a field stored in this database's own data files.
	KindLocal Kind = iota
	// KindRemote is a field served by a remote fdb node.
	KindRemote
	// KindAdoptedForeign is a field whose data file was adopted from
	// another database without copying (spec.md §4.8 Move semantics).
	KindAdoptedForeign
	// KindInMemory is a field materialised only in memory (never
	// persisted). The Archiver writes only KindLocal refs; nothing in
	// this module creates a KindInMemory ref.
	KindInMemory
)

// Size is the fixed, constant packed size of a FieldRef in bytes. The
// B-tree's records are fixed-size exactly because this never changes
// (spec.md §3: "total size constant (≤32 bytes) so B-tree records are
// fixed").
const Size = 32

// FieldRef is the packed on-disk form of a FieldLocation, stored as a
// B-tree leaf value. Layout: file-id(4) offset(8) length(8) flags(4)
// reserved(8) = 32 bytes. flags bit 0-1 carry the Kind; remaining bits
// and the reserved tail are zero today.
type FieldRef struct {
	FileID uint32
	Offset uint64
	Length uint64
	Kind   Kind
}

// Encode packs r into a Size-byte array.
func (r FieldRef) Encode() [Size]byte {
	var buf [Size]byte
	binary.LittleEndian.PutUint32(buf[0:4], r.FileID)
	binary.LittleEndian.PutUint64(buf[4:12], r.Offset)
	binary.LittleEndian.PutUint64(buf[12:20], r.Length)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(r.Kind))
	// buf[24:32] reserved, left zero.
	return buf
}

// Decode unpacks a Size-byte array into a FieldRef.
func Decode(buf [Size]byte) FieldRef {
	return FieldRef{
		FileID: binary.LittleEndian.Uint32(buf[0:4]),
		Offset: binary.LittleEndian.Uint64(buf[4:12]),
		Length: binary.LittleEndian.Uint64(buf[12:20]),
		Kind:   Kind(binary.LittleEndian.Uint32(buf[20:24])),
	}
}

// Location is the in-memory, resolved form of a field's position: a
// FieldRef plus enough context (a path, or a remote address) to actually
// read it. The FileStore maps FieldRef.FileID to Path.
type Location struct {
	Ref  FieldRef
	Path string // resolved local path, for KindLocal/KindAdoptedForeign
	Host string // host:port, for KindRemote
}

// String renders a human-readable location, used by dump-index/list.
func (l Location) String() string {
	switch l.Ref.Kind {
	case KindRemote:
		return fmt.Sprintf("remote://%s offset=%d length=%d", l.Host, l.Ref.Offset, l.Ref.Length)
	case KindAdoptedForeign:
		return fmt.Sprintf("adopted:%s offset=%d length=%d", l.Path, l.Ref.Offset, l.Ref.Length)
	case KindInMemory:
		return fmt.Sprintf("memory offset=%d length=%d", l.Ref.Offset, l.Ref.Length)
	default:
		return fmt.Sprintf("%s offset=%d length=%d", l.Path, l.Ref.Offset, l.Ref.Length)
	}
}
