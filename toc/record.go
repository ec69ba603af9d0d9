// Package toc implements the append-only table-of-contents log that backs
// one database: database creation, every index flush, clear, and wipe is
// recorded as a fixed 4096-byte entry so a reader can replay a
// database's history with nothing more than sequential reads and a
// shared lock (spec.md §4.2).
//
// The record layout borrows the teacher's fixed-header-plus-payload
// discipline from header.go/record.go (jpl-au-folio), generalised from a
// single 128-byte JSON header to a 4096-byte binary record whose first
// bytes are always readable without parsing the payload.
package toc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// RecordSize is the fixed size of every TOC record on disk.
const RecordSize = 4096

// Tag identifies the kind of event a TOC record carries.
type Tag byte

const (
	TagInit  Tag = 't' // database created
	TagIndex Tag = 'i' // a new index was opened within the database
	TagClear Tag = 'c' // an index was cleared (spec.md §4.2: "mask, don't rewrite")
	TagWipe  Tag = 'w' // the database was wiped
	TagSub   Tag = 's' // payload is the path of a sub-TOC to splice in
)

// CurrentTagVersion is the record layout version this package writes.
// A reader rejects any record whose TagVersion is greater than this
// (ErrVersionTooNew): spec.md §9 calls out forward-compatibility of the
// log as a hard requirement.
const CurrentTagVersion = 1

const (
	offTag        = 0
	offTagVersion = 1
	offReserved1  = 2   // 2 bytes
	offFdbVersion = 4   // 4 bytes
	offTimestamp  = 8   // 16 bytes
	offPid        = 24  // 4 bytes
	offUid        = 28  // 4 bytes
	offHostname   = 32  // 64 bytes
	offReserved2  = 96  // 32 bytes
	offMetadata   = 128 // 32 bytes
	offPayload    = 160
	markerSize    = 2

	// PayloadCapacity is how many payload bytes fit before the trailing
	// marker (spec.md §4.2: "~3.9KiB of payload").
	PayloadCapacity = RecordSize - offPayload - markerSize
)

var marker = [markerSize]byte{0xFF, 0xFF}

// errBadMarker signals a record whose trailing marker bytes don't match,
// i.e. a write that never completed. The caller (readRawRecords) decides
// whether that's an expected torn tail or mid-file corruption.
var errBadMarker = errors.New("toc: bad record marker")

// Record is the decoded form of one 4096-byte TOC entry.
type Record struct {
	Tag        Tag
	TagVersion byte
	FdbVersion uint32
	Timestamp  time.Time
	Pid        uint32
	Uid        uint32
	Hostname   string
	Metadata   [32]byte
	Payload    []byte
}

// encode packs r into a fixed RecordSize-byte buffer. Payload longer than
// PayloadCapacity is an error: callers (sub-TOC paths, index fingerprints)
// must fit within the budget spec.md's fixed record allows.
func (r Record) encode() ([]byte, error) {
	if len(r.Payload) > PayloadCapacity {
		return nil, fmt.Errorf("toc: payload %d bytes exceeds capacity %d", len(r.Payload), PayloadCapacity)
	}
	if len(r.Hostname) > 64 {
		return nil, fmt.Errorf("toc: hostname %q exceeds 64 bytes", r.Hostname)
	}

	buf := make([]byte, RecordSize)
	buf[offTag] = byte(r.Tag)
	buf[offTagVersion] = r.TagVersion
	binary.LittleEndian.PutUint32(buf[offFdbVersion:], r.FdbVersion)

	binary.LittleEndian.PutUint64(buf[offTimestamp:], uint64(r.Timestamp.UTC().Unix()))
	binary.LittleEndian.PutUint64(buf[offTimestamp+8:], uint64(r.Timestamp.UTC().Nanosecond()))

	binary.LittleEndian.PutUint32(buf[offPid:], r.Pid)
	binary.LittleEndian.PutUint32(buf[offUid:], r.Uid)
	copy(buf[offHostname:offHostname+64], r.Hostname)
	copy(buf[offMetadata:offMetadata+32], r.Metadata[:])
	copy(buf[offPayload:offPayload+len(r.Payload)], r.Payload)
	copy(buf[RecordSize-markerSize:], marker[:])

	return buf, nil
}

// decodeRecord unpacks a RecordSize-byte buffer. The payload length is
// not stored explicitly; callers that embed variable-length data in the
// payload are expected to self-delimit it (the index path and sub-TOC
// path are both read up to the first NUL of the zero-padded payload).
func decodeRecord(buf []byte) (Record, error) {
	if len(buf) != RecordSize {
		return Record{}, fmt.Errorf("toc: record is %d bytes, want %d", len(buf), RecordSize)
	}
	if !bytes.Equal(buf[RecordSize-markerSize:], marker[:]) {
		return Record{}, errBadMarker
	}

	var r Record
	r.Tag = Tag(buf[offTag])
	r.TagVersion = buf[offTagVersion]
	r.FdbVersion = binary.LittleEndian.Uint32(buf[offFdbVersion:])

	secs := int64(binary.LittleEndian.Uint64(buf[offTimestamp:]))
	nsecs := int64(binary.LittleEndian.Uint64(buf[offTimestamp+8:]))
	r.Timestamp = time.Unix(secs, nsecs).UTC()

	r.Pid = binary.LittleEndian.Uint32(buf[offPid:])
	r.Uid = binary.LittleEndian.Uint32(buf[offUid:])
	r.Hostname = string(trimNulls(buf[offHostname : offHostname+64]))
	copy(r.Metadata[:], buf[offMetadata:offMetadata+32])
	payload := make([]byte, PayloadCapacity)
	copy(payload, buf[offPayload:offPayload+PayloadCapacity])
	r.Payload = payload

	return r, nil
}

func trimNulls(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
