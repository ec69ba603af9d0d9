// Package btree implements the fixed-key/fixed-record on-disk B-tree
// index used for one index's fingerprint -> FieldRef mapping (spec.md
// §4.4). Leaf pages are fixed at 65536 bytes; keys and values are fixed
// at 32 bytes, so every record has the same size. Records are not fixed
// in place: a leaf keeps its records sorted, so an insert shifts the
// records after it, and a split moves the upper half of a full leaf to a
// new page.
package btree

import "errors"

var (
	// ErrCorrupt is returned when the meta page's magic does not match,
	// or a leaf page decodes to an impossible record count.
	ErrCorrupt = errors.New("btree: corrupt index file")

	// ErrReadOnly is returned by Set on a tree opened read-only.
	ErrReadOnly = errors.New("btree: read-only tree cannot set")

	// ErrClosed is returned by any operation after Close.
	ErrClosed = errors.New("btree: tree is closed")
)
