package toc

import "errors"

var (
	// ErrVersionTooNew is returned when a record's TagVersion is newer
	// than this package understands (spec.md §9).
	ErrVersionTooNew = errors.New("toc: record tag version is newer than supported")

	// ErrSubCycle is returned when following TagSub records would revisit
	// a path already open in the current recursion.
	ErrSubCycle = errors.New("toc: cyclic sub-toc reference")

	// ErrCorrupt is returned when a full-size record's trailing marker
	// doesn't match and the record is not the last one in the file
	// (spec.md §4.5, §8 scenario 5). A bad marker on the last record is
	// instead treated as a torn tail from an interrupted append and
	// truncated silently, the same as a short read.
	ErrCorrupt = errors.New("toc: corrupt record")
)
