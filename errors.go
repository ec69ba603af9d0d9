// Package fdb is the root catalogue engine: Archiver and Retriever state
// machines, database lifecycle, and the Purge/Wipe/Move space-reclamation
// visitors (spec.md §4.6-§4.8). It composes key, schema, filestore, axis,
// fieldref, btree and toc the way the original system's Archiver/Retriever
// compose the C++ equivalents of those same modules.
package fdb

import "errors"

// Sentinel errors returned by catalogue operations.
var (
	// ErrDatabaseNotFound marks a candidate database from schema
	// expansion that has no directory on disk. Retrieve does not return
	// it: such a database contributes no matches.
	ErrDatabaseNotFound = errors.New("fdb: database not found")

	// ErrLockTimeout is the lock-timeout sentinel the CLI maps to its
	// lock-timeout exit code. No operation in this module returns it:
	// TOC appends and reads wait for their advisory lock with no
	// deadline.
	ErrLockTimeout = errors.New("fdb: lock timeout")

	// ErrNotImplemented marks a genuine gap: reading a remote
	// FieldLocation through CompositeReader, and the Move visitor.
	ErrNotImplemented = errors.New("fdb: not implemented")

	// ErrPoisoned is returned by Archive once a prior Flush failed: per
	// spec.md §7, "all I/O failures inside a flush mark the archiver as
	// poisoned; further archive calls fail fast."
	ErrPoisoned = errors.New("fdb: archiver is poisoned by a prior flush failure")

	// ErrWrongState is returned when an operation is attempted against a
	// database in the wrong lifecycle state (e.g. archiving into a wiped
	// database).
	ErrWrongState = errors.New("fdb: database is not in a valid state for this operation")
)
