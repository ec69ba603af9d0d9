// Package key implements the canonical ordered keyword/value mapping used
// throughout the catalogue to address databases, indexes and data records.
package key

import "errors"

// Sentinel errors returned by Key and Type operations.
var (
	// ErrUnknownType names a keyword with no registered normalisation
	// Type. Registry.Normalize does not return it: unregistered keywords
	// fall back to StringType.
	ErrUnknownType = errors.New("key: no type registered for keyword")

	// ErrInvalidValue is returned when a value cannot be normalised by its
	// keyword's registered Type (e.g. a non-numeric date).
	ErrInvalidValue = errors.New("key: value does not satisfy keyword type")

	// ErrDuplicateKey is returned by Session.Mark when a non-distinct key
	// is re-submitted and the session is running in strict mode.
	ErrDuplicateKey = errors.New("key: duplicate key in strict session")
)
