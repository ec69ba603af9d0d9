// Package schema implements the rule tree that decomposes a full Key into
// (database, index, datum) sub-keys and expands a retrieval request into
// the set of index-keys to visit.
package schema

import "errors"

var (
	// ErrIncompatible is returned when no rule matches a key at some
	// level of the tree.
	ErrIncompatible = errors.New("schema: key is incompatible with schema")

	// ErrOverspecified is returned when a key carries keywords that no
	// rule at any level consumed.
	ErrOverspecified = errors.New("schema: key has keywords not covered by schema")
)
