package fdb

import "github.com/ecmwf/fdb-sub005/key"

// Decoder is the seam to the external GRIB/message decoder collaborator
// (spec.md §1 Non-goals: out of scope). It turns raw message bytes into
// a canonical Key plus the payload bytes the archiver stores verbatim.
type Decoder interface {
	Decode(raw []byte, reg *key.Registry) (*key.Key, []byte, error)
}
