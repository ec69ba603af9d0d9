package filestore

import "errors"

// ErrReadOnly is returned by Insert when the store is opened read-only
// and the path is not already known (spec.md §4.3: "Read-only mode
// rejects insert").
var ErrReadOnly = errors.New("filestore: read-only store cannot insert new paths")
