package flock

import "errors"

// ErrTimeout is returned when a lock cannot be acquired within the
// caller's configured deadline (spec.md §5, §7: TocLockTimeout/LockTimeout).
var ErrTimeout = errors.New("flock: timed out waiting for lock")
