// Package flock wraps gofrs/flock with the teacher's fileLock API shape
// (jpl-au-folio lock.go): a mutex-guarded handle that serialises flock
// syscalls against teardown, so a concurrent Close can never race a
// Lock/Unlock call on the same descriptor. Using gofrs/flock here — a
// maintained cross-platform implementation already present in the pack
// (erigon) — means the catalogue does not need the teacher's own
// lock_unix.go/lock_windows.go build-tag split.
package flock

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gofrsflock "github.com/gofrs/flock"
)

// Mode selects shared (read) or exclusive (write) locking.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

// Lock coordinates OS-level advisory locks on one path with safe
// lifecycle teardown. The zero value is not usable; use New.
type Lock struct {
	mu   sync.Mutex
	path string
	f    *gofrsflock.Flock
}

// New returns a Lock over path. The backing file is opened lazily on
// first Lock call.
func New(path string) *Lock {
	return &Lock{path: path, f: gofrsflock.New(path)}
}

// Lock acquires a shared or exclusive advisory lock, blocking until it is
// available or ctx-like deadline elapses. timeout <= 0 means block
// indefinitely.
func (l *Lock) Lock(mode Mode, timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}

	acquire := func() (bool, error) {
		if mode == Exclusive {
			return l.f.TryLock()
		}
		return l.f.TryRLock()
	}

	if timeout <= 0 {
		for {
			ok, err := acquire()
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	// spec.md §5: "lock acquisition has a configurable timeout... retried
	// with exponential backoff". cenkalti/backoff drives the retry
	// schedule; ErrTimeout surfaces once the deadline elapses.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = timeout
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond

	err := backoff.Retry(func() error {
		ok, err := acquire()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrTimeout
		}
		return nil
	}, bo)

	if err == ErrTimeout {
		return ErrTimeout
	}
	return err
}

// Unlock releases the lock. A no-op after Close.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.f.Unlock()
}

// Close releases any held lock and disables further locking, mirroring
// the teacher's setFile(nil) drain-then-disable pattern.
func (l *Lock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
