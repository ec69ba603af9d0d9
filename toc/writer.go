package toc

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/ecmwf/fdb-sub005/internal/flock"
)

// Writer appends records to one TOC file. Only one Writer should be
// active per file across the whole system; the exclusive advisory lock
// (spec.md §5) is how concurrent fdb processes enforce that.
type Writer struct {
	path string
	file *os.File
	lock *flock.Lock

	fdbVersion uint32
	hostname   string
	pid        uint32
	uid        uint32
}

// NewWriter opens path for append, creating it if necessary, and
// truncates any torn tail record left by a crashed prior writer back to
// a whole multiple of RecordSize (spec.md §4.2: "recovery discards a
// partial final record instead of erroring").
func NewWriter(path string, fdbVersion uint32) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("toc: open writer %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if rem := info.Size() % RecordSize; rem != 0 {
		if err := f.Truncate(info.Size() - rem); err != nil {
			f.Close()
			return nil, fmt.Errorf("toc: truncate torn tail: %w", err)
		}
	}

	host, _ := os.Hostname()
	uid := uint32(0)
	if u, err := user.Current(); err == nil {
		if n, err := strconv.Atoi(u.Uid); err == nil {
			uid = uint32(n)
		}
	}

	return &Writer{
		path:       path,
		file:       f,
		lock:       flock.New(path + ".lock"),
		fdbVersion: fdbVersion,
		hostname:   host,
		pid:        uint32(os.Getpid()),
		uid:        uid,
	}, nil
}

// Append writes one record with tag and payload, filling in timestamp,
// pid, uid, and hostname automatically. It acquires the exclusive lock
// for the duration of the single atomic write.
func (w *Writer) Append(tag Tag, metadata [32]byte, payload []byte) error {
	rec := Record{
		Tag:        tag,
		TagVersion: CurrentTagVersion,
		FdbVersion: w.fdbVersion,
		Timestamp:  time.Now(),
		Pid:        w.pid,
		Uid:        w.uid,
		Hostname:   w.hostname,
		Metadata:   metadata,
		Payload:    payload,
	}

	buf, err := rec.encode()
	if err != nil {
		return err
	}

	if err := w.lock.Lock(flock.Exclusive, 0); err != nil {
		return fmt.Errorf("toc: lock %s: %w", w.path, err)
	}
	defer w.lock.Unlock()

	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("toc: write record: %w", err)
	}
	return nil
}

// Flush fdatasyncs the TOC file so appended records survive a crash
// (spec.md §4.2, §5).
func (w *Writer) Flush() error {
	return w.file.Sync()
}

// Close flushes and releases the writer's resources.
func (w *Writer) Close() error {
	err := w.Flush()
	if cerr := w.lock.Close(); err == nil {
		err = cerr
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}
