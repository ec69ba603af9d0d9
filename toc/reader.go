package toc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ecmwf/fdb-sub005/internal/flock"
)

// Reader replays TOC files with a shared lock, following TagSub
// records into other files (spec.md §4.2: "a database's TOC can splice
// in a shared sub-TOC by path").
type Reader struct {
	// Logger receives a warning for every record whose tag this package
	// does not recognise; unrecognised tags are otherwise skipped rather
	// than treated as corruption (spec.md §9). Defaults to a no-op
	// logger, matching the teacher's convention of optional diagnostics.
	Logger *zap.Logger
}

// NewReader returns a Reader with a no-op logger.
func NewReader() *Reader {
	return &Reader{Logger: zap.NewNop()}
}

// ReadAll replays path and every sub-TOC it references, in file order,
// returning the full flattened sequence of records.
func (r *Reader) ReadAll(path string) ([]Record, error) {
	if r.Logger == nil {
		r.Logger = zap.NewNop()
	}
	seen := make(map[string]bool)
	return r.readFile(path, seen)
}

func (r *Reader) readFile(path string, seen map[string]bool) ([]Record, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if seen[abs] {
		return nil, fmt.Errorf("%w: %s", ErrSubCycle, path)
	}
	seen[abs] = true

	raw, err := readRawRecords(path)
	if err != nil {
		return nil, err
	}

	var out []Record
	for _, rec := range raw {
		if rec.TagVersion > CurrentTagVersion {
			return nil, fmt.Errorf("%w: tag %q version %d", ErrVersionTooNew, rec.Tag, rec.TagVersion)
		}

		switch rec.Tag {
		case TagInit, TagIndex, TagClear, TagWipe:
			out = append(out, rec)
		case TagSub:
			subPath := string(trimNulls(rec.Payload))
			if !filepath.IsAbs(subPath) {
				subPath = filepath.Join(filepath.Dir(path), subPath)
			}
			sub, err := r.readFile(subPath, seen)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		default:
			r.Logger.Warn("toc: skipping record with unrecognised tag",
				zap.String("path", path), zap.ByteString("tag", []byte{byte(rec.Tag)}))
		}
	}
	return out, nil
}

// readRawRecords shared-locks path and reads every complete RecordSize
// chunk, silently dropping a torn final record shorter than RecordSize or
// one whose trailing marker never got written (spec.md §4.2: a crash
// mid-append must not corrupt replay of prior records). A bad marker on
// anything other than the last record means the file was corrupted after
// the fact, not merely interrupted mid-append, and is reported as
// ErrCorrupt (spec.md §4.5, §8 scenario 5).
func readRawRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("toc: open reader %s: %w", path, err)
	}
	defer f.Close()

	lock := flock.New(path + ".lock")
	if err := lock.Lock(flock.Shared, 0); err != nil {
		return nil, fmt.Errorf("toc: lock %s: %w", path, err)
	}
	defer lock.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("toc: stat %s: %w", path, err)
	}
	full := info.Size() / RecordSize

	var records []Record
	buf := make([]byte, RecordSize)
	for i := int64(0); i < full; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("toc: read %s: %w", path, err)
		}
		rec, err := decodeRecord(buf)
		if err != nil {
			if errors.Is(err, errBadMarker) {
				if i == full-1 {
					break // torn tail: the marker write never landed, tolerated
				}
				return nil, fmt.Errorf("%w: %s record %d", ErrCorrupt, path, i)
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
