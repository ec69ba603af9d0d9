package toc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toc")

	w, err := NewWriter(path, 1)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := w.Append(TagInit, [32]byte{}, nil); err != nil {
		t.Fatalf("Append init: %v", err)
	}
	if err := w.Append(TagIndex, [32]byte{}, []byte("od:oper:an:sfc")); err != nil {
		t.Fatalf("Append index: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := NewReader()
	recs, err := r.ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Tag != TagInit || recs[1].Tag != TagIndex {
		t.Fatalf("unexpected tags: %v %v", recs[0].Tag, recs[1].Tag)
	}
	if got := string(trimNulls(recs[1].Payload)); got != "od:oper:an:sfc" {
		t.Fatalf("payload = %q, want %q", got, "od:oper:an:sfc")
	}
}

func TestTornTailTolerated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toc")

	w, err := NewWriter(path, 1)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append(TagInit, [32]byte{}, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	w.Close()

	// simulate a crash mid-write: append a short, incomplete record.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := f.Write(make([]byte, 100)); err != nil {
		t.Fatalf("write torn tail: %v", err)
	}
	f.Close()

	r := NewReader()
	recs, err := r.ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll with torn tail: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
}

func TestRecoveryTruncatesTornTailOnOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toc")

	w, _ := NewWriter(path, 1)
	w.Append(TagInit, [32]byte{}, nil)
	w.Close()

	f, _ := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	f.Write(make([]byte, 50))
	f.Close()

	info, _ := os.Stat(path)
	if info.Size()%RecordSize == 0 {
		t.Fatalf("test setup: expected a torn tail before recovery")
	}

	w2, err := NewWriter(path, 1)
	if err != nil {
		t.Fatalf("NewWriter (recovery): %v", err)
	}
	defer w2.Close()

	info2, _ := os.Stat(path)
	if info2.Size()%RecordSize != 0 {
		t.Fatalf("recovery did not truncate to a record boundary: size=%d", info2.Size())
	}
}

func TestSubTocRecursion(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "toc")
	subPath := filepath.Join(dir, "toc.sub")

	subW, _ := NewWriter(subPath, 1)
	subW.Append(TagIndex, [32]byte{}, []byte("shared:index"))
	subW.Close()

	mainW, _ := NewWriter(mainPath, 1)
	mainW.Append(TagInit, [32]byte{}, nil)
	mainW.Append(TagSub, [32]byte{}, []byte("toc.sub"))
	mainW.Append(TagIndex, [32]byte{}, []byte("local:index"))
	mainW.Close()

	r := NewReader()
	recs, err := r.ReadAll(mainPath)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3 (init, spliced sub, local)", len(recs))
	}
	if string(trimNulls(recs[1].Payload)) != "shared:index" {
		t.Fatalf("spliced record payload = %q", trimNulls(recs[1].Payload))
	}
}

func TestSubTocCycleDetected(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a")
	bPath := filepath.Join(dir, "b")

	aW, _ := NewWriter(aPath, 1)
	aW.Append(TagSub, [32]byte{}, []byte("b"))
	aW.Close()

	bW, _ := NewWriter(bPath, 1)
	bW.Append(TagSub, [32]byte{}, []byte("a"))
	bW.Close()

	r := NewReader()
	if _, err := r.ReadAll(aPath); err == nil {
		t.Fatalf("expected cycle error")
	}
}

func TestUnknownTagVersionRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toc")

	w, _ := NewWriter(path, 1)
	w.Append(TagInit, [32]byte{}, nil)
	w.Close()

	// corrupt the tag version byte of the single record to something
	// newer than this package supports.
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteAt([]byte{CurrentTagVersion + 1}, offTagVersion); err != nil {
		t.Fatalf("corrupt version: %v", err)
	}
	f.Close()

	r := NewReader()
	if _, err := r.ReadAll(path); err == nil {
		t.Fatalf("expected ErrVersionTooNew")
	}
}

func TestUnknownTagSkippedWithWarning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toc")

	w, _ := NewWriter(path, 1)
	w.Append(TagInit, [32]byte{}, nil)
	w.Close()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec := Record{Tag: Tag('z'), TagVersion: CurrentTagVersion}
	buf, err := rec.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := f.Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	r := NewReader()
	recs, err := r.ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1 (unknown tag skipped)", len(recs))
	}
}

func TestPayloadTooLargeRejected(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "toc"), 1)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	big := make([]byte, PayloadCapacity+1)
	if err := w.Append(TagIndex, [32]byte{}, big); err == nil {
		t.Fatalf("expected error for oversized payload")
	}
}

func TestBadMarkerOnLastRecordTruncatedSilently(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toc")

	w, _ := NewWriter(path, 1)
	w.Append(TagInit, [32]byte{}, nil)
	w.Append(TagIndex, [32]byte{}, []byte("od:oper:an:sfc"))
	w.Close()

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// corrupt the trailing marker of the last (second) record only: a
	// full-size write whose marker byte never landed looks exactly like
	// an interrupted append and should be truncated, not rejected.
	if _, err := f.WriteAt([]byte{0x00, 0x00}, 2*RecordSize-markerSize); err != nil {
		t.Fatalf("corrupt marker: %v", err)
	}
	f.Close()

	r := NewReader()
	recs, err := r.ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1 (bad-marker tail dropped)", len(recs))
	}
}

func TestBadMarkerMidFileIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toc")

	w, _ := NewWriter(path, 1)
	w.Append(TagInit, [32]byte{}, nil)
	w.Append(TagIndex, [32]byte{}, []byte("od:oper:an:sfc"))
	w.Close()

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// corrupt the trailing marker of the first record, which is no
	// longer the last record in the file: this can only be corruption,
	// not an interrupted write, and must be reported.
	if _, err := f.WriteAt([]byte{0x00, 0x00}, RecordSize-markerSize); err != nil {
		t.Fatalf("corrupt marker: %v", err)
	}
	f.Close()

	r := NewReader()
	if _, err := r.ReadAll(path); err == nil {
		t.Fatalf("expected ErrCorrupt")
	} else if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("got %v, want ErrCorrupt", err)
	}
}
