package btree

import (
	"os"
	"path/filepath"
	"testing"
)

func corruptMetaMagic(t *testing.T, path string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteAt([]byte{'X', 'X', 'X', 'X'}, 0); err != nil {
		t.Fatalf("write corruption: %v", err)
	}
}

func keyOf(b byte) Key {
	var k Key
	k[31] = b
	return k
}

func valOf(b byte) Value {
	var v Value
	v[0] = b
	return v
}

func TestSetGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tr, err := Open(filepath.Join(dir, "index.fbt"), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	existed, err := tr.Set(keyOf(1), valOf(10))
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if existed {
		t.Fatalf("expected new key")
	}

	v, ok, err := tr.Get(keyOf(1))
	if err != nil || !ok {
		t.Fatalf("Get: v=%v ok=%v err=%v", v, ok, err)
	}
	if v != valOf(10) {
		t.Fatalf("got %v, want %v", v, valOf(10))
	}

	existed, err = tr.Set(keyOf(1), valOf(20))
	if err != nil || !existed {
		t.Fatalf("expected update of existing key, existed=%v err=%v", existed, err)
	}
	v, _, _ = tr.Get(keyOf(1))
	if v != valOf(20) {
		t.Fatalf("update did not take effect: %v", v)
	}
}

func TestGetMissingKey(t *testing.T) {
	dir := t.TempDir()
	tr, err := Open(filepath.Join(dir, "index.fbt"), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	if _, err := tr.Set(keyOf(5), valOf(1)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, ok, err := tr.Get(keyOf(9))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected miss for key 9")
	}
}

func TestSplitOnOverflow(t *testing.T) {
	dir := t.TempDir()
	tr, err := Open(filepath.Join(dir, "index.fbt"), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	n := LeafCapacity*2 + 7
	for i := 0; i < n; i++ {
		var k Key
		k[28] = byte(i >> 24)
		k[29] = byte(i >> 16)
		k[30] = byte(i >> 8)
		k[31] = byte(i)
		if _, err := tr.Set(k, valOf(byte(i))); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}

	if len(tr.meta.dir) < 3 {
		t.Fatalf("expected at least 3 leaves after %d inserts, got %d", n, len(tr.meta.dir))
	}

	count, err := tr.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if count != n {
		t.Fatalf("Len = %d, want %d", count, n)
	}

	for i := 0; i < n; i++ {
		var k Key
		k[28] = byte(i >> 24)
		k[29] = byte(i >> 16)
		k[30] = byte(i >> 8)
		k[31] = byte(i)
		v, ok, err := tr.Get(k)
		if err != nil || !ok {
			t.Fatalf("Get(%d): ok=%v err=%v", i, ok, err)
		}
		if v != valOf(byte(i)) {
			t.Fatalf("Get(%d) = %v, want %v", i, v, valOf(byte(i)))
		}
	}
}

func TestVisitInOrder(t *testing.T) {
	dir := t.TempDir()
	tr, err := Open(filepath.Join(dir, "index.fbt"), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	order := []byte{5, 1, 9, 3, 7}
	for _, b := range order {
		if _, err := tr.Set(keyOf(b), valOf(b)); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	var seen []byte
	err = tr.Visit(func(k Key, v Value) bool {
		seen = append(seen, k[31])
		return true
	})
	if err != nil {
		t.Fatalf("Visit: %v", err)
	}

	want := []byte{1, 3, 5, 7, 9}
	if len(seen) != len(want) {
		t.Fatalf("Visit saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("Visit order = %v, want %v", seen, want)
		}
	}
}

func TestVisitStopsEarly(t *testing.T) {
	dir := t.TempDir()
	tr, err := Open(filepath.Join(dir, "index.fbt"), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	for _, b := range []byte{1, 2, 3, 4, 5} {
		if _, err := tr.Set(keyOf(b), valOf(b)); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	n := 0
	tr.Visit(func(Key, Value) bool {
		n++
		return n < 2
	})
	if n != 2 {
		t.Fatalf("Visit stop-early count = %d, want 2", n)
	}
}

func TestFlushAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.fbt")

	tr, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < LeafCapacity+5; i++ {
		var k Key
		k[30] = byte(i >> 8)
		k[31] = byte(i)
		if _, err := tr.Set(k, valOf(byte(i))); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}
	if err := tr.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tr2, err := Open(path, true)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer tr2.Close()

	count, err := tr2.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if count != LeafCapacity+5 {
		t.Fatalf("reopened Len = %d, want %d", count, LeafCapacity+5)
	}

	var k Key
	k[31] = 3
	v, ok, err := tr2.Get(k)
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if v != valOf(3) {
		t.Fatalf("Get after reopen = %v, want %v", v, valOf(3))
	}
}

func TestReadOnlyRejectsSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.fbt")

	tr, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := tr.Set(keyOf(1), valOf(1)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tr2, err := Open(path, true)
	if err != nil {
		t.Fatalf("reopen read-only: %v", err)
	}
	defer tr2.Close()

	if _, err := tr2.Set(keyOf(2), valOf(2)); err != ErrReadOnly {
		t.Fatalf("Set on read-only tree = %v, want ErrReadOnly", err)
	}
}

func TestOpenMissingReadOnly(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(filepath.Join(dir, "missing.fbt"), true); err == nil {
		t.Fatalf("expected error opening missing read-only file")
	}
}

func TestCorruptMetaMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.fbt")

	tr, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tr.Set(keyOf(1), valOf(1))
	tr.Close()

	corruptMetaMagic(t, path)

	if _, err := Open(path, false); err == nil {
		t.Fatalf("expected corrupt-magic error on reopen")
	}
}

func TestPreloadThenGet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.fbt")

	tr, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	for _, b := range []byte{1, 2, 3} {
		tr.Set(keyOf(b), valOf(b))
	}
	if err := tr.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := tr.Preload(); err != nil {
		t.Fatalf("Preload: %v", err)
	}

	v, ok, err := tr.Get(keyOf(2))
	if err != nil || !ok || v != valOf(2) {
		t.Fatalf("Get after Preload: v=%v ok=%v err=%v", v, ok, err)
	}

	// Writing after Preload must invalidate the mapping rather than serve
	// stale data.
	if _, err := tr.Set(keyOf(4), valOf(4)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err = tr.Get(keyOf(4))
	if err != nil || !ok || v != valOf(4) {
		t.Fatalf("Get(4) after invalidated preload: v=%v ok=%v err=%v", v, ok, err)
	}
}
