// Fingerprint stability and normalisation tests.
//
// These exercise the invariant spec.md calls out explicitly: two keys
// built from the same normalised (keyword, value) pairs fingerprint
// identically regardless of insertion order or which client spelling
// was used (time=12 vs time=1200).
package key

import "testing"

func TestFingerprintOrderInsensitive(t *testing.T) {
	reg := DefaultRegistry()

	a := New(reg)
	a.Set("class", "od")
	a.Set("stream", "oper")
	a.Set("date", "20240101")

	b := New(reg)
	b.Set("date", "20240101")
	b.Set("class", "od")
	b.Set("stream", "oper")

	order := []string{"class", "date", "stream"}
	if a.Fingerprint(order) != b.Fingerprint(order) {
		t.Fatalf("fingerprints differ: %q vs %q", a.Fingerprint(order), b.Fingerprint(order))
	}
}

func TestTimeNormalisation(t *testing.T) {
	reg := DefaultRegistry()

	a := New(reg)
	if err := a.Set("time", "12"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	b := New(reg)
	if err := b.Set("time", "1200"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if !a.Equal(b) {
		t.Fatalf("time=12 and time=1200 should normalise equal, got %q vs %q", a.String(), b.String())
	}
}

func TestDateRejectsInvalidMonth(t *testing.T) {
	reg := DefaultRegistry()
	k := New(reg)
	if err := k.Set("date", "20241301"); err == nil {
		t.Fatal("expected error for month 13")
	}
}

func TestMatches(t *testing.T) {
	reg := DefaultRegistry()
	full := New(reg)
	full.Set("class", "od")
	full.Set("stream", "oper")
	full.Set("date", "20240101")

	sub := New(reg)
	sub.Set("class", "od")

	if !full.Matches(sub) {
		t.Fatal("full key should match its own subset")
	}

	other := New(reg)
	other.Set("class", "rd")
	if full.Matches(other) {
		t.Fatal("mismatched value should not match")
	}
}

func TestSessionDuplicateStrict(t *testing.T) {
	s := NewSession(true)
	if err := s.Mark("fp1"); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := s.Mark("fp1"); err != ErrDuplicateKey {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestSessionDuplicateNonStrict(t *testing.T) {
	s := NewSession(false)
	if err := s.Mark("fp1"); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := s.Mark("fp1"); err != nil {
		t.Fatalf("non-strict session should not error on duplicate: %v", err)
	}
}
