// Key is the canonical ordered keyword/value mapping that addresses a
// database, an index or a single archived field. Two keys compare equal
// if they carry the same normalised (keyword, value) pairs regardless of
// the order they were set in; callers that need a stable on-disk or
// B-tree identity use Fingerprint with an explicit keyword order, since
// insertion order varies between clients but the schema-declared order
// does not.
package key

import "strings"

// Key is an ordered keyword -> value mapping. The zero value is not
// usable; construct with New.
type Key struct {
	registry *Registry
	order    []string          // insertion order, for Keys()
	values   map[string]string // normalised values
}

// New returns an empty Key that normalises values using reg. A nil reg
// normalises everything with StringType.
func New(reg *Registry) *Key {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Key{registry: reg, values: make(map[string]string)}
}

// Set normalises v for keyword using the key's registry and stores it.
// Re-setting an existing keyword overwrites its value without changing
// its position in insertion order.
func (k *Key) Set(keyword, v string) error {
	norm, err := k.registry.Normalize(keyword, v)
	if err != nil {
		return err
	}
	if _, exists := k.values[keyword]; !exists {
		k.order = append(k.order, keyword)
	}
	k.values[keyword] = norm
	return nil
}

// Get returns the normalised value for keyword and whether it is present.
func (k *Key) Get(keyword string) (string, bool) {
	v, ok := k.values[keyword]
	return v, ok
}

// Has reports whether keyword is present.
func (k *Key) Has(keyword string) bool {
	_, ok := k.values[keyword]
	return ok
}

// Keys returns the keywords in insertion order.
func (k *Key) Keys() []string {
	out := make([]string, len(k.order))
	copy(out, k.order)
	return out
}

// Len returns the number of keyword/value pairs.
func (k *Key) Len() int { return len(k.values) }

// Clone returns a deep copy sharing the same registry.
func (k *Key) Clone() *Key {
	c := &Key{
		registry: k.registry,
		order:    append([]string(nil), k.order...),
		values:   make(map[string]string, len(k.values)),
	}
	for kw, v := range k.values {
		c.values[kw] = v
	}
	return c
}

// Matches reports whether every (keyword, value) pair in other is present
// and equal in k. k may carry additional keywords not present in other.
func (k *Key) Matches(other *Key) bool {
	for kw, v := range other.values {
		if mv, ok := k.values[kw]; !ok || mv != v {
			return false
		}
	}
	return true
}

// Equal reports order-insensitive equality: the same set of normalised
// (keyword, value) pairs.
func (k *Key) Equal(other *Key) bool {
	if len(k.values) != len(other.values) {
		return false
	}
	for kw, v := range k.values {
		if ov, ok := other.values[kw]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Fingerprint concatenates values in the given schema-declared order,
// not insertion order, so two keys written by different clients hash
// identically. Keywords in order but absent from k contribute an empty
// segment. Keywords present in k but absent from order are ignored by
// design — callers pass the full schema-declared order for the level
// they are fingerprinting.
func (k *Key) Fingerprint(order []string) string {
	var b strings.Builder
	for i, kw := range order {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(kw)
		b.WriteByte('=')
		if v, ok := k.values[kw]; ok {
			b.WriteString(v)
		}
	}
	return b.String()
}

// String renders the key using insertion order, for logging and CLI
// dumps. It is not suitable as a fingerprint (see Fingerprint).
func (k *Key) String() string {
	var b strings.Builder
	for i, kw := range k.order {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(kw)
		b.WriteByte('=')
		b.WriteString(k.values[kw])
	}
	return b.String()
}
