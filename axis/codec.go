package axis

import (
	json "github.com/goccy/go-json"
)

// axisWire is the JSON-friendly form of an IndexAxis, used when an index
// is reopened so its axis can be rebuilt without re-scanning every B-tree
// leaf (the teacher's header.go uses goccy/go-json for exactly this kind
// of small, hot-path metadata blob).
type axisWire map[string][]string

// Encode serialises the axis for storage alongside an index (e.g. a
// sidecar file next to the *.index B-tree).
func (a *IndexAxis) Encode() ([]byte, error) {
	a.mu.RLock()
	wire := make(axisWire, len(a.values))
	for kw, set := range a.values {
		vals := make([]string, 0, len(set))
		for v := range set {
			vals = append(vals, v)
		}
		wire[kw] = vals
	}
	a.mu.RUnlock()
	return json.Marshal(wire)
}

// Decode rebuilds an IndexAxis from bytes written by Encode.
func Decode(data []byte) (*IndexAxis, error) {
	var wire axisWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	a := New()
	for kw, vals := range wire {
		set := make(map[string]struct{}, len(vals))
		for _, v := range vals {
			set[v] = struct{}{}
		}
		a.values[kw] = set
	}
	return a, nil
}
