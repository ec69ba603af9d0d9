// Package axis implements IndexAxis: a per-keyword set of values observed
// in one index, used to prune retrieval request expansion (spec.md §4.2,
// §4.7). Invariant: every key ever inserted into the owning index has
// every (keyword, value) pair present in the axis.
package axis

import (
	"sort"
	"sync"

	"github.com/ecmwf/fdb-sub005/key"
)

// IndexAxis tracks, per keyword, the set of values observed across every
// key inserted into one index.
type IndexAxis struct {
	mu     sync.RWMutex
	values map[string]map[string]struct{}
}

// New returns an empty IndexAxis.
func New() *IndexAxis {
	return &IndexAxis{values: make(map[string]map[string]struct{})}
}

// Insert records every (keyword, value) pair of k into the axis.
func (a *IndexAxis) Insert(k *key.Key) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, kw := range k.Keys() {
		v, _ := k.Get(kw)
		set, ok := a.values[kw]
		if !ok {
			set = make(map[string]struct{})
			a.values[kw] = set
		}
		set[v] = struct{}{}
	}
}

// Values returns the sorted set of values observed for keyword, or nil
// if the keyword has never been inserted.
func (a *IndexAxis) Values(keyword string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	set, ok := a.values[keyword]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Keywords returns every keyword the axis has observed.
func (a *IndexAxis) Keywords() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.values))
	for kw := range a.values {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

// MayContain reports whether k's values are all admissible per the
// observed axis — a fast "does this index possibly contain X" pruning
// check (spec.md §4.2). A keyword the axis has never observed at all is
// treated as non-restrictive (the axis has no opinion on it).
func (a *IndexAxis) MayContain(k *key.Key) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, kw := range k.Keys() {
		set, ok := a.values[kw]
		if !ok {
			continue
		}
		v, _ := k.Get(kw)
		if _, present := set[v]; !present {
			return false
		}
	}
	return true
}
