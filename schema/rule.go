package schema

import (
	"fmt"

	"github.com/ecmwf/fdb-sub005/key"
)

// Rule is one node of the schema tree: an ordered list of predicates that
// must all match, plus child rules for the next level down. A Rule with
// no Children is a leaf (the datum level).
type Rule struct {
	Name       string
	Predicates []Matcher
	Children   []*Rule
}

// matches reports whether k satisfies every predicate of r, returning the
// decomposed sub-key (visible predicates only) when it does.
func (r *Rule) matches(reg *key.Registry, k *key.Key) (*key.Key, bool) {
	sub := key.New(reg)
	for _, p := range r.Predicates {
		v, ok := p.Match(k)
		if !ok {
			return nil, false
		}
		if p.Visible() {
			if err := sub.Set(p.Keyword(), v); err != nil {
				return nil, false
			}
		}
	}
	return sub, true
}

// keywords returns every keyword this rule's predicates consume,
// regardless of visibility — used to compute the "covered" set for
// overspecification checks.
func (r *Rule) keywords() []string {
	out := make([]string, 0, len(r.Predicates))
	for _, p := range r.Predicates {
		out = append(out, p.Keyword())
	}
	return out
}

// firstMatch returns the first child of r all of whose predicates match
// k, and the sub-key it produced.
func firstMatch(reg *key.Registry, children []*Rule, k *key.Key) (*Rule, *key.Key, error) {
	for _, child := range children {
		if sub, ok := child.matches(reg, k); ok {
			return child, sub, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: no rule matches key %q", ErrIncompatible, k.String())
}
