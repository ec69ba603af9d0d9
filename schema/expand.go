// Request expansion: spec.md §4.2 "identical traversal but each predicate
// enumerates its admissible values... producing a Cartesian set of
// index-keys" and §4.7 "enumerate fingerprints from the Cartesian
// expansion" at the datum level, pruned by the index's observed axis.
package schema

import "github.com/ecmwf/fdb-sub005/key"

// Request carries the caller's requested values per keyword. A keyword
// absent from Values is unrestricted (matches anything admissible at
// that level).
type Request struct {
	Values map[string][]string
}

// AxisValues is supplied by the caller during datum-level expansion to
// prune the Cartesian product to values actually observed by a specific
// index (spec.md §4.7: "axis filter collapses it to the non-empty
// subset"). Database/index level expansion has no axis yet, so callers
// pass nil.
type AxisValues func(keyword string) []string

// IndexKey pairs an expanded index-level key with the database rule and
// index rule that produced it, so later ExpandDatums calls know which
// leaf rules apply.
type IndexKey struct {
	Database *key.Key
	Index    *key.Key
	dbRule   *Rule
	idxRule  *Rule
}

// DatabaseOrder returns the schema-declared keyword order for the
// database rule that produced ik, for building a stable database
// fingerprint during retrieval (mirrors Decomposed.DatabaseOrder for the
// archive path).
func (ik IndexKey) DatabaseOrder() []string { return ik.dbRule.keywords() }

// IndexOrder returns the schema-declared keyword order for the index
// rule that produced ik.
func (ik IndexKey) IndexOrder() []string { return ik.idxRule.keywords() }

// DatumOrder returns the schema-declared keyword order for ik's datum
// level, assuming the common case of exactly one datum-level rule per
// index-level rule (see ExpandDatums). Returns nil if the index rule has
// no datum-level children.
func (ik IndexKey) DatumOrder() []string {
	if len(ik.idxRule.Children) == 0 {
		return nil
	}
	return ik.idxRule.Children[0].keywords()
}

// ExpandIndexes enumerates every (database, index) key combination
// admissible under req, across every database/index rule pair in the
// schema. It never consults an axis — axis pruning is reserved for the
// datum level where cardinality actually explodes.
func (s *Schema) ExpandIndexes(req *Request) ([]IndexKey, error) {
	var out []IndexKey
	for _, dbRule := range s.Database {
		dbCombos, err := cartesian(s.Registry, dbRule.Predicates, req, nil)
		if err != nil {
			return nil, err
		}
		for _, idxRule := range dbRule.Children {
			idxCombos, err := cartesian(s.Registry, idxRule.Predicates, req, nil)
			if err != nil {
				return nil, err
			}
			for _, dbKey := range dbCombos {
				for _, idxKey := range idxCombos {
					out = append(out, IndexKey{
						Database: dbKey,
						Index:    idxKey,
						dbRule:   dbRule,
						idxRule:  idxRule,
					})
				}
			}
		}
	}
	return out, nil
}

// ExpandDatums enumerates every datum-level key admissible under req and
// axis for the given IndexKey's matched index rule(s). Each concrete leaf
// rule under ik.idxRule is tried; in practice schemas have exactly one
// datum-level rule per index-level rule, but the tree permits more.
func (s *Schema) ExpandDatums(ik IndexKey, req *Request, axis AxisValues) ([]*key.Key, error) {
	var out []*key.Key
	for _, datRule := range ik.idxRule.Children {
		combos, err := cartesian(s.Registry, datRule.Predicates, req, axis)
		if err != nil {
			return nil, err
		}
		out = append(out, combos...)
	}
	return out, nil
}

// cartesian computes the Cartesian product of each predicate's admissible
// values, returning one key.Key per combination. A predicate with zero
// admissible values collapses the whole product to empty (that branch of
// the expansion contributes nothing — not an error, since a request may
// legitimately not match every rule in the schema).
func cartesian(reg *key.Registry, predicates []Matcher, req *Request, axis AxisValues) ([]*key.Key, error) {
	combos := []*key.Key{key.New(reg)}

	for _, p := range predicates {
		var reqVals []string
		if req != nil {
			reqVals = req.Values[p.Keyword()]
		}
		var axisVals []string
		if axis != nil {
			axisVals = axis(p.Keyword())
		}

		vals := p.Admissible(reqVals, axisVals)
		if len(vals) == 0 {
			return nil, nil
		}

		var next []*key.Key
		for _, base := range combos {
			for _, v := range vals {
				k := base.Clone()
				if p.Visible() {
					if err := k.Set(p.Keyword(), v); err != nil {
						continue
					}
				}
				next = append(next, k)
			}
		}
		combos = next
		if len(combos) == 0 {
			return nil, nil
		}
	}

	return combos, nil
}
