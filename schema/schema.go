package schema

import (
	"fmt"

	"github.com/ecmwf/fdb-sub005/key"
)

// Schema is a three-level rule tree: Root's children are database-level
// rules, whose children are index-level rules, whose children are
// datum-level (leaf) rules. See spec.md §4.2.
type Schema struct {
	Registry *key.Registry
	Database []*Rule
	// each Database rule's Children are its index-level rules, and each
	// of those rules' Children are its datum-level (leaf) rules.
}

// Decomposed holds the three sub-keys produced by Decompose, plus the
// matched rule path (used by Fingerprint order and by expansion).
type Decomposed struct {
	Database *key.Key
	Index    *key.Key
	Datum    *key.Key

	dbRule  *Rule
	idxRule *Rule
	datRule *Rule
}

// Decompose traverses the schema for a full key K, producing its
// (database, index, datum) sub-keys. It fails with ErrIncompatible if no
// rule matches at any level, and with ErrOverspecified if K carries
// keywords no rule consumed.
func (s *Schema) Decompose(k *key.Key) (*Decomposed, error) {
	dbRule, dbKey, err := firstMatch(s.Registry, s.Database, k)
	if err != nil {
		return nil, err
	}
	idxRule, idxKey, err := firstMatch(s.Registry, dbRule.Children, k)
	if err != nil {
		return nil, err
	}
	datRule, datKey, err := firstMatch(s.Registry, idxRule.Children, k)
	if err != nil {
		return nil, err
	}

	covered := make(map[string]struct{})
	for _, kw := range dbRule.keywords() {
		covered[kw] = struct{}{}
	}
	for _, kw := range idxRule.keywords() {
		covered[kw] = struct{}{}
	}
	for _, kw := range datRule.keywords() {
		covered[kw] = struct{}{}
	}
	for _, kw := range k.Keys() {
		if _, ok := covered[kw]; !ok {
			return nil, fmt.Errorf("%w: keyword %q", ErrOverspecified, kw)
		}
	}

	return &Decomposed{
		Database: dbKey,
		Index:    idxKey,
		Datum:    datKey,
		dbRule:   dbRule,
		idxRule:  idxRule,
		datRule:  datRule,
	}, nil
}

// DatabaseOrder returns the schema-declared keyword order for the
// database level matched by d, for use with key.Key.Fingerprint.
func (d *Decomposed) DatabaseOrder() []string { return d.dbRule.keywords() }

// IndexOrder returns the schema-declared keyword order for the index
// level matched by d.
func (d *Decomposed) IndexOrder() []string { return d.idxRule.keywords() }

// DatumOrder returns the schema-declared keyword order for the datum
// level matched by d — this is the order used to build the B-tree
// fingerprint (§6: "key = 32-byte fixed string fingerprint").
func (d *Decomposed) DatumOrder() []string { return d.datRule.keywords() }
