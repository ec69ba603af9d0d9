// Schema snapshot (de)serialisation. Every database directory freezes a
// copy of the schema that created it (spec.md §3: "schema frozen copy at
// creation"), so later archives against that directory stay consistent
// even if the live schema changes. The snapshot is a declarative rule
// tree (MatcherDef/RuleDef/Def) rather than the runtime Schema itself,
// since Matcher is an interface and the JSON form needs an explicit type
// tag to rebuild the right concrete matcher.
package schema

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/ecmwf/fdb-sub005/key"
)

// MatcherDef is the declarative form of a Matcher.
type MatcherDef struct {
	Type    string `json:"type"` // "any" | "value" | "hidden" | "optional"
	Keyword string `json:"keyword"`
	Value   string `json:"value,omitempty"`
	Default string `json:"default,omitempty"`
}

// RuleDef is the declarative form of a Rule.
type RuleDef struct {
	Name       string       `json:"name,omitempty"`
	Predicates []MatcherDef `json:"predicates"`
	Children   []RuleDef    `json:"children,omitempty"`
}

// Def is the declarative form of a whole Schema.
type Def struct {
	Database []RuleDef `json:"database"`
}

func buildMatcher(def MatcherDef) (Matcher, error) {
	switch def.Type {
	case "any":
		return MatchAny{Kw: def.Keyword}, nil
	case "value":
		return MatchValue{Kw: def.Keyword, Val: def.Value}, nil
	case "hidden":
		return MatchHidden{Kw: def.Keyword, Default: def.Default}, nil
	case "optional":
		return MatchOptional{Kw: def.Keyword, Default: def.Default}, nil
	default:
		return nil, fmt.Errorf("schema: unknown matcher type %q", def.Type)
	}
}

func buildRule(def RuleDef) (*Rule, error) {
	r := &Rule{Name: def.Name}
	for _, pd := range def.Predicates {
		m, err := buildMatcher(pd)
		if err != nil {
			return nil, err
		}
		r.Predicates = append(r.Predicates, m)
	}
	for _, cd := range def.Children {
		c, err := buildRule(cd)
		if err != nil {
			return nil, err
		}
		r.Children = append(r.Children, c)
	}
	return r, nil
}

// Build compiles a declarative Def into a runtime Schema using reg for
// keyword normalisation.
func Build(def Def, reg *key.Registry) (*Schema, error) {
	s := &Schema{Registry: reg}
	for _, rd := range def.Database {
		r, err := buildRule(rd)
		if err != nil {
			return nil, err
		}
		s.Database = append(s.Database, r)
	}
	return s, nil
}

// matcherDef reverses buildMatcher, so a runtime Schema built in-process
// (e.g. by a CLI's built-in default schema) can be frozen without the
// caller having authored a Def by hand.
func matcherDef(m Matcher) (MatcherDef, error) {
	switch v := m.(type) {
	case MatchAny:
		return MatcherDef{Type: "any", Keyword: v.Kw}, nil
	case MatchValue:
		return MatcherDef{Type: "value", Keyword: v.Kw, Value: v.Val}, nil
	case MatchHidden:
		return MatcherDef{Type: "hidden", Keyword: v.Kw, Default: v.Default}, nil
	case MatchOptional:
		return MatcherDef{Type: "optional", Keyword: v.Kw, Default: v.Default}, nil
	default:
		return MatcherDef{}, fmt.Errorf("schema: unknown matcher implementation %T", m)
	}
}

func ruleDef(r *Rule) (RuleDef, error) {
	rd := RuleDef{Name: r.Name}
	for _, p := range r.Predicates {
		md, err := matcherDef(p)
		if err != nil {
			return RuleDef{}, err
		}
		rd.Predicates = append(rd.Predicates, md)
	}
	for _, c := range r.Children {
		cd, err := ruleDef(c)
		if err != nil {
			return RuleDef{}, err
		}
		rd.Children = append(rd.Children, cd)
	}
	return rd, nil
}

// Snapshot reverses Build, producing the declarative Def for a runtime
// Schema so it can be passed to Freeze.
func Snapshot(s *Schema) (Def, error) {
	var def Def
	for _, r := range s.Database {
		rd, err := ruleDef(r)
		if err != nil {
			return Def{}, err
		}
		def.Database = append(def.Database, rd)
	}
	return def, nil
}

// zstd encoder/decoder shared across Freeze/Load calls, mirroring the
// teacher's package-level compress.go pattern: construction is expensive
// enough (dictionary/state tables) that per-call allocation would
// dominate the cost of freezing a schema that is a few KB of JSON.
var (
	snapshotEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	snapshotDecoder, _ = zstd.NewReader(nil)
)

// Freeze serialises def to its on-disk snapshot form: JSON, then
// zstd-compressed. This is never applied to archived payload bytes
// (spec.md §1 Non-goals) — only to the schema snapshot text stored once
// per database directory.
func Freeze(def Def) ([]byte, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal snapshot: %w", err)
	}
	return snapshotEncoder.EncodeAll(raw, nil), nil
}

// Load decompresses and parses a snapshot written by Freeze.
func Load(frozen []byte) (Def, error) {
	var def Def
	raw, err := snapshotDecoder.DecodeAll(frozen, nil)
	if err != nil {
		return def, fmt.Errorf("schema: decompress snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, &def); err != nil {
		return def, fmt.Errorf("schema: unmarshal snapshot: %w", err)
	}
	return def, nil
}

// LoadSchema is a convenience combining Load and Build.
func LoadSchema(frozen []byte, reg *key.Registry) (*Schema, error) {
	def, err := Load(frozen)
	if err != nil {
		return nil, err
	}
	return Build(def, reg)
}
