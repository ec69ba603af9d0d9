package schema

import "github.com/ecmwf/fdb-sub005/key"

// Matcher is one predicate of a Rule. Every Matcher is tied to a single
// keyword, per spec.md §4.2.
type Matcher interface {
	// Keyword returns the keyword this predicate governs.
	Keyword() string

	// Match reports whether k satisfies this predicate. When it does,
	// value is the (possibly defaulted) value that should be recorded
	// for this keyword in the decomposed sub-key.
	Match(k *key.Key) (value string, ok bool)

	// Visible reports whether this keyword should appear in the
	// decomposed sub-key. MatchHidden predicates never appear.
	Visible() bool

	// Admissible returns the candidate values this predicate contributes
	// during request expansion: req supplies the caller's requested
	// values for this keyword (nil/empty means "unrestricted"), and
	// axisValues supplies the values actually observed by the index
	// being expanded against (nil means "no axis constraint available
	// yet", e.g. during database/index-level expansion).
	Admissible(req []string, axisValues []string) []string
}

// MatchAny accepts any value for its keyword and records whatever is
// present.
type MatchAny struct{ Kw string }

func (m MatchAny) Keyword() string { return m.Kw }
func (m MatchAny) Visible() bool   { return true }

func (m MatchAny) Match(k *key.Key) (string, bool) {
	return k.Get(m.Kw)
}

func (m MatchAny) Admissible(req, axisValues []string) []string {
	return intersectOrPassthrough(req, axisValues)
}

// MatchValue accepts only a single fixed value.
type MatchValue struct {
	Kw  string
	Val string
}

func (m MatchValue) Keyword() string { return m.Kw }
func (m MatchValue) Visible() bool   { return true }

func (m MatchValue) Match(k *key.Key) (string, bool) {
	v, ok := k.Get(m.Kw)
	if !ok || v != m.Val {
		return "", false
	}
	return v, true
}

func (m MatchValue) Admissible(req, _ []string) []string {
	if len(req) == 0 {
		return []string{m.Val}
	}
	for _, v := range req {
		if v == m.Val {
			return []string{m.Val}
		}
	}
	return nil
}

// MatchHidden always matches, supplying Default when the key lacks the
// keyword. It never appears in the visible decomposed key.
type MatchHidden struct {
	Kw      string
	Default string
}

func (m MatchHidden) Keyword() string { return m.Kw }
func (m MatchHidden) Visible() bool   { return false }

func (m MatchHidden) Match(k *key.Key) (string, bool) {
	if v, ok := k.Get(m.Kw); ok {
		return v, true
	}
	return m.Default, true
}

func (m MatchHidden) Admissible(_, _ []string) []string {
	return []string{m.Default}
}

// MatchOptional matches if present, else injects Default into the
// decomposed key. Unlike MatchHidden it remains visible.
type MatchOptional struct {
	Kw      string
	Default string
}

func (m MatchOptional) Keyword() string { return m.Kw }
func (m MatchOptional) Visible() bool   { return true }

func (m MatchOptional) Match(k *key.Key) (string, bool) {
	if v, ok := k.Get(m.Kw); ok {
		return v, true
	}
	return m.Default, true
}

func (m MatchOptional) Admissible(req, axisValues []string) []string {
	if len(req) == 0 {
		return []string{m.Default}
	}
	return intersectOrPassthrough(req, axisValues)
}

// intersectOrPassthrough implements the common "request intersected with
// axis" admissibility rule shared by MatchAny and MatchOptional.
func intersectOrPassthrough(req, axisValues []string) []string {
	if len(axisValues) == 0 {
		return req
	}
	if len(req) == 0 {
		return axisValues
	}
	axisSet := make(map[string]struct{}, len(axisValues))
	for _, v := range axisValues {
		axisSet[v] = struct{}{}
	}
	var out []string
	for _, v := range req {
		if _, ok := axisSet[v]; ok {
			out = append(out, v)
		}
	}
	return out
}
