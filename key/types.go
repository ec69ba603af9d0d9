package key

import (
	"fmt"
	"strconv"
)

// Type normalises a raw value string for a given keyword. Two values that
// normalise to the same string are considered equal for fingerprinting and
// duplicate detection, regardless of how each client spelled them (e.g.
// time=12 and time=1200 both normalise to "1200").
type Type interface {
	Normalize(raw string) (string, error)
}

// TypeFunc adapts a plain function to the Type interface.
type TypeFunc func(raw string) (string, error)

func (f TypeFunc) Normalize(raw string) (string, error) { return f(raw) }

// StringType passes the value through unchanged. Used for keywords with no
// stricter shape (e.g. "expver", "class" enums validated elsewhere).
var StringType Type = TypeFunc(func(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidValue)
	}
	return raw, nil
})

// IntegerType normalises decimal integers, stripping leading zeros other
// than a single "0".
var IntegerType Type = TypeFunc(func(raw string) (string, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, raw)
	}
	return strconv.FormatInt(n, 10), nil
})

// DateType normalises an 8-digit yyyyMMdd date. It rejects calendar dates
// that are structurally impossible (month out of 01-12, day out of 01-31)
// but does not validate days-per-month.
var DateType Type = TypeFunc(func(raw string) (string, error) {
	if len(raw) != 8 {
		return "", fmt.Errorf("%w: date %q is not yyyyMMdd", ErrInvalidValue, raw)
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("%w: date %q is not numeric", ErrInvalidValue, raw)
		}
	}
	month := raw[4:6]
	day := raw[6:8]
	if month < "01" || month > "12" {
		return "", fmt.Errorf("%w: date %q has invalid month", ErrInvalidValue, raw)
	}
	if day < "01" || day > "31" {
		return "", fmt.Errorf("%w: date %q has invalid day", ErrInvalidValue, raw)
	}
	return raw, nil
})

// TimeType normalises a time-of-day to 4-digit HHMM, accepting the
// shorthand "HH" form (time=12 -> 1200) the teacher's Config-driven
// zeroed-default pattern inspired: absent precision is padded, not
// rejected.
var TimeType Type = TypeFunc(func(raw string) (string, error) {
	switch len(raw) {
	case 1:
		raw = "0" + raw + "00"
	case 2:
		raw = raw + "00"
	case 4:
		// already HHMM
	default:
		return "", fmt.Errorf("%w: time %q is not H, HH or HHMM", ErrInvalidValue, raw)
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("%w: time %q is not numeric", ErrInvalidValue, raw)
		}
	}
	hh := raw[0:2]
	mm := raw[2:4]
	if hh > "23" {
		return "", fmt.Errorf("%w: time %q has invalid hour", ErrInvalidValue, raw)
	}
	if mm > "59" {
		return "", fmt.Errorf("%w: time %q has invalid minute", ErrInvalidValue, raw)
	}
	return raw, nil
})

// EnumType accepts only values from a fixed allowed set, case-sensitive.
func EnumType(allowed ...string) Type {
	set := make(map[string]struct{}, len(allowed))
	for _, v := range allowed {
		set[v] = struct{}{}
	}
	return TypeFunc(func(raw string) (string, error) {
		if _, ok := set[raw]; !ok {
			return "", fmt.Errorf("%w: %q not in enum %v", ErrInvalidValue, raw, allowed)
		}
		return raw, nil
	})
}

// Registry maps keywords to their normalisation Type. A Registry with no
// entry for a keyword falls back to StringType, matching the teacher's
// "zero value means default" Config convention.
type Registry struct {
	types map[string]Type
}

// NewRegistry returns an empty registry; unregistered keywords normalise
// via StringType.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// Register associates a keyword with a Type. Re-registering a keyword
// replaces its Type.
func (r *Registry) Register(keyword string, t Type) {
	r.types[keyword] = t
}

// Normalize normalises raw for keyword using the registered Type, or
// StringType if none is registered.
func (r *Registry) Normalize(keyword, raw string) (string, error) {
	t, ok := r.types[keyword]
	if !ok {
		t = StringType
	}
	v, err := t.Normalize(raw)
	if err != nil {
		return "", fmt.Errorf("keyword %q: %w", keyword, err)
	}
	return v, nil
}

// DefaultRegistry returns the registry used by the catalogue's stock
// schema: date/time/param are typed, everything else is a free string.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("date", DateType)
	r.Register("time", TimeType)
	r.Register("param", IntegerType)
	r.Register("step", IntegerType)
	r.Register("number", IntegerType)
	r.Register("levelist", IntegerType)
	return r
}
