// AuxExtensions implements the auxiliary-file registry referenced by
// spec.md §6 ("FDB_AUX_EXTENSIONS") and grounded on the original
// database/AuxRegistry.cc: an aux file (e.g. a .gribjump sidecar) shares
// the liveness of the .data file it accompanies, but has no other
// behaviour wired to it (spec.md §9 Open Questions).
package fdb

import "strings"

// AuxExtensions is the set of registered auxiliary file extensions.
type AuxExtensions struct {
	set map[string]struct{}
}

// DefaultAuxExtensions returns the registry with its spec.md §6 default:
// {gribjump}.
func DefaultAuxExtensions() *AuxExtensions {
	return NewAuxExtensions("gribjump")
}

// NewAuxExtensions builds a registry from a list of extensions (without
// leading dots).
func NewAuxExtensions(exts ...string) *AuxExtensions {
	a := &AuxExtensions{set: make(map[string]struct{}, len(exts))}
	for _, e := range exts {
		a.set[strings.TrimPrefix(e, ".")] = struct{}{}
	}
	return a
}

// ParseAuxExtensions parses a comma-separated FDB_AUX_EXTENSIONS value.
func ParseAuxExtensions(csv string) *AuxExtensions {
	if csv == "" {
		return DefaultAuxExtensions()
	}
	return NewAuxExtensions(strings.Split(csv, ",")...)
}

// IsAux reports whether ext (without leading dot) is a registered
// auxiliary extension.
func (a *AuxExtensions) IsAux(ext string) bool {
	_, ok := a.set[strings.TrimPrefix(ext, ".")]
	return ok
}

// OwnerName strips a registered aux extension (and the one before it, if
// present — aux files are named `<owner>.data.<ext>`) to recover the
// owning data file's base name, or returns name unchanged if it does not
// carry a registered aux extension.
func (a *AuxExtensions) OwnerName(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return name
	}
	ext := name[idx+1:]
	if !a.IsAux(ext) {
		return name
	}
	return name[:idx]
}
