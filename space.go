// Purge, Wipe and Move: the space-reclamation visitors of spec.md §4.8.
// Grounded on the teacher's compact.go (classify-then-rewrite) and
// delete.go (retire a record, leave history recoverable), and on
// database/DbStatistics.cc and database/AuxRegistry.cc from
// original_source/ for the structured before/after report and the
// gribjump-style aux-file liveness rule (SPEC_FULL.md "Supplemented
// Features").
package fdb

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ecmwf/fdb-sub005/toc"
)

// FileClass classifies a file under a database directory during Purge.
type FileClass int

const (
	ClassActive FileClass = iota
	ClassDuplicate
	ClassOrphan
)

func (c FileClass) String() string {
	switch c {
	case ClassActive:
		return "active"
	case ClassDuplicate:
		return "duplicate"
	default:
		return "orphan"
	}
}

// SpaceReport is the structured before/after statistics Purge and Wipe
// produce (grounded on DbStatistics.cc, which spec.md's distillation
// flattened to a bare boolean).
type SpaceReport struct {
	Dir string

	ActiveFiles    int
	ActiveBytes    int64
	DuplicateFiles int
	DuplicateBytes int64
	OrphanFiles    int
	OrphanBytes    int64

	Classes map[string]FileClass // file name -> class, for CLI dumps
	Deleted []string             // populated only when doit=true

	// Signature is the dispatch MAC Wipe computes over the owned file
	// list before deletion (spec.md §4.8, §9). Zero for Purge reports.
	Signature [32]byte
}

func (r *SpaceReport) classify(name string, class FileClass, size int64) {
	r.Classes[name] = class
	switch class {
	case ClassActive:
		r.ActiveFiles++
		r.ActiveBytes += size
	case ClassDuplicate:
		r.DuplicateFiles++
		r.DuplicateBytes += size
	case ClassOrphan:
		r.OrphanFiles++
		r.OrphanBytes += size
	}
}

// Purge walks dir's TOC, computes the active set of (indexPath,
// fingerprint) pairs — the most recent TOC_INDEX record wins for a given
// index digest (spec.md §4.8) — marks the .index, .data and .axis files
// of every active index (and aux files owned by an active .data file) as
// active, and classifies every remaining file in the directory as
// duplicate (an .index, .data or .axis file that no live TOC_INDEX
// record points at, e.g. one cleared or wiped) or orphan (any other
// file). The toc, schema, .files and .wiped files and advisory *.lock
// files are not classified. With doit=true, duplicate and orphan files
// are deleted.
func Purge(dir string, aux *AuxExtensions, doit bool) (*SpaceReport, error) {
	if aux == nil {
		aux = DefaultAuxExtensions()
	}
	report := &SpaceReport{Dir: dir, Classes: make(map[string]FileClass)}

	records, err := toc.NewReader().ReadAll(tocPath(dir))
	if err != nil {
		return nil, fmt.Errorf("fdb: purge: replay toc: %w", err)
	}

	activeIndexPath := make(map[string]string) // digestHex -> most recent relPath
	seenOrder := make(map[string]int)
	order := 0
	for _, rec := range records {
		switch rec.Tag {
		case toc.TagIndex:
			digestHex := hex.EncodeToString(rec.Metadata[:])
			activeIndexPath[digestHex] = relPathOf(rec.Payload)
			seenOrder[digestHex] = order
		case toc.TagClear:
			digestHex := hex.EncodeToString(rec.Metadata[:])
			delete(activeIndexPath, digestHex)
		case toc.TagWipe:
			activeIndexPath = make(map[string]string)
		}
		order++
	}

	activeIndexFiles := make(map[string]bool)
	activeDataFiles := make(map[string]bool)
	activeAxisFiles := make(map[string]bool)
	for _, relPath := range activeIndexPath {
		activeIndexFiles[relPath] = true
		digestHex := strings.TrimSuffix(filepath.Base(relPath), ".index")
		activeDataFiles[digestHex+".data"] = true
		activeAxisFiles[digestHex+".axis"] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("fdb: purge: read dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == "toc" || name == "schema" || name == ".wiped" || name == ".files" || strings.HasSuffix(name, ".lock") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		owner := aux.OwnerName(name)
		switch {
		case activeIndexFiles[name] || activeDataFiles[name] || activeAxisFiles[name] || activeDataFiles[owner]:
			report.classify(name, ClassActive, info.Size())
		case strings.HasSuffix(name, ".index") || strings.HasSuffix(name, ".data") || strings.HasSuffix(name, ".axis"):
			report.classify(name, ClassDuplicate, info.Size())
		default:
			report.classify(name, ClassOrphan, info.Size())
		}
	}

	if doit {
		for name, class := range report.Classes {
			if class == ClassActive {
				continue
			}
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
				return report, fmt.Errorf("fdb: purge: remove %s: %w", name, err)
			}
			report.Deleted = append(report.Deleted, name)
		}
		sort.Strings(report.Deleted)
	}

	return report, nil
}

func relPathOf(payload []byte) string {
	for i, c := range payload {
		if c == 0 {
			return string(payload[:i])
		}
	}
	return string(payload)
}

// Wipe marks dir as wiped — spec.md §4.8: "writes TOC_WIPE, deletes all
// owned files after a configurable grace period, signs the file list
// before dispatch." The grace period is the caller's responsibility
// (e.g. a CLI scheduling physical deletion); Wipe here performs the
// durable state transition and, when doit is true, the immediate
// physical deletion a single-process caller typically wants.
func Wipe(dir string, doit bool, secret []byte) (*SpaceReport, error) {
	report := &SpaceReport{Dir: dir, Classes: make(map[string]FileClass)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("fdb: wipe: read dir: %w", err)
	}
	var uris []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		uris = append(uris, filepath.Join(dir, e.Name()))
	}
	sort.Strings(uris)

	report.Signature = Signature(uris, secret)

	w, err := toc.NewWriter(tocPath(dir), 1)
	if err != nil {
		return nil, fmt.Errorf("fdb: wipe: open toc writer: %w", err)
	}
	if err := w.Append(toc.TagWipe, [32]byte{}, nil); err != nil {
		w.Close()
		return nil, fmt.Errorf("fdb: wipe: append TOC_WIPE: %w", err)
	}
	if err := w.Flush(); err != nil {
		w.Close()
		return nil, fmt.Errorf("fdb: wipe: flush: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	if err := os.WriteFile(wipeMarkerPath(dir), nil, 0644); err != nil {
		return nil, fmt.Errorf("fdb: wipe: write marker: %w", err)
	}

	if doit {
		for _, uri := range uris {
			name := filepath.Base(uri)
			if name == "toc" || name == ".wiped" {
				continue
			}
			info, statErr := os.Stat(uri)
			if err := os.Remove(uri); err != nil && !os.IsNotExist(err) {
				return report, fmt.Errorf("fdb: wipe: remove %s: %w", uri, err)
			}
			size := int64(0)
			if statErr == nil {
				size = info.Size()
			}
			report.classify(name, ClassOrphan, size)
			report.Deleted = append(report.Deleted, name)
		}
	}

	return report, nil
}

// Signature is the placeholder MAC spec.md §4.8/§9 explicitly calls out
// as a stand-in ("xor-hash of sorted URIs + secret"; production
// implementations must replace it with a real MAC).
func Signature(sortedURIs []string, secret []byte) [32]byte {
	h := sha256.New()
	for _, u := range sortedURIs {
		h.Write([]byte(u))
	}
	h.Write(secret)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Move is a NOTIMP stub: spec.md §9 lists remote/cross-root Move
// rewiring among the original's genuine gaps implementers should not
// invent semantics for.
func Move(dir, newRoot string) error {
	return fmt.Errorf("%w: Move", ErrNotImplemented)
}
