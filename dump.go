package fdb

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ecmwf/fdb-sub005/btree"
	"github.com/ecmwf/fdb-sub005/fieldref"
)

// DumpIndex writes every (key digest, FieldRef) pair in the B-tree index
// file at path to w, one per line. Used by the dump-index CLI
// subcommand; grounded on the teacher's search.go diagnostic dumps of a
// single record's header fields.
func DumpIndex(w io.Writer, path string) error {
	tree, err := btree.Open(path, true)
	if err != nil {
		return fmt.Errorf("fdb: open index %s: %w", path, err)
	}
	defer tree.Close()

	var visitErr error
	_ = tree.Visit(func(k btree.Key, v btree.Value) bool {
		ref := fieldref.Decode([fieldref.Size]byte(v))
		if _, err := fmt.Fprintf(w, "%s\tfile=%d\toffset=%d\tlength=%d\tkind=%v\n",
			hex.EncodeToString(k[:]), ref.FileID, ref.Offset, ref.Length, ref.Kind); err != nil {
			visitErr = err
			return false
		}
		return true
	})
	return visitErr
}
