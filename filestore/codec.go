// Wire format: spec.md §6 "u32 count; { u32 id; string path }*". Each
// path is written as a u32 length followed by its bytes. The root
// package stores this blob in a database directory's `.files` sidecar.
package filestore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Encode serialises the FileStore to the §6 wire format.
func (fs *FileStore) Encode() ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(fs.byID))); err != nil {
		return nil, err
	}
	for id, path := range fs.byID {
		if err := binary.Write(&buf, binary.LittleEndian, id); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(path))); err != nil {
			return nil, err
		}
		buf.WriteString(path)
	}
	return buf.Bytes(), nil
}

// Decode parses the §6 wire format into a FileStore rooted at dir.
func Decode(data []byte, dir string, readOnly bool) (*FileStore, error) {
	r := bytes.NewReader(data)

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("filestore: decode count: %w", err)
	}

	fs := New(dir, readOnly)
	var maxID uint32
	for i := uint32(0); i < count; i++ {
		var id uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("filestore: decode id: %w", err)
		}
		var plen uint32
		if err := binary.Read(r, binary.LittleEndian, &plen); err != nil {
			return nil, fmt.Errorf("filestore: decode path length: %w", err)
		}
		path := make([]byte, plen)
		if _, err := io.ReadFull(r, path); err != nil {
			return nil, fmt.Errorf("filestore: decode path: %w", err)
		}
		fs.byID[id] = string(path)
		fs.byPath[string(path)] = id
		if id > maxID {
			maxID = id
		}
	}
	fs.nextID = maxID + 1
	return fs, nil
}
