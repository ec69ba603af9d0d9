package key

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// Digest algorithm selectors, mirroring the teacher's Config.HashAlgorithm
// convention (jpl-au-folio hash.go) but applied to packing a schema
// fingerprint string into the catalogue's fixed 32-byte B-tree key
// instead of a document id.
const (
	AlgXXHash3 = 1 // default, fastest
	AlgFNV1a   = 2 // no external dependencies (stdlib hash/fnv)
	AlgBlake2b = 3 // best distribution, 256-bit native width matches the 32-byte key exactly
)

// Digest packs fingerprint into a fixed 32-byte B-tree key using alg. A
// digest (rather than the raw, variable-length fingerprint string) is
// what lets every B-tree record stay fixed-size regardless of how many
// keywords a schema level declares.
func Digest(fingerprint string, alg int) [32]byte {
	switch alg {
	case AlgBlake2b:
		return blake2b.Sum256([]byte(fingerprint))
	case AlgFNV1a:
		return fnv32Widened(fingerprint)
	default:
		return xxh3Widened(fingerprint)
	}
}

// xxh3Widened derives 32 bytes from xxh3's 128-bit hash, doubled with a
// salted second pass so the full digest space is used rather than
// zero-padding the low 16 bytes.
func xxh3Widened(s string) [32]byte {
	var out [32]byte
	h128 := xxh3.Hash128([]byte(s))
	binary.LittleEndian.PutUint64(out[0:8], h128.Hi)
	binary.LittleEndian.PutUint64(out[8:16], h128.Lo)
	h2 := xxh3.HashString(s + "\x00salt")
	binary.LittleEndian.PutUint64(out[16:24], h2)
	h3 := xxh3.HashString(s + "\x00salt2")
	binary.LittleEndian.PutUint64(out[24:32], h3)
	return out
}

func fnv32Widened(s string) [32]byte {
	var out [32]byte
	salts := []string{"", "\x01", "\x02", "\x03"}
	for i, salt := range salts {
		h := fnv.New64a()
		h.Write([]byte(s))
		h.Write([]byte(salt))
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], h.Sum64())
	}
	return out
}
