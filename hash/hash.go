// Package hash implements the content digest used to address tensors,
// metadata blobs and commits throughout the repository.
package hash

import (
	"encoding/hex"
	"golang.org/x/crypto/blake2b"
)

// ByteLen is the width of a digest in raw bytes (20-byte BLAKE2b per §6).
const ByteLen = 20

// Hash is the fixed-width digest identifying a piece of content.
type Hash [ByteLen]byte

// Empty is the all-zero digest, used as a sentinel "no parent"/"absent"
// value by callers that need one. It is not the digest of zero-length
// input: Of(nil) is the BLAKE2b-160 digest of the empty string.
var Empty Hash

// Of computes the digest of raw bytes. This uses a native 20-byte BLAKE2b
// digest (the digest size is part of BLAKE2b's parameter block, not a
// truncation of the full 512-bit sum, so the two produce different bytes
// for the same input).
func Of(data []byte) Hash {
	d, err := blake2b.New(ByteLen, nil)
	if err != nil {
		panic(err)
	}
	d.Write(data)
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

// New truncates/copies an existing full-width sum into a Hash: the first
// ByteLen bytes of b are kept, and a shorter b is zero-padded.
func New(b []byte) Hash {
	var h Hash
	copy(h[:], b)
	return h
}

// IsEmpty reports whether h is the zero digest.
func (h Hash) IsEmpty() bool {
	return h == Empty
}

// String returns the lowercase hex encoding of the digest, which is the
// canonical on-the-wire and on-disk representation.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Parse decodes a hex-encoded digest string.
func Parse(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != ByteLen {
		return h, ErrBadLength
	}
	copy(h[:], b)
	return h, nil
}

// MustParse is Parse but panics on error; used for compile-time constants
// in tests.
func MustParse(s string) Hash {
	h, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return h
}

// Less orders two hashes lexicographically by their raw bytes, giving a
// stable total order usable for sorted iteration.
func Less(a, b Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Sorter sorts a slice of hashes in place.
type Sorter []Hash

func (s Sorter) Len() int           { return len(s) }
func (s Sorter) Less(i, j int) bool { return Less(s[i], s[j]) }
func (s Sorter) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
