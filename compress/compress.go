// Package compress implements the byte-shuffled LZ-family codec that
// spec.md §6 requires for commit refs, commit specs, and sync payload
// batches: a 1-byte-typesize shuffle filter followed by deflate at level 9.
// The shuffle is plain arithmetic (no library in the retrieved pack binds
// the original blosc codec for Go); the actual compression work is done by
// klauspost/compress, a real third-party deflate implementation, not the
// standard library's compress/flate.
package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// TypeSize is the shuffle element width §6 specifies (1 byte).
const TypeSize = 1

// Level is the compression level §6 specifies (9, i.e. best compression).
const Level = 9

// Compress shuffles then deflates b.
func Compress(b []byte) ([]byte, error) {
	shuffled := shuffle(b, TypeSize)

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, Level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(shuffled); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress inflates then unshuffles b, the exact inverse of Compress.
func Decompress(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	inflated, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return unshuffle(inflated, TypeSize), nil
}
