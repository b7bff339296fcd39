// Package localfs is the default Accessor (internal/backend): tensor bytes
// live as flat files under a directory, named by content digest, so the
// payload filesystem layout stays ignorant of commit identity per §9
// ("Payload move post-commit") and addressed purely by digest.
package localfs

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/hangar-db/hangar/hash"
	"github.com/hangar-db/hangar/internal/backend"
)

// Tag is this accessor's backend tag, suitable as a schema_default_backend
// value.
const Tag backend.Tag = "localfs"

type spec struct {
	Digest string `json:"digest"`
	Shape  []int  `json:"shape"`
	DType  int    `json:"dtype"`
}

// Accessor implements backend.Accessor against a plain directory of files.
type Accessor struct {
	dir      string
	writable bool
}

// New returns an unopened Accessor.
func New() *Accessor { return &Accessor{} }

func (a *Accessor) Open(dir string, writable bool) error {
	if writable {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	a.dir = dir
	a.writable = writable
	return nil
}

func (a *Accessor) Close() error { return nil }

func (a *Accessor) ReadData(specBytes []byte) (backend.Tensor, error) {
	var s spec
	if err := json.Unmarshal(specBytes, &s); err != nil {
		return backend.Tensor{}, err
	}
	b, err := os.ReadFile(filepath.Join(a.dir, s.Digest))
	if err != nil {
		return backend.Tensor{}, err
	}
	return backend.Tensor{Shape: s.Shape, DType: s.DType, Data: b}, nil
}

func (a *Accessor) WriteData(t backend.Tensor) ([]byte, error) {
	digest := hash.Of(t.Data).String()
	path := filepath.Join(a.dir, digest)
	if _, err := os.Stat(path); err != nil {
		if err := os.WriteFile(path, t.Data, 0o644); err != nil {
			return nil, err
		}
	}
	return json.Marshal(spec{Digest: digest, Shape: t.Shape, DType: t.DType})
}

// MoveFile renames (or copies, cross-filesystem) a payload file written
// under the process stage directory into the permanent store directory,
// the move §4.E/§9 describes. Addressed purely by name (the digest), so
// identical content written twice is a cheap no-op.
func MoveFile(stageDir, storeDir, digest string) error {
	src := filepath.Join(stageDir, digest)
	dst := filepath.Join(storeDir, digest)
	if _, err := os.Stat(dst); err == nil {
		// Already present in the store (content-addressed no-op write);
		// drop the staged duplicate.
		_ = os.Remove(src)
		return nil
	}
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Cross-filesystem fallback: copy+fsync+unlink (§9).
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
