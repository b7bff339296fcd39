package repo

import (
	"github.com/hangar-db/hangar/codec"
	"github.com/hangar-db/hangar/hash"
	"github.com/hangar-db/hangar/internal/backend"
	"github.com/hangar-db/hangar/internal/herrors"
	"github.com/hangar-db/hangar/kv"
)

// ContentStore implements §4.D: maps a content digest to a backend
// location spec and moves tensor bytes through a pluggable backend,
// verifying the digest before every write and on every receive.
type ContentStore struct {
	hashes   *kv.Store
	backends *backend.Registry
	dataDir  string
}

// NewContentStore wires the hash store to a backend registry and the
// directory tree backends write payload files under.
func NewContentStore(hashes *kv.Store, backends *backend.Registry, dataDir string) *ContentStore {
	return &ContentStore{hashes: hashes, backends: backends, dataDir: dataDir}
}

// Has reports whether digest already has a recorded location.
func (c *ContentStore) Has(digest hash.Hash) (bool, error) {
	found := false
	err := c.hashes.View(func(t *kv.Txn) error {
		_, ok := t.Get(codec.EncodeHashKey(digest.String()))
		found = ok
		return nil
	})
	return found, err
}

// Write content-addresses t: if its digest is already recorded, the write
// is a no-op and the existing spec is kept (§4.D); otherwise t is handed
// to the named backend and the returned spec is recorded.
func (c *ContentStore) Write(backendTag backend.Tag, t backend.Tensor) (hash.Hash, error) {
	digest := backend.DigestOf(t)
	has, err := c.Has(digest)
	if err != nil {
		return digest, err
	}
	if has {
		return digest, nil
	}
	acc, ok := c.backends.Get(backendTag)
	if !ok {
		return digest, herrors.NotFound.New("backend %q", backendTag)
	}
	spec, err := acc.WriteData(t)
	if err != nil {
		return digest, err
	}
	err = c.hashes.Update(func(txn *kv.Txn) error {
		return txn.Put(codec.EncodeHashKey(digest.String()), spec)
	})
	return digest, err
}

// Read resolves digest to its tensor bytes through the recorded backend.
func (c *ContentStore) Read(backendTag backend.Tag, digest hash.Hash) (backend.Tensor, error) {
	var spec []byte
	err := c.hashes.View(func(t *kv.Txn) error {
		v, ok := t.Get(codec.EncodeHashKey(digest.String()))
		if !ok {
			return herrors.NotFound.New("hash %s", digest)
		}
		spec = v
		return nil
	})
	if err != nil {
		return backend.Tensor{}, err
	}
	acc, ok := c.backends.Get(backendTag)
	if !ok {
		return backend.Tensor{}, herrors.NotFound.New("backend %q", backendTag)
	}
	return acc.ReadData(spec)
}

// VerifyDigest recomputes the digest of t and compares it to want, the
// check required on every network receive (§4.D, §4.J). On mismatch the
// entire batch the caller is assembling must be discarded (§7).
func VerifyDigest(t backend.Tensor, want hash.Hash) error {
	got := backend.DigestOf(t)
	if got != want {
		return herrors.DigestMismatch.New("declared %s, recomputed %s", want, got)
	}
	return nil
}

// ReceiveAndWrite verifies t against want before writing it, so a bad
// digest never reaches the backend (§4.D, §7 atomicity requirement).
func (c *ContentStore) ReceiveAndWrite(backendTag backend.Tag, t backend.Tensor, want hash.Hash) error {
	if err := VerifyDigest(t, want); err != nil {
		return err
	}
	_, err := c.Write(backendTag, t)
	return err
}
