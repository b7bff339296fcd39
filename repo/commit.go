package repo

import (
	"bytes"
	"sort"
	"time"

	"github.com/hangar-db/hangar/codec"
	"github.com/hangar-db/hangar/compress"
	"github.com/hangar-db/hangar/hash"
	"github.com/hangar-db/hangar/internal/backend/localfs"
	"github.com/hangar-db/hangar/internal/herrors"
	"github.com/hangar-db/hangar/kv"
)

// CommitEngine implements §4.F: snapshots the staging area into an
// immutable commit, and can unpack any existing commit's ref list back
// into a fresh store for reading.
type CommitEngine struct {
	env *Env
}

// NewCommitEngine wraps env.
func NewCommitEngine(env *Env) *CommitEngine {
	return &CommitEngine{env: env}
}

// Encoded is the fully-serialized, not-yet-digested form of a commit's
// parent linkage, ref list and spec, shared by both local commit creation
// and network receive of a pushed commit.
type Encoded struct {
	ParentVal      []byte // codec.EncodeCommitParentValue(...)
	CompressedRefs []byte
	CompressedSpec []byte
}

// Digest computes the commit's content digest from (parents ||
// compressed-refs || compressed-spec), per §6.
func (e Encoded) Digest() hash.Hash {
	var buf bytes.Buffer
	buf.Write(e.ParentVal)
	buf.Write(e.CompressedRefs)
	buf.Write(e.CompressedSpec)
	return hash.Of(buf.Bytes())
}

// encodeFromStage reads every record out of the stage-ref store (already
// ascending by key, I3) and packs+compresses it, pairing it with the given
// parent linkage and spec.
func (c *CommitEngine) encodeFromStage(parent, mergeParent string, spec codec.CommitSpec) (Encoded, error) {
	var pairs []kv.Pair
	err := c.env.StageRef.View(func(t *kv.Txn) error {
		pairs = t.All()
		return nil
	})
	if err != nil {
		return Encoded{}, err
	}
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].Key, pairs[j].Key) < 0 })

	kvs := make([]compress.KV, len(pairs))
	for i, p := range pairs {
		kvs[i] = compress.KV{Key: p.Key, Value: p.Value}
	}
	packed := compress.PackKVList(kvs)
	compressedRefs, err := compress.Compress(packed)
	if err != nil {
		return Encoded{}, err
	}

	specBytes, err := codec.MarshalCommitSpec(spec)
	if err != nil {
		return Encoded{}, err
	}
	compressedSpec, err := compress.Compress(specBytes)
	if err != nil {
		return Encoded{}, err
	}

	return Encoded{
		ParentVal:      codec.EncodeCommitParentValue(parent, mergeParent),
		CompressedRefs: compressedRefs,
		CompressedSpec: compressedSpec,
	}, nil
}

// Commit implements §4.F's commit(message, user, email, parents) -> digest
// for the local-writer case: parent is the current branch head (or "" for
// a root commit), mergeParent is "" for a normal commit.
//
// Duplicate detection: if the computed digest already exists in the ref
// store, this is a no-op and ("", nil) is returned so callers can treat it
// as idempotent (§4.F, §8).
func (c *CommitEngine) Commit(token string, lock *WriterLock, branches *Branches, branchName, message, user, email string) (string, error) {
	if err := lock.ValidateToken(token); err != nil {
		return "", err
	}

	parent := ""
	if head, err := branches.GetBranchHead(branchName); err == nil {
		parent = head
	} else if !herrors.NotFound.Is(err) {
		return "", err
	}

	spec := codec.CommitSpec{Time: time.Now().Unix(), Message: message, User: user, Email: email}
	enc, err := c.encodeFromStage(parent, "", spec)
	if err != nil {
		return "", err
	}
	return c.finalize(enc, branches, branchName)
}

// CommitMerge is Commit's two-parent counterpart, used by the merge
// algorithm (§4.H) once a three-way merge has produced the merged record
// set in the staging area.
func (c *CommitEngine) CommitMerge(token string, lock *WriterLock, branches *Branches, branchName, masterParent, devParent, message, user, email string) (string, error) {
	if err := lock.ValidateToken(token); err != nil {
		return "", err
	}
	spec := codec.CommitSpec{Time: time.Now().Unix(), Message: message, User: user, Email: email}
	enc, err := c.encodeFromStage(masterParent, devParent, spec)
	if err != nil {
		return "", err
	}
	return c.finalize(enc, branches, branchName)
}

// finalize writes the three commit records in the order §5 requires
// (spec and ref both durable before the branch head moves), moves staged
// payloads into the permanent store, and clears the staging area. Returns
// ("", nil) if the commit already existed (duplicate detection).
func (c *CommitEngine) finalize(enc Encoded, branches *Branches, branchName string) (string, error) {
	digest := enc.Digest()
	digestHex := digest.String()

	exists := false
	err := c.env.Registry.WithReader(c.env.Ref, func(t *kv.Txn) error {
		_, ok := t.Get(codec.EncodeCommitRefKey(digestHex))
		exists = ok
		return nil
	})
	if err != nil {
		return "", err
	}
	if exists {
		return "", nil
	}

	err = c.env.Registry.WithWriter(c.env.Ref, func(t *kv.Txn) error {
		if err := t.Put(codec.EncodeCommitSpecKey(digestHex), enc.CompressedSpec); err != nil {
			return err
		}
		if err := t.Put(codec.EncodeCommitRefKey(digestHex), enc.CompressedRefs); err != nil {
			return err
		}
		return t.Put(codec.EncodeCommitParentKey(digestHex), enc.ParentVal)
	})
	if err != nil {
		return "", err
	}

	if err := branches.SetBranchHead(branchName, digestHex); err != nil {
		return "", err
	}

	if err := c.movePayloads(); err != nil {
		return "", err
	}
	if err := c.clearStage(); err != nil {
		return "", err
	}
	// Rehydrate the staging area from the commit just written, so it keeps
	// mirroring the branch head (minus any new edits) the way a checked-out
	// working tree does, and the next commit can build incrementally
	// without redeclaring every schema and sample (§4.E/§4.F, §5 ordering:
	// this happens only after the commit record and branch head are
	// durable).
	if err := c.UnpackCommitRef(digestHex, c.env.StageRef); err != nil {
		return "", err
	}
	return digestHex, nil
}

// movePayloads moves every pending data file from the stage data dir to
// the store data dir, after the commit record is durable (§5, §9).
func (c *CommitEngine) movePayloads() error {
	var digests []string
	err := c.env.StageHash.View(func(t *kv.Txn) error {
		for _, p := range t.All() {
			d, err := codec.DecodeHashKey(p.Key)
			if err == nil {
				digests = append(digests, d)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, d := range digests {
		if err := localfs.MoveFile(c.env.StageDataDir(), c.env.StoreDataDir(), d); err != nil {
			return err
		}
	}

	return c.env.HashStore.Update(func(dst *kv.Txn) error {
		return c.env.StageHash.View(func(src *kv.Txn) error {
			for _, p := range src.All() {
				if _, ok := dst.Get(p.Key); !ok {
					if err := dst.Put(p.Key, p.Value); err != nil {
						return err
					}
				}
			}
			return nil
		})
	})
}

func (c *CommitEngine) clearStage() error {
	if err := c.env.StageRef.Update(func(t *kv.Txn) error {
		for _, p := range t.All() {
			if err := t.Delete(p.Key); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	return c.env.StageHash.Update(func(t *kv.Txn) error {
		for _, p := range t.All() {
			if err := t.Delete(p.Key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Checkout switches the staging area to mirror branchName's current head,
// discarding any uncommitted edits. Writer checkouts call this before a
// session of staging writes so the working set starts from the branch
// being worked on rather than whatever another branch last left behind
// (§4.E/§4.G).
func (c *CommitEngine) Checkout(branches *Branches, branchName string) error {
	head, err := branches.GetBranchHead(branchName)
	if err != nil {
		return err
	}
	if err := c.clearStage(); err != nil {
		return err
	}
	if head == "" {
		// Root of the branch: no commit exists yet, so there is nothing to
		// unpack — an empty staging area already mirrors it correctly.
		return nil
	}
	return c.UnpackCommitRef(head, c.env.StageRef)
}

// UnpackCommitRef decompresses commit's ref list and bulk-loads it into
// dest, reproducing the repository state at that commit without mutating
// any other store (§4.F).
func (c *CommitEngine) UnpackCommitRef(commit string, dest *kv.Store) error {
	var compressedRefs []byte
	err := c.env.Ref.View(func(t *kv.Txn) error {
		v, ok := t.Get(codec.EncodeCommitRefKey(commit))
		if !ok {
			return herrors.NotFound.New("commit %q", commit)
		}
		compressedRefs = v
		return nil
	})
	if err != nil {
		return err
	}

	packed, err := compress.Decompress(compressedRefs)
	if err != nil {
		return err
	}
	kvs, err := compress.UnpackKVList(packed)
	if err != nil {
		return err
	}
	pairs := make([]kv.Pair, len(kvs))
	for i, p := range kvs {
		pairs[i] = kv.Pair{Key: p.Key, Value: p.Value}
	}
	return dest.Update(func(t *kv.Txn) error {
		return t.LoadAll(pairs)
	})
}

// GetSpec returns a commit's decoded spec.
func (c *CommitEngine) GetSpec(commit string) (codec.CommitSpec, error) {
	var spec codec.CommitSpec
	err := c.env.Ref.View(func(t *kv.Txn) error {
		v, ok := t.Get(codec.EncodeCommitSpecKey(commit))
		if !ok {
			return herrors.NotFound.New("commit %q", commit)
		}
		decompressed, err := compress.Decompress(v)
		if err != nil {
			return err
		}
		spec, err = codec.UnmarshalCommitSpec(decompressed)
		return err
	})
	return spec, err
}

// GetParents returns a commit's (parent, mergeParent) linkage; mergeParent
// is "" for a non-merge commit and parent is "" for the root commit.
func (c *CommitEngine) GetParents(commit string) (parent, mergeParent string, err error) {
	err = c.env.Ref.View(func(t *kv.Txn) error {
		v, ok := t.Get(codec.EncodeCommitParentKey(commit))
		if !ok {
			return herrors.NotFound.New("commit %q", commit)
		}
		parent, mergeParent = codec.DecodeCommitParentValue(v)
		return nil
	})
	return parent, mergeParent, err
}

// Exists reports whether commit is present in the ref store.
func (c *CommitEngine) Exists(commit string) (bool, error) {
	found := false
	err := c.env.Ref.View(func(t *kv.Txn) error {
		_, ok := t.Get(codec.EncodeCommitRefKey(commit))
		found = ok
		return nil
	})
	return found, err
}

// ReceiveCommit implements the write side of §4.J's Fetch/Push Commit RPC:
// it recomputes the digest from the supplied parent/ref/spec bytes,
// rejects a mismatch against claimedDigest, and writes the commit only if
// it is not already present (idempotent push, §7/§8).
func (c *CommitEngine) ReceiveCommit(claimedDigest string, enc Encoded) error {
	got := enc.Digest().String()
	if got != claimedDigest {
		return herrors.DigestMismatch.New("commit digest mismatch: claimed %s, recomputed %s", claimedDigest, got)
	}
	exists, err := c.Exists(claimedDigest)
	if err != nil {
		return err
	}
	if exists {
		return herrors.AlreadyExists.New("commit %s", claimedDigest)
	}
	return c.env.Registry.WithWriter(c.env.Ref, func(t *kv.Txn) error {
		if err := t.Put(codec.EncodeCommitSpecKey(claimedDigest), enc.CompressedSpec); err != nil {
			return err
		}
		if err := t.Put(codec.EncodeCommitRefKey(claimedDigest), enc.CompressedRefs); err != nil {
			return err
		}
		return t.Put(codec.EncodeCommitParentKey(claimedDigest), enc.ParentVal)
	})
}
