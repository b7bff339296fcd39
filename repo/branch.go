package repo

import (
	"strings"

	"github.com/hangar-db/hangar/codec"
	"github.com/hangar-db/hangar/internal/herrors"
	"github.com/hangar-db/hangar/kv"
)

// Branches implements §4.G's branch operations (excluding the lock, which
// lives in WriterLock) plus the HEAD pointer.
type Branches struct {
	store *kv.Store
}

// NewBranches wraps the branch store.
func NewBranches(branch *kv.Store) *Branches {
	return &Branches{store: branch}
}

// CreateBranch creates name pointing at baseCommit. Fails with
// herrors.InvalidName or herrors.AlreadyExists (§4.G).
func (b *Branches) CreateBranch(name, baseCommit string) error {
	if err := ValidateBranchName(name); err != nil {
		return err
	}
	return b.store.Update(func(t *kv.Txn) error {
		key := codec.EncodeBranchKey(name)
		if _, ok := t.Get(key); ok {
			return herrors.AlreadyExists.New("branch %q", name)
		}
		return t.Put(key, codec.EncodeBranchValue(baseCommit))
	})
}

// SetBranchHead advances (or creates) name's head to commit.
func (b *Branches) SetBranchHead(name, commit string) error {
	return b.store.Update(func(t *kv.Txn) error {
		return t.Put(codec.EncodeBranchKey(name), codec.EncodeBranchValue(commit))
	})
}

// GetBranchHead returns the commit digest name points at.
func (b *Branches) GetBranchHead(name string) (string, error) {
	var out string
	err := b.store.View(func(t *kv.Txn) error {
		v, ok := t.Get(codec.EncodeBranchKey(name))
		if !ok {
			return herrors.NotFound.New("branch %q", name)
		}
		out = codec.DecodeBranchValue(v)
		return nil
	})
	return out, err
}

// GetBranchNames returns every declared branch name.
func (b *Branches) GetBranchNames() ([]string, error) {
	var names []string
	err := b.store.View(func(t *kv.Txn) error {
		for _, p := range t.Range([]byte("branch:")) {
			name, err := codec.DecodeBranchKey(p.Key)
			if err != nil {
				continue
			}
			names = append(names, name)
		}
		return nil
	})
	return names, err
}

// CommitHashToBranchNameMap returns every branch head keyed by the commit
// digest it points at (a commit may be the head of more than one branch,
// so each value is a slice).
func (b *Branches) CommitHashToBranchNameMap() (map[string][]string, error) {
	out := make(map[string][]string)
	err := b.store.View(func(t *kv.Txn) error {
		for _, p := range t.Range([]byte("branch:")) {
			name, err := codec.DecodeBranchKey(p.Key)
			if err != nil {
				continue
			}
			commit := codec.DecodeBranchValue(p.Value)
			out[commit] = append(out[commit], name)
		}
		return nil
	})
	return out, err
}

// GetHead returns the writer's current HEAD branch name.
func (b *Branches) GetHead() (string, error) {
	var out string
	err := b.store.View(func(t *kv.Txn) error {
		v, ok := t.Get(codec.HeadKey())
		if !ok {
			return herrors.NotFound.New("no HEAD set")
		}
		name, err := codec.DecodeHeadValue(v)
		out = name
		return err
	})
	return out, err
}

// SetHead points the writer's HEAD at branch name.
func (b *Branches) SetHead(name string) error {
	return b.store.Update(func(t *kv.Txn) error {
		return t.Put(codec.HeadKey(), codec.EncodeHeadValue(name))
	})
}

// Remotes implements §4.K's remotes registry, stored under the branch
// store's "remote:" prefix.
type Remotes struct {
	store *kv.Store
}

// NewRemotes wraps the branch store for remote registry operations.
func NewRemotes(branch *kv.Store) *Remotes {
	return &Remotes{store: branch}
}

func (r *Remotes) Add(name, address string) error {
	return r.store.Update(func(t *kv.Txn) error {
		return t.Put(codec.EncodeRemoteKey(name), codec.EncodeRemoteValue(address))
	})
}

func (r *Remotes) Remove(name string) error {
	return r.store.Update(func(t *kv.Txn) error {
		return t.Delete(codec.EncodeRemoteKey(name))
	})
}

func (r *Remotes) Get(name string) (string, error) {
	var out string
	err := r.store.View(func(t *kv.Txn) error {
		v, ok := t.Get(codec.EncodeRemoteKey(name))
		if !ok {
			return herrors.NotFound.New("remote %q", name)
		}
		out = codec.DecodeRemoteValue(v)
		return nil
	})
	return out, err
}

func (r *Remotes) List() (map[string]string, error) {
	out := make(map[string]string)
	err := r.store.View(func(t *kv.Txn) error {
		for _, p := range t.Range([]byte("remote:")) {
			name, err := codec.DecodeRemoteKey(p.Key)
			if err != nil {
				continue
			}
			out[name] = codec.DecodeRemoteValue(p.Value)
		}
		return nil
	})
	return out, err
}

// stripBranchPrefix is a small helper kept close to the branch-key parsing
// above for discoverability: it trims the "branch:" prefix from a raw
// string, as codec.DecodeBranchKey does without its prefix check.
func stripBranchPrefix(s string) string {
	return strings.TrimPrefix(s, "branch:")
}
