// Package repo implements the repository core: Environments (§4.C),
// Hash/Content Store (§4.D), Staging Area (§4.E), Commit Engine (§4.F),
// Branch & Writer Lock (§4.G), History & Merge (§4.H), Record Query
// (§4.I), and Remotes Registry (§4.K).
package repo

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/hangar-db/hangar/internal/backend"
	"github.com/hangar-db/hangar/internal/backend/localfs"
	"github.com/hangar-db/hangar/internal/herrors"
	"github.com/hangar-db/hangar/internal/keys"
	"github.com/hangar-db/hangar/kv"
)

// Version is the on-disk repository format this build writes and expects.
// Env.Open refuses to proceed against a different recorded version (§4.C,
// §9 open question 2: refuse-to-open, no migration).
const Version = "1"

// Env owns the full set of distinct logical stores a repository is made
// of, plus a dynamically populated map of unpacked per-commit ref stores
// opened lazily when a reader checkout requests that commit (§4.C).
type Env struct {
	RootDir string
	DataDir string

	Branch    *kv.Store
	Ref       *kv.Store
	HashStore *kv.Store
	Label     *kv.Store
	StageRef  *kv.Store
	StageHash *kv.Store

	Registry *kv.Registry
	Backends *backend.Registry

	mu      sync.Mutex
	unpacks map[string]*kv.Store // commit hash -> unpacked ref store
}

// Open initializes or opens a repository rooted at rootDir (the directory
// containing branch.lmdb etc — typically <working dir>/.hangar). If
// removeOld is set, any existing store files are deleted first, making
// initialization idempotent in the "start fresh" sense §4.C describes.
func Open(rootDir string, removeOld bool) (*Env, error) {
	if removeOld {
		if err := os.RemoveAll(rootDir); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, err
	}
	dataDir := filepath.Join(rootDir, keys.DirData)
	for _, sub := range []string{keys.DirDataStore, keys.DirDataStage, keys.DirDataRemote} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return nil, err
		}
	}

	e := &Env{
		RootDir:  rootDir,
		DataDir:  dataDir,
		Registry: kv.NewRegistry(),
		Backends: backend.NewRegistry(),
		unpacks:  make(map[string]*kv.Store),
	}
	e.Backends.Register(localfs.Tag, localfs.New())

	var err error
	if e.Branch, err = kv.Open(filepath.Join(rootDir, keys.BranchLmdbName)); err != nil {
		return nil, err
	}
	if e.Ref, err = kv.Open(filepath.Join(rootDir, keys.RefLmdbName)); err != nil {
		return nil, err
	}
	if e.HashStore, err = kv.Open(filepath.Join(rootDir, keys.HashLmdbName)); err != nil {
		return nil, err
	}
	if e.Label, err = kv.Open(filepath.Join(rootDir, keys.MetaLmdbName)); err != nil {
		return nil, err
	}
	if e.StageRef, err = kv.Open(filepath.Join(rootDir, keys.StageRefLmdbName)); err != nil {
		return nil, err
	}
	if e.StageHash, err = kv.Open(filepath.Join(rootDir, keys.StageHashLmdbName)); err != nil {
		return nil, err
	}

	if err := e.checkOrWriteVersion(); err != nil {
		return nil, err
	}
	if err := e.initWriterLockSentinel(); err != nil {
		return nil, err
	}

	readmePath := filepath.Join(rootDir, keys.ReadmeFileName)
	if _, err := os.Stat(readmePath); os.IsNotExist(err) {
		_ = os.WriteFile(readmePath, []byte("This directory is managed by hangar. Do not edit its contents by hand.\n"), 0o644)
	}

	return e, nil
}

// checkOrWriteVersion implements §4.C's idempotent version gate: on first
// initialization it records Version under a fixed key in the branch
// store; on later opens it refuses to proceed if the recorded version
// differs from this build's Version.
func (e *Env) checkOrWriteVersion() error {
	return e.Branch.Update(func(t *kv.Txn) error {
		key := []byte(keys.Version)
		existing, ok := t.Get(key)
		if !ok {
			return t.Put(key, []byte(Version))
		}
		if string(existing) != Version {
			return herrors.IncompatibleRepo.New("repo version %q does not match code version %q", existing, Version)
		}
		return nil
	})
}

// initWriterLockSentinel seeds the writer lock key with the "free"
// sentinel the first time a repository is opened, so Acquire always has a
// defined starting state (§4.G, I4).
func (e *Env) initWriterLockSentinel() error {
	return e.Branch.Update(func(t *kv.Txn) error {
		key := []byte(keys.WLock)
		if _, ok := t.Get(key); !ok {
			return t.Put(key, []byte(keys.WLockSentinel))
		}
		return nil
	})
}

// Close closes every opened store, including any lazily-opened unpacked
// commit stores.
func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, s := range e.unpacks {
		note(s.Close())
	}
	note(e.Branch.Close())
	note(e.Ref.Close())
	note(e.HashStore.Close())
	note(e.Label.Close())
	note(e.StageRef.Close())
	note(e.StageHash.Close())
	return firstErr
}

// UnpackedStore returns (opening lazily if necessary) the physical ordered
// KV store file backing commit's unpacked ref view (§4.C).
func (e *Env) UnpackedStore(commitHash string) (*kv.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.unpacks[commitHash]; ok {
		return s, nil
	}
	path := filepath.Join(e.RootDir, "unpacked-"+commitHash+".lmdb")
	s, err := kv.Open(path)
	if err != nil {
		return nil, err
	}
	e.unpacks[commitHash] = s
	return s, nil
}

// StoreDataDir / StageDataDir are the backend payload directories (§6).
func (e *Env) StoreDataDir() string { return filepath.Join(e.DataDir, keys.DirDataStore) }
func (e *Env) StageDataDir() string { return filepath.Join(e.DataDir, keys.DirDataStage) }
