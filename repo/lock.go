package repo

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/hangar-db/hangar/codec"
	"github.com/hangar-db/hangar/internal/herrors"
	"github.com/hangar-db/hangar/kv"
)

// WriterLock implements §4.G's writer lock: a sentinel value in the branch
// store meaning "free", swapped for an opaque holder token on acquisition.
// This is a soft, check-then-write convention (§9 design notes), not an
// OS-level lock — the CAS discipline below must be preserved by every
// caller that writes to it.
type WriterLock struct {
	store    *kv.Store
	registry *kv.Registry
}

// NewWriterLock wraps the branch store as the home of the writer lock
// record, routing every acquire/release through env's registry so two
// writer sessions in the same process can never both believe they hold
// the lock because of an overlapping bbolt transaction (§4.B, §4.G).
func NewWriterLock(env *Env) *WriterLock {
	return &WriterLock{store: env.Branch, registry: env.Registry}
}

// Acquire attempts to take the lock, returning a fresh opaque token on
// success or herrors.WriterLockHeld if another writer already holds it
// (§4.G, I4). The whole check-then-write runs under the registry's
// process-wide writer slot for the branch store, so a second concurrent
// Acquire call in this process fails fast on kv.ErrWriterBusy rather than
// racing the first call's read of the sentinel.
func (l *WriterLock) Acquire() (string, error) {
	token := uuid.NewString()
	err := l.registry.WithWriter(l.store, func(t *kv.Txn) error {
		key := codec.WriterLockKey()
		v, ok := t.Get(key)
		if ok && string(v) != string(codec.WriterLockSentinelValue()) {
			return herrors.WriterLockHeld.New("writer lock already held")
		}
		return t.Put(key, codec.EncodeWriterLockToken(token))
	})
	if err == kv.ErrWriterBusy {
		return "", herrors.WriterLockHeld.New("writer lock already held")
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// Release gives the lock back, succeeding only if token matches the
// current holder or equals the force-release sentinel (§4.G).
func (l *WriterLock) Release(token string) (bool, error) {
	var released bool
	err := l.registry.WithWriter(l.store, func(t *kv.Txn) error {
		key := codec.WriterLockKey()
		v, _ := t.Get(key)
		current := codec.DecodeWriterLockToken(v)
		if current == token || token == codec.WriterLockForceReleaseSentinel() {
			released = true
			return t.Put(key, codec.WriterLockSentinelValue())
		}
		return nil
	})
	if err == kv.ErrWriterBusy {
		return false, herrors.WriterLockHeld.New("writer lock already held")
	}
	return released, err
}

// ForceRelease unconditionally frees the lock, the recovery escape hatch
// for an orphaned token (§4.G, §9).
func (l *WriterLock) ForceRelease() (bool, error) {
	return l.Release(codec.WriterLockForceReleaseSentinel())
}

// IsHeld reports whether the lock is currently held by anyone.
func (l *WriterLock) IsHeld() (bool, error) {
	held := false
	err := l.registry.WithReader(l.store, func(t *kv.Txn) error {
		v, ok := t.Get(codec.WriterLockKey())
		held = ok && string(v) != string(codec.WriterLockSentinelValue())
		return nil
	})
	return held, err
}

// ValidateToken checks a caller-presented token against the current
// holder, as required before every staging write and commit (I4).
func (l *WriterLock) ValidateToken(token string) error {
	var err error
	verr := l.registry.WithReader(l.store, func(t *kv.Txn) error {
		v, _ := t.Get(codec.WriterLockKey())
		current := codec.DecodeWriterLockToken(v)
		if current != token {
			err = herrors.WriterLockHeld.New("presented token does not match current writer")
		}
		return nil
	})
	if verr != nil {
		return verr
	}
	return err
}

// branchNamePattern is the character class spec.md §4.G requires:
// [A-Za-z0-9._-]+.
var branchNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateBranchName fails with herrors.InvalidName if name doesn't match
// the allowed character class.
func ValidateBranchName(name string) error {
	if !branchNamePattern.MatchString(name) {
		return herrors.InvalidName.New("branch name %q violates [A-Za-z0-9._-]+", name)
	}
	return nil
}
