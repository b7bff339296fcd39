package repo_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangar-db/hangar/internal/backend"
	"github.com/hangar-db/hangar/internal/backend/localfs"
	"github.com/hangar-db/hangar/internal/herrors"
	"github.com/hangar-db/hangar/kv"
	"github.com/hangar-db/hangar/repo"
	"github.com/hangar-db/hangar/schema"
)

func openEnv(t *testing.T) *repo.Env {
	t.Helper()
	e, err := repo.Open(filepath.Join(t.TempDir(), ".hangar"), false)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func declareAndStage(t *testing.T, env *repo.Env) (*repo.Stage, *repo.WriterLock, string) {
	t.Helper()
	lock := repo.NewWriterLock(env)
	token, err := lock.Acquire()
	require.NoError(t, err)

	stage, err := repo.NewStage(env, lock)
	require.NoError(t, err)

	sc := schema.New(schema.DTypeFloat32, []int{4}, false, true, string(localfs.Tag))
	require.NoError(t, stage.DeclareSchema(token, "ds1", sc))

	return stage, lock, token
}

func TestCommitCreatesRootCommitAndAdvancesBranchHead(t *testing.T) {
	env := openEnv(t)
	branches := repo.NewBranches(env.Branch)
	require.NoError(t, branches.CreateBranch("master", ""))

	stage, lock, token := declareAndStage(t, env)
	_, _, err := stage.PutSample(token, "ds1", "sample0", backend.Tensor{Shape: []int{4}, DType: int(schema.DTypeFloat32), Data: []byte{1, 2, 3, 4}})
	require.NoError(t, err)

	ce := repo.NewCommitEngine(env)
	digest, err := ce.Commit(token, lock, branches, "master", "initial commit", "alice", "alice@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, digest)

	head, err := branches.GetBranchHead("master")
	require.NoError(t, err)
	assert.Equal(t, digest, head)

	spec, err := ce.GetSpec(digest)
	require.NoError(t, err)
	assert.Equal(t, "initial commit", spec.Message)
	assert.Equal(t, "alice", spec.User)

	parent, mergeParent, err := ce.GetParents(digest)
	require.NoError(t, err)
	assert.Empty(t, parent)
	assert.Empty(t, mergeParent)

	exists, err := ce.Exists(digest)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCommitAdvancesParentLinkageAcrossCommits(t *testing.T) {
	env := openEnv(t)
	branches := repo.NewBranches(env.Branch)
	require.NoError(t, branches.CreateBranch("master", ""))
	ce := repo.NewCommitEngine(env)

	stage, lock, token := declareAndStage(t, env)
	_, _, err := stage.PutSample(token, "ds1", "sample0", backend.Tensor{Shape: []int{4}, DType: int(schema.DTypeFloat32), Data: []byte{9, 9, 9, 9}})
	require.NoError(t, err)
	digest1, err := ce.Commit(token, lock, branches, "master", "m1", "alice", "alice@example.com")
	require.NoError(t, err)

	_, _, err = stage.PutSample(token, "ds1", "sample1", backend.Tensor{Shape: []int{4}, DType: int(schema.DTypeFloat32), Data: []byte{1, 1, 1, 1}})
	require.NoError(t, err)
	digest2, err := ce.Commit(token, lock, branches, "master", "m2", "alice", "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, digest1, digest2)

	parent, mergeParent, err := ce.GetParents(digest2)
	require.NoError(t, err)
	assert.Equal(t, digest1, parent)
	assert.Empty(t, mergeParent)

	head, err := branches.GetBranchHead("master")
	require.NoError(t, err)
	assert.Equal(t, digest2, head)
}

func TestUnpackCommitRefMaterializesStoredRecords(t *testing.T) {
	env := openEnv(t)
	branches := repo.NewBranches(env.Branch)
	require.NoError(t, branches.CreateBranch("master", ""))

	stage, lock, token := declareAndStage(t, env)
	_, _, err := stage.PutSample(token, "ds1", "sample0", backend.Tensor{Shape: []int{4}, DType: int(schema.DTypeFloat32), Data: []byte{5, 6, 7, 8}})
	require.NoError(t, err)

	ce := repo.NewCommitEngine(env)
	commitDigest, err := ce.Commit(token, lock, branches, "master", "m1", "bob", "bob@example.com")
	require.NoError(t, err)

	dest, err := env.UnpackedStore(commitDigest)
	require.NoError(t, err)
	require.NoError(t, ce.UnpackCommitRef(commitDigest, dest))

	var pairs []kv.Pair
	err = dest.View(func(txn *kv.Txn) error {
		pairs = txn.All()
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pairs)
}

// TestAcquireRejectsSecondHolder exercises the writer-lock-exclusion
// scenario: two callers race to take the writer checkout, exactly one
// acquires, and the other is rejected with herrors.WriterLockHeld rather
// than blocking or silently overwriting the first holder's token.
func TestAcquireRejectsSecondHolder(t *testing.T) {
	env := openEnv(t)
	lock := repo.NewWriterLock(env)

	firstToken, err := lock.Acquire()
	require.NoError(t, err)
	assert.NotEmpty(t, firstToken)

	_, err = lock.Acquire()
	require.Error(t, err)
	assert.True(t, herrors.WriterLockHeld.Is(err), "expected WriterLockHeld, got %v", err)

	released, err := lock.Release(firstToken)
	require.NoError(t, err)
	assert.True(t, released)

	secondToken, err := lock.Acquire()
	require.NoError(t, err)
	assert.NotEmpty(t, secondToken)
	assert.NotEqual(t, firstToken, secondToken)
}

func TestReceiveCommitRejectsDigestMismatch(t *testing.T) {
	env := openEnv(t)
	ce := repo.NewCommitEngine(env)
	enc := repo.Encoded{ParentVal: []byte(""), CompressedRefs: []byte("x"), CompressedSpec: []byte("y")}
	err := ce.ReceiveCommit("not-the-real-digest", enc)
	require.Error(t, err)
}

func TestReceiveCommitAcceptsMatchingDigestOnce(t *testing.T) {
	env := openEnv(t)
	ce := repo.NewCommitEngine(env)

	enc := repo.Encoded{
		ParentVal:      []byte(""),
		CompressedRefs: []byte("refs-payload"),
		CompressedSpec: []byte("spec-payload"),
	}
	digest := enc.Digest().String()

	require.NoError(t, ce.ReceiveCommit(digest, enc))

	exists, err := ce.Exists(digest)
	require.NoError(t, err)
	assert.True(t, exists)

	err = ce.ReceiveCommit(digest, enc)
	require.Error(t, err)
}
