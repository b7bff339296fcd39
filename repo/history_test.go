package repo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangar-db/hangar/internal/backend"
	"github.com/hangar-db/hangar/repo"
	"github.com/hangar-db/hangar/schema"
)

func putSample(t *testing.T, stage *repo.Stage, token, dataset, name string, b byte) {
	t.Helper()
	_, _, err := stage.PutSample(token, dataset, name, backend.Tensor{Shape: []int{1}, DType: int(schema.DTypeUint8), Data: []byte{b}})
	require.NoError(t, err)
}

func TestListHistoryOrdersNewestFirst(t *testing.T) {
	env := openEnv(t)
	branches := repo.NewBranches(env.Branch)
	require.NoError(t, branches.CreateBranch("master", ""))
	ce := repo.NewCommitEngine(env)

	stage, lock, token := declareAndStage(t, env)
	putSample(t, stage, token, "ds1", "s0", 1)
	c1, err := ce.Commit(token, lock, branches, "master", "first", "a", "a@x.com")
	require.NoError(t, err)

	putSample(t, stage, token, "ds1", "s1", 2)
	c2, err := ce.Commit(token, lock, branches, "master", "second", "a", "a@x.com")
	require.NoError(t, err)

	hist := repo.NewHistory(ce, branches)
	log, err := hist.ListHistory("master")
	require.NoError(t, err)

	require.Len(t, log.Order, 2)
	assert.Equal(t, c2, log.Order[0])
	assert.Equal(t, c1, log.Order[1])
	assert.Equal(t, c2, log.Head)
	assert.Empty(t, log.Ancestors[c1])
	assert.Equal(t, []string{c1}, log.Ancestors[c2])
	assert.Equal(t, "second", log.Specs[c2].Message)
}

func TestLowestCommonAncestorFindsBranchPoint(t *testing.T) {
	env := openEnv(t)
	branches := repo.NewBranches(env.Branch)
	require.NoError(t, branches.CreateBranch("master", ""))
	ce := repo.NewCommitEngine(env)
	hist := repo.NewHistory(ce, branches)

	stage, lock, token := declareAndStage(t, env)
	putSample(t, stage, token, "ds1", "s0", 1)
	base, err := ce.Commit(token, lock, branches, "master", "base", "a", "a@x.com")
	require.NoError(t, err)

	require.NoError(t, branches.CreateBranch("dev", base))

	putSample(t, stage, token, "ds1", "s1", 2)
	masterHead, err := ce.Commit(token, lock, branches, "master", "master-work", "a", "a@x.com")
	require.NoError(t, err)

	require.NoError(t, ce.Checkout(branches, "dev"))
	putSample(t, stage, token, "ds1", "s2", 3)
	devHead, err := ce.Commit(token, lock, branches, "dev", "dev-work", "a", "a@x.com")
	require.NoError(t, err)

	lca, err := hist.LowestCommonAncestor(masterHead, devHead)
	require.NoError(t, err)
	assert.Equal(t, base, lca)
}

func TestSelectMergeAlgorithmFastForwards(t *testing.T) {
	env := openEnv(t)
	branches := repo.NewBranches(env.Branch)
	require.NoError(t, branches.CreateBranch("master", ""))
	ce := repo.NewCommitEngine(env)
	hist := repo.NewHistory(ce, branches)
	merger := repo.NewMerger(env, hist, ce, branches)

	stage, lock, token := declareAndStage(t, env)
	putSample(t, stage, token, "ds1", "s0", 1)
	base, err := ce.Commit(token, lock, branches, "master", "base", "a", "a@x.com")
	require.NoError(t, err)
	require.NoError(t, branches.CreateBranch("dev", base))

	putSample(t, stage, token, "ds1", "s1", 2)
	devHead, err := ce.Commit(token, lock, branches, "dev", "dev-work", "a", "a@x.com")
	require.NoError(t, err)

	outcome, err := merger.SelectMergeAlgorithm(token, lock, "master", "dev", "merge", "a", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, repo.MergeFastForward, outcome.Kind)
	assert.Equal(t, devHead, outcome.ResultCommit)

	head, err := branches.GetBranchHead("master")
	require.NoError(t, err)
	assert.Equal(t, devHead, head)
}

func TestSelectMergeAlgorithmAlreadyUpToDate(t *testing.T) {
	env := openEnv(t)
	branches := repo.NewBranches(env.Branch)
	require.NoError(t, branches.CreateBranch("master", ""))
	ce := repo.NewCommitEngine(env)
	hist := repo.NewHistory(ce, branches)
	merger := repo.NewMerger(env, hist, ce, branches)

	stage, lock, token := declareAndStage(t, env)
	putSample(t, stage, token, "ds1", "s0", 1)
	base, err := ce.Commit(token, lock, branches, "master", "base", "a", "a@x.com")
	require.NoError(t, err)
	require.NoError(t, branches.CreateBranch("dev", base))

	putSample(t, stage, token, "ds1", "s1", 2)
	masterHead, err := ce.Commit(token, lock, branches, "master", "master-ahead", "a", "a@x.com")
	require.NoError(t, err)

	outcome, err := merger.SelectMergeAlgorithm(token, lock, "master", "dev", "merge", "a", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, repo.MergeAlreadyUpToDate, outcome.Kind)
	assert.Equal(t, masterHead, outcome.ResultCommit)
}

func TestSelectMergeAlgorithmThreeWayMergesDisjointEdits(t *testing.T) {
	env := openEnv(t)
	branches := repo.NewBranches(env.Branch)
	require.NoError(t, branches.CreateBranch("master", ""))
	ce := repo.NewCommitEngine(env)
	hist := repo.NewHistory(ce, branches)
	merger := repo.NewMerger(env, hist, ce, branches)

	stage, lock, token := declareAndStage(t, env)
	putSample(t, stage, token, "ds1", "base", 1)
	base, err := ce.Commit(token, lock, branches, "master", "base", "a", "a@x.com")
	require.NoError(t, err)
	require.NoError(t, branches.CreateBranch("dev", base))

	putSample(t, stage, token, "ds1", "onmaster", 2)
	_, err = ce.Commit(token, lock, branches, "master", "master-work", "a", "a@x.com")
	require.NoError(t, err)

	require.NoError(t, ce.Checkout(branches, "dev"))
	putSample(t, stage, token, "ds1", "ondev", 3)
	_, err = ce.Commit(token, lock, branches, "dev", "dev-work", "a", "a@x.com")
	require.NoError(t, err)

	outcome, err := merger.SelectMergeAlgorithm(token, lock, "master", "dev", "merge both", "a", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, repo.MergeThreeWay, outcome.Kind)
	assert.NotEmpty(t, outcome.ResultCommit)

	q := repo.NewQuery(env.StageRef)
	samples, err := q.SamplesIn("ds1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"base", "onmaster", "ondev"}, samples)

	parent, mergeParent, err := ce.GetParents(outcome.ResultCommit)
	require.NoError(t, err)
	assert.NotEmpty(t, parent)
	assert.NotEmpty(t, mergeParent)
}

func TestSelectMergeAlgorithmThreeWayConflict(t *testing.T) {
	env := openEnv(t)
	branches := repo.NewBranches(env.Branch)
	require.NoError(t, branches.CreateBranch("master", ""))
	ce := repo.NewCommitEngine(env)
	hist := repo.NewHistory(ce, branches)
	merger := repo.NewMerger(env, hist, ce, branches)

	stage, lock, token := declareAndStage(t, env)
	putSample(t, stage, token, "ds1", "shared", 1)
	base, err := ce.Commit(token, lock, branches, "master", "base", "a", "a@x.com")
	require.NoError(t, err)
	require.NoError(t, branches.CreateBranch("dev", base))

	putSample(t, stage, token, "ds1", "shared", 2)
	_, err = ce.Commit(token, lock, branches, "master", "master-edit", "a", "a@x.com")
	require.NoError(t, err)

	require.NoError(t, ce.Checkout(branches, "dev"))
	putSample(t, stage, token, "ds1", "shared", 3)
	_, err = ce.Commit(token, lock, branches, "dev", "dev-edit", "a", "a@x.com")
	require.NoError(t, err)

	_, err = merger.SelectMergeAlgorithm(token, lock, "master", "dev", "merge conflict", "a", "a@x.com")
	require.Error(t, err)
}
