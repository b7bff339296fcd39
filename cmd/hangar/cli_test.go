package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangar-db/hangar/repo"
)

// inTempRepo chdirs into a fresh temp directory for the duration of the
// test, restoring the original working directory on cleanup — every
// command in this package resolves its repository relative to cwd.
func inTempRepo(t *testing.T) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestRunInitCreatesMasterBranch(t *testing.T) {
	inTempRepo(t)
	require.NoError(t, runInit(nil))

	env, err := mustEnv()
	require.NoError(t, err)
	defer env.Close()

	names, err := repo.NewBranches(env.Branch).GetBranchNames()
	require.NoError(t, err)
	assert.Contains(t, names, "master")
}

func TestRunInitTwiceIsRejected(t *testing.T) {
	inTempRepo(t)
	require.NoError(t, runInit(nil))
	err := runInit(nil)
	assert.Error(t, err)
}

func TestRunBranchCreateAndList(t *testing.T) {
	inTempRepo(t)
	require.NoError(t, runInit(nil))
	require.NoError(t, runBranch([]string{"create", "feature"}))

	env, err := mustEnv()
	require.NoError(t, err)
	defer env.Close()

	names, err := repo.NewBranches(env.Branch).GetBranchNames()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"master", "feature"}, names)
}

func TestRunCheckoutSwitchesHead(t *testing.T) {
	inTempRepo(t)
	require.NoError(t, runInit(nil))
	require.NoError(t, runBranch([]string{"create", "feature"}))
	require.NoError(t, runCheckout([]string{"feature"}))

	env, err := mustEnv()
	require.NoError(t, err)
	defer env.Close()

	head, err := repo.NewBranches(env.Branch).GetHead()
	require.NoError(t, err)
	assert.Equal(t, "feature", head)
}

func TestRunSummaryOnEmptyRepoSucceeds(t *testing.T) {
	inTempRepo(t)
	require.NoError(t, runInit(nil))
	require.NoError(t, runSummary(nil))
}

func TestRemoteAddAndList(t *testing.T) {
	inTempRepo(t)
	require.NoError(t, runInit(nil))
	require.NoError(t, runRemote([]string{"add", "origin", "localhost:50051"}))

	env, err := mustEnv()
	require.NoError(t, err)
	defer env.Close()

	all, err := repo.NewRemotes(env.Branch).List()
	require.NoError(t, err)
	assert.Equal(t, "localhost:50051", all["origin"])
}

func TestDispatchTableHasNoUnknownCommand(t *testing.T) {
	// main() itself calls os.Exit on a dispatch miss and can't be invoked
	// from a test; this only checks the lookup the dispatch loop relies on.
	found := false
	for _, c := range commands {
		if c.name == "no-such-command" {
			found = true
		}
	}
	assert.False(t, found)
}
