package repo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangar-db/hangar/repo"
)

func TestQueryOverUnpackedCommitStore(t *testing.T) {
	env := openEnv(t)
	branches := repo.NewBranches(env.Branch)
	require.NoError(t, branches.CreateBranch("master", ""))
	ce := repo.NewCommitEngine(env)

	stage, lock, token := declareAndStage(t, env)
	putSample(t, stage, token, "ds1", "s0", 1)
	putSample(t, stage, token, "ds1", "s1", 2)
	_, err := stage.PutMetadata(token, "readme", []byte("hello"))
	require.NoError(t, err)

	commit, err := ce.Commit(token, lock, branches, "master", "m1", "a", "a@x.com")
	require.NoError(t, err)

	store, err := env.UnpackedStore(commit)
	require.NoError(t, err)
	require.NoError(t, ce.UnpackCommitRef(commit, store))

	q := repo.NewQuery(store)

	datasets, err := q.Datasets()
	require.NoError(t, err)
	assert.Equal(t, []string{"ds1"}, datasets)

	samples, err := q.SamplesIn("ds1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s0", "s1"}, samples)

	dataToSchema, err := q.DataHashToSchemaHash()
	require.NoError(t, err)
	assert.Len(t, dataToSchema, 2)

	metaHashes, err := q.MetadataHashes()
	require.NoError(t, err)
	assert.Len(t, metaHashes, 1)

	schemaHashes, err := q.SchemaHashes()
	require.NoError(t, err)
	assert.Len(t, schemaHashes, 1)
}

func TestQueryOverStageRefDirectly(t *testing.T) {
	env := openEnv(t)
	stage, _, token := declareAndStage(t, env)
	putSample(t, stage, token, "ds1", "only", 7)

	q := repo.NewQuery(env.StageRef)
	samples, err := q.SamplesIn("ds1")
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, samples)
}
