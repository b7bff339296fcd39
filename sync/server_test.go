package sync_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/hangar-db/hangar/hash"
	"github.com/hangar-db/hangar/internal/backend"
	"github.com/hangar-db/hangar/internal/backend/localfs"
	"github.com/hangar-db/hangar/internal/config"
	"github.com/hangar-db/hangar/repo"
	"github.com/hangar-db/hangar/schema"
	"github.com/hangar-db/hangar/sync"
	"github.com/hangar-db/hangar/sync/rpcjson"
)

// startServer boots the sync server against a fresh repository, serving
// over an in-memory bufconn listener so the test never binds a real port.
func startServer(t *testing.T) (*sync.Client, *repo.Env) {
	t.Helper()
	env, err := repo.Open(filepath.Join(t.TempDir(), ".hangar"), false)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })

	branches := repo.NewBranches(env.Branch)
	require.NoError(t, branches.CreateBranch("master", ""))

	srv := sync.NewServer(env, config.DefaultServer())
	gs := grpc.NewServer()
	sync.RegisterServer(gs, srv)

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.Dial() }
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpcjson.Name)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client, err := sync.NewClientFromConn(conn)
	require.NoError(t, err)
	return client, env
}

func commitOneSample(t *testing.T, env *repo.Env, branchName, dataset, sample string, data []byte) string {
	t.Helper()
	lock := repo.NewWriterLock(env)
	token, err := lock.Acquire()
	require.NoError(t, err)
	defer lock.Release(token)

	branches := repo.NewBranches(env.Branch)
	ce := repo.NewCommitEngine(env)
	require.NoError(t, ce.Checkout(branches, branchName))

	stage, err := repo.NewStage(env, lock)
	require.NoError(t, err)

	sc := schema.New(schema.DTypeUint8, []int{len(data)}, false, true, string(localfs.Tag))
	if err := stage.DeclareSchema(token, dataset, sc); err != nil {
		t.Logf("schema already declared: %v", err)
	}
	_, _, err = stage.PutSample(token, dataset, sample, backend.Tensor{Shape: []int{len(data)}, DType: int(schema.DTypeUint8), Data: data})
	require.NoError(t, err)

	digest, err := ce.Commit(token, lock, branches, branchName, "add "+sample, "tester", "tester@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, digest)
	return digest
}

func TestGetClientConfigReturnsServerDefaults(t *testing.T) {
	client, _ := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := client.GetClientConfig(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.OK())
	assert.Equal(t, int64(1<<22), cfg.PushChunkByteCap)
	assert.True(t, cfg.CompressionOn)
	assert.Equal(t, "balanced", cfg.OptimizationTarg)
}

func TestFetchBranchRecordReturnsAdvancedHead(t *testing.T) {
	client, env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	digest := commitOneSample(t, env, "master", "ds1", "s0", []byte{9, 9, 9})

	reply, err := client.FetchBranchRecord(ctx, "master")
	require.NoError(t, err)
	assert.True(t, reply.OK())
	assert.Equal(t, digest, reply.CommitHash)
}

func TestPushBranchRecordCreatesNewBranch(t *testing.T) {
	client, env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	digest := commitOneSample(t, env, "master", "ds1", "s0", []byte{1})

	reply, err := client.PushBranchRecord(ctx, "feature", digest)
	require.NoError(t, err)
	assert.True(t, reply.OK())

	branches := repo.NewBranches(env.Branch)
	head, err := branches.GetBranchHead("feature")
	require.NoError(t, err)
	assert.Equal(t, digest, head)
}

func TestPushBranchRecordRejectsNoOpAdvance(t *testing.T) {
	client, env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	digest := commitOneSample(t, env, "master", "ds1", "s0", []byte{1})

	first, err := client.PushBranchRecord(ctx, "feature", digest)
	require.NoError(t, err)
	assert.True(t, first.OK())

	second, err := client.PushBranchRecord(ctx, "feature", digest)
	require.NoError(t, err)
	assert.False(t, second.OK())
}

func TestFetchFindMissingCommitsReturnsUnknownAncestors(t *testing.T) {
	client, env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := commitOneSample(t, env, "master", "ds1", "s0", []byte{1})
	second := commitOneSample(t, env, "master", "ds1", "s1", []byte{2})

	reply, err := client.FetchFindMissingCommits(ctx, "master", []string{first})
	require.NoError(t, err)
	assert.True(t, reply.OK())
	assert.ElementsMatch(t, []string{second}, reply.Missing)
}

func TestFetchCommitRoundTripsThroughReceiveCommit(t *testing.T) {
	client, env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	digest := commitOneSample(t, env, "master", "ds1", "s0", []byte{1, 2})

	fetched, err := client.FetchCommit(ctx, digest)
	require.NoError(t, err)
	require.True(t, fetched.OK())

	otherEnv, err := repo.Open(filepath.Join(t.TempDir(), ".hangar"), false)
	require.NoError(t, err)
	t.Cleanup(func() { otherEnv.Close() })
	otherBranches := repo.NewBranches(otherEnv.Branch)
	require.NoError(t, otherBranches.CreateBranch("master", ""))

	otherCE := repo.NewCommitEngine(otherEnv)
	err = otherCE.ReceiveCommit(digest, repo.Encoded{
		ParentVal:      fetched.ParentValue,
		CompressedRefs: fetched.CompressedRefs,
		CompressedSpec: fetched.CompressedSpec,
	})
	require.NoError(t, err)

	exists, err := otherCE.Exists(digest)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFetchDataAndPushDataRoundTrip(t *testing.T) {
	client, env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	commitOneSample(t, env, "master", "ds1", "s0", []byte{5, 6, 7, 8})

	q := repo.NewQuery(env.StageRef)
	hashes, err := q.DataHashToSchemaHash()
	require.NoError(t, err)
	require.Len(t, hashes, 1)

	var digest string
	for d := range hashes {
		digest = d
	}

	head, err := repo.NewBranches(env.Branch).GetBranchHead("master")
	require.NoError(t, err)

	chunks, err := client.FetchData(ctx, &sync.DataRequest{AnchorCommit: head, Digests: []string{digest}})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []byte{5, 6, 7, 8}, chunks[0].Data)

	err = client.PushData(ctx, chunks)
	require.NoError(t, err)
}

// TestPushDataAbortsWholeBatchOnDigestMismatch exercises §4.J.7's
// all-or-nothing batch semantics through the real client/server stream:
// one chunk's declared digest doesn't match its bytes, so the server must
// reject the whole batch and write none of it — including the chunk that
// was individually well-formed.
func TestPushDataAbortsWholeBatchOnDigestMismatch(t *testing.T) {
	client, env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// startServer already created master.
	_, err := repo.NewBranches(env.Branch).GetBranchHead("master")
	require.NoError(t, err)

	goodData := []byte{1, 2, 3, 4}
	goodDigest := hash.Of(goodData)
	badData := []byte{9, 9, 9}
	badDigest := hash.Of([]byte{1, 1, 1}) // deliberately does not match badData

	chunks := []sync.DataChunk{
		{Digest: goodDigest.String(), Shape: []int{4}, DType: int(schema.DTypeUint8), Data: goodData},
		{Digest: badDigest.String(), Shape: []int{3}, DType: int(schema.DTypeUint8), Data: badData},
	}

	err = client.PushData(ctx, chunks)
	require.Error(t, err)

	content := repo.NewContentStore(env.HashStore, env.Backends, env.StoreDataDir())
	has, err := content.Has(goodDigest)
	require.NoError(t, err)
	assert.False(t, has, "well-formed chunk in an aborted batch must not be written")
}

func TestFetchLabelAndPushLabelRoundTrip(t *testing.T) {
	client, env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	value := []byte(`{"license":"cc-by-4.0"}`)
	digest := hash.Of(value).String()

	pushed, err := client.PushLabel(ctx, digest, value)
	require.NoError(t, err)
	assert.True(t, pushed.OK())

	fetched, err := client.FetchLabel(ctx, digest)
	require.NoError(t, err)
	assert.True(t, fetched.OK())
	assert.Equal(t, value, fetched.Value)

	_ = env
}
