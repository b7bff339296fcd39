package main

import (
	"context"
	"fmt"

	"github.com/juju/gnuflag"

	"github.com/hangar-db/hangar/codec"
	"github.com/hangar-db/hangar/hash"
	"github.com/hangar-db/hangar/internal/backend"
	"github.com/hangar-db/hangar/internal/backend/localfs"
	"github.com/hangar-db/hangar/internal/herrors"
	"github.com/hangar-db/hangar/kv"
	"github.com/hangar-db/hangar/repo"
	"github.com/hangar-db/hangar/sync"
)

func init() {
	register(command{name: "fetch", usage: "[remote] <branch> — pull a branch's missing commits and data from a remote", run: runFetch})
	register(command{name: "push", usage: "[remote] <branch> — push a branch's missing commits and data to a remote", run: runPush})
	register(command{name: "remote", usage: "add <name> <addr> | list — manage remotes", run: runRemote})
}

// dialRemote opens a client connection to a remote server address.
func dialRemote(addr string) (*sync.Client, error) {
	return sync.Dial(addr)
}

// resolveRemoteAddr looks nameOrAddr up by name in the local remotes
// registry and returns the registered address; if no remote has that
// name, nameOrAddr itself is returned as the address.
func resolveRemoteAddr(env *repo.Env, nameOrAddr string) (string, error) {
	remotes := repo.NewRemotes(env.Branch)
	if addr, err := remotes.Get(nameOrAddr); err == nil {
		return addr, nil
	}
	return nameOrAddr, nil
}

// localDigestSet enumerates every digest key ("h:"-prefixed) recorded in
// store, used both for the content store and the label store since both
// share that key shape (§4.D, §4.J.4/.5).
func localDigestSet(store *kv.Store) ([]string, error) {
	var digests []string
	err := store.View(func(t *kv.Txn) error {
		for _, p := range t.All() {
			d, err := codec.DecodeHashKey(p.Key)
			if err == nil {
				digests = append(digests, d)
			}
		}
		return nil
	})
	return digests, err
}

// readEncodedCommit reads a locally-present commit's raw parent/ref/spec
// bytes back out, the push-side counterpart of Server.FetchCommit: the
// sync wire protocol carries these bytes directly rather than a
// CommitEngine-level API, so the CLI reads them the same way the server
// handler does.
func readEncodedCommit(env *repo.Env, ce *repo.CommitEngine, commit string) (repo.Encoded, error) {
	parent, mergeParent, err := ce.GetParents(commit)
	if err != nil {
		return repo.Encoded{}, err
	}
	var enc repo.Encoded
	err = env.Ref.View(func(t *kv.Txn) error {
		v, ok := t.Get(codec.EncodeCommitRefKey(commit))
		if !ok {
			return herrors.NotFound.New("commit ref %s", commit)
		}
		enc.CompressedRefs = v
		v, ok = t.Get(codec.EncodeCommitSpecKey(commit))
		if !ok {
			return herrors.NotFound.New("commit spec %s", commit)
		}
		enc.CompressedSpec = v
		return nil
	})
	if err != nil {
		return repo.Encoded{}, err
	}
	enc.ParentVal = codec.EncodeCommitParentValue(parent, mergeParent)
	return enc, nil
}

// localCommitOrder returns every commit reachable from branchName's
// current head, or nil if the branch has no commits yet — ListHistory
// cannot be called directly on an empty head (§4.H resolves it to the
// empty-string "commit" and then fails looking up its spec).
func localCommitOrder(branches *repo.Branches, history *repo.History, branchName string) ([]string, error) {
	head, err := branches.GetBranchHead(branchName)
	if err != nil {
		return nil, err
	}
	if head == "" {
		return nil, nil
	}
	log, err := history.ListHistory(branchName)
	if err != nil {
		return nil, err
	}
	return log.Order, nil
}

// pullBranch implements the client side of a fetch: it transplants every
// commit the remote has that the local repo lacks, then pulls the data
// and label bytes those commits' records reference, and finally advances
// the local branch head and checks it out (§4.J).
func pullBranch(ctx context.Context, env *repo.Env, client *sync.Client, branchName string) error {
	branches := repo.NewBranches(env.Branch)
	ce := repo.NewCommitEngine(env)
	history := repo.NewHistory(ce, branches)

	have, err := localCommitOrder(branches, history, branchName)
	if err != nil {
		return err
	}

	missing, err := client.FetchFindMissingCommits(ctx, branchName, have)
	if err != nil {
		return err
	}
	if !missing.OK() {
		return fmt.Errorf("fetch find-missing-commits: %s", missing.Message)
	}

	for _, commitHash := range missing.Missing {
		fetched, err := client.FetchCommit(ctx, commitHash)
		if err != nil {
			return err
		}
		if !fetched.OK() {
			return fmt.Errorf("fetch commit %s: %s", commitHash, fetched.Message)
		}
		enc := repo.Encoded{ParentVal: fetched.ParentValue, CompressedRefs: fetched.CompressedRefs, CompressedSpec: fetched.CompressedSpec}
		if err := ce.ReceiveCommit(commitHash, enc); err != nil && !herrors.AlreadyExists.Is(err) {
			return err
		}
	}

	branchReply, err := client.FetchBranchRecord(ctx, branchName)
	if err != nil {
		return err
	}
	if !branchReply.OK() {
		return fmt.Errorf("fetch branch record %s: %s", branchName, branchReply.Message)
	}
	remoteHead := branchReply.CommitHash
	if remoteHead == "" {
		// Remote branch has no commits yet: nothing further to pull.
		return branches.SetBranchHead(branchName, "")
	}

	if err := pullMissingData(ctx, env, client, remoteHead); err != nil {
		return err
	}
	if err := pullMissingLabels(ctx, env, client, remoteHead); err != nil {
		return err
	}

	if err := branches.SetBranchHead(branchName, remoteHead); err != nil {
		return err
	}
	return ce.Checkout(branches, branchName)
}

func pullMissingData(ctx context.Context, env *repo.Env, client *sync.Client, anchor string) error {
	haveDigests, err := localDigestSet(env.HashStore)
	if err != nil {
		return err
	}
	compressedSet, err := sync.EncodeDigestSet(haveDigests)
	if err != nil {
		return err
	}

	pairs, err := client.FetchFindMissingHashRecords(ctx, &sync.MissingHashesRequest{AnchorCommit: anchor, CompressedSet: compressedSet})
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}

	digests := make([]string, len(pairs))
	for i, p := range pairs {
		digests[i] = p.Digest
	}

	chunks, err := client.FetchData(ctx, &sync.DataRequest{AnchorCommit: anchor, Digests: digests})
	if err != nil {
		return err
	}

	content := repo.NewContentStore(env.HashStore, env.Backends, env.StoreDataDir())
	for _, chunk := range chunks {
		t := backend.Tensor{Shape: chunk.Shape, DType: chunk.DType, Data: chunk.Data}
		if _, err := content.Write(localfs.Tag, t); err != nil {
			return err
		}
	}
	return nil
}

func pullMissingLabels(ctx context.Context, env *repo.Env, client *sync.Client, anchor string) error {
	haveDigests, err := localDigestSet(env.Label)
	if err != nil {
		return err
	}
	compressedSet, err := sync.EncodeDigestSet(haveDigests)
	if err != nil {
		return err
	}

	pairs, err := client.FetchFindMissingLabels(ctx, &sync.MissingHashesRequest{AnchorCommit: anchor, CompressedSet: compressedSet})
	if err != nil {
		return err
	}

	for _, p := range pairs {
		reply, err := client.FetchLabel(ctx, p.Digest)
		if err != nil {
			return err
		}
		if !reply.OK() {
			return fmt.Errorf("fetch label %s: %s", p.Digest, reply.Message)
		}
		err = env.Label.Update(func(t *kv.Txn) error {
			key := codec.EncodeHashKey(p.Digest)
			if _, ok := t.Get(key); ok {
				return nil
			}
			return t.Put(key, reply.Value)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// pushBranch implements the client side of a push. Unlike pullBranch it
// does not round-trip the missing-hash-record RPCs to decide what to
// send: those compute "present at an anchor commit minus a supplied
// set" from the RPC handler's own store, which only ever answers "what
// is the caller missing" (the fetch direction), not "what does the peer
// need from me". Instead every data digest the pushed commit's records
// reference, and every label in the local label store, is sent
// unconditionally; the server's ContentStore.Write and
// label-put are both already idempotent no-ops when a digest is already
// recorded (§4.D), so resending costs bandwidth but never correctness.
func pushBranch(ctx context.Context, env *repo.Env, client *sync.Client, branchName string) error {
	branches := repo.NewBranches(env.Branch)
	ce := repo.NewCommitEngine(env)
	history := repo.NewHistory(ce, branches)

	head, err := branches.GetBranchHead(branchName)
	if err != nil {
		return err
	}
	if head == "" {
		return fmt.Errorf("push: branch %q has no commits", branchName)
	}

	local, err := localCommitOrder(branches, history, branchName)
	if err != nil {
		return err
	}

	missing, err := client.PushFindMissingCommits(ctx, branchName, local)
	if err != nil {
		return err
	}
	if !missing.OK() {
		return fmt.Errorf("push find-missing-commits: %s", missing.Message)
	}

	for _, commitHash := range missing.Missing {
		enc, err := readEncodedCommit(env, ce, commitHash)
		if err != nil {
			return err
		}
		reply, err := client.PushCommit(ctx, &sync.CommitRequest{
			CommitHash:     commitHash,
			ParentValue:    enc.ParentVal,
			CompressedRefs: enc.CompressedRefs,
			CompressedSpec: enc.CompressedSpec,
		})
		if err != nil {
			return err
		}
		if !reply.OK() && reply.Code != int(herrors.CodeAlreadyExists) {
			return fmt.Errorf("push commit %s: %s", commitHash, reply.Message)
		}
	}

	if err := pushData(ctx, env, client, head); err != nil {
		return err
	}
	if err := pushLabels(ctx, env, client); err != nil {
		return err
	}

	reply, err := client.PushBranchRecord(ctx, branchName, head)
	if err != nil {
		return err
	}
	if !reply.OK() && reply.Code != int(herrors.CodeAlreadyExists) {
		return fmt.Errorf("push branch record %s: %s", branchName, reply.Message)
	}
	return nil
}

func pushData(ctx context.Context, env *repo.Env, client *sync.Client, anchor string) error {
	store, err := env.UnpackedStore(anchor)
	if err != nil {
		return err
	}
	if err := repo.NewCommitEngine(env).UnpackCommitRef(anchor, store); err != nil {
		return err
	}
	hashes, err := repo.NewQuery(store).DataHashToSchemaHash()
	if err != nil {
		return err
	}
	if len(hashes) == 0 {
		return nil
	}

	content := repo.NewContentStore(env.HashStore, env.Backends, env.StoreDataDir())
	var chunks []sync.DataChunk
	for digest, schemaDigest := range hashes {
		d, err := hash.Parse(digest)
		if err != nil {
			return err
		}
		t, err := content.Read(localfs.Tag, d)
		if err != nil {
			return err
		}
		chunks = append(chunks, sync.DataChunk{Digest: digest, Shape: t.Shape, DType: t.DType, Data: t.Data, SchemaDigest: schemaDigest})
	}
	return client.PushData(ctx, chunks)
}

func pushLabels(ctx context.Context, env *repo.Env, client *sync.Client) error {
	digests, err := localDigestSet(env.Label)
	if err != nil {
		return err
	}
	for _, digest := range digests {
		var value []byte
		err := env.Label.View(func(t *kv.Txn) error {
			v, ok := t.Get(codec.EncodeHashKey(digest))
			if ok {
				value = v
			}
			return nil
		})
		if err != nil {
			return err
		}
		reply, err := client.PushLabel(ctx, digest, value)
		if err != nil {
			return err
		}
		if !reply.OK() {
			return fmt.Errorf("push label %s: %s", digest, reply.Message)
		}
	}
	return nil
}

func runFetch(args []string) error {
	fs := gnuflag.NewFlagSet("fetch", gnuflag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	remoteName, branchName, err := remoteAndBranchArgs(fs)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	env, err := mustEnv()
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer env.Close()

	addr, err := resolveRemoteAddr(env, remoteName)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	client, err := dialRemote(addr)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer client.Close()

	if err := pullBranch(context.Background(), env, client, branchName); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	fmt.Printf("fetched %s from %s\n", branchName, remoteName)
	return nil
}

func runPush(args []string) error {
	fs := gnuflag.NewFlagSet("push", gnuflag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	remoteName, branchName, err := remoteAndBranchArgs(fs)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}

	env, err := mustEnv()
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	defer env.Close()

	addr, err := resolveRemoteAddr(env, remoteName)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	client, err := dialRemote(addr)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	defer client.Close()

	if err := pushBranch(context.Background(), env, client, branchName); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	fmt.Printf("pushed %s to %s\n", branchName, remoteName)
	return nil
}

// remoteAndBranchArgs parses either "<branch>" (using "origin") or
// "<remote> <branch>" from the flag set's positional arguments.
func remoteAndBranchArgs(fs *gnuflag.FlagSet) (remoteName, branchName string, err error) {
	switch fs.NArg() {
	case 1:
		return "origin", fs.Arg(0), nil
	case 2:
		return fs.Arg(0), fs.Arg(1), nil
	default:
		return "", "", fmt.Errorf("expected [remote] <branch>")
	}
}

func runRemote(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("remote: expected a subcommand (add, list)")
	}

	env, err := mustEnv()
	if err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	defer env.Close()
	remotes := repo.NewRemotes(env.Branch)

	switch args[0] {
	case "add":
		if len(args) != 3 {
			return fmt.Errorf("remote add: expected <name> <address>")
		}
		if err := remotes.Add(args[1], args[2]); err != nil {
			return fmt.Errorf("remote add: %w", err)
		}
		fmt.Printf("added remote %s -> %s\n", args[1], args[2])
		return nil
	case "list":
		all, err := remotes.List()
		if err != nil {
			return fmt.Errorf("remote list: %w", err)
		}
		for name, addr := range all {
			fmt.Printf("%s\t%s\n", name, addr)
		}
		return nil
	default:
		return fmt.Errorf("remote: unknown subcommand %q", args[0])
	}
}
