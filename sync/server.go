package sync

import (
	"context"
	"io"

	"google.golang.org/grpc"

	"github.com/hangar-db/hangar/codec"
	"github.com/hangar-db/hangar/compress"
	"github.com/hangar-db/hangar/hash"
	"github.com/hangar-db/hangar/internal/backend"
	"github.com/hangar-db/hangar/internal/backend/localfs"
	"github.com/hangar-db/hangar/internal/config"
	"github.com/hangar-db/hangar/internal/herrors"
	"github.com/hangar-db/hangar/kv"
	"github.com/hangar-db/hangar/repo"
)

// Server implements Handler against a repository's engines.
// PushBranchRecord runs under a server-owned writer-lock session
// (withWriterLock); PushCommit, PushData and PushLabel do not take the
// writer lock and rely on each KV write being its own serialized
// transaction.
type Server struct {
	env      *repo.Env
	branches *repo.Branches
	commits  *repo.CommitEngine
	history  *repo.History
	content  *repo.ContentStore
	lock     *repo.WriterLock
	cfg      config.Server
}

// NewServer wires a Server to env using cfg for its client-config reply
// and fetch_max_nbytes budget.
func NewServer(env *repo.Env, cfg config.Server) *Server {
	branches := repo.NewBranches(env.Branch)
	commits := repo.NewCommitEngine(env)
	return &Server{
		env:      env,
		branches: branches,
		commits:  commits,
		history:  repo.NewHistory(commits, branches),
		content:  repo.NewContentStore(env.HashStore, env.Backends, env.StoreDataDir()),
		lock:     repo.NewWriterLock(env),
		cfg:      cfg,
	}
}

func envelopeOf(err error) Envelope {
	if err == nil {
		return Envelope{Code: int(herrors.CodeOK)}
	}
	return Envelope{Code: int(herrors.CodeOf(err)), Message: err.Error()}
}

// withWriterLock runs fn holding a freshly acquired token, releasing it
// afterward regardless of outcome — the server owns its own writer
// session per incoming mutation rather than trusting a client-supplied
// token (§5 shared-resource policy).
func (s *Server) withWriterLock(fn func(token string) error) error {
	token, err := s.lock.Acquire()
	if err != nil {
		return err
	}
	defer s.lock.Release(token)
	return fn(token)
}

// --- GetClientConfig (§4.J.0) -----------------------------------------------

func (s *Server) GetClientConfig(ctx context.Context, req *Empty) (*ClientConfig, error) {
	return &ClientConfig{
		Envelope:         Envelope{Code: int(herrors.CodeOK)},
		PushChunkByteCap: s.cfg.Server.PushChunkBytes,
		CompressionOn:    s.cfg.Server.CompressionOn,
		OptimizationTarg: s.cfg.Server.Optimization,
	}, nil
}

// --- Branch record (§4.J.1) -------------------------------------------------

func (s *Server) FetchBranchRecord(ctx context.Context, req *BranchRecordRequest) (*BranchRecordReply, error) {
	head, err := s.branches.GetBranchHead(req.BranchName)
	if err != nil {
		return &BranchRecordReply{Envelope: envelopeOf(err), BranchName: req.BranchName}, nil
	}
	return &BranchRecordReply{Envelope: envelopeOf(nil), BranchName: req.BranchName, CommitHash: head}, nil
}

func (s *Server) PushBranchRecord(ctx context.Context, req *BranchRecordRequest) (*BranchRecordReply, error) {
	var result string
	err := s.withWriterLock(func(token string) error {
		current, err := s.branches.GetBranchHead(req.BranchName)
		switch {
		case herrors.NotFound.Is(err):
			if err := s.branches.CreateBranch(req.BranchName, req.SetHead); err != nil {
				return err
			}
		case err != nil:
			return err
		case current == req.SetHead:
			return herrors.AlreadyExists.New("branch %q already at %s", req.BranchName, req.SetHead)
		default:
			if err := s.branches.SetBranchHead(req.BranchName, req.SetHead); err != nil {
				return err
			}
		}
		result = req.SetHead
		return nil
	})
	return &BranchRecordReply{Envelope: envelopeOf(err), BranchName: req.BranchName, CommitHash: result}, nil
}

// --- Find missing commits (§4.J.2) ------------------------------------------

func (s *Server) localCommitSet(branchName string) (map[string]bool, error) {
	log, err := s.history.ListHistory(branchName)
	if err != nil {
		if herrors.NotFound.Is(err) {
			return map[string]bool{}, nil
		}
		return nil, err
	}
	set := make(map[string]bool, len(log.Order))
	for _, c := range log.Order {
		set[c] = true
	}
	return set, nil
}

// FetchFindMissingCommits returns commits the requester (client) lacks:
// those present in the server's set but absent from the supplied set.
func (s *Server) FetchFindMissingCommits(ctx context.Context, req *MissingCommitsRequest) (*MissingCommitsReply, error) {
	local, err := s.localCommitSet(req.BranchName)
	if err != nil {
		return &MissingCommitsReply{Envelope: envelopeOf(err)}, nil
	}
	supplied := make(map[string]bool, len(req.CommitDigests))
	for _, c := range req.CommitDigests {
		supplied[c] = true
	}
	var missing []string
	for c := range local {
		if !supplied[c] {
			missing = append(missing, c)
		}
	}
	return &MissingCommitsReply{Envelope: envelopeOf(nil), Missing: missing}, nil
}

// PushFindMissingCommits returns commits the server lacks: those present
// in the supplied set but absent from the server's own set.
func (s *Server) PushFindMissingCommits(ctx context.Context, req *MissingCommitsRequest) (*MissingCommitsReply, error) {
	local, err := s.localCommitSet(req.BranchName)
	if err != nil {
		return &MissingCommitsReply{Envelope: envelopeOf(err)}, nil
	}
	var missing []string
	for _, c := range req.CommitDigests {
		if !local[c] {
			missing = append(missing, c)
		}
	}
	return &MissingCommitsReply{Envelope: envelopeOf(nil), Missing: missing}, nil
}

// --- Find missing schemas (§4.J.3) ------------------------------------------

func (s *Server) localSchemaSet(commitHash string) (map[string]bool, error) {
	store, err := s.env.UnpackedStore(commitHash)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnpacked(store, commitHash); err != nil {
		return nil, err
	}
	return repo.NewQuery(store).SchemaHashes()
}

func (s *Server) ensureUnpacked(store *kv.Store, commitHash string) error {
	nonEmpty := false
	_ = store.View(func(t *kv.Txn) error {
		nonEmpty = len(t.All()) > 0
		return nil
	})
	if nonEmpty {
		return nil
	}
	return s.commits.UnpackCommitRef(commitHash, store)
}

func (s *Server) FetchFindMissingSchemas(ctx context.Context, req *MissingSchemasRequest) (*MissingSchemasReply, error) {
	local, err := s.localSchemaSet(req.CommitHash)
	if err != nil {
		return &MissingSchemasReply{Envelope: envelopeOf(err)}, nil
	}
	supplied := toSet(req.SchemaDigests)
	return &MissingSchemasReply{Envelope: envelopeOf(nil), Missing: setDiff(local, supplied)}, nil
}

func (s *Server) PushFindMissingSchemas(ctx context.Context, req *MissingSchemasRequest) (*MissingSchemasReply, error) {
	local, err := s.localSchemaSet(req.CommitHash)
	if err != nil {
		return &MissingSchemasReply{Envelope: envelopeOf(err)}, nil
	}
	supplied := toSet(req.SchemaDigests)
	return &MissingSchemasReply{Envelope: envelopeOf(nil), Missing: setDiff(supplied, local)}, nil
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}

// setDiff returns the keys of a not present in b.
func setDiff(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	return out
}

// --- Find missing data/label hashes (§4.J.4, §4.J.5) ------------------------

func decodeDigestSet(compressed []byte) ([]string, error) {
	packed, err := compress.Decompress(compressed)
	if err != nil {
		return nil, err
	}
	kvs, err := compress.UnpackKVList(packed)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(kvs))
	for i, p := range kvs {
		out[i] = string(p.Key)
	}
	return out, nil
}

// EncodeDigestSet packs and compresses a set of digests the way
// MissingHashesRequest.CompressedSet expects, reusing the commit ref
// packing codec rather than inventing a second framing (§4.J.4/.5).
func EncodeDigestSet(digests []string) ([]byte, error) {
	kvs := make([]compress.KV, len(digests))
	for i, d := range digests {
		kvs[i] = compress.KV{Key: []byte(d)}
	}
	return compress.Compress(compress.PackKVList(kvs))
}

func (s *Server) findMissingHashes(req *MissingHashesRequest, local func() (map[string]string, error), stream grpc.ServerStream) error {
	dataToSchema, err := local()
	if err != nil {
		return stream.SendMsg(&MissingHashesChunk{Envelope: envelopeOf(err)})
	}
	supplied, err := decodeDigestSet(req.CompressedSet)
	if err != nil {
		return stream.SendMsg(&MissingHashesChunk{Envelope: envelopeOf(err)})
	}
	suppliedSet := toSet(supplied)

	var pairs []HashSchemaPair
	for digest, schemaDigest := range dataToSchema {
		if !suppliedSet[digest] {
			pairs = append(pairs, HashSchemaPair{Digest: digest, SchemaDigest: schemaDigest})
		}
	}

	const chunkSize = 256
	first := true
	for i := 0; i < len(pairs); i += chunkSize {
		end := i + chunkSize
		if end > len(pairs) {
			end = len(pairs)
		}
		chunk := &MissingHashesChunk{Envelope: envelopeOf(nil), Pairs: pairs[i:end]}
		if first {
			chunk.TotalByteSize = int64(len(pairs))
			first = false
		}
		if err := stream.SendMsg(chunk); err != nil {
			return err
		}
	}
	if len(pairs) == 0 {
		return stream.SendMsg(&MissingHashesChunk{Envelope: envelopeOf(nil)})
	}
	return nil
}

func (s *Server) dataHashSchemaMap(anchor string) (map[string]string, error) {
	store, err := s.env.UnpackedStore(anchor)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnpacked(store, anchor); err != nil {
		return nil, err
	}
	return repo.NewQuery(store).DataHashToSchemaHash()
}

func (s *Server) labelHashSet(anchor string) (map[string]string, error) {
	store, err := s.env.UnpackedStore(anchor)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnpacked(store, anchor); err != nil {
		return nil, err
	}
	set, err := repo.NewQuery(store).MetadataHashes()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(set))
	for digest := range set {
		out[digest] = ""
	}
	return out, nil
}

func (s *Server) FetchFindMissingHashRecords(req *MissingHashesRequest, stream grpc.ServerStream) error {
	return s.findMissingHashes(req, func() (map[string]string, error) { return s.dataHashSchemaMap(req.AnchorCommit) }, stream)
}

func (s *Server) PushFindMissingHashRecords(req *MissingHashesRequest, stream grpc.ServerStream) error {
	return s.findMissingHashes(req, func() (map[string]string, error) { return s.dataHashSchemaMap(req.AnchorCommit) }, stream)
}

func (s *Server) FetchFindMissingLabels(req *MissingHashesRequest, stream grpc.ServerStream) error {
	return s.findMissingHashes(req, func() (map[string]string, error) { return s.labelHashSet(req.AnchorCommit) }, stream)
}

func (s *Server) PushFindMissingLabels(req *MissingHashesRequest, stream grpc.ServerStream) error {
	return s.findMissingHashes(req, func() (map[string]string, error) { return s.labelHashSet(req.AnchorCommit) }, stream)
}

// --- Fetch/Push commit (§4.J.6) ---------------------------------------------

func (s *Server) FetchCommit(ctx context.Context, req *CommitRequest) (*CommitReply, error) {
	parent, mergeParent, err := s.commits.GetParents(req.CommitHash)
	if err != nil {
		return &CommitReply{Envelope: envelopeOf(err), CommitHash: req.CommitHash}, nil
	}
	var compressedRefs, compressedSpec []byte
	err = s.env.Ref.View(func(t *kv.Txn) error {
		v, ok := t.Get(codec.EncodeCommitRefKey(req.CommitHash))
		if !ok {
			return herrors.NotFound.New("commit ref %s", req.CommitHash)
		}
		compressedRefs = v
		v, ok = t.Get(codec.EncodeCommitSpecKey(req.CommitHash))
		if !ok {
			return herrors.NotFound.New("commit spec %s", req.CommitHash)
		}
		compressedSpec = v
		return nil
	})
	if err != nil {
		return &CommitReply{Envelope: envelopeOf(err), CommitHash: req.CommitHash}, nil
	}
	return &CommitReply{
		Envelope:       envelopeOf(nil),
		CommitHash:     req.CommitHash,
		ParentValue:    codec.EncodeCommitParentValue(parent, mergeParent),
		CompressedRefs: compressedRefs,
		CompressedSpec: compressedSpec,
	}, nil
}

func (s *Server) PushCommit(ctx context.Context, req *CommitRequest) (*CommitReply, error) {
	enc := repo.Encoded{ParentVal: req.ParentValue, CompressedRefs: req.CompressedRefs, CompressedSpec: req.CompressedSpec}
	err := s.commits.ReceiveCommit(req.CommitHash, enc)
	return &CommitReply{Envelope: envelopeOf(err), CommitHash: req.CommitHash}, nil
}

// --- Fetch/Push data (§4.J.7) ------------------------------------------------

func (s *Server) FetchData(req *DataRequest, stream grpc.ServerStream) error {
	budget := s.cfg.Server.FetchMaxNbytes
	var sent int64

	for i, digest := range req.Digests {
		d, err := hash.Parse(digest)
		if err != nil {
			return stream.SendMsg(&DataChunk{Envelope: envelopeOf(err)})
		}
		t, err := s.content.Read(localfs.Tag, d)
		if err != nil {
			return stream.SendMsg(&DataChunk{Envelope: envelopeOf(err)})
		}
		if budget > 0 && sent+int64(len(t.Data)) > budget {
			return stream.SendMsg(&DataChunk{Envelope: Envelope{Code: int(herrors.CodeResourceExhausted), Message: "fetch_max_nbytes exceeded"}})
		}
		sent += int64(len(t.Data))

		chunk := &DataChunk{
			Envelope: envelopeOf(nil),
			Digest:   digest,
			Shape:    t.Shape,
			DType:    t.DType,
			Data:     t.Data,
		}
		if i == 0 {
			chunk.TotalByteSize = sent
		}
		if err := stream.SendMsg(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) PushData(stream grpc.ServerStream) error {
	type received struct {
		digest hash.Hash
		t      backend.Tensor
		schema string
	}
	var batch []received
	aborted := error(nil)

	for {
		chunk := new(DataChunk)
		err := stream.RecvMsg(chunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		want, perr := hash.Parse(chunk.Digest)
		if perr != nil {
			if aborted == nil {
				aborted = perr
			}
			continue
		}
		t := backend.Tensor{Shape: chunk.Shape, DType: chunk.DType, Data: chunk.Data}
		if verr := repo.VerifyDigest(t, want); verr != nil {
			if aborted == nil {
				aborted = verr
			}
			continue
		}
		batch = append(batch, received{digest: want, t: t, schema: chunk.SchemaDigest})
	}

	if aborted != nil {
		return stream.SendMsg(&DataChunk{Envelope: envelopeOf(aborted)})
	}
	for _, r := range batch {
		if _, err := s.content.Write(localfs.Tag, r.t); err != nil {
			return stream.SendMsg(&DataChunk{Envelope: envelopeOf(err)})
		}
	}
	return stream.SendMsg(&DataChunk{Envelope: envelopeOf(nil)})
}

// --- Fetch/Push label (§4.J.8) ------------------------------------------------

func (s *Server) FetchLabel(ctx context.Context, req *LabelRequest) (*LabelReply, error) {
	var value []byte
	err := s.env.Label.View(func(t *kv.Txn) error {
		v, ok := t.Get(codec.EncodeHashKey(req.Digest))
		if !ok {
			return herrors.NotFound.New("label %s", req.Digest)
		}
		value = v
		return nil
	})
	if err != nil {
		return &LabelReply{Envelope: envelopeOf(err), Digest: req.Digest}, nil
	}
	return &LabelReply{Envelope: envelopeOf(nil), Digest: req.Digest, Value: value}, nil
}

func (s *Server) PushLabel(ctx context.Context, req *LabelRequest) (*LabelReply, error) {
	want, err := hash.Parse(req.Digest)
	if err != nil {
		return &LabelReply{Envelope: envelopeOf(err), Digest: req.Digest}, nil
	}
	got := hash.Of(req.Value)
	if got != want {
		err := herrors.DigestMismatch.New("label declared %s, recomputed %s", want, got)
		return &LabelReply{Envelope: envelopeOf(err), Digest: req.Digest}, nil
	}
	err = s.env.Label.Update(func(t *kv.Txn) error {
		key := codec.EncodeHashKey(req.Digest)
		if _, ok := t.Get(key); ok {
			return nil
		}
		return t.Put(key, req.Value)
	})
	return &LabelReply{Envelope: envelopeOf(err), Digest: req.Digest, Value: req.Value}, nil
}
