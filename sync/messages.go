// Package sync implements the client/server transfer protocol of §4.J:
// eight logical RPC pairs exchanging only the objects one side lacks,
// carried over real grpc transport with a hand-registered JSON codec
// (sync/rpcjson) standing in for generated protobuf stubs.
package sync

import "fmt"

// Envelope is the error record every reply carries (§6 wire protocol).
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OK reports whether the envelope signals success.
func (e Envelope) OK() bool { return e.Code == 0 }

// herrorsFromEnvelope reconstructs a plain error from a non-OK envelope
// the client received over the wire. The remote Kind identity is lost in
// transit (only the flat wire code survives, per §6), so callers on this
// side can branch on the numeric code but not on herrors.Kind.Is.
func herrorsFromEnvelope(e Envelope) error {
	return fmt.Errorf("remote error (code %d): %s", e.Code, e.Message)
}

// ClientConfig is the server's reply to GetClientConfig: runtime tuning
// parameters the client must honor for this connection.
type ClientConfig struct {
	Envelope
	PushChunkByteCap int64  `json:"push_chunk_byte_cap"`
	CompressionOn    bool   `json:"compression_on"`
	OptimizationTarg string `json:"optimization_target"`
}

// BranchRecordRequest/Reply implement Fetch/Push branch record (§4.J.1).
type BranchRecordRequest struct {
	BranchName string `json:"branch_name"`
	// SetHead is non-empty on a push: the commit the caller wants the
	// peer's branch to point at. Empty on a fetch (read-only request).
	SetHead string `json:"set_head,omitempty"`
}

type BranchRecordReply struct {
	Envelope
	BranchName string `json:"branch_name"`
	CommitHash string `json:"commit_hash"`
}

// MissingCommitsRequest/Reply implement Find missing commits (§4.J.2).
type MissingCommitsRequest struct {
	BranchName     string   `json:"branch_name"`
	CommitDigests  []string `json:"commit_digests"`
}

type MissingCommitsReply struct {
	Envelope
	Missing []string `json:"missing"`
}

// MissingSchemasRequest/Reply implement Find missing schemas (§4.J.3).
type MissingSchemasRequest struct {
	CommitHash    string   `json:"commit_hash"`
	SchemaDigests []string `json:"schema_digests"`
}

type MissingSchemasReply struct {
	Envelope
	Missing []string `json:"missing"`
}

// MissingHashesRequest is shared by Find missing data hashes (§4.J.4) and
// Find missing label hashes (§4.J.5): a compressed packed set of digests
// the sender already has, anchored to a commit the peer can unpack to
// compute its own set.
type MissingHashesRequest struct {
	AnchorCommit    string `json:"anchor_commit"`
	CompressedSet   []byte `json:"compressed_set"`
	UncompNbytes    int    `json:"uncomp_nbytes"`
	CompNbytes      int    `json:"comp_nbytes"`
}

// HashSchemaPair is one (digest, schema-digest) entry streamed back from
// a missing-hashes request.
type HashSchemaPair struct {
	Digest       string `json:"digest"`
	SchemaDigest string `json:"schema_digest"`
}

// MissingHashesChunk is one streamed reply message; TotalByteSize is set
// only on the first chunk of a response, per §4.J's chunking convention.
type MissingHashesChunk struct {
	Envelope
	TotalByteSize int64            `json:"total_byte_size,omitempty"`
	Pairs         []HashSchemaPair `json:"pairs"`
}

// CommitRequest/Reply implement Fetch/Push commit (§4.J.6).
type CommitRequest struct {
	CommitHash string `json:"commit_hash"`
	// Push-only: the encoded commit being sent to the peer.
	ParentValue    []byte `json:"parent_value,omitempty"`
	CompressedRefs []byte `json:"compressed_refs,omitempty"`
	CompressedSpec []byte `json:"compressed_spec,omitempty"`
}

type CommitReply struct {
	Envelope
	CommitHash     string `json:"commit_hash"`
	ParentValue    []byte `json:"parent_value"`
	CompressedRefs []byte `json:"compressed_refs"`
	CompressedSpec []byte `json:"compressed_spec"`
}

// DataChunk is one streamed message of Fetch/Push data (§4.J.7): either
// side streams batches of (digest, shape, dtype, raw bytes); the first
// message of a stream carries TotalByteSize so the receiver can budget.
type DataChunk struct {
	Envelope
	TotalByteSize int64    `json:"total_byte_size,omitempty"`
	Digest        string   `json:"digest,omitempty"`
	Shape         []int    `json:"shape,omitempty"`
	DType         int      `json:"dtype,omitempty"`
	Data          []byte   `json:"data,omitempty"`
	SchemaDigest  string   `json:"schema_digest,omitempty"`
}

// LabelRequest/Reply implement Fetch/Push label (§4.J.8): a single
// metadata value per call, digest-verified like data.
type LabelRequest struct {
	Digest string `json:"digest"`
	// Push-only.
	Value []byte `json:"value,omitempty"`
}

type LabelReply struct {
	Envelope
	Digest string `json:"digest"`
	Value  []byte `json:"value"`
}
