package sync

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hangar-db/hangar/sync/rpcjson"
)

// Client dials a remote and exposes every RPC Handler defines, playing the
// role a protoc-generated *Client stub normally would.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr over plaintext grpc, negotiating the rpcjson
// content-subtype so no protobuf definitions are required on the wire
// (§4.J, §6).
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpcjson.Name)),
	)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// NewClientFromConn wraps an already-dialed connection, used by callers
// (and tests) that need a custom dialer — e.g. an in-memory bufconn
// listener — rather than Dial's plaintext-over-TCP default.
func NewClientFromConn(conn *grpc.ClientConn) (*Client, error) {
	return &Client{conn: conn}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func (c *Client) invoke(ctx context.Context, name string, req, reply interface{}) error {
	return c.conn.Invoke(ctx, fullMethod(name), req, reply)
}

// GetClientConfig fetches the server's tuning parameters for this session.
func (c *Client) GetClientConfig(ctx context.Context) (*ClientConfig, error) {
	reply := new(ClientConfig)
	if err := c.invoke(ctx, "GetClientConfig", new(Empty), reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// FetchBranchRecord/PushBranchRecord implement §4.J.1.
func (c *Client) FetchBranchRecord(ctx context.Context, branchName string) (*BranchRecordReply, error) {
	reply := new(BranchRecordReply)
	err := c.invoke(ctx, "FetchBranchRecord", &BranchRecordRequest{BranchName: branchName}, reply)
	return reply, err
}

func (c *Client) PushBranchRecord(ctx context.Context, branchName, setHead string) (*BranchRecordReply, error) {
	reply := new(BranchRecordReply)
	err := c.invoke(ctx, "PushBranchRecord", &BranchRecordRequest{BranchName: branchName, SetHead: setHead}, reply)
	return reply, err
}

// FetchFindMissingCommits/PushFindMissingCommits implement §4.J.2.
func (c *Client) FetchFindMissingCommits(ctx context.Context, branchName string, have []string) (*MissingCommitsReply, error) {
	reply := new(MissingCommitsReply)
	err := c.invoke(ctx, "FetchFindMissingCommits", &MissingCommitsRequest{BranchName: branchName, CommitDigests: have}, reply)
	return reply, err
}

func (c *Client) PushFindMissingCommits(ctx context.Context, branchName string, have []string) (*MissingCommitsReply, error) {
	reply := new(MissingCommitsReply)
	err := c.invoke(ctx, "PushFindMissingCommits", &MissingCommitsRequest{BranchName: branchName, CommitDigests: have}, reply)
	return reply, err
}

// FetchFindMissingSchemas/PushFindMissingSchemas implement §4.J.3.
func (c *Client) FetchFindMissingSchemas(ctx context.Context, commitHash string, have []string) (*MissingSchemasReply, error) {
	reply := new(MissingSchemasReply)
	err := c.invoke(ctx, "FetchFindMissingSchemas", &MissingSchemasRequest{CommitHash: commitHash, SchemaDigests: have}, reply)
	return reply, err
}

func (c *Client) PushFindMissingSchemas(ctx context.Context, commitHash string, have []string) (*MissingSchemasReply, error) {
	reply := new(MissingSchemasReply)
	err := c.invoke(ctx, "PushFindMissingSchemas", &MissingSchemasRequest{CommitHash: commitHash, SchemaDigests: have}, reply)
	return reply, err
}

// missingHashesStream drains a server-streaming missing-hash/label RPC
// into a flat slice, stopping at the first envelope error or EOF.
func (c *Client) missingHashesStream(ctx context.Context, name string, req *MissingHashesRequest) ([]HashSchemaPair, error) {
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: name, ServerStreams: true}, fullMethod(name))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	var out []HashSchemaPair
	for {
		chunk := new(MissingHashesChunk)
		err := stream.RecvMsg(chunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !chunk.OK() {
			return nil, herrorsFromEnvelope(chunk.Envelope)
		}
		out = append(out, chunk.Pairs...)
	}
	return out, nil
}

// FetchFindMissingHashRecords/PushFindMissingHashRecords implement §4.J.4.
func (c *Client) FetchFindMissingHashRecords(ctx context.Context, req *MissingHashesRequest) ([]HashSchemaPair, error) {
	return c.missingHashesStream(ctx, "FetchFindMissingHashRecords", req)
}

func (c *Client) PushFindMissingHashRecords(ctx context.Context, req *MissingHashesRequest) ([]HashSchemaPair, error) {
	return c.missingHashesStream(ctx, "PushFindMissingHashRecords", req)
}

// FetchFindMissingLabels/PushFindMissingLabels implement §4.J.5.
func (c *Client) FetchFindMissingLabels(ctx context.Context, req *MissingHashesRequest) ([]HashSchemaPair, error) {
	return c.missingHashesStream(ctx, "FetchFindMissingLabels", req)
}

func (c *Client) PushFindMissingLabels(ctx context.Context, req *MissingHashesRequest) ([]HashSchemaPair, error) {
	return c.missingHashesStream(ctx, "PushFindMissingLabels", req)
}

// FetchCommit/PushCommit implement §4.J.6.
func (c *Client) FetchCommit(ctx context.Context, commitHash string) (*CommitReply, error) {
	reply := new(CommitReply)
	err := c.invoke(ctx, "FetchCommit", &CommitRequest{CommitHash: commitHash}, reply)
	return reply, err
}

func (c *Client) PushCommit(ctx context.Context, req *CommitRequest) (*CommitReply, error) {
	reply := new(CommitReply)
	err := c.invoke(ctx, "PushCommit", req, reply)
	return reply, err
}

// FetchData streams every requested digest back from the server.
func (c *Client) FetchData(ctx context.Context, req *DataRequest) ([]DataChunk, error) {
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "FetchData", ServerStreams: true}, fullMethod("FetchData"))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	var out []DataChunk
	for {
		chunk := new(DataChunk)
		err := stream.RecvMsg(chunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !chunk.OK() {
			return out, herrorsFromEnvelope(chunk.Envelope)
		}
		out = append(out, *chunk)
	}
	return out, nil
}

// PushData streams a batch of tensor chunks to the server, honoring the
// all-or-nothing batch semantics §4.J.7/§7 require: the server only
// commits the batch once every chunk has validated.
func (c *Client) PushData(ctx context.Context, chunks []DataChunk) error {
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "PushData", ClientStreams: true}, fullMethod("PushData"))
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		ch := chunk
		if err := stream.SendMsg(&ch); err != nil {
			return err
		}
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	reply := new(DataChunk)
	if err := stream.RecvMsg(reply); err != nil {
		return err
	}
	if !reply.OK() {
		return herrorsFromEnvelope(reply.Envelope)
	}
	return nil
}

// FetchLabel/PushLabel implement §4.J.8.
func (c *Client) FetchLabel(ctx context.Context, digest string) (*LabelReply, error) {
	reply := new(LabelReply)
	err := c.invoke(ctx, "FetchLabel", &LabelRequest{Digest: digest}, reply)
	return reply, err
}

func (c *Client) PushLabel(ctx context.Context, digest string, value []byte) (*LabelReply, error) {
	reply := new(LabelReply)
	err := c.invoke(ctx, "PushLabel", &LabelRequest{Digest: digest, Value: value}, reply)
	return reply, err
}
