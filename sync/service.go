package sync

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the grpc service path every RPC in this package is
// registered under, playing the role a `.proto` package/service
// declaration would in a protoc-generated client.
const ServiceName = "hangar.sync.Sync"

// Handler is implemented by Server and is everything a peer can call.
// Streaming RPCs take the raw grpc.ServerStream because no protoc-
// generated typed stream wrapper exists here; handlers type-assert
// messages themselves via Send/RecvMsg.
type Handler interface {
	GetClientConfig(ctx context.Context, req *Empty) (*ClientConfig, error)

	FetchBranchRecord(ctx context.Context, req *BranchRecordRequest) (*BranchRecordReply, error)
	PushBranchRecord(ctx context.Context, req *BranchRecordRequest) (*BranchRecordReply, error)

	FetchFindMissingCommits(ctx context.Context, req *MissingCommitsRequest) (*MissingCommitsReply, error)
	PushFindMissingCommits(ctx context.Context, req *MissingCommitsRequest) (*MissingCommitsReply, error)

	FetchFindMissingSchemas(ctx context.Context, req *MissingSchemasRequest) (*MissingSchemasReply, error)
	PushFindMissingSchemas(ctx context.Context, req *MissingSchemasRequest) (*MissingSchemasReply, error)

	FetchFindMissingHashRecords(req *MissingHashesRequest, stream grpc.ServerStream) error
	PushFindMissingHashRecords(req *MissingHashesRequest, stream grpc.ServerStream) error

	FetchFindMissingLabels(req *MissingHashesRequest, stream grpc.ServerStream) error
	PushFindMissingLabels(req *MissingHashesRequest, stream grpc.ServerStream) error

	FetchCommit(ctx context.Context, req *CommitRequest) (*CommitReply, error)
	PushCommit(ctx context.Context, req *CommitRequest) (*CommitReply, error)

	FetchData(req *DataRequest, stream grpc.ServerStream) error
	PushData(stream grpc.ServerStream) error

	FetchLabel(ctx context.Context, req *LabelRequest) (*LabelReply, error)
	PushLabel(ctx context.Context, req *LabelRequest) (*LabelReply, error)
}

// Empty is the request shape for RPCs that carry no parameters.
type Empty struct{}

// DataRequest names the digests a FetchData call wants streamed back.
type DataRequest struct {
	AnchorCommit string   `json:"anchor_commit"`
	Digests      []string `json:"digests"`
}

// RegisterServer attaches h's methods to gs under ServiceName, wiring
// every RPC §4.J names (§6 "Operations listed in §4.J are the public RPC
// surface").
func RegisterServer(gs *grpc.Server, h Handler) {
	gs.RegisterService(&serviceDesc, h)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetClientConfig", func(h Handler, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(Empty)
			if err := dec(req); err != nil {
				return nil, err
			}
			return h.GetClientConfig(ctx, req)
		}),
		unaryMethod("FetchBranchRecord", func(h Handler, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(BranchRecordRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return h.FetchBranchRecord(ctx, req)
		}),
		unaryMethod("PushBranchRecord", func(h Handler, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(BranchRecordRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return h.PushBranchRecord(ctx, req)
		}),
		unaryMethod("FetchFindMissingCommits", func(h Handler, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(MissingCommitsRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return h.FetchFindMissingCommits(ctx, req)
		}),
		unaryMethod("PushFindMissingCommits", func(h Handler, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(MissingCommitsRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return h.PushFindMissingCommits(ctx, req)
		}),
		unaryMethod("FetchFindMissingSchemas", func(h Handler, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(MissingSchemasRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return h.FetchFindMissingSchemas(ctx, req)
		}),
		unaryMethod("PushFindMissingSchemas", func(h Handler, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(MissingSchemasRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return h.PushFindMissingSchemas(ctx, req)
		}),
		unaryMethod("FetchCommit", func(h Handler, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(CommitRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return h.FetchCommit(ctx, req)
		}),
		unaryMethod("PushCommit", func(h Handler, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(CommitRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return h.PushCommit(ctx, req)
		}),
		unaryMethod("FetchLabel", func(h Handler, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(LabelRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return h.FetchLabel(ctx, req)
		}),
		unaryMethod("PushLabel", func(h Handler, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(LabelRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return h.PushLabel(ctx, req)
		}),
	},
	Streams: []grpc.StreamDesc{
		serverStreamMethod("FetchFindMissingHashRecords", func(h Handler, req *MissingHashesRequest, stream grpc.ServerStream) error {
			return h.FetchFindMissingHashRecords(req, stream)
		}),
		serverStreamMethod("PushFindMissingHashRecords", func(h Handler, req *MissingHashesRequest, stream grpc.ServerStream) error {
			return h.PushFindMissingHashRecords(req, stream)
		}),
		serverStreamMethod("FetchFindMissingLabels", func(h Handler, req *MissingHashesRequest, stream grpc.ServerStream) error {
			return h.FetchFindMissingLabels(req, stream)
		}),
		serverStreamMethod("PushFindMissingLabels", func(h Handler, req *MissingHashesRequest, stream grpc.ServerStream) error {
			return h.PushFindMissingLabels(req, stream)
		}),
		{
			StreamName:    "FetchData",
			ServerStreams: true,
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				req := new(DataRequest)
				if err := stream.RecvMsg(req); err != nil {
					return err
				}
				return srv.(Handler).FetchData(req, stream)
			},
		},
		{
			StreamName:    "PushData",
			ClientStreams: true,
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				return srv.(Handler).PushData(stream)
			},
		},
	},
	Metadata: "sync.proto",
}

// unaryMethod wraps a typed handler into the untyped grpc.MethodDesc shape
// the grpc-go server loop invokes.
func unaryMethod(name string, fn func(h Handler, ctx context.Context, dec func(interface{}) error) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			h := srv.(Handler)
			if interceptor == nil {
				return fn(h, ctx, dec)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/" + name}
			handler := func(ctx context.Context, _ interface{}) (interface{}, error) {
				return fn(h, ctx, dec)
			}
			return interceptor(ctx, nil, info, handler)
		},
	}
}

// serverStreamMethod wraps a server-streaming RPC (one request, N
// streamed replies) into a grpc.StreamDesc.
func serverStreamMethod(name string, fn func(h Handler, req *MissingHashesRequest, stream grpc.ServerStream) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv interface{}, stream grpc.ServerStream) error {
			req := new(MissingHashesRequest)
			if err := stream.RecvMsg(req); err != nil {
				return err
			}
			return fn(srv.(Handler), req, stream)
		},
	}
}
