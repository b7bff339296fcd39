// Package rpcjson registers a grpc encoding.Codec that marshals plain Go
// structs as JSON, so the sync protocol's RPC surface can be expressed as
// ordinary Go types and served/dialed over real grpc transport without a
// protoc code-generation step (§4.J).
package rpcjson

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Name is the content-subtype grpc negotiates this codec under
// ("application/grpc+json").
const Name = "json"

type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpcjson: unmarshal: %w", err)
	}
	return nil
}

func (codec) Name() string { return Name }

func init() {
	encoding.RegisterCodec(codec{})
}
