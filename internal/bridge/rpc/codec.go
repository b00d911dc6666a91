// Package rpc implements the RPC service bridge (spec.md §4.J, §6 RPC
// surface) as a hand-written grpc.ServiceDesc plus a JSON wire codec,
// since the repository carries no protoc/protoc-gen-go toolchain run.
// grpc-go only requires a *grpc.ServiceDesc value at
// grpc.Server.RegisterService time — it does not require
// protoc-generated stubs — so unary handlers are registered directly
// against hand-written Go request/response structs, encoded with this
// package's jsonCodec instead of the default proto codec. This is a
// deliberate, documented deviation from the generated-code norm (see
// SPEC_FULL.md §4.J).
package rpc

import (
	"encoding/json"
	"fmt"
)

// jsonCodec implements google.golang.org/grpc/encoding.Codec, registered
// under content-subtype "json" so grpc-go negotiates it instead of the
// proto codec for this service's messages.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc: json codec unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return "json" }
