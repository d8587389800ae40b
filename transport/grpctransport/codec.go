// Package grpctransport implements transport.Transport directly on top
// of google.golang.org/grpc, without a protoc-generated service: a custom
// encoding.Codec carries wire.Variant-encoded envelopes, and the service
// is described by a hand-built grpc.ServiceDesc with one unary method and
// one server-streaming method, the way grpc-proxy/proxy builds a codec
// and raw stream handlers to forward arbitrary payloads, and the way the
// teacher's internal/server/ready/grpc.go talks to google.golang.org/grpc
// directly rather than through generated stubs.
package grpctransport

import (
	"encoding/json"
	"fmt"
)

const codecName = "scoped-variant"

// envelope is the only concrete type this codec ever marshals: a method
// name plus a wire.Variant payload already encoded to JSON by
// wire.Encode, so the codec itself does not need to know about Variant's
// tagged-union representation.
type envelope struct {
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload"`
}

// jsonCodec implements google.golang.org/grpc/encoding.Codec over
// *envelope values.
type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(*envelope)
	if !ok {
		return nil, fmt.Errorf("grpctransport: codec: marshal: unsupported type %T", v)
	}
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(*envelope)
	if !ok {
		return fmt.Errorf("grpctransport: codec: unmarshal: unsupported type %T", v)
	}
	return json.Unmarshal(data, msg)
}
