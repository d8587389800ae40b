package grpctransport

import (
	"context"
	"io"

	"github.com/arin-halvorsen/scoped/transport"
)

// Transport adapts the package's Bind/Dial functions to the transport.
// Transport interface, so runtime.Create can select it by name the same
// way it selects transport/inproc.
type Transport struct{}

func (Transport) Bind(ep transport.Endpoint, handler transport.Handler) (io.Closer, error) {
	return Bind(ep, handler)
}

func (Transport) Dial(ctx context.Context, ep transport.Endpoint) (transport.Conn, error) {
	return Dial(ctx, ep)
}
