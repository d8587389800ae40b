// Package transport defines the message-transport middleware abstraction
// that carries requests and server-push streams between a client and a
// bound server. The component design treats the wire format and the
// transport choice as an external collaborator; this package gives that
// collaborator a concrete, swappable shape with two implementations:
// transport/inproc (same-process, for tests and embedded scopes) and
// transport/grpctransport (a real google.golang.org/grpc binding).
package transport

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/wire"
)

// Endpoint identifies a bindable/dialable address: PROTOCOL://AUTHORITY,
// e.g. "unix:///run/scoped/registry.sock" or "inproc://registry".
type Endpoint struct {
	Protocol  string
	Authority string
}

func (e Endpoint) String() string {
	return e.Protocol + "://" + e.Authority
}

// ParseEndpoint parses a transport endpoint string.
func ParseEndpoint(s string) (Endpoint, error) {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Opaque != "" {
		return Endpoint{}, fmt.Errorf("transport: parse endpoint %q: %w", s, errs.ErrInvalidArgument)
	}
	authority := u.Host + u.Path
	if authority == "" {
		return Endpoint{}, fmt.Errorf("transport: parse endpoint %q: %w: empty authority", s, errs.ErrInvalidArgument)
	}
	return Endpoint{Protocol: u.Scheme, Authority: authority}, nil
}

// Handler is what a bound server exposes to the transport: one unary
// call dispatcher and one server-streaming dispatcher, named the way a
// hand-built grpc.ServiceDesc names its method and stream handlers.
type Handler interface {
	// Call handles a single request/response exchange.
	Call(ctx context.Context, method string, req wire.Variant) (wire.Variant, error)
	// Stream handles a server-push exchange: it runs for the lifetime of
	// the stream, invoking send for every message to push to the client,
	// and returns when the stream ends (normally or via ctx/send error).
	Stream(ctx context.Context, method string, req wire.Variant, send func(wire.Variant) error) error
}

// Transport binds a Handler to an address and dials a Conn to a bound
// address.
type Transport interface {
	Bind(ep Endpoint, handler Handler) (io.Closer, error)
	Dial(ctx context.Context, ep Endpoint) (Conn, error)
}

// Conn is a dialed connection to a bound Handler.
type Conn interface {
	Call(ctx context.Context, method string, req wire.Variant) (wire.Variant, error)
	Stream(ctx context.Context, method string, req wire.Variant) (Stream, error)
	Close() error
}

// Stream is a client-side handle to an open server-push stream. Recv
// returns io.EOF once the server has finished sending.
type Stream interface {
	Recv() (wire.Variant, error)
	Close() error
}
