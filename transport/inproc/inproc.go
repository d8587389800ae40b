// Package inproc implements a same-process, channel-based
// transport.Transport. It is the transport used by tests and by scopes
// embedded in the same process as the runtime. The shape — a shared
// dispatch table keyed by authority, calls fanned out over goroutines and
// channels rather than a socket — borrows from the teacher's same-process
// run.Group composition and from the in-memory dispatcher design of
// github.com/joeycumines/go-inprocgrpc, without taking that package's
// dependency on protobuf-generated stubs, which this module's scopes
// don't have.
package inproc

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/transport"
	"github.com/arin-halvorsen/scoped/wire"
)

// Network is an in-process transport.Transport: a registry of bound
// handlers addressable by endpoint authority. Tests typically share one
// Network between a server-side Bind and client-side Dial calls.
type Network struct {
	mu       sync.Mutex
	handlers map[string]transport.Handler
}

// NewNetwork creates an empty Network.
func NewNetwork() *Network {
	return &Network{handlers: make(map[string]transport.Handler)}
}

// Bind registers handler under ep's authority. ep's protocol must be
// "inproc". Fails with ErrLogicError if the authority is already bound.
func (n *Network) Bind(ep transport.Endpoint, handler transport.Handler) (io.Closer, error) {
	if ep.Protocol != "inproc" {
		return nil, fmt.Errorf("inproc: bind %s: %w: protocol must be inproc", ep, errs.ErrInvalidArgument)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.handlers[ep.Authority]; exists {
		return nil, fmt.Errorf("inproc: bind %s: %w: already bound", ep, errs.ErrLogicError)
	}
	n.handlers[ep.Authority] = handler
	authority := ep.Authority
	return closerFunc(func() error {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.handlers, authority)
		return nil
	}), nil
}

// Dial looks up the handler bound at ep.Authority. Fails with
// ErrMiddleware if nothing is bound there.
func (n *Network) Dial(_ context.Context, ep transport.Endpoint) (transport.Conn, error) {
	n.mu.Lock()
	handler, ok := n.handlers[ep.Authority]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("inproc: dial %s: %w: nothing bound", ep, errs.ErrMiddleware)
	}
	return &conn{handler: handler}, nil
}

type conn struct {
	handler transport.Handler
}

func (c *conn) Call(ctx context.Context, method string, req wire.Variant) (wire.Variant, error) {
	return c.handler.Call(ctx, method, req)
}

func (c *conn) Stream(ctx context.Context, method string, req wire.Variant) (transport.Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan wire.Variant, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(ch)
		err := c.handler.Stream(streamCtx, method, req, func(v wire.Variant) error {
			select {
			case ch <- v:
				return nil
			case <-streamCtx.Done():
				return streamCtx.Err()
			}
		})
		errCh <- err
	}()

	return &stream{ch: ch, errCh: errCh, cancel: cancel}, nil
}

func (c *conn) Close() error { return nil }

// stream adapts the goroutine-driven Handler.Stream callback convention
// to the pull-based transport.Stream.Recv interface.
type stream struct {
	ch     chan wire.Variant
	errCh  chan error
	cancel context.CancelFunc
	done   bool
}

func (s *stream) Recv() (wire.Variant, error) {
	if s.done {
		return wire.Variant{}, io.EOF
	}
	v, ok := <-s.ch
	if ok {
		return v, nil
	}
	s.done = true
	select {
	case err := <-s.errCh:
		if err != nil {
			return wire.Variant{}, err
		}
	default:
	}
	return wire.Variant{}, io.EOF
}

func (s *stream) Close() error {
	s.cancel()
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
