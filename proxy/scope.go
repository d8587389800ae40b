// Package proxy implements the middleware-neutral typed client stubs
// described by the component design: thin wrappers around a
// transport.Conn that know how to shape scoped's own RPCs (search,
// cancel, registry lookup) without depending on any particular transport
// implementation.
package proxy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/reply"
	"github.com/arin-halvorsen/scoped/transport"
	"github.com/arin-halvorsen/scoped/wire"
)

// ScopeProxy is a transport-agnostic stub for a single running scope
// process.
type ScopeProxy struct {
	identity string
	endpoint transport.Endpoint
	conn     transport.Conn
}

// NewScopeProxy wraps an already-dialed conn addressed to a scope process
// identified by identity at endpoint.
func NewScopeProxy(identity string, endpoint transport.Endpoint, conn transport.Conn) *ScopeProxy {
	return &ScopeProxy{identity: identity, endpoint: endpoint, conn: conn}
}

// Identity returns the scope's stable identifier.
func (p *ScopeProxy) Identity() string { return p.identity }

// Endpoint returns the transport endpoint this proxy is bound to.
func (p *ScopeProxy) Endpoint() transport.Endpoint { return p.endpoint }

// CreateQuery opens a search stream on the scope and pumps every pushed
// event to receiver on a background goroutine until the scope finishes,
// the caller cancels via the returned QueryCtrlProxy, or the transport
// fails. A transport failure before a finish event is observed is
// surfaced to receiver as exactly one OnFinish(ReasonError, ...) call, so
// the "exactly one terminal callback" invariant holds on the client side
// too.
func (p *ScopeProxy) CreateQuery(ctx context.Context, text string, receiver reply.Receiver) (*QueryCtrlProxy, error) {
	if receiver == nil {
		return nil, fmt.Errorf("proxy: create query: %w: nil receiver", errs.ErrInvalidArgument)
	}

	queryID, err := newQueryID()
	if err != nil {
		return nil, fmt.Errorf("proxy: create query: %w: %v", errs.ErrResourceError, err)
	}

	req := wire.Mapping(
		[]string{"query_id", "query"},
		map[string]wire.Variant{
			"query_id": wire.String(queryID),
			"query":    wire.String(text),
		},
	)

	stream, err := p.conn.Stream(ctx, "search", req)
	if err != nil {
		return nil, fmt.Errorf("proxy: create query: %w: %v", errs.ErrMiddleware, err)
	}

	ctrl := &QueryCtrlProxy{conn: p.conn, queryID: queryID, stream: stream}
	go ctrl.pump(receiver)

	return ctrl, nil
}

// QueryCtrlProxy is the client-side handle to one in-flight search,
// returned by ScopeProxy.CreateQuery and registered as a subquery by
// aggregating scopes.
type QueryCtrlProxy struct {
	conn    transport.Conn
	queryID string
	stream  transport.Stream

	destroyOnce sync.Once
	destroyed   atomic.Bool
}

// Cancel requests cancellation of this query. It is a best-effort,
// fire-and-forget unary call; the search's terminal callback still
// arrives asynchronously on the receiver once the scope observes the
// cancellation.
func (c *QueryCtrlProxy) Cancel(ctx context.Context) error {
	req := wire.Mapping([]string{"query_id"}, map[string]wire.Variant{"query_id": wire.String(c.queryID)})
	if _, err := c.conn.Call(ctx, "cancel", req); err != nil {
		return fmt.Errorf("proxy: cancel query: %w: %v", errs.ErrMiddleware, err)
	}
	return nil
}

// Destroy releases the underlying stream without waiting for the scope
// to finish. Idempotent.
func (c *QueryCtrlProxy) Destroy() {
	c.destroyOnce.Do(func() {
		c.destroyed.Store(true)
		_ = c.stream.Close()
	})
}

// pump reads push events off the stream and dispatches them to receiver
// until the stream ends.
func (c *QueryCtrlProxy) pump(receiver reply.Receiver) {
	finishedSeen := false
	for {
		v, err := c.stream.Recv()
		if err != nil {
			if err != io.EOF && !finishedSeen && !c.destroyed.Load() {
				receiver.OnFinish(reply.ReasonError, fmt.Sprintf("proxy: stream closed: %v", err))
			}
			return
		}
		if dispatchEvent(v, receiver) {
			finishedSeen = true
			return
		}
	}
}

func newQueryID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
