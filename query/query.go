// Package query implements the server-side query object: the per-search
// controller that runs a scope's search on behalf of a client, owns the
// cancellation flag consulted before every result push, and forwards
// cancellation to any subqueries an aggregating scope has registered.
package query

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arin-halvorsen/scoped/proxy"
	"github.com/arin-halvorsen/scoped/reply"
)

// Searcher is the scope-supplied search implementation a Query drives.
// Run performs the search, pushing categories/results/annotations to rep
// and returning when the search is complete (or ctx is cancelled).
// Cancelled is invoked at most once, from whatever goroutine called
// Cancel, to let the searcher unwind any blocking work of its own; it
// must not block.
type Searcher interface {
	Run(ctx context.Context, rep *reply.Reply) error
	Cancelled()
}

// Query is the server-side controller for one incoming search. One
// instance exists per CreateQuery call.
type Query struct {
	searcher Searcher

	pushable   atomic.Bool
	cancelOnce sync.Once

	mu         sync.Mutex
	cancelled  bool
	subqueries []*proxy.QueryCtrlProxy
}

// New creates a Query wrapping searcher. The query starts pushable.
func New(searcher Searcher) *Query {
	q := &Query{searcher: searcher}
	q.pushable.Store(true)
	return q
}

// Pushable reports whether the query has not yet been cancelled. This is
// a convenience for scope authors doing their own batching between
// expensive steps; it is not required for correctness, since reply.Reply
// independently rejects pushes once Cancel forces a finish.
func (q *Query) Pushable() bool {
	return q.pushable.Load()
}

// Run invokes the searcher on the calling goroutine. A panic inside the
// searcher is recovered and surfaced to rep as ReasonError, the same way
// a scope crash is reported rather than allowed to tear down the
// runtime. rep is always closed on return, synthesising
// Finish(ReasonFinished, "") if the searcher neither finished nor errored
// it explicitly.
func (q *Query) Run(ctx context.Context, rep *reply.Reply) {
	defer rep.Close()
	defer func() {
		if r := recover(); r != nil {
			rep.Error(fmt.Errorf("query: panic: %v", r))
		}
	}()

	if err := q.searcher.Run(ctx, rep); err != nil {
		rep.Error(err)
	}
}

// Cancel flips the query to non-pushable, invokes the searcher's
// Cancelled hook, forwards cancellation to every subquery registered so
// far exactly once, and requests the reply finish with ReasonCancelled.
// Idempotent.
func (q *Query) Cancel(ctx context.Context, rep *reply.Reply) {
	q.cancelOnce.Do(func() {
		q.mu.Lock()
		q.cancelled = true
		subqueries := q.subqueries
		q.subqueries = nil
		q.mu.Unlock()

		q.pushable.Store(false)
		q.searcher.Cancelled()

		for _, sub := range subqueries {
			sub.Cancel(ctx) //nolint:errcheck // best-effort fan-out cancellation
		}

		rep.Cancel()
	})
}

// RegisterSubquery records ctrl as a child query-control proxy that
// should receive Cancel forwarding when this query is cancelled. Safe to
// call concurrently with Cancel: if this query has already been
// cancelled, ctrl is cancelled immediately instead of being queued, so no
// subquery can outlive its parent's cancellation.
func (q *Query) RegisterSubquery(ctx context.Context, ctrl *proxy.QueryCtrlProxy) {
	q.mu.Lock()
	if q.cancelled {
		q.mu.Unlock()
		ctrl.Cancel(ctx) //nolint:errcheck // query already cancelled
		return
	}
	q.subqueries = append(q.subqueries, ctrl)
	q.mu.Unlock()
}
