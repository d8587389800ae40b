// Package aggregator helps an aggregating scope fan a single query out to
// several child scopes and merge their replies into its own, registering
// each child's control proxy so a cancellation of the parent propagates to
// every child exactly once — the reason query objects carry subquery
// tracking in the first place.
package aggregator

import (
	"context"
	"sync"

	"github.com/arin-halvorsen/scoped/proxy"
	"github.com/arin-halvorsen/scoped/query"
	"github.com/arin-halvorsen/scoped/reply"
	"github.com/arin-halvorsen/scoped/wire"
)

// FanOut dispatches queryText to every scope in scopeIDs concurrently via
// rp, forwarding each child's categories and results into rep (category
// ids are namespaced per scope to avoid collisions between children) and
// registering each child's query-control proxy on parentQuery so Cancel
// reaches every in-flight child. Blocks until every child has finished or
// could not be reached; a child that fails to resolve or start is skipped.
func FanOut(ctx context.Context, rp *proxy.RegistryProxy, scopeIDs []string, queryText string, parentQuery *query.Query, rep *reply.Reply) {
	var wg sync.WaitGroup
	for _, scopeID := range scopeIDs {
		wg.Add(1)
		go func(scopeID string) {
			defer wg.Done()
			fanOutOne(ctx, rp, scopeID, queryText, parentQuery, rep)
		}(scopeID)
	}
	wg.Wait()
}

func fanOutOne(ctx context.Context, rp *proxy.RegistryProxy, scopeID, queryText string, parentQuery *query.Query, rep *reply.Reply) {
	sp, err := rp.Find(ctx, scopeID)
	if err != nil {
		return
	}

	recv := &forwardReceiver{rep: rep, prefix: scopeID + ":", done: make(chan struct{})}
	ctrl, err := sp.CreateQuery(ctx, queryText, recv)
	if err != nil {
		return
	}
	defer ctrl.Destroy()

	parentQuery.RegisterSubquery(ctx, ctrl)
	<-recv.done
}

// forwardReceiver is a reply.Receiver that re-pushes every callback onto a
// parent reply, namespacing category ids so two children can never collide
// on the same reply.
type forwardReceiver struct {
	rep    *reply.Reply
	prefix string
	done   chan struct{}
}

func (f *forwardReceiver) OnCategory(cat reply.Category) {
	cat.ID = f.prefix + cat.ID
	f.rep.PushCategory(cat)
}

func (f *forwardReceiver) OnResult(res reply.Result) {
	res.CategoryID = f.prefix + res.CategoryID
	f.rep.PushResult(res)
}

func (f *forwardReceiver) OnAnnotation(v wire.Variant)   { f.rep.PushAnnotation(v) }
func (f *forwardReceiver) OnFilters(fs reply.FilterState) { f.rep.PushFilters(fs) }
func (f *forwardReceiver) OnPreviewData(v wire.Variant)  { f.rep.PushPreviewData(v) }
func (f *forwardReceiver) OnWidgets(v wire.Variant)      { f.rep.PushWidgets(v) }

func (f *forwardReceiver) OnFinish(reply.Reason, string) {
	close(f.done)
}
