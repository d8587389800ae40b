// Package reply implements the server-side reply interceptor: the layer
// that sits between the transport and the application-supplied result
// Receiver, enforcing category-registration invariants and the
// exactly-once finalisation contract.
package reply

import (
	"fmt"
	"sync"

	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/reaper"
	"github.com/arin-halvorsen/scoped/wire"
)

// Reply is the server-side object a scope's query pushes categories,
// results, and finally a terminal reason to. One instance exists per
// incoming query.
type Reply struct {
	mu sync.Mutex

	receiver   Receiver
	categories *categoryTable

	finished  bool
	cancelled bool
	reason    Reason
	message   string

	reapHandle *reaper.Handle
}

// New creates a Reply that demultiplexes pushes to receiver. If rp is
// non-nil, the reply registers a reap handle refreshed on every push; if
// the handle ever expires (no push within the reaper's configured
// interval) the reply is force-finished with ReasonError, the defence
// against a client that stopped reading described in the component
// design. rp may be nil in tests that don't need dead-consumer detection.
func New(rp *reaper.Reaper, receiver Receiver) (*Reply, error) {
	if receiver == nil {
		return nil, fmt.Errorf("reply: new: %w: nil receiver", errs.ErrInvalidArgument)
	}

	r := &Reply{
		receiver:   receiver,
		categories: newCategoryTable(),
	}

	if rp != nil {
		h, err := rp.Add(func() {
			r.finish(ReasonError, "push interval exceeded")
		})
		if err != nil {
			return nil, fmt.Errorf("reply: new: register reap handle: %w", err)
		}
		r.reapHandle = h
	}

	return r, nil
}

// PushCategory registers and delivers a category. Returns false if the
// reply is already finished/cancelled, or if a category with the same id
// was already pushed on this reply — in the latter case the reply itself
// transitions to Finished(ReasonError), matching the "duplicate category"
// end-to-end scenario.
func (r *Reply) PushCategory(cat Category) bool {
	return r.tryPush(
		func() error { return r.categories.register(cat) },
		func() { r.receiver.OnCategory(cat) },
	)
}

// PushResult delivers a categorised result. Returns false if the reply is
// already finished/cancelled, or if res.CategoryID does not name a
// category previously pushed on this reply (which also force-finishes the
// reply with ReasonError).
func (r *Reply) PushResult(res Result) bool {
	return r.tryPush(
		func() error {
			if _, ok := r.categories.lookup(res.CategoryID); !ok {
				return fmt.Errorf("reply: push result: %w: category %q not registered", errs.ErrInvalidArgument, res.CategoryID)
			}
			return nil
		},
		func() { r.receiver.OnResult(res) },
	)
}

// PushAnnotation delivers a free-form annotation variant.
func (r *Reply) PushAnnotation(v wire.Variant) bool {
	return r.tryPush(nil, func() { r.receiver.OnAnnotation(v) })
}

// PushFilters delivers the scope's filter definitions and current state.
func (r *Reply) PushFilters(fs FilterState) bool {
	return r.tryPush(nil, func() { r.receiver.OnFilters(fs) })
}

// PushPreviewData delivers preview payload data.
func (r *Reply) PushPreviewData(v wire.Variant) bool {
	return r.tryPush(nil, func() { r.receiver.OnPreviewData(v) })
}

// PushWidgets delivers widget description data.
func (r *Reply) PushWidgets(v wire.Variant) bool {
	return r.tryPush(nil, func() { r.receiver.OnWidgets(v) })
}

// Finish transitions the reply to its terminal state with the given
// reason and message. Idempotent: only the first call has any effect;
// subsequent calls return false.
func (r *Reply) Finish(reason Reason, message string) bool {
	return r.finish(reason, message)
}

// Error transitions the reply to Finished(ReasonError) with the best
// -effort message extracted from err. Idempotent.
func (r *Reply) Error(err error) bool {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return r.finish(ReasonError, msg)
}

// Cancel marks the reply cancelled: subsequent pushes are rejected and the
// reply finishes with ReasonCancelled. Idempotent.
func (r *Reply) Cancel() bool {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
	return r.finish(ReasonCancelled, "")
}

// Close synthesises Finish(ReasonFinished, "") if the reply has not
// already reached a terminal state. Callers are expected to call Close
// explicitly when a query's Run returns normally — this is the "no
// destructor" substitute described in the design notes; there is no
// implicit finalisation here beyond what runtime wires up as a logging
// safety net.
func (r *Reply) Close() {
	r.finish(ReasonFinished, "")
}

// Finished reports whether the reply has reached its terminal state.
func (r *Reply) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// tryPush is the shared push implementation. validate runs under the
// reply's lock (so it may consult shared state like the category table)
// and, if it returns a non-nil error, force-finishes the reply with that
// error before returning false — matching the "errors raised inside a
// reply push are absorbed" propagation policy. deliver also runs with the
// lock held: the reply demultiplexes onto the receiver single-threaded, so
// two concurrent pushers (e.g. an aggregator's per-child goroutines sharing
// one parent reply) can never interleave inside the receiver and the
// "pushes appear in the order issued" invariant holds across callers, not
// just within one. validate may be nil for pushes with no invariant to
// check.
func (r *Reply) tryPush(validate func() error, deliver func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished || r.cancelled {
		return false
	}

	if validate != nil {
		if err := validate(); err != nil {
			r.finishLocked(ReasonError, err.Error())
			return false
		}
	}

	if r.reapHandle != nil {
		r.reapHandle.Refresh()
	}
	deliver()

	return true
}

// finish is the single path to the terminal state, reachable from outside
// tryPush (Finish/Error/Cancel/Close). Taking the lock here means it can
// never run concurrently with a push's deliver() — either a push is still
// holding the lock, in which case finish blocks until it's done, or the
// reply is idle and finish proceeds immediately. Either way, OnFinish is
// always the last callback the receiver observes.
func (r *Reply) finish(reason Reason, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishLocked(reason, message)
}

// finishLocked is finish's body, callable both from finish (lock not yet
// held by this call chain) and from tryPush (lock already held by the
// caller). r.mu must be held by the caller in both cases.
func (r *Reply) finishLocked(reason Reason, message string) bool {
	if r.finished {
		return false
	}
	r.finished = true
	r.reason = reason
	r.message = message

	if r.reapHandle != nil {
		r.reapHandle.Destroy()
	}
	r.receiver.OnFinish(reason, message)
	return true
}
