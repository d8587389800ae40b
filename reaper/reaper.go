// Package reaper implements a single-threaded, LRU-ordered expiration
// engine shared by many callers. It is used throughout the scoped runtime
// to garbage-collect abandoned queries and stale replies under bounded
// resource usage (see reply.Reply's dead-consumer detection).
//
// The design mirrors the teacher's IdleTimer (single countdown, explicit
// EnvironmentCreated/EnvironmentDestroyed bookkeeping) generalised to many
// independently-refreshed items ordered by recency, the way an LRU cache
// intrusively threads its entries through a doubly-linked list rather than
// re-sorting on every touch.
package reaper

import (
	"fmt"
	"sync"
	"time"

	"github.com/arin-halvorsen/scoped/errs"
)

// Policy controls what happens to callbacks still registered when the
// reaper is shut down.
type Policy int

const (
	// NoCallbackOnDestroy discards any callback still registered at
	// shutdown without invoking it.
	NoCallbackOnDestroy Policy = iota
	// CallbackOnDestroy invokes every surviving callback once, during
	// shutdown, as if it had just expired.
	CallbackOnDestroy
)

// item is one entry in the intrusive doubly-linked list, ordered
// most-recently-refreshed-first (head) to oldest (tail).
type item struct {
	callback  func()
	timestamp time.Time
	prev, next *item
	destroyed bool
}

// Handle is the caller-visible handle to a registered item. It holds a
// direct reference to the owning Reaper; because the Reaper's list only
// ever holds *item (never *Handle), there is no reference cycle keeping
// either object alive artificially — the relationship is "weak" in the
// sense the design notes describe (a Handle outliving its Reaper finds
// reaper.closed set, so Refresh becomes a no-op; Destroy still just
// unlinks the item and never fires its callback), not in the sense of
// needing runtime weak pointers.
type Handle struct {
	r  *Reaper
	it *item
}

// Reaper is a single-threaded, LRU-ordered expiration engine.
type Reaper struct {
	mu sync.Mutex

	reapInterval   time.Duration
	expiryInterval time.Duration
	policy         Policy

	head, tail *item
	size       int

	closed   bool
	shutdown chan struct{}
	wake     chan struct{} // non-blocking nudge to the worker
	wg       sync.WaitGroup
}

// New creates a Reaper with the given reap interval (how often the worker
// wakes to check for expired items) and expiry interval (how long an item
// may go unrefreshed before it is reaped). Both must be positive and
// reapInterval must not exceed expiryInterval.
func New(reapInterval, expiryInterval time.Duration, policy Policy) (*Reaper, error) {
	if reapInterval <= 0 || expiryInterval <= 0 {
		return nil, fmt.Errorf("reaper: new: %w: intervals must be positive", errs.ErrInvalidArgument)
	}
	if reapInterval > expiryInterval {
		return nil, fmt.Errorf("reaper: new: %w: reap interval must not exceed expiry interval", errs.ErrInvalidArgument)
	}

	r := &Reaper{
		reapInterval:   reapInterval,
		expiryInterval: expiryInterval,
		policy:         policy,
		shutdown:       make(chan struct{}),
		wake:           make(chan struct{}, 1),
	}
	r.wg.Add(1)
	go r.run()

	return r, nil
}

// Add registers a callback with the reaper and returns a Handle for
// refreshing or destroying it. The item starts at the head of the list
// with the current timestamp, as if just refreshed.
func (r *Reaper) Add(callback func()) (*Handle, error) {
	if callback == nil {
		return nil, fmt.Errorf("reaper: add: %w: nil callback", errs.ErrInvalidArgument)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("reaper: add: %w: reaper is shutting down", errs.ErrLogicError)
	}

	it := &item{callback: callback, timestamp: time.Now()}
	r.pushFront(it)
	r.mu.Unlock()

	r.nudge()

	return &Handle{r: r, it: it}, nil
}

// Size returns the number of live (non-destroyed) items.
func (r *Reaper) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Refresh re-links the item at the head of the list with a fresh
// timestamp. No-op if the handle was destroyed or the reaper torn down.
func (h *Handle) Refresh() {
	r := h.r
	r.mu.Lock()
	if r.closed || h.it.destroyed {
		r.mu.Unlock()
		return
	}
	r.unlink(h.it)
	h.it.timestamp = time.Now()
	r.pushFront(h.it)
	r.mu.Unlock()

	r.nudge()
}

// Destroy unlinks the item without invoking its callback. Idempotent.
func (h *Handle) Destroy() {
	r := h.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if h.it.destroyed {
		return
	}
	r.unlink(h.it)
	h.it.destroyed = true
}

// Shutdown wakes the worker, joins it, then — per the configured policy —
// either invokes all surviving callbacks or discards them. Safe to call
// more than once; subsequent calls are no-ops.
func (r *Reaper) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.shutdown)
	r.mu.Unlock()

	r.wg.Wait()

	if r.policy != CallbackOnDestroy {
		return
	}

	r.mu.Lock()
	var survivors []*item
	for it := r.head; it != nil; it = it.next {
		survivors = append(survivors, it)
	}
	r.head, r.tail = nil, nil
	r.size = 0
	r.mu.Unlock()

	for _, it := range survivors {
		invokeSafely(it.callback)
	}
}

// nudge wakes the worker without blocking if it is currently sleeping.
func (r *Reaper) nudge() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// run is the worker goroutine. It sleeps according to the wait policy in
// the component design: indefinitely if the list is empty, otherwise for
// the larger of the time left until the tail's expiry deadline and the
// reap interval (or until an add/refresh nudge or shutdown wakes it).
func (r *Reaper) run() {
	defer r.wg.Done()

	for {
		r.mu.Lock()
		if r.tail == nil {
			r.mu.Unlock()
			select {
			case <-r.shutdown:
				return
			case <-r.wake:
				continue
			}
		}

		age := time.Since(r.tail.timestamp)
		sleep := r.expiryInterval - age
		if sleep < r.reapInterval {
			sleep = r.reapInterval
		}
		r.mu.Unlock()

		timer := time.NewTimer(sleep)
		select {
		case <-r.shutdown:
			timer.Stop()
			return
		case <-r.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		r.reapExpired()
	}
}

// reapExpired collects every item at the tail whose age has reached the
// expiry interval, detaches them under the lock, then invokes their
// callbacks outside the lock so callbacks may safely call back into the
// reaper (e.g. Add a replacement item) without deadlocking.
func (r *Reaper) reapExpired() {
	r.mu.Lock()
	var zombies []*item
	now := time.Now()
	for it := r.tail; it != nil; {
		prev := it.prev
		if now.Sub(it.timestamp) < r.expiryInterval {
			break
		}
		r.unlink(it)
		it.destroyed = true
		zombies = append(zombies, it)
		it = prev
	}
	r.mu.Unlock()

	for _, it := range zombies {
		invokeSafely(it.callback)
	}
}

// pushFront links it at the head of the list. Caller must hold r.mu.
func (r *Reaper) pushFront(it *item) {
	it.prev = nil
	it.next = r.head
	if r.head != nil {
		r.head.prev = it
	}
	r.head = it
	if r.tail == nil {
		r.tail = it
	}
	r.size++
}

// unlink detaches it from the list. Caller must hold r.mu. Safe to call
// on an already-unlinked item (no-op via the destroyed flag at call
// sites), but callers here always check destroyed first.
func (r *Reaper) unlink(it *item) {
	if it.prev != nil {
		it.prev.next = it.next
	} else if r.head == it {
		r.head = it.next
	}
	if it.next != nil {
		it.next.prev = it.prev
	} else if r.tail == it {
		r.tail = it.prev
	}
	it.prev, it.next = nil, nil
	r.size--
}

// invokeSafely runs a callback, recovering and discarding any panic so a
// misbehaving consumer can never bring down the reaper's worker goroutine.
func invokeSafely(cb func()) {
	defer func() { recover() }() //nolint:errcheck // callbacks must never escape as panics
	cb()
}
