package reaper_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/reaper"
)

func TestNewRejectsInvalidIntervals(t *testing.T) {
	tests := []struct {
		name           string
		reapInterval   time.Duration
		expiryInterval time.Duration
	}{
		{"zero reap", 0, time.Second},
		{"zero expiry", time.Second, 0},
		{"negative", -time.Second, time.Second},
		{"reap greater than expiry", 2 * time.Second, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reaper.New(tt.reapInterval, tt.expiryInterval, reaper.NoCallbackOnDestroy)
			if !errors.Is(err, errs.ErrInvalidArgument) {
				t.Fatalf("got %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestAddRejectsNilCallback(t *testing.T) {
	r, err := reaper.New(10*time.Millisecond, 20*time.Millisecond, reaper.NoCallbackOnDestroy)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	_, err = r.Add(nil)
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestDestroyPreventsCallback(t *testing.T) {
	r, err := reaper.New(5*time.Millisecond, 20*time.Millisecond, reaper.NoCallbackOnDestroy)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	var fired atomic.Bool
	h, err := r.Add(func() { fired.Store(true) })
	if err != nil {
		t.Fatal(err)
	}
	h.Destroy()
	h.Destroy() // idempotent

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Fatal("callback fired after Destroy")
	}
	if r.Size() != 0 {
		t.Fatalf("size = %d, want 0", r.Size())
	}
}

func TestExpiryFiresExactlyOnce(t *testing.T) {
	r, err := reaper.New(5*time.Millisecond, 15*time.Millisecond, reaper.NoCallbackOnDestroy)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	var count atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	_, err = r.Add(func() {
		count.Add(1)
		wg.Done()
	})
	if err != nil {
		t.Fatal(err)
	}

	waitOrTimeout(t, &wg, time.Second)
	time.Sleep(30 * time.Millisecond) // make sure it doesn't fire again
	if got := count.Load(); got != 1 {
		t.Fatalf("callback fired %d times, want 1", got)
	}
}

func TestRefreshPreventsExpiry(t *testing.T) {
	r, err := reaper.New(5*time.Millisecond, 20*time.Millisecond, reaper.NoCallbackOnDestroy)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	var fired atomic.Bool
	h, err := r.Add(func() { fired.Store(true) })
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(80 * time.Millisecond)
	for time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		h.Refresh()
	}
	if fired.Load() {
		t.Fatal("callback fired despite continual refresh")
	}
}

func TestShutdownNoCallbackOnDestroyDiscards(t *testing.T) {
	r, err := reaper.New(time.Hour, time.Hour, reaper.NoCallbackOnDestroy)
	if err != nil {
		t.Fatal(err)
	}

	var fired atomic.Bool
	_, err = r.Add(func() { fired.Store(true) })
	if err != nil {
		t.Fatal(err)
	}

	r.Shutdown()
	if fired.Load() {
		t.Fatal("NoCallbackOnDestroy invoked callback at shutdown")
	}
}

func TestShutdownCallbackOnDestroyInvokes(t *testing.T) {
	r, err := reaper.New(time.Hour, time.Hour, reaper.CallbackOnDestroy)
	if err != nil {
		t.Fatal(err)
	}

	var fired atomic.Bool
	_, err = r.Add(func() { fired.Store(true) })
	if err != nil {
		t.Fatal(err)
	}

	r.Shutdown()
	if !fired.Load() {
		t.Fatal("CallbackOnDestroy did not invoke surviving callback at shutdown")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	r, err := reaper.New(time.Millisecond, time.Millisecond, reaper.NoCallbackOnDestroy)
	if err != nil {
		t.Fatal(err)
	}
	r.Shutdown()
	r.Shutdown() // must not panic or hang
}

func TestAddAfterShutdownFails(t *testing.T) {
	r, err := reaper.New(time.Millisecond, time.Millisecond, reaper.NoCallbackOnDestroy)
	if err != nil {
		t.Fatal(err)
	}
	r.Shutdown()

	_, err = r.Add(func() {})
	if !errors.Is(err, errs.ErrLogicError) {
		t.Fatalf("got %v, want ErrLogicError", err)
	}
}

func TestZeroItemsNeverWakesSpuriously(t *testing.T) {
	r, err := reaper.New(2*time.Millisecond, 2*time.Millisecond, reaper.NoCallbackOnDestroy)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	// With no items the worker should simply park; wait a while and add
	// then confirm the single item still reaps in roughly one interval,
	// not immediately, proving the worker wasn't busy-spinning in a way
	// that corrupts list bookkeeping.
	time.Sleep(20 * time.Millisecond)
	if r.Size() != 0 {
		t.Fatalf("size = %d, want 0", r.Size())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	start := time.Now()
	_, err = r.Add(func() { wg.Done() })
	if err != nil {
		t.Fatal(err)
	}
	waitOrTimeout(t, &wg, time.Second)
	if elapsed := time.Since(start); elapsed < 2*time.Millisecond {
		t.Fatalf("expired suspiciously fast (%v), worker may have been spinning", elapsed)
	}
}

// waitOrTimeout fails the test if wg is not done within d.
func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for callback")
	}
}
