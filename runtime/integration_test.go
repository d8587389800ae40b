package runtime_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/proxy"
	"github.com/arin-halvorsen/scoped/registry"
	"github.com/arin-halvorsen/scoped/reply"
	"github.com/arin-halvorsen/scoped/runtime"
	"github.com/arin-halvorsen/scoped/scopeuri"
	"github.com/arin-halvorsen/scoped/transport"
	"github.com/arin-halvorsen/scoped/wire"
)

// scopeHandler is a minimal transport.Handler that drives a real
// reply.Reply for each "search" stream, the same shape a spawned scope
// process would expose over the wire.
type scopeHandler struct {
	duplicateCat bool
	holdAfterCat chan struct{} // if non-nil, blocks after pushing the category
	cancelled    chan struct{}
}

func (s *scopeHandler) Call(_ context.Context, method string, req wire.Variant) (wire.Variant, error) {
	if method == "cancel" && s.cancelled != nil {
		close(s.cancelled)
	}
	return wire.Null(), nil
}

func (s *scopeHandler) Stream(ctx context.Context, method string, _ wire.Variant, send func(wire.Variant) error) error {
	if method != "search" {
		return nil
	}
	rep, err := reply.New(nil, proxy.WireReceiver{Send: send})
	if err != nil {
		return err
	}
	defer rep.Close()
	rep.PushCategory(reply.Category{ID: "files", Title: "Files"})
	if s.duplicateCat {
		rep.PushCategory(reply.Category{ID: "files", Title: "Files again"})
		return nil
	}
	if s.holdAfterCat != nil {
		<-s.holdAfterCat
		return nil
	}
	rep.PushResult(reply.Result{URI: "file:///a", CategoryID: "files"})
	return nil
}

type capturingReceiver struct {
	mu         sync.Mutex
	categories []reply.Category
	finished   bool
	reason     reply.Reason
	done       chan struct{}
}

func newCapturingReceiver() *capturingReceiver { return &capturingReceiver{done: make(chan struct{})} }

func (c *capturingReceiver) OnCategory(cat reply.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories = append(c.categories, cat)
}
func (c *capturingReceiver) OnResult(reply.Result)           {}
func (c *capturingReceiver) OnAnnotation(wire.Variant)       {}
func (c *capturingReceiver) OnFilters(reply.FilterState)     {}
func (c *capturingReceiver) OnPreviewData(wire.Variant)      {}
func (c *capturingReceiver) OnWidgets(wire.Variant)          {}
func (c *capturingReceiver) OnFinish(reason reply.Reason, _ string) {
	c.mu.Lock()
	c.finished = true
	c.reason = reason
	c.mu.Unlock()
	close(c.done)
}

func (c *capturingReceiver) waitFinish(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnFinish")
	}
}

func mustEndpoint(t *testing.T, s string) transport.Endpoint {
	t.Helper()
	ep, err := transport.ParseEndpoint(s)
	if err != nil {
		t.Fatal(err)
	}
	return ep
}

func TestBasicQueryEndToEnd(t *testing.T) {
	rt, err := runtime.Create("test-registry", "")
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	ep := mustEndpoint(t, "inproc://files")
	closer, err := rt.Transport().Bind(ep, &scopeHandler{})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	conn, err := rt.Transport().Dial(context.Background(), ep)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	sp := proxy.NewScopeProxy("files", ep, conn)
	recv := newCapturingReceiver()
	ctrl, err := sp.CreateQuery(context.Background(), "budget", recv)
	if err != nil {
		t.Fatal(err)
	}
	defer ctrl.Destroy()

	recv.waitFinish(t)
	if recv.reason != reply.ReasonFinished {
		t.Fatalf("reason = %v, want ReasonFinished", recv.reason)
	}
	if len(recv.categories) != 1 {
		t.Fatalf("categories = %v, want 1", recv.categories)
	}
}

func TestDuplicateCategoryFinishesWithError(t *testing.T) {
	rt, err := runtime.Create("test-registry", "")
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	ep := mustEndpoint(t, "inproc://files")
	closer, err := rt.Transport().Bind(ep, &scopeHandler{duplicateCat: true})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	conn, err := rt.Transport().Dial(context.Background(), ep)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	sp := proxy.NewScopeProxy("files", ep, conn)
	recv := newCapturingReceiver()
	ctrl, err := sp.CreateQuery(context.Background(), "budget", recv)
	if err != nil {
		t.Fatal(err)
	}
	defer ctrl.Destroy()

	recv.waitFinish(t)
	if recv.reason != reply.ReasonError {
		t.Fatalf("reason = %v, want ReasonError", recv.reason)
	}
}

func TestCancellationRaceEndToEnd(t *testing.T) {
	rt, err := runtime.Create("test-registry", "")
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	ep := mustEndpoint(t, "inproc://files")
	srv := &scopeHandler{holdAfterCat: make(chan struct{}), cancelled: make(chan struct{})}
	closer, err := rt.Transport().Bind(ep, srv)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	conn, err := rt.Transport().Dial(context.Background(), ep)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	sp := proxy.NewScopeProxy("files", ep, conn)
	recv := newCapturingReceiver()
	ctrl, err := sp.CreateQuery(context.Background(), "budget", recv)
	if err != nil {
		t.Fatal(err)
	}
	defer ctrl.Destroy()

	if err := ctrl.Cancel(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-srv.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed cancel")
	}
	close(srv.holdAfterCat)
}

func TestDeadConsumerReapedByRuntime(t *testing.T) {
	t.Setenv("SCOPED_REAP_INTERVAL", "10ms")
	t.Setenv("SCOPED_REAP_EXPIRY", "50ms")
	rt, err := runtime.Create("test-registry", "")
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	if rt.Reaper() == nil {
		t.Fatal("expected a reaper by default")
	}

	recv := newCapturingReceiver()
	rep, err := reply.New(rt.Reaper(), recv)
	if err != nil {
		t.Fatal(err)
	}
	rep.PushCategory(reply.Category{ID: "files"})

	recv.waitFinish(t)
	if recv.reason != reply.ReasonError {
		t.Fatalf("reason = %v, want ReasonError (reaped)", recv.reason)
	}
}

func TestScopeURIRoundTripEndToEnd(t *testing.T) {
	q := scopeuri.CannedQuery{ScopeID: "files", Query: "budget report", Department: "finance"}
	got, err := scopeuri.FromURI(scopeuri.ToURI(q))
	if err != nil {
		t.Fatal(err)
	}
	if got != q {
		t.Fatalf("round trip = %+v, want %+v", got, q)
	}
}

func moduleRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	root := filepath.Dir(wd)
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		t.Fatalf("could not find go.mod at %s: %v", root, err)
	}
	return root
}

func buildTestBinary(t *testing.T, srcDir string) string {
	t.Helper()
	root := moduleRoot(t)
	absSrc := filepath.Join(root, srcDir)
	bin := filepath.Join(t.TempDir(), filepath.Base(srcDir))
	cmd := exec.Command("go", "build", "-o", bin, absSrc)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("build %s: %v", srcDir, err)
	}
	return bin
}

// TestRegistrySpawnTimeoutEndToEnd spawns the echo testdata fixture (which
// never calls back with "ready") through a real Runtime and checks that
// Locate gives up with ErrResourceError.
func TestRegistrySpawnTimeoutEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a real child process")
	}
	bin := buildTestBinary(t, "testdata/services/echo")

	rt, err := runtime.Create("test-registry", "")
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	if err := rt.Registry().AddLocalScope(registry.ScopeMetadata{ScopeID: "echo"}, []string{bin}, "scope.json"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rt.Registry().Locate(ctx, "echo"); !errors.Is(err, errs.ErrResourceError) {
		t.Fatalf("err = %v, want ErrResourceError", err)
	}
}
