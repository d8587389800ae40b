package registry_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/registry"
	"github.com/arin-halvorsen/scoped/transport/inproc"
	"github.com/arin-halvorsen/scoped/wire"
)

func TestGetMetadataUnknownScopeNotFound(t *testing.T) {
	r := registry.New("reg", inproc.NewNetwork(), "runtime.json", nil)
	if _, err := r.GetMetadata("missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetMetadataEmptyIDInvalidArgument(t *testing.T) {
	r := registry.New("reg", inproc.NewNetwork(), "runtime.json", nil)
	if _, err := r.GetMetadata(""); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestAddAndRemoveLocalScope(t *testing.T) {
	r := registry.New("reg", inproc.NewNetwork(), "runtime.json", nil)
	meta := registry.ScopeMetadata{ScopeID: "files", DisplayName: "Files"}
	if err := r.AddLocalScope(meta, []string{"/bin/true"}, "scope.json"); err != nil {
		t.Fatal(err)
	}

	got, err := r.GetMetadata("files")
	if err != nil {
		t.Fatal(err)
	}
	if got.DisplayName != "Files" {
		t.Fatalf("got = %+v", got)
	}

	list := r.List()
	if _, ok := list["files"]; !ok {
		t.Fatalf("list = %v, want files entry", list)
	}

	if !r.RemoveLocalScope("files") {
		t.Fatal("RemoveLocalScope returned false for existing scope")
	}
	if r.RemoveLocalScope("files") {
		t.Fatal("RemoveLocalScope returned true for already-removed scope")
	}
	if _, err := r.GetMetadata("files"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after removal", err)
	}
}

func TestAddLocalScopeRejectsInvalidID(t *testing.T) {
	r := registry.New("reg", inproc.NewNetwork(), "runtime.json", nil)
	cases := []string{"", "has/slash"}
	for _, id := range cases {
		err := r.AddLocalScope(registry.ScopeMetadata{ScopeID: id}, []string{"/bin/true"}, "scope.json")
		if !errors.Is(err, errs.ErrInvalidArgument) {
			t.Fatalf("id %q: err = %v, want ErrInvalidArgument", id, err)
		}
	}
}

func TestLocateUnknownScopeNotFound(t *testing.T) {
	r := registry.New("reg", inproc.NewNetwork(), "runtime.json", nil)
	if _, err := r.Locate(context.Background(), "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLocateEmptyIDInvalidArgument(t *testing.T) {
	r := registry.New("reg", inproc.NewNetwork(), "runtime.json", nil)
	if _, err := r.Locate(context.Background(), ""); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestLocateDuringShutdownLogicError(t *testing.T) {
	r := registry.New("reg", inproc.NewNetwork(), "runtime.json", nil)
	meta := registry.ScopeMetadata{ScopeID: "files"}
	if err := r.AddLocalScope(meta, []string{"/bin/true"}, "scope.json"); err != nil {
		t.Fatal(err)
	}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Locate(context.Background(), "files"); !errors.Is(err, errs.ErrLogicError) {
		t.Fatalf("err = %v, want ErrLogicError", err)
	}
}

func TestShutdownWithNoRunningProcesses(t *testing.T) {
	r := registry.New("reg", inproc.NewNetwork(), "runtime.json", nil)
	if err := r.AddLocalScope(registry.ScopeMetadata{ScopeID: "files"}, []string{"/bin/true"}, "scope.json"); err != nil {
		t.Fatal(err)
	}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestCallReadyForUnregisteredScopeSucceeds(t *testing.T) {
	net := inproc.NewNetwork()
	r := registry.New("reg", net, "runtime.json", nil)

	req := wire.Mapping(
		[]string{"scope_id", "endpoint"},
		map[string]wire.Variant{
			"scope_id": wire.String("files"),
			"endpoint": wire.String("inproc://files"),
		},
	)
	if _, err := r.Call(context.Background(), "ready", req); err != nil {
		t.Fatal(err)
	}
}

func TestCallFindUnknownScope(t *testing.T) {
	r := registry.New("reg", inproc.NewNetwork(), "runtime.json", nil)
	req := wire.Mapping([]string{"scope_id"}, map[string]wire.Variant{"scope_id": wire.String("missing")})
	resp, err := r.Call(context.Background(), "find", req)
	if err != nil {
		t.Fatal(err)
	}
	m, _, _ := resp.Mapping()
	if found, _ := m["found"].Bool(); found {
		t.Fatal("found = true, want false")
	}
}

func TestCallUnknownMethodInvalidArgument(t *testing.T) {
	r := registry.New("reg", inproc.NewNetwork(), "runtime.json", nil)
	if _, err := r.Call(context.Background(), "bogus", wire.Null()); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestStreamUnsupported(t *testing.T) {
	r := registry.New("reg", inproc.NewNetwork(), "runtime.json", nil)
	err := r.Stream(context.Background(), "anything", wire.Null(), func(wire.Variant) error { return nil })
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

// moduleRoot returns the parent of the package directory, which must hold
// go.mod; it does not search further up.
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

// buildTestBinary compiles a testdata service and returns the path to the
// resulting binary. srcDir is relative to the module root.
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

// TestLocateSpawnTimeout spawns a real child process (the echo test fixture,
// which never calls back with "ready") and checks that Locate gives up with
// ErrResourceError once the ready timeout elapses, rather than hanging.
func TestLocateSpawnTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a real child process")
	}
	bin := buildTestBinary(t, "testdata/services/echo")

	r := registry.New("reg", inproc.NewNetwork(), "runtime.json", nil)
	meta := registry.ScopeMetadata{ScopeID: "echo"}
	if err := r.AddLocalScope(meta, []string{bin}, "scope.json"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := r.Locate(ctx, "echo")
	if !errors.Is(err, errs.ErrResourceError) {
		t.Fatalf("err = %v, want ErrResourceError", err)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Fatalf("Locate took %v, want well under the ready timeout ceiling", elapsed)
	}
}
