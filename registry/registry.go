// Package registry implements the authoritative in-memory catalog of
// locally installed scopes, lazily spawning their worker processes on
// demand and tracking each one's lifecycle state. Package proxy's
// RegistryProxy talks to a Registry as a transport.Handler over "find",
// "list", and the bootstrap "ready" RPC a spawned scope process calls to
// announce its listening endpoint.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/proxy"
	"github.com/arin-halvorsen/scoped/transport"
	"github.com/arin-halvorsen/scoped/wire"
)

// DefaultReadyTimeout bounds how long a freshly spawned scope process has
// to announce readiness before the spawn is treated as a failure.
const DefaultReadyTimeout = 1500 * time.Millisecond

// DefaultStopGraceTimeout bounds how long Locate waits for a Stopping
// process to finish tearing down before re-spawning it.
const DefaultStopGraceTimeout = 5 * time.Second

// ScopeMetadata is the immutable-after-registration descriptor for one
// installed scope.
type ScopeMetadata struct {
	ScopeID     string
	DisplayName string
	Description string
	Icon        string
	Art         string
	SearchHint  string
	HotKey      string
}

// Registry is the scope catalog plus child-process lifecycle controller.
// One mutex protects both the metadata and process-record maps, matching
// the teacher's service.Registry shape generalised to the pair the data
// model requires metadata and process records to stay 1:1 on.
type Registry struct {
	mu sync.Mutex

	identity          string
	transportT        transport.Transport
	runtimeConfigFile string
	readyTimeout      time.Duration
	stopGraceTimeout  time.Duration

	metadata     map[string]ScopeMetadata
	processes    map[string]*scopeProcess
	remote       *RemoteRegistry
	shuttingDown bool
}

// New creates an empty Registry. runtimeConfigFile is passed as the
// second argument to every spawned scope process, per the child-process
// spawn contract. remote may be nil.
func New(identity string, t transport.Transport, runtimeConfigFile string, remote *RemoteRegistry) *Registry {
	return &Registry{
		identity:          identity,
		transportT:        t,
		runtimeConfigFile: runtimeConfigFile,
		readyTimeout:      DefaultReadyTimeout,
		stopGraceTimeout:  DefaultStopGraceTimeout,
		metadata:          make(map[string]ScopeMetadata),
		processes:         make(map[string]*scopeProcess),
		remote:            remote,
	}
}

// GetMetadata returns the metadata for scopeID: the local entry if
// present, else a fallback lookup on the remote registry if configured.
func (r *Registry) GetMetadata(scopeID string) (ScopeMetadata, error) {
	if scopeID == "" {
		return ScopeMetadata{}, fmt.Errorf("registry: get metadata: %w: empty scope id", errs.ErrInvalidArgument)
	}

	r.mu.Lock()
	meta, ok := r.metadata[scopeID]
	r.mu.Unlock()
	if ok {
		return meta, nil
	}

	if r.remote != nil {
		if meta, err := r.remote.GetMetadata(scopeID); err == nil {
			return meta, nil
		}
	}
	return ScopeMetadata{}, fmt.Errorf("registry: get metadata %q: %w", scopeID, errs.ErrNotFound)
}

// List returns the union of local and remote metadata; local entries win
// on id collision.
func (r *Registry) List() map[string]ScopeMetadata {
	r.mu.Lock()
	out := make(map[string]ScopeMetadata, len(r.metadata))
	for id, meta := range r.metadata {
		out[id] = meta
	}
	r.mu.Unlock()

	if r.remote != nil {
		for id, meta := range r.remote.List() {
			if _, exists := out[id]; !exists {
				out[id] = meta
			}
		}
	}
	return out
}

// Locate returns a scope proxy for scopeID, ensuring its worker process
// is Running: spawning it if Stopped, waiting out a Stopping process's
// teardown before re-spawning, or dialing immediately if already Running.
func (r *Registry) Locate(ctx context.Context, scopeID string) (*proxy.ScopeProxy, error) {
	if scopeID == "" {
		return nil, fmt.Errorf("registry: locate: %w: empty scope id", errs.ErrInvalidArgument)
	}

	r.mu.Lock()
	if r.shuttingDown {
		r.mu.Unlock()
		return nil, fmt.Errorf("registry: locate %q: %w: registry is shutting down", scopeID, errs.ErrLogicError)
	}
	proc, ok := r.processes[scopeID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("registry: locate %q: %w", scopeID, errs.ErrNotFound)
	}

	for {
		switch proc.state {
		case Running:
			select {
			case <-proc.done:
				// The worker exited on its own; re-spawn it.
				proc.state = Stopped
				continue
			default:
			}
			ep := proc.endpoint
			r.mu.Unlock()
			return r.dialScope(ctx, scopeID, ep)

		case Stopping:
			done := proc.done
			r.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil, fmt.Errorf("registry: locate %q: %w", scopeID, ctx.Err())
			case <-time.After(r.stopGraceTimeout):
			}
			r.mu.Lock()
			proc.state = Stopped
			continue

		case Stopped:
			proc.state = Starting
			r.mu.Unlock()
			ep, err := proc.spawn(ctx, r.runtimeConfigFile, r.readyTimeout)
			r.mu.Lock()
			if err != nil {
				proc.state = Stopped
				r.mu.Unlock()
				return nil, fmt.Errorf("registry: locate %q: %w", scopeID, err)
			}
			proc.state = Running
			r.mu.Unlock()
			return r.dialScope(ctx, scopeID, ep)

		case Starting:
			r.mu.Unlock()
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				return nil, fmt.Errorf("registry: locate %q: %w", scopeID, ctx.Err())
			}
			r.mu.Lock()
			continue
		}
	}
}

func (r *Registry) dialScope(ctx context.Context, scopeID string, ep transport.Endpoint) (*proxy.ScopeProxy, error) {
	conn, err := r.transportT.Dial(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("registry: locate %q: dial %s: %w", scopeID, ep, errs.ErrMiddleware)
	}
	return proxy.NewScopeProxy(scopeID, ep, conn), nil
}

// AddLocalScope inserts meta and a Stopped process record for it,
// replacing any existing entry with the same id. Scope ids containing
// "/" or empty are rejected.
func (r *Registry) AddLocalScope(meta ScopeMetadata, execArgv []string, scopeConfigFile string) error {
	if meta.ScopeID == "" || strings.Contains(meta.ScopeID, "/") {
		return fmt.Errorf("registry: add local scope: %w: invalid scope id %q", errs.ErrInvalidArgument, meta.ScopeID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[meta.ScopeID] = meta
	r.processes[meta.ScopeID] = newScopeProcess(execArgv, scopeConfigFile)
	return nil
}

// RemoveLocalScope removes scopeID's metadata and process record,
// reporting whether an entry was present.
func (r *Registry) RemoveLocalScope(scopeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.metadata[scopeID]
	delete(r.metadata, scopeID)
	delete(r.processes, scopeID)
	return existed
}

// Shutdown marks the registry as shutting down (failing further Locate
// calls immediately) and stops every Running or Starting process,
// waiting up to the registry's configured grace period for each.
func (r *Registry) Shutdown(_ context.Context) error {
	r.mu.Lock()
	r.shuttingDown = true
	var running []*scopeProcess
	for _, proc := range r.processes {
		if proc.state == Running || proc.state == Starting {
			proc.state = Stopping
			running = append(running, proc)
		}
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, proc := range running {
		wg.Add(1)
		go func(p *scopeProcess) {
			defer wg.Done()
			p.stop(r.stopGraceTimeout)
		}(proc)
	}
	wg.Wait()

	r.mu.Lock()
	for _, proc := range running {
		proc.state = Stopped
	}
	r.mu.Unlock()
	return nil
}

// markReady routes a spawned process's "ready" announcement to whichever
// call to Locate is waiting on it.
func (r *Registry) markReady(scopeID string, ep transport.Endpoint) {
	r.mu.Lock()
	proc, ok := r.processes[scopeID]
	r.mu.Unlock()
	if !ok {
		return
	}
	select {
	case proc.readyCh <- ep:
	default:
	}
}

// Call implements transport.Handler: "ready" lets a spawned scope process
// announce its endpoint, "find" and "list" serve proxy.RegistryProxy.
func (r *Registry) Call(ctx context.Context, method string, req wire.Variant) (wire.Variant, error) {
	switch method {
	case "ready":
		m, _, _ := req.Mapping()
		scopeID, _ := m["scope_id"].String()
		epStr, _ := m["endpoint"].String()
		ep, err := transport.ParseEndpoint(epStr)
		if err != nil {
			return wire.Null(), fmt.Errorf("registry: ready: %w", err)
		}
		r.markReady(scopeID, ep)
		return wire.Null(), nil

	case "find":
		m, _, _ := req.Mapping()
		scopeID, _ := m["scope_id"].String()
		if _, err := r.GetMetadata(scopeID); err != nil {
			return wire.Mapping([]string{"found"}, map[string]wire.Variant{"found": wire.Bool(false)}), nil
		}
		locateCtx, cancel := context.WithTimeout(ctx, r.readyTimeout+r.stopGraceTimeout)
		sp, err := r.Locate(locateCtx, scopeID)
		cancel()
		if err != nil {
			return wire.Null(), fmt.Errorf("registry: find %q: %w", scopeID, err)
		}
		return wire.Mapping(
			[]string{"found", "endpoint"},
			map[string]wire.Variant{"found": wire.Bool(true), "endpoint": wire.String(sp.Endpoint().String())},
		), nil

	case "list":
		metas := r.List()
		r.mu.Lock()
		keys := make([]string, 0, len(metas))
		values := make(map[string]wire.Variant, len(metas))
		for id := range metas {
			var ep transport.Endpoint
			if proc := r.processes[id]; proc != nil {
				ep = proc.endpoint
			}
			keys = append(keys, id)
			values[id] = wire.Mapping([]string{"endpoint"}, map[string]wire.Variant{"endpoint": wire.String(ep.String())})
		}
		r.mu.Unlock()
		return wire.Mapping(keys, values), nil

	default:
		return wire.Null(), fmt.Errorf("registry: %w: unknown method %q", errs.ErrInvalidArgument, method)
	}
}

// Stream implements transport.Handler; the registry exposes no
// server-streaming RPCs of its own.
func (r *Registry) Stream(_ context.Context, method string, _ wire.Variant, _ func(wire.Variant) error) error {
	return fmt.Errorf("registry: %w: unsupported stream method %q", errs.ErrInvalidArgument, method)
}
