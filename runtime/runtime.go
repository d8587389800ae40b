// Package runtime ties the registry, reaper, and transport binding
// together into one explicitly constructed, explicitly torn down facade.
// There is no package-level singleton: every process that wants a scoped
// runtime calls Create and gets back a value it owns.
package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/arin-halvorsen/scoped/config"
	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/reaper"
	"github.com/arin-halvorsen/scoped/registry"
	"github.com/arin-halvorsen/scoped/transport"
	"github.com/arin-halvorsen/scoped/transport/grpctransport"
	"github.com/arin-halvorsen/scoped/transport/inproc"
)

// disabledInterval matches config.RuntimeConfig's sentinel for "reaping
// disabled".
const disabledInterval = -1 * time.Second

const shutdownTimeout = 5 * time.Second

// Runtime is the process-wide facade: one reaper, one transport binding,
// one registry. Construct with Create; tear down with Close.
type Runtime struct {
	log *slog.Logger

	reap     *reaper.Reaper
	trans    transport.Transport
	endpoint transport.Endpoint
	bound    io.Closer
	reg      *registry.Registry

	mu     sync.Mutex
	closed bool
}

// Create loads configuration from configPath, builds a reaper (unless
// reaping is disabled via the -1s sentinel), selects a transport per
// Default.Middleware, and binds identity's registry on it.
func Create(identity, configPath string) (*Runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("runtime: create: %w", err)
	}

	log := slog.Default()

	var reap *reaper.Reaper
	if cfg.Reap.Expiry != disabledInterval && cfg.Reap.Interval != disabledInterval {
		reap, err = reaper.New(cfg.Reap.Interval, cfg.Reap.Expiry, reaper.CallbackOnDestroy)
		if err != nil {
			return nil, fmt.Errorf("runtime: create: %w", err)
		}
	}

	trans, err := selectTransport(cfg.Default.Middleware)
	if err != nil {
		if reap != nil {
			reap.Shutdown()
		}
		return nil, err
	}

	reg := registry.New(identity, trans, configPath, nil)

	ep, err := transport.ParseEndpoint(cfg.Default.Middleware + "://" + identity)
	if err != nil {
		if reap != nil {
			reap.Shutdown()
		}
		return nil, fmt.Errorf("runtime: create: %w", err)
	}
	bound, err := trans.Bind(ep, reg)
	if err != nil {
		if reap != nil {
			reap.Shutdown()
		}
		return nil, fmt.Errorf("runtime: create: bind registry: %w", err)
	}

	rt := &Runtime{
		log:      log,
		reap:     reap,
		trans:    trans,
		endpoint: ep,
		bound:    bound,
		reg:      reg,
	}
	goruntime.SetFinalizer(rt, finalize)
	return rt, nil
}

func selectTransport(middleware string) (transport.Transport, error) {
	switch middleware {
	case "", "inproc":
		return inproc.NewNetwork(), nil
	case "grpc":
		return grpctransport.Transport{}, nil
	default:
		return nil, fmt.Errorf("runtime: create: %w: unknown middleware %q", errs.ErrInvalidArgument, middleware)
	}
}

// Registry returns the runtime's scope registry.
func (rt *Runtime) Registry() *registry.Registry { return rt.reg }

// Transport returns the runtime's message transport, for dialing the
// registry's own endpoint or any scope it spawns.
func (rt *Runtime) Transport() transport.Transport { return rt.trans }

// Endpoint returns the endpoint the registry is bound to.
func (rt *Runtime) Endpoint() transport.Endpoint { return rt.endpoint }

// Reaper returns the runtime's shared reaper, or nil if reaping is
// disabled by configuration.
func (rt *Runtime) Reaper() *reaper.Reaper { return rt.reap }

// Close tears the runtime down in reverse order of construction: the
// transport binding, then the registry (stopping every running scope
// process), then the reaper. Idempotent.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	rt.mu.Unlock()

	goruntime.SetFinalizer(rt, nil)

	var err error
	if cerr := rt.bound.Close(); cerr != nil {
		err = fmt.Errorf("runtime: close: unbind registry: %w", cerr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := rt.reg.Shutdown(ctx); serr != nil && err == nil {
		err = fmt.Errorf("runtime: close: shutdown registry: %w", serr)
	}

	if rt.reap != nil {
		rt.reap.Shutdown()
	}
	return err
}

// finalize is the safety net described in the design notes: it only logs a
// warning that Close was never called. It is never the primary teardown
// path.
func finalize(rt *Runtime) {
	rt.mu.Lock()
	closed := rt.closed
	rt.mu.Unlock()
	if !closed {
		rt.log.Warn("runtime: finalized without Close", "endpoint", rt.endpoint.String())
	}
}
