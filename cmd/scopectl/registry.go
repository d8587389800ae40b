package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/arin-halvorsen/scoped/proxy"
	"github.com/arin-halvorsen/scoped/transport"
	"github.com/arin-halvorsen/scoped/transport/grpctransport"
	"github.com/arin-halvorsen/scoped/transport/inproc"
)

// dialTimeout bounds how long a subcommand waits to reach the registry
// before giving up.
const dialTimeout = 5 * time.Second

// registryFlags are the connection flags every subcommand that talks to a
// running registry accepts.
type registryFlags struct {
	endpoint   string
	middleware string
}

func (f *registryFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.endpoint, "registry", "unix:///tmp/scoped/registry.sock", "registry endpoint")
	fs.StringVar(&f.middleware, "middleware", "grpc", "transport middleware (grpc or inproc)")
}

func (f *registryFlags) dial(ctx context.Context) (*proxy.RegistryProxy, error) {
	ep, err := transport.ParseEndpoint(f.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse registry endpoint %q: %w", f.endpoint, err)
	}

	var t transport.Transport
	switch f.middleware {
	case "grpc":
		t = grpctransport.Transport{}
	case "inproc":
		t = inproc.NewNetwork()
	default:
		return nil, fmt.Errorf("unknown middleware %q", f.middleware)
	}

	conn, err := t.Dial(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("dial registry at %s: %w", ep, err)
	}
	return proxy.NewRegistryProxy(conn, t), nil
}
