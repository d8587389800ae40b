package proxy

import (
	"context"
	"fmt"

	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/transport"
	"github.com/arin-halvorsen/scoped/wire"
)

// RegistryProxy is a transport-agnostic stub for a (possibly remote)
// registry: Find/List return ScopeProxy values freshly dialed against
// whatever endpoint the registry reports for each scope.
type RegistryProxy struct {
	conn      transport.Conn
	transport transport.Transport
}

// NewRegistryProxy wraps conn (already dialed to the registry's endpoint)
// and t, used to dial the endpoints the registry hands back for
// individual scopes.
func NewRegistryProxy(conn transport.Conn, t transport.Transport) *RegistryProxy {
	return &RegistryProxy{conn: conn, transport: t}
}

// Find resolves scopeID to a freshly dialed ScopeProxy.
func (p *RegistryProxy) Find(ctx context.Context, scopeID string) (*ScopeProxy, error) {
	if scopeID == "" {
		return nil, fmt.Errorf("proxy: find: %w: empty scope id", errs.ErrInvalidArgument)
	}

	req := wire.Mapping([]string{"scope_id"}, map[string]wire.Variant{"scope_id": wire.String(scopeID)})
	resp, err := p.conn.Call(ctx, "find", req)
	if err != nil {
		return nil, fmt.Errorf("proxy: find %q: %w: %v", scopeID, errs.ErrMiddleware, err)
	}

	m, _, ok := resp.Mapping()
	if !ok {
		return nil, fmt.Errorf("proxy: find %q: %w: malformed response", scopeID, errs.ErrMiddleware)
	}
	if found, _ := m["found"].Bool(); !found {
		return nil, fmt.Errorf("proxy: find %q: %w", scopeID, errs.ErrNotFound)
	}

	ep, err := transport.ParseEndpoint(stringField(m, "endpoint"))
	if err != nil {
		return nil, fmt.Errorf("proxy: find %q: %w", scopeID, err)
	}
	conn, err := p.transport.Dial(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("proxy: find %q: dial %s: %w", scopeID, ep, errs.ErrMiddleware)
	}
	return NewScopeProxy(scopeID, ep, conn), nil
}

// List returns a freshly dialed ScopeProxy for every scope the registry
// currently reports. Entries whose endpoint cannot be parsed or dialed
// are silently omitted, the same tolerance the registry itself applies to
// a remote peer that's gone stale.
func (p *RegistryProxy) List(ctx context.Context) (map[string]*ScopeProxy, error) {
	resp, err := p.conn.Call(ctx, "list", wire.Null())
	if err != nil {
		return nil, fmt.Errorf("proxy: list: %w: %v", errs.ErrMiddleware, err)
	}

	m, keys, ok := resp.Mapping()
	if !ok {
		return nil, fmt.Errorf("proxy: list: %w: malformed response", errs.ErrMiddleware)
	}

	out := make(map[string]*ScopeProxy, len(keys))
	for _, id := range keys {
		entry, _, ok := m[id].Mapping()
		if !ok {
			continue
		}
		ep, err := transport.ParseEndpoint(stringField(entry, "endpoint"))
		if err != nil {
			continue
		}
		conn, err := p.transport.Dial(ctx, ep)
		if err != nil {
			continue
		}
		out[id] = NewScopeProxy(id, ep, conn)
	}
	return out, nil
}
