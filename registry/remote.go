package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/arin-halvorsen/scoped/proxy"
)

const defaultRemoteCallTimeout = 2 * time.Second

// RemoteRegistry is the "one optional remote registry" the component
// design's Non-goals permit as a federation boundary: nothing more than
// a proxy.RegistryProxy over a configured transport endpoint, consulted
// by GetMetadata/List only on a local miss.
type RemoteRegistry struct {
	proxy *proxy.RegistryProxy
}

// NewRemoteRegistry wraps an already-dialed RegistryProxy.
func NewRemoteRegistry(rp *proxy.RegistryProxy) *RemoteRegistry {
	return &RemoteRegistry{proxy: rp}
}

// GetMetadata asks the remote registry whether it knows scopeID.
func (r *RemoteRegistry) GetMetadata(scopeID string) (ScopeMetadata, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRemoteCallTimeout)
	defer cancel()

	sp, err := r.proxy.Find(ctx, scopeID)
	if err != nil {
		return ScopeMetadata{}, fmt.Errorf("registry: remote get metadata %q: %w", scopeID, err)
	}
	return ScopeMetadata{ScopeID: sp.Identity()}, nil
}

// List returns every scope the remote registry currently reports, best
// effort (an unreachable remote yields an empty result rather than an
// error, the same tolerance List applies to a stale peer).
func (r *RemoteRegistry) List() map[string]ScopeMetadata {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRemoteCallTimeout)
	defer cancel()

	scopes, err := r.proxy.List(ctx)
	if err != nil {
		return nil
	}
	out := make(map[string]ScopeMetadata, len(scopes))
	for id, sp := range scopes {
		out[id] = ScopeMetadata{ScopeID: sp.Identity()}
	}
	return out
}
