package cluster

import (
	"errors"
	"sync"

	"github.com/sjeohp/parity/keyid"
	"github.com/sjeohp/parity/wire"
)

var (
	// ErrNotConnected is returned by View.Send when the target peer has
	// no registered connection right now.
	ErrNotConnected = errors.New("cluster: peer not connected")
	// ErrBlacklisted is returned by View.Send when the target peer has
	// been blacklisted.
	ErrBlacklisted = errors.New("cluster: peer blacklisted")
	// ErrNodeDisconnected is the Routing-kind error a caller outside this
	// package should match on; it is the same condition as
	// ErrNotConnected; both names are kept so call sites can use
	// whichever reads better (package-local vs. routing-taxonomy).
	ErrNodeDisconnected = ErrNotConnected
)

// View is a node's frozen-membership window onto the registry: the
// node set is fixed at creation (typically a session's nominated set),
// while Send/Broadcast route through whatever connections the
// registry happens to have live at the time of the call.
type View struct {
	registry *Registry
	nodes    []keyid.NodeId

	mu          sync.Mutex
	blacklisted map[keyid.NodeId]struct{}
}

// NewView freezes nodes as this view's membership.
func NewView(registry *Registry, nodes []keyid.NodeId) *View {
	frozen := make([]keyid.NodeId, len(nodes))
	copy(frozen, nodes)
	return &View{registry: registry, nodes: frozen, blacklisted: make(map[keyid.NodeId]struct{})}
}

// Nodes returns the frozen membership set.
func (v *View) Nodes() []keyid.NodeId {
	out := make([]keyid.NodeId, len(v.nodes))
	copy(out, v.nodes)
	return out
}

// Send enqueues msg for delivery to peer, failing if peer is
// blacklisted or has no live connection.
func (v *View) Send(peer keyid.NodeId, msg wire.Message) error {
	v.mu.Lock()
	_, blocked := v.blacklisted[peer]
	v.mu.Unlock()
	if blocked {
		return ErrBlacklisted
	}

	c, ok := v.registry.Get(peer)
	if !ok {
		return ErrNotConnected
	}
	c.Enqueue(msg)
	return nil
}

// Broadcast sends msg to every member of the view's frozen node set,
// best-effort: a peer with no live connection or that is blacklisted
// is silently skipped.
func (v *View) Broadcast(msg wire.Message) {
	for _, peer := range v.nodes {
		_ = v.Send(peer, msg)
	}
}

// Blacklist marks peer as untrusted: any live connection is closed and
// its pending outbound messages dropped, and Send refuses the peer for
// the lifetime of this view. The blacklist is local to this view: the
// maintenance re-dial and the accept path do not consult it, so a new
// connection to the peer can still be registered.
func (v *View) Blacklist(peer keyid.NodeId) {
	v.mu.Lock()
	v.blacklisted[peer] = struct{}{}
	v.mu.Unlock()

	if c, ok := v.registry.Get(peer); ok {
		if v.registry.Remove(c) {
			c.Close()
		}
	}
}

// IsBlacklisted reports whether peer has been blacklisted in this view.
func (v *View) IsBlacklisted(peer keyid.NodeId) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.blacklisted[peer]
	return ok
}
