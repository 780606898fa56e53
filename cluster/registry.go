// Package cluster implements the transport and session multiplexer:
// the connection registry, per-connection worker, maintenance
// scheduler, listener/dialer, cluster view, and message dispatcher
// that sit on top of the wire and session packages. A shared
// gaio.Watcher handles reads for every connection, while a dedicated
// goroutine per connection handles writes.
package cluster

import (
	"net"
	"sync"
	"time"

	"github.com/sjeohp/parity/keyid"
	"github.com/sjeohp/parity/wire"
)

// Direction records which side of a Connection dialed.
type Direction int

const (
	// DirectionOutbound means this node dialed the peer.
	DirectionOutbound Direction = iota
	// DirectionInbound means the peer dialed this node.
	DirectionInbound
)

func (d Direction) String() string {
	if d == DirectionOutbound {
		return "outbound"
	}
	return "inbound"
}

// maxOutboxSize bounds the per-connection outbound queue. Once full,
// Enqueue drops the oldest pending message to admit the new one,
// resolving backpressure by shedding stale broadcasts rather than
// blocking the dispatcher or growing without bound.
const maxOutboxSize = 256

// Connection is one authenticated, registered peer link.
type Connection struct {
	PeerId      keyid.NodeId
	PeerAddress string
	Direction   Direction
	Conn        net.Conn

	mu           sync.Mutex
	lastActivity time.Time
	outbox       []wire.Message
	notify       chan struct{}

	// readState and pendingFrameLength are mutated only by the
	// cluster's single shared reader goroutine (the gaio WaitIO loop),
	// so they need no lock of their own.
	readState          readState
	pendingFrameLength uint32

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection wraps an authenticated net.Conn for registration.
func NewConnection(peerID keyid.NodeId, address string, direction Direction, conn net.Conn) *Connection {
	return &Connection{
		PeerId:       peerID,
		PeerAddress:  address,
		Direction:    direction,
		Conn:         conn,
		lastActivity: time.Now(),
		notify:       make(chan struct{}, 1),
		closed:       make(chan struct{}),
	}
}

// Touch records activity now, refreshing the keep-alive deadline.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// Idle returns how long it has been since the last recorded activity.
func (c *Connection) Idle() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastActivity)
}

// Enqueue appends msg to the outbound queue, dropping the oldest
// pending message if the queue is already full.
func (c *Connection) Enqueue(msg wire.Message) {
	c.mu.Lock()
	if len(c.outbox) >= maxOutboxSize {
		c.outbox = c.outbox[1:]
	}
	c.outbox = append(c.outbox, msg)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// drain empties the outbox for the send worker to flush.
func (c *Connection) drain() []wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.outbox
	c.outbox = nil
	return pending
}

// Close closes the underlying connection exactly once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.Conn.Close()
		close(c.closed)
	})
}

// Registry tracks every connected peer, keyed by NodeId. Its keys are
// always a subset of the roster, excluding self.
type Registry struct {
	mu    sync.Mutex
	self  keyid.NodeId
	conns map[keyid.NodeId]*Connection
}

// NewRegistry builds an empty Registry for self.
func NewRegistry(self keyid.NodeId) *Registry {
	return &Registry{self: self, conns: make(map[keyid.NodeId]*Connection)}
}

// correctDirection reports whether direction is the one the tie-break
// rule assigns to a connection with self: the lower NodeId always
// initiates, so it is Outbound from the lower side and Inbound from
// the higher side.
func (r *Registry) correctDirection(peer keyid.NodeId, direction Direction) bool {
	if r.self.Less(peer) {
		return direction == DirectionOutbound
	}
	return direction == DirectionInbound
}

// Insert admits c, replacing any existing connection to the same peer
// that has the wrong tie-break direction. It reports whether c was
// admitted; when false, c has already been closed by Insert and the
// caller must not use it further.
func (r *Registry) Insert(c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.conns[c.PeerId]
	if !ok {
		r.conns[c.PeerId] = c
		return true
	}

	if r.correctDirection(c.PeerId, c.Direction) && !r.correctDirection(existing.PeerId, existing.Direction) {
		existing.Close()
		r.conns[c.PeerId] = c
		return true
	}

	c.Close()
	return false
}

// Remove drops the registered connection for peer, but only if the
// entry currently stored is the same connection the caller observed
// failing — this keeps a fresher replacement connection from being
// evicted by a stale worker noticing the old connection's death.
func (r *Registry) Remove(c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.conns[c.PeerId]
	if !ok || existing != c {
		return false
	}
	delete(r.conns, c.PeerId)
	return true
}

// Get returns the registered connection for peer, if any.
func (r *Registry) Get(peer keyid.NodeId) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[peer]
	return c, ok
}

// ConnectedNodeIds returns every currently connected peer.
func (r *Registry) ConnectedNodeIds() []keyid.NodeId {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]keyid.NodeId, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// ActiveConnections returns a snapshot of every registered connection.
func (r *Registry) ActiveConnections() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// DisconnectedPeers returns every member of roster, excluding self,
// that has no registered connection.
func (r *Registry) DisconnectedPeers(roster []keyid.NodeId) []keyid.NodeId {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]keyid.NodeId, 0, len(roster))
	for _, id := range roster {
		if id == r.self {
			continue
		}
		if _, ok := r.conns[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
