package cluster

import (
	"encoding/binary"
	"io"
	"log"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/xtaci/gaio"

	"github.com/sjeohp/parity/handshake"
	"github.com/sjeohp/parity/keyid"
	"github.com/sjeohp/parity/session"
	"github.com/sjeohp/parity/wire"
)

// readState tracks where a connection's shared reactor read sits in
// the two-phase frame: first the 4-byte length prefix, then the frame
// body itself.
type readState int

const (
	stateReadLength readState = iota
	stateReadBody
)

const defaultReadTimeout = 60 * time.Second

// Config describes one node's place in the cluster: its own keypair,
// its listen address, and the address of every other member of the
// roster (self's own entry in Roster is never dialed).
type Config struct {
	Self          *keyid.KeyPair
	ListenAddress string
	Roster        map[keyid.NodeId]string
	// WorkerThreads bounds how many authentication handshakes (the
	// CPU-bound ECDH/AES work in the handshake package) run at once;
	// zero defaults to runtime.GOMAXPROCS(0). Accepting and dialing
	// themselves are cheap and stay unbounded.
	WorkerThreads int
}

// Cluster is the top-level transport and session multiplexer for one
// node: it owns the connection registry, the shared async-IO reactor,
// the maintenance scheduler, and the message dispatcher.
type Cluster struct {
	self   *keyid.KeyPair
	selfID keyid.NodeId
	roster map[keyid.NodeId]string

	registry    *Registry
	sessions    *session.Registry
	dispatcher  *Dispatcher
	maintenance *Maintenance

	acceptable map[keyid.NodeId]struct{}
	listener   net.Listener
	watcher    *gaio.Watcher

	// handshakes bounds concurrent authentication work; see Config.WorkerThreads.
	handshakes chan struct{}

	die     chan struct{}
	dieOnce sync.Once
}

// New builds a Cluster from config and binds its listener, but does
// not accept or dial anything; call Run to start it.
func New(config Config) (*Cluster, error) {
	listener, err := net.Listen("tcp", config.ListenAddress)
	if err != nil {
		return nil, err
	}
	watcher, err := gaio.NewWatcher()
	if err != nil {
		listener.Close()
		return nil, err
	}

	selfID := config.Self.NodeId()
	acceptable := make(map[keyid.NodeId]struct{}, len(config.Roster))
	for id := range config.Roster {
		acceptable[id] = struct{}{}
	}

	workers := config.WorkerThreads
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	c := &Cluster{
		self:       config.Self,
		selfID:     selfID,
		roster:     config.Roster,
		registry:   NewRegistry(selfID),
		sessions:   session.NewRegistry(),
		acceptable: acceptable,
		listener:   listener,
		watcher:    watcher,
		handshakes: make(chan struct{}, workers),
		die:        make(chan struct{}),
	}
	c.dispatcher = NewDispatcher(selfID, c.sessions, c.sendTo)
	c.maintenance = NewMaintenance(c.registry, selfID, config.Roster, c.dialPeer, c.onConnectionTimeout)
	return c, nil
}

// Run starts accepting, dialing every roster peer this node is
// responsible for initiating, and the shared reactor and maintenance
// loops. It returns immediately; Close stops the cluster.
func (c *Cluster) Run() {
	go c.acceptLoop()
	go c.reactorLoop()
	for peer, address := range c.roster {
		if peer == c.selfID {
			continue
		}
		go c.dialPeer(peer, address)
	}
	c.maintenance.Run()
}

// Close shuts the cluster down: the listener, the reactor, and every
// registered connection.
func (c *Cluster) Close() {
	c.dieOnce.Do(func() {
		close(c.die)
		c.maintenance.Stop()
		c.listener.Close()
		c.watcher.Close()
		for _, conn := range c.registry.ActiveConnections() {
			conn.Close()
		}
	})
}

// sendTo is the Dispatcher's hook for enqueueing an outbound message
// to a connected peer; peers with no live connection are silently
// dropped, matching the view's best-effort Broadcast semantics.
func (c *Cluster) sendTo(peer keyid.NodeId, msg wire.Message) {
	conn, ok := c.registry.Get(peer)
	if !ok {
		return
	}
	conn.Enqueue(msg)
}

// onConnectionTimeout is invoked by the maintenance loop once a dead
// connection has been closed and removed. It only logs the loss: no
// session is notified, and nothing else in the cluster calls a
// session's OnSessionTimeout (see DESIGN.md).
func (c *Cluster) onConnectionTimeout(peer keyid.NodeId) {
	log.Printf("cluster: connection to %s lost", peer)
}

// dialPeer dials and authenticates a connection to peer at address.
// Per the tie-break rule only the lower NodeId initiates; a call for
// the wrong direction is a no-op so callers (maintenance re-dial, and
// Run's initial dial sweep) don't need to pre-filter.
func (c *Cluster) dialPeer(peer keyid.NodeId, address string) {
	if !c.selfID.Less(peer) {
		return
	}
	if _, ok := c.registry.Get(peer); ok {
		return
	}

	c.handshakes <- struct{}{}
	defer func() { <-c.handshakes }()

	nc, err := dialOne(address, c.self, c.acceptable)
	if err != nil {
		log.Printf("cluster: dial %s at %s failed: %v", peer, address, err)
		return
	}
	c.register(nc, DirectionOutbound)
}

// acceptLoop only accepts; the handshake itself (the CPU-bound half of
// bringing up a connection) runs on the bounded worker pool so one slow
// or malicious peer can't stall every other pending accept.
func (c *Cluster) acceptLoop() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			select {
			case <-c.die:
				return
			default:
				log.Printf("cluster: accept failed: %v", err)
				continue
			}
		}
		go c.authenticateAccepted(conn)
	}
}

func (c *Cluster) authenticateAccepted(conn net.Conn) {
	c.handshakes <- struct{}{}
	defer func() { <-c.handshakes }()

	nc, err := authenticateAccepted(conn, c.self, c.acceptable)
	if err != nil {
		log.Printf("cluster: inbound handshake failed: %v", err)
		conn.Close()
		return
	}
	c.register(nc, DirectionInbound)
}

func (c *Cluster) register(nc *handshake.NetConnection, direction Direction) {
	conn := NewConnection(nc.NodeId, nc.Address, direction, nc.Conn)
	if !c.registry.Insert(conn) {
		return
	}
	go startSendWorker(conn)
	c.submitRead(conn, stateReadLength)
}

// submitRead arms the reactor's next async read for conn: either the
// fixed 4-byte length prefix, or (once the length is known) the frame
// body itself.
func (c *Cluster) submitRead(conn *Connection, state readState) {
	conn.readState = state
	var buf []byte
	if state == stateReadLength {
		buf = make([]byte, 4)
	} else {
		buf = make([]byte, conn.pendingFrameLength)
	}
	deadline := time.Now().Add(defaultReadTimeout)
	if err := c.watcher.ReadFull(conn, conn.Conn, buf, deadline); err != nil {
		conn.Close()
		c.registry.Remove(conn)
	}
}

// reactorLoop is the single goroutine driving every connection's
// reads through one shared gaio.Watcher.
func (c *Cluster) reactorLoop() {
	for {
		results, err := c.watcher.WaitIO()
		if err != nil {
			return
		}
		for _, res := range results {
			conn, ok := res.Context.(*Connection)
			if !ok || res.Operation != gaio.OpRead {
				continue
			}
			if res.Error != nil {
				if res.Error != io.EOF {
					log.Printf("cluster: read from %s failed: %v", conn.PeerId, res.Error)
				}
				c.registry.Remove(conn)
				conn.Close()
				continue
			}
			if res.Size <= 0 {
				continue
			}
			c.handleReadResult(conn, res.Buffer[:res.Size])
		}
	}
}

func (c *Cluster) handleReadResult(conn *Connection, data []byte) {
	switch conn.readState {
	case stateReadLength:
		length := binary.LittleEndian.Uint32(data)
		if length > wire.MaxMessageLength || length < 2 {
			log.Printf("cluster: %s sent invalid frame length %d", conn.PeerId, length)
			c.registry.Remove(conn)
			conn.Close()
			return
		}
		conn.pendingFrameLength = length
		c.submitRead(conn, stateReadBody)
	case stateReadBody:
		env, err := wire.Decode(data)
		if err != nil {
			log.Printf("cluster: %s sent undecodable frame: %v", conn.PeerId, err)
		} else {
			c.dispatcher.Dispatch(conn.PeerId, conn, env)
		}
		c.submitRead(conn, stateReadLength)
	}
}

// Snapshot reports the cluster's current view for operator tooling
// (the status CLI command): every roster peer, whether it is
// connected, and the connection's direction and idle time.
type Snapshot struct {
	Self     keyid.NodeId
	Peers    []PeerStatus
	Sessions []session.Status
}

// PeerStatus is one roster member's connectivity, for Snapshot.
type PeerStatus struct {
	NodeId    keyid.NodeId
	Address   string
	Connected bool
	Direction Direction
	Idle      time.Duration
}

// Snapshot reports the cluster's current view for operator tooling.
func (c *Cluster) Snapshot() Snapshot {
	snap := Snapshot{Self: c.selfID, Sessions: c.sessions.Sessions()}
	for peer, address := range c.roster {
		if peer == c.selfID {
			continue
		}
		status := PeerStatus{NodeId: peer, Address: address}
		if conn, ok := c.registry.Get(peer); ok {
			status.Connected = true
			status.Direction = conn.Direction
			status.Idle = conn.Idle()
		}
		snap.Peers = append(snap.Peers, status)
	}
	return snap
}
