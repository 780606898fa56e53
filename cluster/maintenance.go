package cluster

import (
	"log"
	"sync"
	"time"

	"github.com/sjeohp/parity/keyid"
	"github.com/sjeohp/parity/sched"
	"github.com/sjeohp/parity/wire"
)

const (
	maintenanceTick = 10 * time.Second
	keepAliveWarn   = 30 * time.Second
	keepAliveDead   = 60 * time.Second
)

// Maintenance periodically sweeps the registry for idle connections
// and re-dials roster peers that are not currently connected. It
// re-arms itself after each tick completes, rather than running on a
// free-running ticker, so a slow tick never piles up overlapping runs.
type Maintenance struct {
	registry  *Registry
	addresses map[keyid.NodeId]string
	self      keyid.NodeId

	dial      func(peer keyid.NodeId, address string)
	onTimeout func(peer keyid.NodeId)

	sched *sched.Scheduler

	mu      sync.Mutex
	stopped bool
}

// NewMaintenance builds a Maintenance loop over registry. addresses
// gives every roster peer's dial address, including self (which is
// skipped). dial is invoked (in its own goroutine) to re-establish a
// missing connection; onTimeout is invoked after a dead connection is
// closed and removed, so callers can fail any sessions involving that
// peer.
func NewMaintenance(registry *Registry, self keyid.NodeId, addresses map[keyid.NodeId]string, dial func(keyid.NodeId, string), onTimeout func(keyid.NodeId)) *Maintenance {
	return &Maintenance{
		registry:  registry,
		addresses: addresses,
		self:      self,
		dial:      dial,
		onTimeout: onTimeout,
		sched:     sched.New(),
	}
}

// Run arms the first tick. The loop continues until Stop is called.
func (m *Maintenance) Run() {
	m.sched.PutAfter(m.tick, maintenanceTick)
}

// Stop prevents any further tick from re-arming itself. A tick already
// in flight still completes.
func (m *Maintenance) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *Maintenance) tick() {
	m.sweepKeepAlive()
	m.redialDisconnected()

	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if !stopped {
		m.sched.PutAfter(m.tick, maintenanceTick)
	}
}

func (m *Maintenance) sweepKeepAlive() {
	for _, c := range m.registry.ActiveConnections() {
		idle := c.Idle()
		switch {
		case idle >= keepAliveDead:
			if m.registry.Remove(c) {
				c.Close()
				log.Printf("cluster: %s unresponsive for %s, disconnecting", c.PeerId, idle)
				if m.onTimeout != nil {
					m.onTimeout(c.PeerId)
				}
			}
		case idle >= keepAliveWarn:
			c.Enqueue(wire.NewKeepAlive())
		}
	}
}

func (m *Maintenance) redialDisconnected() {
	roster := make([]keyid.NodeId, 0, len(m.addresses))
	for id := range m.addresses {
		roster = append(roster, id)
	}
	for _, peer := range m.registry.DisconnectedPeers(roster) {
		address, ok := m.addresses[peer]
		if !ok || m.dial == nil {
			continue
		}
		go m.dial(peer, address)
	}
}
